package auditevent

import (
	"context"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetAccessEvent(ctx context.Context, id uuid.UUID) (*AccessEvent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchAccessEvents(ctx context.Context, filter SearchFilter, limit, offset int) ([]*AccessEvent, int, error) {
	return s.repo.Search(ctx, filter, limit, offset)
}
