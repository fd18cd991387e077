package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the closed set of actor categories known to the system. Access
// decisions switch exhaustively on Kind rather than comparing role strings.
type Kind string

const (
	KindPatient      Kind = "patient"
	KindProfessional Kind = "professional"
	KindSystem       Kind = "system"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPatient, KindProfessional, KindSystem:
		return true
	}
	return false
}

// Actor identifies the authenticated principal behind a request. System
// actors carry a nil ID.
type Actor struct {
	Kind Kind      `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func Patient(id uuid.UUID) Actor      { return Actor{Kind: KindPatient, ID: id} }
func Professional(id uuid.UUID) Actor { return Actor{Kind: KindProfessional, ID: id} }
func System() Actor                   { return Actor{Kind: KindSystem} }

// Ref renders the actor as a stable "kind/uuid" reference for storage and
// audit entries. System actors render as "system".
func (a Actor) Ref() string {
	if a.Kind == KindSystem {
		return string(KindSystem)
	}
	return fmt.Sprintf("%s/%s", a.Kind, a.ID)
}

// ParseRef parses a reference produced by Ref.
func ParseRef(ref string) (Actor, error) {
	if ref == string(KindSystem) {
		return System(), nil
	}
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 {
		return Actor{}, fmt.Errorf("malformed actor reference %q", ref)
	}
	kind := Kind(parts[0])
	if !kind.Valid() || kind == KindSystem {
		return Actor{}, fmt.Errorf("unknown actor kind %q", parts[0])
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Actor{}, fmt.Errorf("parse actor id: %w", err)
	}
	return Actor{Kind: kind, ID: id}, nil
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// FromContext retrieves the authenticated actor from context. The second
// return value is false when no actor has been set.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
