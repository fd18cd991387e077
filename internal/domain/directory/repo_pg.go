package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carevault/carevault/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// RepoPG resolves patients and professionals from the records system's own
// tables. Deployments backed by an external directory swap this for a client
// implementing the same two interfaces.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *RepoPG) FindPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, given_name, family_name, email, phone, created_at, deleted_at
		 FROM patients WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&p.ID, &p.GivenName, &p.FamilyName, &p.Email, &p.Phone, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoPG) FindProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	var p Professional
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, given_name, family_name, specialty, email, created_at, deleted_at
		 FROM professionals WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&p.ID, &p.GivenName, &p.FamilyName, &p.Specialty, &p.Email, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
