package authorization

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const authCols = `id, professional_id, patient_id, access_type, status,
	start_at, end_at, requested_reason, revocation_reason, revoked_at,
	granted_by, validated_by, validated_at, conditions,
	created_at, updated_at`

func scanAuthorization(row pgx.Row) (*Authorization, error) {
	var a Authorization
	err := row.Scan(
		&a.ID, &a.ProfessionalID, &a.PatientID, &a.AccessType, &a.Status,
		&a.StartAt, &a.EndAt, &a.RequestedReason, &a.RevocationReason, &a.RevokedAt,
		&a.GrantedBy, &a.ValidatedBy, &a.ValidatedAt, &a.Conditions,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return &a, err
}

// uniqueViolation is the Postgres error code raised when the partial unique
// index on live standard authorizations rejects a duplicate insert. The
// index is what makes the check-then-insert race-free.
const uniqueViolation = "23505"

func (r *RepoPG) Create(ctx context.Context, a *Authorization) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO authorizations (id, professional_id, patient_id, access_type, status,
			start_at, end_at, requested_reason, revocation_reason, revoked_at,
			granted_by, validated_by, validated_at, conditions)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.ProfessionalID, a.PatientID, a.AccessType, a.Status,
		a.StartAt, a.EndAt, a.RequestedReason, a.RevocationReason, a.RevokedAt,
		a.GrantedBy, a.ValidatedBy, a.ValidatedAt, a.Conditions,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert authorization: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Authorization, error) {
	q := fmt.Sprintf("SELECT %s FROM authorizations WHERE id = $1 AND deleted_at IS NULL", authCols)
	a, err := scanAuthorization(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	return a, nil
}

func (r *RepoPG) Transition(ctx context.Context, a *Authorization, from Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE authorizations
		 SET status = $1, revocation_reason = $2, revoked_at = $3,
		     validated_by = $4, validated_at = $5, updated_at = NOW()
		 WHERE id = $6 AND status = $7 AND deleted_at IS NULL`,
		a.Status, a.RevocationReason, a.RevokedAt,
		a.ValidatedBy, a.ValidatedAt, a.ID, from,
	)
	if err != nil {
		return fmt.Errorf("transition authorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or a concurrent transition won. A re-read
		// distinguishes the two for the caller's error taxonomy.
		if _, err := r.GetByID(ctx, a.ID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

func (r *RepoPG) ListPendingForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Authorization, int, error) {
	where := "WHERE patient_id = $1 AND status = 'pending' AND deleted_at IS NULL"
	return r.list(ctx, where, []interface{}{patientID}, limit, offset)
}

func (r *RepoPG) ListActiveForPatient(ctx context.Context, patientID uuid.UUID, now time.Time, limit, offset int) ([]*Authorization, int, error) {
	where := `WHERE patient_id = $1 AND status = 'active' AND deleted_at IS NULL
		AND start_at <= $2 AND (end_at IS NULL OR end_at >= $2)`
	return r.list(ctx, where, []interface{}{patientID, now}, limit, offset)
}

func (r *RepoPG) ListActiveForProfessional(ctx context.Context, professionalID uuid.UUID, now time.Time, limit, offset int) ([]*Authorization, int, error) {
	where := `WHERE professional_id = $1 AND status = 'active' AND deleted_at IS NULL
		AND start_at <= $2 AND (end_at IS NULL OR end_at >= $2)`
	return r.list(ctx, where, []interface{}{professionalID, now}, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Authorization, int, error) {
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM authorizations %s", where)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM authorizations %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		authCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Authorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
