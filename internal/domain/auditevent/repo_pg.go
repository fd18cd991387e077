package auditevent

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const eventCols = `id, recorded, action, outcome, error_code, outcome_desc,
	resource_type, resource_id, patient_id, professional_id, actor_ref,
	ip_address, user_agent, created_at`

func scanEvent(row pgx.Row) (*AccessEvent, error) {
	var ev AccessEvent
	err := row.Scan(
		&ev.ID, &ev.Recorded, &ev.Action, &ev.Outcome, &ev.ErrorCode, &ev.OutcomeDesc,
		&ev.ResourceType, &ev.ResourceID, &ev.PatientID, &ev.ProfessionalID, &ev.ActorRef,
		&ev.IPAddress, &ev.UserAgent, &ev.CreatedAt,
	)
	return &ev, err
}

func (r *RepoPG) Insert(ctx context.Context, ev *AccessEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO access_events (id, recorded, action, outcome, error_code, outcome_desc,
			resource_type, resource_id, patient_id, professional_id, actor_ref,
			ip_address, user_agent)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ev.ID, ev.Recorded, ev.Action, ev.Outcome, ev.ErrorCode, ev.OutcomeDesc,
		ev.ResourceType, ev.ResourceID, ev.PatientID, ev.ProfessionalID, ev.ActorRef,
		ev.IPAddress, ev.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AccessEvent, error) {
	q := fmt.Sprintf("SELECT %s FROM access_events WHERE id = $1 AND deleted_at IS NULL", eventCols)
	ev, err := scanEvent(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("access event %s: not found", id)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *RepoPG) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*AccessEvent, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	idx := 1

	if filter.PatientID != nil {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, *filter.PatientID)
		idx++
	}
	if filter.ProfessionalID != nil {
		where = append(where, fmt.Sprintf("professional_id = $%d", idx))
		args = append(args, *filter.ProfessionalID)
		idx++
	}
	if filter.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", idx))
		args = append(args, filter.Action)
		idx++
	}
	if filter.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", idx))
		args = append(args, filter.Outcome)
		idx++
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("recorded >= $%d", idx))
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("recorded <= $%d", idx))
		args = append(args, *filter.To)
		idx++
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM access_events %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM access_events %s ORDER BY recorded DESC LIMIT $%d OFFSET $%d",
		eventCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ev)
	}
	return items, total, rows.Err()
}
