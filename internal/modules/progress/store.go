// README: Progress aggregate store backed by PostgreSQL (scalar columns + JSONB stages + order links).
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flashfood/internal/infra"
	"flashfood/internal/types"
)

var ErrNotFound = errors.New("driver progress not found")

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const aggregateColumns = `
	id, driver_id, current_state, previous_state, next_state, total_tips, stages, created_at, updated_at`

func (s *Store) Create(ctx context.Context, a *Aggregate) error {
	stages, err := json.Marshal(a.Slots)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO driver_progress_stages (
			id, driver_id, current_state, previous_state, next_state, total_tips, stages, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(a.ID), string(a.DriverID), string(a.CurrentState),
		nullKey(a.PreviousState), nullKey(a.NextState),
		a.TotalTips.Amount, stages, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *Store) Save(ctx context.Context, a *Aggregate) error {
	stages, err := json.Marshal(a.Slots)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_progress_stages
		SET current_state = $2, previous_state = $3, next_state = $4, stages = $5, updated_at = $6
		WHERE id = $1`,
		string(a.ID), string(a.CurrentState), nullKey(a.PreviousState), nullKey(a.NextState),
		stages, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetForUpdate locks the aggregate row and loads its order links.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*Aggregate, error) {
	return s.one(ctx, `SELECT `+aggregateColumns+`
		FROM driver_progress_stages
		WHERE id = $1
		FOR UPDATE`, string(id))
}

// FindActiveByDriver locks the driver's active aggregate.
func (s *Store) FindActiveByDriver(ctx context.Context, driverID types.ID) (*Aggregate, error) {
	return s.one(ctx, `SELECT `+aggregateColumns+`
		FROM driver_progress_stages
		WHERE driver_id = $1 AND current_state NOT LIKE 'delivery_complete_%'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, string(driverID))
}

// FindByOrder returns the aggregate linked to orderID.
func (s *Store) FindByOrder(ctx context.Context, orderID types.ID) (*Aggregate, error) {
	return s.one(ctx, `SELECT `+prefixed("p")+`
		FROM driver_progress_stages p
		JOIN driver_progress_orders l ON l.driver_progress_id = p.id
		WHERE l.order_id = $1`, string(orderID))
}

func (s *Store) LinkExists(ctx context.Context, orderID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM driver_progress_orders WHERE order_id = $1)`,
		string(orderID),
	).Scan(&exists)
	return exists, err
}

func (s *Store) AddOrderLink(ctx context.Context, aggregateID, orderID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_progress_orders (driver_progress_id, order_id)
		VALUES ($1, $2)`,
		string(aggregateID), string(orderID),
	)
	return err
}

// AddTips credits the driver's active aggregate linked to orderID.
// It reports false when no such aggregate exists.
func (s *Store) AddTips(ctx context.Context, driverID, orderID types.ID, amount int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_progress_stages
		SET total_tips = total_tips + $3
		WHERE driver_id = $1
		  AND current_state NOT LIKE 'delivery_complete_%'
		  AND id IN (SELECT driver_progress_id FROM driver_progress_orders WHERE order_id = $2)`,
		string(driverID), string(orderID), amount,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*Aggregate, error) {
	var a Aggregate
	var prev, next *string
	var stages []byte
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.DriverID, &a.CurrentState, &prev, &next,
		&a.TotalTips.Amount, &stages, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.TotalTips.Currency = types.DefaultCurrency
	if prev != nil {
		a.PreviousState = StateKey(*prev)
	}
	if next != nil {
		a.NextState = StateKey(*next)
	}
	if err := json.Unmarshal(stages, &a.Slots); err != nil {
		return nil, fmt.Errorf("decode stages of %s: %w", a.ID, err)
	}
	if a.Links, err = s.links(ctx, a.ID); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) links(ctx context.Context, id types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT order_id FROM driver_progress_orders
		WHERE driver_progress_id = $1
		ORDER BY created_at, order_id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.ID
	for rows.Next() {
		var oid string
		if err := rows.Scan(&oid); err != nil {
			return nil, err
		}
		out = append(out, types.ID(oid))
	}
	return out, rows.Err()
}

func prefixed(alias string) string {
	return alias + ".id, " + alias + ".driver_id, " + alias + ".current_state, " + alias + ".previous_state, " +
		alias + ".next_state, " + alias + ".total_tips, " + alias + ".stages, " + alias + ".created_at, " + alias + ".updated_at"
}

func nullKey(k StateKey) *string {
	if k == "" {
		return nil
	}
	v := string(k)
	return &v
}
