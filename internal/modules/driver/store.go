// README: Driver store backed by PostgreSQL (row locks, current-order set, position).
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"flashfood/internal/infra"
	"flashfood/internal/types"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.get(ctx, id, false)
}

// GetForUpdate locks the driver row so capacity checks are serialized per driver.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*Driver, error) {
	return s.get(ctx, id, true)
}

func (s *Store) get(ctx context.Context, id types.ID, lock bool) (*Driver, error) {
	q := `
		SELECT id, first_name, last_name, avatar_url, available, current_lat, current_lng, updated_at
		FROM drivers
		WHERE id = $1`
	if lock {
		q += " FOR UPDATE"
	}
	var d Driver
	err := s.db.QueryRow(ctx, q, string(id)).Scan(
		&d.ID, &d.FirstName, &d.LastName, &d.Avatar, &d.Available,
		&d.CurrentLocation.Lat, &d.CurrentLocation.Lng, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT order_id FROM driver_current_orders
		WHERE driver_id = $1
		ORDER BY added_at, order_id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var oid string
		if err := rows.Scan(&oid); err != nil {
			return nil, err
		}
		d.CurrentOrders = append(d.CurrentOrders, types.ID(oid))
	}
	return &d, rows.Err()
}

func (s *Store) AddCurrentOrder(ctx context.Context, driverID, orderID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_current_orders (driver_id, order_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		string(driverID), string(orderID), time.Now(),
	)
	return err
}

func (s *Store) RemoveCurrentOrder(ctx context.Context, driverID, orderID types.ID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM driver_current_orders
		WHERE driver_id = $1 AND order_id = $2`,
		string(driverID), string(orderID),
	)
	return err
}

// UpdateLocation stores the latest reported position.
func (s *Store) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET current_lat = $2, current_lng = $3, updated_at = $4
		WHERE id = $1`,
		string(id), p.Lat, p.Lng, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET available = $2 WHERE id = $1`, string(id), available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
