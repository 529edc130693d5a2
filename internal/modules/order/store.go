// README: Order store backed by PostgreSQL; runs on a pool or inside a pgx transaction.
package order

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

// WithTx returns a store bound to tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const orderColumns = `
	o.id, o.customer_id, o.restaurant_id, o.driver_id, o.status, o.tracking_info,
	o.total_amount, o.driver_tips, o.currency, o.created_at, o.updated_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, restaurant_id, driver_id, status, tracking_info,
			total_amount, driver_tips, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.RestaurantID),
		toStringPtr(o.DriverID),
		string(o.Status),
		string(o.TrackingInfo),
		o.TotalAmount.Amount,
		o.DriverTips.Amount,
		currencyOf(o.TotalAmount),
		o.CreatedAt,
		o.UpdatedAt,
	)
	return err
}

// Get loads the order together with driver and restaurant avatars.
func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`, d.avatar_url, r.avatar_url
		FROM orders o
		LEFT JOIN drivers d ON d.id = o.driver_id
		LEFT JOIN restaurants r ON r.id = o.restaurant_id
		WHERE o.id = $1`, string(id),
	)
	var driverAvatar, restaurantAvatar *string
	o, err := scanOrder(row, &driverAvatar, &restaurantAvatar)
	if err != nil {
		return nil, err
	}
	o.DriverAvatar = driverAvatar
	o.RestaurantAvatar = restaurantAvatar
	return o, nil
}

// GetForUpdate locks the order row for the rest of the transaction.
func (s *Store) GetForUpdate(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.id = $1
		FOR UPDATE`, string(id),
	)
	return scanOrder(row)
}

// Assign sets driver and progress. It only succeeds while the order is
// unassigned or already held by driverID.
func (s *Store) Assign(ctx context.Context, id, driverID types.ID, p Progress, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET driver_id = $2, status = $3, tracking_info = $4, updated_at = $5
		WHERE id = $1 AND (driver_id IS NULL OR driver_id = $2)`,
		string(id), string(driverID), string(p.Status), string(p.TrackingInfo), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetProgress(ctx context.Context, id types.ID, p Progress, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $2, tracking_info = $3, updated_at = $4
		WHERE id = $1`,
		string(id), string(p.Status), string(p.TrackingInfo), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetProgress applies p only while the order is still in from.
func (s *Store) CompareAndSetProgress(ctx context.Context, id types.ID, from Status, p Progress, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $3, tracking_info = $4, updated_at = $5
		WHERE id = $1 AND status = $2`,
		string(id), string(from), string(p.Status), string(p.TrackingInfo), at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddTip increments driver_tips and returns the new total.
func (s *Store) AddTip(ctx context.Context, id types.ID, amount int64, at time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		UPDATE orders
		SET driver_tips = driver_tips + $2, updated_at = $3
		WHERE id = $1
		RETURNING driver_tips`,
		string(id), amount, at,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return total, err
}

func scanOrder(row pgx.Row, extra ...any) (*Order, error) {
	var o Order
	var driverID *string
	var currency string
	dest := []any{
		&o.ID, &o.CustomerID, &o.RestaurantID, &driverID, &o.Status, &o.TrackingInfo,
		&o.TotalAmount.Amount, &o.DriverTips.Amount, &currency, &o.CreatedAt, &o.UpdatedAt,
	}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	o.TotalAmount.Currency = currency
	o.DriverTips.Currency = currency
	return &o, nil
}

func toStringPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}

func currencyOf(m types.Money) string {
	if m.Currency == "" {
		return types.DefaultCurrency
	}
	return m.Currency
}
