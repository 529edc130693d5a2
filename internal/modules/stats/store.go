// README: Driver statistics store: aggregates delivered orders into driver_stats_records.
package stats

import (
	"context"
	"time"

	"flashfood/internal/infra"
	"flashfood/internal/types"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// Totals counts delivered orders and their tips in [from, to).
func (s *Store) Totals(ctx context.Context, driverID types.ID, from, to time.Time) (int, int64, error) {
	var deliveries int
	var tips int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(driver_tips), 0)
		FROM orders
		WHERE driver_id = $1 AND status = 'DELIVERED'
		  AND updated_at >= $2 AND updated_at < $3`,
		string(driverID), from, to,
	).Scan(&deliveries, &tips)
	return deliveries, tips, err
}

func (s *Store) Upsert(ctx context.Context, r Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_stats_records (
			driver_id, period_type, period_start, period_end,
			total_deliveries, total_tips, total_earns, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (driver_id, period_type, period_start) DO UPDATE
		SET total_deliveries = EXCLUDED.total_deliveries,
		    total_tips = EXCLUDED.total_tips,
		    total_earns = EXCLUDED.total_earns,
		    updated_at = EXCLUDED.updated_at`,
		string(r.DriverID), string(r.Period), r.PeriodStart, r.PeriodEnd,
		r.TotalDeliveries, r.TotalTips, r.TotalEarns, r.UpdatedAt,
	)
	return err
}
