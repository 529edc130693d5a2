// README: Stats service recomputes a driver's period record from persisted orders.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flashfood/internal/types"
)

var ErrBadPeriod = errors.New("unknown stats period")

type Repository interface {
	Totals(ctx context.Context, driverID types.ID, from, to time.Time) (int, int64, error)
	Upsert(ctx context.Context, r Record) error
}

type Service struct {
	store Repository
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) Recompute(ctx context.Context, driverID types.ID, period Period) error {
	if !period.Valid() {
		return ErrBadPeriod
	}
	now := s.now()
	from, to := Window(period, now)
	deliveries, tips, err := s.store.Totals(ctx, driverID, from, to)
	if err != nil {
		return fmt.Errorf("stats totals: %w", err)
	}
	rec := Record{
		DriverID:        driverID,
		Period:          period,
		PeriodStart:     from,
		PeriodEnd:       to,
		TotalDeliveries: deliveries,
		TotalTips:       tips,
		TotalEarns:      Earnings(deliveries, tips),
		UpdatedAt:       now,
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("stats upsert: %w", err)
	}
	s.log.Debug("driver stats recomputed",
		zap.String("driver_id", driverID.String()),
		zap.String("period", string(period)),
		zap.Int("deliveries", deliveries),
		zap.Int64("tips", tips),
	)
	return nil
}
