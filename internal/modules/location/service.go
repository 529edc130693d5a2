// README: Location service: Postgres is authoritative, the GEO index follows it.
package location

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flashfood/internal/types"
)

// DriverWriter persists driver position and availability.
type DriverWriter interface {
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	SetAvailable(ctx context.Context, id types.ID, available bool) error
}

// GeoIndex is the nearby-driver index.
type GeoIndex interface {
	SetGeo(ctx context.Context, id types.ID, p types.Point) error
	RemoveGeo(ctx context.Context, id types.ID) error
}

type Service struct {
	drivers DriverWriter
	geo     GeoIndex
	log     *zap.Logger
	now     func() time.Time
}

func NewService(drivers DriverWriter, geo GeoIndex, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{drivers: drivers, geo: geo, log: log, now: time.Now}
}

// UpdateDriverLocation stores the position and refreshes the GEO index. Index
// failures are logged only; the driver row already holds the truth.
func (s *Service) UpdateDriverLocation(ctx context.Context, u Update) error {
	if !u.Point.Valid() || u.Point.IsZero() {
		return ErrInvalidPoint
	}
	if err := s.drivers.UpdateLocation(ctx, u.DriverID, u.Point, s.now()); err != nil {
		return fmt.Errorf("update driver location: %w", err)
	}
	if u.Available != nil {
		if err := s.drivers.SetAvailable(ctx, u.DriverID, *u.Available); err != nil {
			return fmt.Errorf("set driver availability: %w", err)
		}
	}

	if s.geo == nil {
		return nil
	}
	var err error
	if u.Available != nil && !*u.Available {
		err = s.geo.RemoveGeo(ctx, u.DriverID)
	} else {
		err = s.geo.SetGeo(ctx, u.DriverID, u.Point)
	}
	if err != nil {
		s.log.Warn("driver geo index update failed",
			zap.String("driver_id", u.DriverID.String()),
			zap.Error(err))
	}
	return nil
}
