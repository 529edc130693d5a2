// README: ClaimOrder assigns an order to a driver and places it in the driver's progress.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flashfood/internal/metrics"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
)

func (s *Service) ClaimOrder(ctx context.Context, cmd ClaimCommand) (*ClaimResult, error) {
	res, err := s.claim(ctx, cmd)
	label := resultLabel(err)
	if err == nil && res.AlreadyAssigned {
		label = "already_assigned"
	}
	metrics.ClaimsTotal.WithLabelValues(label).Inc()
	return res, err
}

func (s *Service) claim(ctx context.Context, cmd ClaimCommand) (*ClaimResult, error) {
	if cmd.DriverID.Empty() || cmd.OrderID.Empty() {
		return nil, ErrBadRequest
	}
	key := claimKey{DriverID: cmd.DriverID, OrderID: cmd.OrderID}
	if !s.claims.TryLock(key) {
		return nil, ErrClaimInFlight
	}
	defer s.claims.Unlock(key)

	contacts := s.contacts(ctx, cmd)

	var res ClaimResult
	err := s.inTx(ctx, "claim", func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if errors.Is(err, order.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if o.DriverID != nil && *o.DriverID != cmd.DriverID {
			return ErrAlreadyAssigned
		}
		if o.AssignedTo(cmd.DriverID) {
			agg, err := tx.Progress().FindByOrder(ctx, o.ID)
			if err != nil && !errors.Is(err, progress.ErrNotFound) {
				return fmt.Errorf("find progress: %w", err)
			}
			res = ClaimResult{Order: o, Aggregate: agg, AlreadyAssigned: true}
			return nil
		}
		if !order.CanClaim(o.Status) {
			return ErrOrderNotClaimable
		}

		linked, err := tx.Progress().LinkExists(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("check order link: %w", err)
		}
		if linked {
			return ErrOrderInProgressElsewhere
		}

		d, err := tx.Drivers().GetForUpdate(ctx, cmd.DriverID)
		if errors.Is(err, driver.ErrNotFound) {
			return ErrDriverNotFound
		}
		if err != nil {
			return fmt.Errorf("lock driver: %w", err)
		}
		if !d.HasCapacity(s.capacity) {
			return ErrCapacityExceeded
		}
		if !d.CurrentLocation.IsZero() {
			loc := d.CurrentLocation
			contacts.DriverLocation = &loc
		}

		now := s.now()
		agg, err := tx.Progress().FindActiveByDriver(ctx, d.ID)
		switch {
		case errors.Is(err, progress.ErrNotFound):
			agg = progress.NewAggregate(s.newID(), d.ID, o.ID, now)
			agg.Slot(o.ID).AttachDetails(contacts)
			if err := tx.Progress().Create(ctx, agg); err != nil {
				return fmt.Errorf("create progress: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find active progress: %w", err)
		default:
			agg.AppendSlot(o.ID, now).AttachDetails(contacts)
			if err := tx.Progress().Save(ctx, agg); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
		}

		if err := tx.Progress().AddOrderLink(ctx, agg.ID, o.ID); err != nil {
			return fmt.Errorf("link order: %w", err)
		}
		ok, err := tx.Orders().Assign(ctx, o.ID, d.ID, progress.OrderProgress(progress.StageDriverReady), now)
		if err != nil {
			return fmt.Errorf("assign order: %w", err)
		}
		if !ok {
			return ErrAlreadyAssigned
		}
		if err := tx.Drivers().AddCurrentOrder(ctx, d.ID, o.ID); err != nil {
			return fmt.Errorf("add current order: %w", err)
		}

		saved, err := tx.Progress().GetForUpdate(ctx, agg.ID)
		if err != nil {
			return fmt.Errorf("reload progress: %w", err)
		}
		if len(saved.Links) == 0 {
			s.log.Error("progress saved without order links",
				zap.String("progress_id", agg.ID.String()),
				zap.String("order_id", o.ID.String()),
				zap.String("driver_id", d.ID.String()),
			)
			return ErrLinkMissing
		}
		updated, err := tx.Orders().Get(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		res = ClaimResult{Order: updated, Aggregate: saved}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyAssigned {
		s.log.Info("order claimed",
			zap.String("order_id", cmd.OrderID.String()),
			zap.String("driver_id", cmd.DriverID.String()),
			zap.String("progress_id", res.Aggregate.ID.String()),
			zap.String("current_state", string(res.Aggregate.CurrentState)),
		)
		s.notifyOrder(ctx, res.Order)
		s.notifyStages(ctx, res.Aggregate)
	}
	return &res, nil
}

// contacts reads the detail snapshot and route estimate before the
// transaction so no external call runs while rows are locked.
func (s *Service) contacts(ctx context.Context, cmd ClaimCommand) progress.Contacts {
	if s.snapshots == nil {
		return progress.Contacts{}
	}
	c, err := s.snapshots.Contacts(ctx, cmd.OrderID, cmd.DriverID)
	if err != nil {
		s.log.Debug("snapshot unavailable", zap.String("order_id", cmd.OrderID.String()), zap.Error(err))
		return progress.Contacts{}
	}
	if s.routes != nil && c.DriverLocation != nil && c.RestaurantLocation != nil {
		d, km, err := s.routes.Estimate(ctx, *c.DriverLocation, *c.RestaurantLocation)
		if err != nil {
			s.log.Debug("route estimate unavailable", zap.Error(err))
		} else {
			c.Route = &progress.RouteEstimate{Duration: d, DistanceKm: km}
		}
	}
	return c
}

