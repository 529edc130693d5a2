// README: AddTip credits a tip to the order and the driver's active progress.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flashfood/internal/metrics"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/stats"
	"flashfood/internal/types"
)

func (s *Service) AddTip(ctx context.Context, cmd TipCommand) (*order.Order, error) {
	o, err := s.addTip(ctx, cmd)
	metrics.TipsTotal.WithLabelValues(resultLabel(err)).Inc()
	return o, err
}

func (s *Service) addTip(ctx context.Context, cmd TipCommand) (*order.Order, error) {
	if cmd.OrderID.Empty() {
		return nil, ErrBadRequest
	}
	if cmd.Amount < 0 {
		return nil, ErrNegativeTip
	}

	var (
		driverID types.ID
		locked   *order.Order
	)
	err := s.inTx(ctx, "tip", func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if errors.Is(err, order.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if o.DriverID == nil {
			return ErrNoDriverAssigned
		}
		if !order.CanTip(o.Status) {
			return ErrTipWindowClosed
		}

		total, err := tx.Orders().AddTip(ctx, o.ID, cmd.Amount, s.now())
		if err != nil {
			return fmt.Errorf("add order tip: %w", err)
		}
		o.DriverTips = o.DriverTips.Add(total - o.DriverTips.Amount)

		credited, err := tx.Progress().AddTips(ctx, *o.DriverID, o.ID, cmd.Amount)
		if err != nil {
			return fmt.Errorf("add progress tip: %w", err)
		}
		if !credited {
			s.log.Warn("no active progress to credit tip",
				zap.String("order_id", o.ID.String()),
				zap.String("driver_id", o.DriverID.String()),
			)
		}
		driverID = *o.DriverID
		locked = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.stats != nil {
		if err := s.stats.Recompute(ctx, driverID, stats.PeriodDaily); err != nil {
			s.log.Error("recompute driver stats", zap.String("driver_id", driverID.String()), zap.Error(err))
		}
	}

	updated := s.reload(ctx, cmd.OrderID)
	if updated == nil {
		updated = locked
	}
	s.notifyOrder(ctx, updated)
	return updated, nil
}
