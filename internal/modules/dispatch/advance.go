// README: AdvanceStage moves a driver's progress forward and keeps order status in lockstep.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"flashfood/internal/metrics"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

func (s *Service) AdvanceStage(ctx context.Context, cmd AdvanceCommand) (*AdvanceResult, error) {
	res, err := s.advance(ctx, cmd)
	label := resultLabel(err)
	if err == nil {
		label = res.Transition.Entered.String()
	}
	metrics.AdvancesTotal.WithLabelValues(label).Inc()
	return res, err
}

func (s *Service) advance(ctx context.Context, cmd AdvanceCommand) (*AdvanceResult, error) {
	if cmd.AggregateID.Empty() || cmd.DriverID.Empty() {
		return nil, ErrBadRequest
	}

	var (
		res    AdvanceResult
		before string
	)
	err := s.inTx(ctx, "advance", func(ctx context.Context, tx Tx) error {
		agg, err := tx.Progress().GetForUpdate(ctx, cmd.AggregateID)
		if errors.Is(err, progress.ErrNotFound) {
			return ErrAggregateNotFound
		}
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}
		if agg.DriverID != cmd.DriverID {
			return ErrNotProgressOwner
		}
		if len(agg.Links) == 0 {
			return ErrNoLinkedOrders
		}

		before = agg.Fingerprint()
		now := s.now()
		tr, err := progress.Advance(agg, cmd.OrderID, now)
		if errors.Is(err, progress.ErrSlotNotFound) {
			s.log.Error("advance target is not a slot of the progress",
				zap.String("progress_id", agg.ID.String()),
				zap.Stringp("order_id", (*string)(cmd.OrderID)),
			)
			return err
		}
		if err != nil {
			return err
		}

		for _, u := range tr.Updates {
			err := tx.Orders().SetProgress(ctx, u.OrderID, u.Progress, now)
			if errors.Is(err, order.ErrNotFound) {
				return fmt.Errorf("order %s: %w", u.OrderID, ErrOrderNotFound)
			}
			if err != nil {
				return fmt.Errorf("set order progress: %w", err)
			}
		}
		for _, id := range tr.Delivered {
			if err := tx.Drivers().RemoveCurrentOrder(ctx, agg.DriverID, id); err != nil {
				return fmt.Errorf("remove current order: %w", err)
			}
		}
		if err := tx.Progress().Save(ctx, agg); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		res.Aggregate = agg
		res.Transition = tr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("progress advanced",
		zap.String("progress_id", res.Aggregate.ID.String()),
		zap.String("order_id", res.Transition.OrderID.String()),
		zap.String("entered", res.Transition.Entered.String()),
		zap.String("current_state", string(res.Aggregate.CurrentState)),
	)

	seen := make(map[types.ID]bool, len(res.Transition.Updates))
	for _, u := range res.Transition.Updates {
		if seen[u.OrderID] {
			continue
		}
		seen[u.OrderID] = true
		if o := s.reload(ctx, u.OrderID); o != nil {
			res.Orders = append(res.Orders, o)
			s.notifyOrder(ctx, o)
		}
	}
	if res.Aggregate.Fingerprint() != before {
		s.notifyStages(ctx, res.Aggregate)
	}
	return &res, nil
}
