// README: Pure stage transition engine; no I/O, callers persist the result.
package progress

import (
	"errors"
	"time"

	"flashfood/internal/modules/order"
	"flashfood/internal/types"
)

var (
	ErrSlotNotFound     = errors.New("order is not part of this progress")
	ErrAllSlotsComplete = errors.New("all orders in this progress are delivered")
	ErrSlotComplete     = errors.New("order is already delivered")
	ErrSlotQueued       = errors.New("another order is in progress")
)

var progressByStage = [stageCount]order.Status{
	StageDriverReady:       order.StatusDispatched,
	StageWaitingForPickup:  order.StatusReadyForPickup,
	StageRestaurantPickup:  order.StatusRestaurantPickup,
	StageEnRouteToCustomer: order.StatusEnRoute,
	StageDeliveryComplete:  order.StatusDelivered,
}

// OrderProgress is the order status written when a slot enters stage.
func OrderProgress(stage Stage) order.Progress {
	return order.ProgressFor(progressByStage[stage])
}

// OrderUpdate is one order row the caller must write.
type OrderUpdate struct {
	OrderID  types.ID
	Stage    Stage
	Progress order.Progress
}

type Transition struct {
	OrderID types.ID
	Slot    int
	Entered Stage
	Updates []OrderUpdate
	// Delivered lists orders whose slot reached delivery_complete.
	Delivered []types.ID
}

// Advance moves the target slot (or the first unfinished one) one stage
// forward and recomputes the state triplet. a is modified in place.
func Advance(a *Aggregate, target *types.ID, now time.Time) (Transition, error) {
	slot, err := pickSlot(a, target)
	if err != nil {
		return Transition{}, err
	}

	var entered Stage
	if cur, ok := slot.InProgress(); ok {
		slot.complete(cur, now)
		entered = cur
		if !cur.Terminal() {
			entered = cur + 1
			slot.activate(entered, now)
		}
	} else if hc, ok := slot.HighestCompleted(); ok {
		entered = hc + 1
		slot.activate(entered, now)
	} else {
		if other := a.inProgressSlot(); other != nil && other != slot {
			return Transition{}, ErrSlotQueued
		}
		entered = StageDriverReady
		slot.activate(entered, now)
	}
	if entered.Terminal() {
		slot.complete(entered, now)
	}

	tr := Transition{OrderID: slot.OrderID, Slot: slot.Index, Entered: entered}
	tr.Updates = append(tr.Updates, OrderUpdate{OrderID: slot.OrderID, Stage: entered, Progress: OrderProgress(entered)})
	if entered.Terminal() {
		tr.Delivered = append(tr.Delivered, slot.OrderID)
	}

	if a.inProgressSlot() == nil {
		for i := range a.Slots {
			next := &a.Slots[i]
			if next.Done() || !next.Queued() {
				continue
			}
			next.activate(StageDriverReady, now)
			tr.Updates = append(tr.Updates, OrderUpdate{
				OrderID:  next.OrderID,
				Stage:    StageDriverReady,
				Progress: OrderProgress(StageDriverReady),
			})
			break
		}
	}

	a.UpdatedAt = now
	a.recompute()
	return tr, nil
}

func pickSlot(a *Aggregate, target *types.ID) (*Slot, error) {
	if target != nil && !target.Empty() {
		s := a.Slot(*target)
		if s == nil {
			return nil, ErrSlotNotFound
		}
		if s.Done() {
			return nil, ErrSlotComplete
		}
		return s, nil
	}
	for i := range a.Slots {
		if !a.Slots[i].Done() {
			return &a.Slots[i], nil
		}
	}
	return nil, ErrAllSlotsComplete
}
