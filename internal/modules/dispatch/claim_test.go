package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

func TestClaimOrderCreatesProgress(t *testing.T) {
	f := newFixture()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)

	res, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: "o1"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyAssigned)

	o := f.db.order("o1")
	require.NotNil(t, o.DriverID)
	assert.Equal(t, types.ID("d1"), *o.DriverID)
	assert.Equal(t, order.StatusDispatched, o.Status)
	assert.Equal(t, order.TrackingDispatched, o.TrackingInfo)

	a := res.Aggregate
	assert.Equal(t, progress.StateKey("driver_ready_order_1"), a.CurrentState)
	assert.Equal(t, progress.StateKey("waiting_for_pickup_order_1"), a.NextState)
	assert.Equal(t, []types.ID{"o1"}, a.Links)
	assert.Equal(t, []types.ID{"o1"}, f.db.driver("d1").CurrentOrders)

	details := a.Slots[0].Stages[progress.StageWaitingForPickup].Details
	require.NotNil(t, details.Restaurant)
	assert.Equal(t, "Pho 24", details.Restaurant.Name)
	ready := a.Slots[0].Stages[progress.StageDriverReady].Details
	require.NotNil(t, ready.Location)
	assert.Equal(t, 10.77, ready.Location.Lat)
	assert.InDelta(t, 6.0, ready.EstimatedMinutes, 1e-9)

	orders, stages := f.notifier.counts()
	assert.Equal(t, 1, orders)
	assert.Equal(t, 1, stages)
}

func TestClaimSecondOrderQueuesSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)
	f.db.seedOrder("o2", order.StatusPreparing)

	first, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
	require.NoError(t, err)
	second, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o2"})
	require.NoError(t, err)

	assert.Equal(t, first.Aggregate.ID, second.Aggregate.ID)
	assert.Equal(t, 1, f.db.aggregateCount())
	require.Len(t, second.Aggregate.Slots, 2)
	assert.True(t, second.Aggregate.Slots[1].Queued())
	assert.Equal(t, progress.StateKey("driver_ready_order_1"), second.Aggregate.CurrentState)
	assert.ElementsMatch(t, []types.ID{"o1", "o2"}, second.Aggregate.Links)
	assert.Equal(t, order.StatusDispatched, f.db.order("o2").Status)
}

func TestClaimIdempotentForSameDriver(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)

	_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
	require.NoError(t, err)
	orders, stages := f.notifier.counts()

	again, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyAssigned)
	require.NotNil(t, again.Aggregate)
	assert.Equal(t, 1, f.db.aggregateCount())
	assert.Equal(t, 1, f.db.linkCount())

	o2, s2 := f.notifier.counts()
	assert.Equal(t, orders, o2, "no notification for an idempotent claim")
	assert.Equal(t, stages, s2)
}

func TestClaimRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("empty ids", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "", OrderID: "o1"})
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture()
		f.db.seedDriver("d1")
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "nope"})
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("missing driver", func(t *testing.T) {
		f := newFixture()
		f.db.seedOrder("o1", order.StatusPreparing)
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "ghost", OrderID: "o1"})
		assert.ErrorIs(t, err, ErrDriverNotFound)
		assert.Nil(t, f.db.order("o1").DriverID)
	})

	t.Run("assigned to another driver", func(t *testing.T) {
		f := newFixture()
		f.db.seedDriver("d1")
		f.db.seedDriver("d2")
		f.db.seedOrder("o1", order.StatusPreparing)
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
		require.NoError(t, err)

		_, err = f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d2", OrderID: "o1"})
		assert.ErrorIs(t, err, ErrAlreadyAssigned)
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, types.ID("d1"), *f.db.order("o1").DriverID)
	})

	for _, st := range []order.Status{order.StatusCancelled, order.StatusDeliveryFailed, order.StatusDelivered} {
		t.Run("status "+string(st), func(t *testing.T) {
			f := newFixture()
			f.db.seedDriver("d1")
			f.db.seedOrder("o1", st)
			_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
			assert.ErrorIs(t, err, ErrOrderNotClaimable)
			assert.Equal(t, KindConflict, KindOf(err))
			o := f.db.order("o1")
			assert.Equal(t, st, o.Status, "absorbing status is kept")
			assert.Nil(t, o.DriverID)
			assert.Empty(t, f.db.driver("d1").CurrentOrders)
		})
	}

	t.Run("capacity", func(t *testing.T) {
		f := newFixture()
		f.db.seedDriver("d1")
		for i := 1; i <= 4; i++ {
			f.db.seedOrder(types.ID(fmt.Sprintf("o%d", i)), order.StatusPreparing)
		}
		for i := 1; i <= 3; i++ {
			_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: types.ID(fmt.Sprintf("o%d", i))})
			require.NoError(t, err)
		}
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o4"})
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Nil(t, f.db.order("o4").DriverID)
		assert.Len(t, f.db.driver("d1").CurrentOrders, 3)
	})

	t.Run("linked elsewhere", func(t *testing.T) {
		f := newFixture()
		f.db.seedDriver("d1")
		f.db.seedDriver("d2")
		f.db.seedOrder("o1", order.StatusPreparing)
		_, err := f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d1", OrderID: "o1"})
		require.NoError(t, err)

		// Simulate an order whose assignment was cleared while its link remained.
		f.db.mu.Lock()
		o := f.db.st.orders["o1"]
		o.DriverID = nil
		f.db.st.orders["o1"] = o
		f.db.mu.Unlock()

		_, err = f.svc.ClaimOrder(ctx, ClaimCommand{DriverID: "d2", OrderID: "o1"})
		assert.ErrorIs(t, err, ErrOrderInProgressElsewhere)
	})
}

func TestClaimInFlightRejectedFast(t *testing.T) {
	f := newFixture()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)

	key := claimKey{DriverID: "d1", OrderID: "o1"}
	require.True(t, f.svc.claims.TryLock(key))
	_, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: "o1"})
	assert.ErrorIs(t, err, ErrClaimInFlight)
	assert.Equal(t, 0, f.db.committed+f.db.rolled, "rejected before the transaction starts")

	f.svc.claims.Unlock(key)
	_, err = f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: "o1"})
	assert.NoError(t, err)
}

func TestClaimRollsBackOnFailure(t *testing.T) {
	f := newFixture()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)
	f.db.failAddCurrent = true

	_, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: "o1"})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))

	assert.Nil(t, f.db.order("o1").DriverID)
	assert.Equal(t, order.StatusPreparing, f.db.order("o1").Status)
	assert.Equal(t, 0, f.db.aggregateCount())
	assert.Equal(t, 0, f.db.linkCount())
	orders, stages := f.notifier.counts()
	assert.Zero(t, orders+stages)
}

func TestClaimLinkMissingIsConsistencyError(t *testing.T) {
	f := newFixture()
	f.db.seedDriver("d1")
	f.db.seedOrder("o1", order.StatusPreparing)
	f.db.dropLinks = true

	_, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: "o1"})
	assert.ErrorIs(t, err, ErrLinkMissing)
	assert.Equal(t, KindConsistency, KindOf(err))
	assert.Equal(t, 0, f.db.aggregateCount())
}

func TestConcurrentClaimsSameOrder(t *testing.T) {
	f := newFixture()
	f.db.seedOrder("o1", order.StatusReadyForPickup)
	const drivers = 8
	for i := 0; i < drivers; i++ {
		f.db.seedDriver(types.ID(fmt.Sprintf("d%d", i)))
	}

	errs := make(chan error, drivers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			<-start
			_, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: did, OrderID: "o1"})
			errs <- err
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyAssigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
	assert.Equal(t, 1, f.db.aggregateCount())
	assert.Equal(t, 1, f.db.linkCount())
}

func TestConcurrentClaimsRespectCapacity(t *testing.T) {
	f := newFixture()
	f.db.seedDriver("d1")
	const orders = 6
	for i := 0; i < orders; i++ {
		f.db.seedOrder(types.ID(fmt.Sprintf("o%d", i)), order.StatusPreparing)
	}

	errs := make(chan error, orders)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(oid types.ID) {
			defer wg.Done()
			<-start
			_, err := f.svc.ClaimOrder(context.Background(), ClaimCommand{DriverID: "d1", OrderID: oid})
			errs <- err
		}(types.ID(fmt.Sprintf("o%d", i)))
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, success)
	assert.Len(t, f.db.driver("d1").CurrentOrders, 3)
	assert.Equal(t, 1, f.db.aggregateCount(), "one active progress per driver")
}
