// README: Dispatch service: order claims, stage advances and tips across order, driver and progress.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flashfood/internal/locks"
	"flashfood/internal/metrics"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

type Config struct {
	DriverCapacity int
}

type Deps struct {
	Tx        TxManager
	Orders    OrderReader
	Snapshots SnapshotProvider // optional
	Routes    RouteEstimator   // optional
	Stats     StatsRecomputer  // optional
	Notifier  Notifier         // optional
	Log       *zap.Logger
}

type claimKey struct {
	DriverID types.ID
	OrderID  types.ID
}

type Service struct {
	tx        TxManager
	orders    OrderReader
	snapshots SnapshotProvider
	routes    RouteEstimator
	stats     StatsRecomputer
	notifier  Notifier
	log       *zap.Logger
	capacity  int

	claims *locks.KeyedLock[claimKey]
	now    func() time.Time
	newID  func() types.ID
}

func NewService(cfg Config, d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	capacity := cfg.DriverCapacity
	if capacity <= 0 {
		capacity = driver.MaxActiveOrders
	}
	return &Service{
		tx:        d.Tx,
		orders:    d.Orders,
		snapshots: d.Snapshots,
		routes:    d.Routes,
		stats:     d.Stats,
		notifier:  d.Notifier,
		log:       d.Log,
		capacity:  capacity,
		claims:    locks.NewKeyedLock[claimKey](),
		now:       time.Now,
		newID:     func() types.ID { return types.NewID("FF_DPS") },
	}
}

type ClaimCommand struct {
	DriverID types.ID
	OrderID  types.ID
}

type ClaimResult struct {
	Order     *order.Order
	Aggregate *progress.Aggregate
	// AlreadyAssigned is set when the driver already held the order.
	AlreadyAssigned bool
}

type AdvanceCommand struct {
	// DriverID is the verified caller; only the progress owner may advance it.
	DriverID    types.ID
	AggregateID types.ID
	// OrderID selects the slot; nil advances the first unfinished one.
	OrderID *types.ID
}

type AdvanceResult struct {
	Aggregate  *progress.Aggregate
	Transition progress.Transition
	Orders     []*order.Order
}

type TipCommand struct {
	OrderID types.ID
	Amount  int64
}

func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	err := s.tx.InTx(ctx, fn)
	metrics.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

func (s *Service) notifyOrder(ctx context.Context, o *order.Order) {
	if s.notifier != nil && o != nil {
		s.notifier.NotifyOnce(ctx, o)
	}
}

func (s *Service) notifyStages(ctx context.Context, a *progress.Aggregate) {
	if s.notifier != nil && a != nil {
		s.notifier.StagesUpdated(ctx, a)
	}
}

// reload reads the committed order; failures are logged and yield nil.
func (s *Service) reload(ctx context.Context, id types.ID) *order.Order {
	if s.orders == nil {
		return nil
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		s.log.Warn("reload order after commit", zap.String("order_id", id.String()), zap.Error(err))
		return nil
	}
	return o
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
