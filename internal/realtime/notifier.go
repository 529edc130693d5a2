// README: Post-commit notifier: deduplicated order tracking, stage snapshots and order offers.
package realtime

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"flashfood/internal/locks"
	"flashfood/internal/metrics"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

const DefaultDedupeTTL = 30 * time.Minute

// Assignment is the offer a nearby driver receives for an unassigned order.
type Assignment struct {
	OrderID            types.ID     `json:"order_id"`
	DriverListenerID   types.ID     `json:"driverListenerId"`
	RestaurantID       types.ID     `json:"restaurant_id"`
	CustomerID         types.ID     `json:"customer_id"`
	Status             order.Status `json:"status"`
	TotalAmount        types.Money  `json:"total_amount"`
	DriverTips         types.Money  `json:"driver_tips"`
	RestaurantLocation types.Point  `json:"restaurant_location"`
	DistanceKm         float64      `json:"distance_km"`
}

type Notifier struct {
	registry *Registry
	sinks    []Sink
	inflight *locks.KeyedLock[types.ID]
	last     *cache.Cache
	log      *zap.Logger
}

func NewNotifier(registry *Registry, dedupeTTL time.Duration, log *zap.Logger, sinks ...Sink) *Notifier {
	if dedupeTTL <= 0 {
		dedupeTTL = DefaultDedupeTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		registry: registry,
		sinks:    sinks,
		inflight: locks.NewKeyedLock[types.ID](),
		last:     cache.New(dedupeTTL, 2*dedupeTTL),
		log:      log,
	}
}

// NotifyOnce publishes the tracking update for o unless another call for the
// same order is running or the payload equals the last one sent.
func (n *Notifier) NotifyOnce(ctx context.Context, o *order.Order) {
	if o == nil {
		return
	}
	if !n.inflight.TryLock(o.ID) {
		metrics.NotificationsTotal.WithLabelValues("in_flight").Inc()
		return
	}
	defer n.inflight.Unlock(o.ID)

	u := NewTrackingUpdate(o)
	fp := u.Fingerprint()
	if prev, ok := n.last.Get(o.ID.String()); ok && prev.(string) == fp {
		metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
		return
	}

	for _, s := range n.sinks {
		if err := s.PublishTracking(ctx, u); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			n.log.Warn("tracking sink failed",
				zap.String("sink", s.Name()),
				zap.String("order_id", o.ID.String()),
				zap.Error(err))
		}
	}
	n.last.SetDefault(o.ID.String(), fp)
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// StagesUpdated pushes the aggregate view to the owning driver.
func (n *Notifier) StagesUpdated(_ context.Context, a *progress.Aggregate) {
	if a == nil {
		return
	}
	n.registry.EmitToGroup(GroupOf(KindDriver, a.DriverID), Envelope{Event: EventStagesUpdated, Data: a})
}

// OfferOrder reports whether the driver had a connection that took the offer.
func (n *Notifier) OfferOrder(_ context.Context, driverID types.ID, a Assignment) bool {
	a.DriverListenerID = driverID
	sent := n.registry.EmitToGroup(GroupOf(KindDriver, driverID), Envelope{
		Event:   EventIncomingOrder,
		Data:    a,
		Message: "Order received successfully",
	})
	if sent > 0 {
		metrics.OffersTotal.Inc()
	}
	return sent > 0
}
