// README: Offers an unassigned order to a random sample of nearby drivers with spare capacity.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"flashfood/internal/config"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

type MatchingStore interface {
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error)
	RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID) error
	Notified(ctx context.Context, orderID types.ID) (map[types.ID]bool, error)
}

type OrderReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type DriverReader interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type ContactReader interface {
	Contacts(ctx context.Context, orderID, driverID types.ID) (progress.Contacts, error)
}

// Offerer delivers an offer over live connections and reports whether any took it.
type Offerer interface {
	OfferOrder(ctx context.Context, driverID types.ID, a realtime.Assignment) bool
}

// Pusher reaches drivers that have no live connection.
type Pusher interface {
	PushOffer(ctx context.Context, driverID types.ID, a realtime.Assignment) error
}

type Deps struct {
	Store    MatchingStore
	Orders   OrderReader
	Drivers  DriverReader
	Contacts ContactReader
	Offers   Offerer
	// Push is optional.
	Push Pusher
	Log  *zap.Logger
}

type Service struct {
	deps     Deps
	cfg      config.MatchingConfig
	capacity int
	log      *zap.Logger
}

func NewService(deps Deps, cfg config.MatchingConfig, capacity int) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OfferCount <= 0 {
		cfg.OfferCount = defaultOfferCount
	}
	return &Service{deps: deps, cfg: cfg, capacity: capacity, log: log}
}

// OfferOrder sends incomingOrderForDriver to drivers near the restaurant who
// have not been offered this order yet. No eligible driver is not an error.
func (s *Service) OfferOrder(ctx context.Context, orderID types.ID) (*OfferResult, error) {
	o, err := s.deps.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != nil {
		return nil, ErrAlreadyAssigned
	}
	if !order.CanClaim(o.Status) {
		return nil, ErrNotOfferable
	}

	contacts, err := s.deps.Contacts.Contacts(ctx, orderID, "")
	if err != nil {
		return nil, fmt.Errorf("load order contacts: %w", err)
	}
	if contacts.RestaurantLocation == nil {
		return nil, ErrNoRestaurantLocation
	}
	origin := *contacts.RestaurantLocation

	nearby, err := s.deps.Store.NearbyDrivers(ctx, origin, s.cfg.RadiusKm, selectPoolSize)
	if err != nil {
		return nil, fmt.Errorf("nearby drivers: %w", err)
	}
	notified, err := s.deps.Store.Notified(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("notified drivers: %w", err)
	}

	distance := make(map[types.ID]float64, len(nearby))
	pool := make([]types.ID, 0, len(nearby))
	for _, c := range nearby {
		if notified[c.DriverID] || !s.eligible(ctx, c.DriverID) {
			continue
		}
		distance[c.DriverID] = c.DistanceKm
		pool = append(pool, c.DriverID)
	}

	res := &OfferResult{OrderID: orderID, Offered: PickRandomDrivers(pool, s.cfg.OfferCount)}
	if len(res.Offered) == 0 {
		s.log.Info("no eligible drivers for offer", zap.String("order_id", orderID.String()))
		return res, nil
	}

	for _, id := range res.Offered {
		a := realtime.Assignment{
			OrderID:            o.ID,
			RestaurantID:       o.RestaurantID,
			CustomerID:         o.CustomerID,
			Status:             o.Status,
			TotalAmount:        o.TotalAmount,
			DriverTips:         o.DriverTips,
			RestaurantLocation: origin,
			DistanceKm:         distance[id],
		}
		if s.deps.Offers.OfferOrder(ctx, id, a) {
			res.Delivered++
			continue
		}
		if s.deps.Push == nil {
			continue
		}
		if err := s.deps.Push.PushOffer(ctx, id, a); err != nil {
			s.log.Warn("push offer failed",
				zap.String("order_id", orderID.String()),
				zap.String("driver_id", id.String()),
				zap.Error(err))
			continue
		}
		res.Pushed++
	}

	if err := s.deps.Store.RecordDispatch(ctx, orderID, res.Offered); err != nil {
		s.log.Warn("record dispatch failed", zap.String("order_id", orderID.String()), zap.Error(err))
	}
	return res, nil
}

// eligible drops drivers that are unknown, unavailable or full.
func (s *Service) eligible(ctx context.Context, id types.ID) bool {
	d, err := s.deps.Drivers.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, driver.ErrNotFound) {
			s.log.Warn("load driver for offer", zap.String("driver_id", id.String()), zap.Error(err))
		}
		return false
	}
	return d.Available && d.HasCapacity(s.capacity)
}

// PickRandomDrivers returns up to n distinct drivers from pool without mutating it.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	rand.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n > len(cp) {
		n = len(cp)
	}
	return cp[:n]
}
