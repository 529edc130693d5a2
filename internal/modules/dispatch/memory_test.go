package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/modules/stats"
	"flashfood/internal/types"
)

// --- in-memory transactional store ---

type link struct {
	aggID   types.ID
	orderID types.ID
}

type memState struct {
	orders  map[types.ID]order.Order
	drivers map[types.ID]driver.Driver
	aggs    map[types.ID]*progress.Aggregate
	links   []link
}

func (s memState) clone() memState {
	c := memState{
		orders:  make(map[types.ID]order.Order, len(s.orders)),
		drivers: make(map[types.ID]driver.Driver, len(s.drivers)),
		aggs:    make(map[types.ID]*progress.Aggregate, len(s.aggs)),
		links:   append([]link(nil), s.links...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.drivers {
		v.CurrentOrders = append([]types.ID(nil), v.CurrentOrders...)
		c.drivers[k] = v
	}
	for k, v := range s.aggs {
		c.aggs[k] = v.Clone()
	}
	return c
}

// memDB serializes transactions with one mutex and restores a snapshot on error.
type memDB struct {
	mu sync.Mutex
	st memState

	dropLinks         bool
	failAddCurrent    bool
	committed, rolled int
}

func newMemDB() *memDB {
	return &memDB{st: memState{
		orders:  map[types.ID]order.Order{},
		drivers: map[types.ID]driver.Driver{},
		aggs:    map[types.ID]*progress.Aggregate{},
	}}
}

func (m *memDB) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(ctx, &memTx{db: m}); err != nil {
		m.st = snap
		m.rolled++
		return err
	}
	m.committed++
	return nil
}

// Get implements OrderReader outside a transaction.
func (m *memDB) Get(_ context.Context, id types.ID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memDB) seedOrder(id types.ID, status order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := order.ProgressFor(status)
	m.st.orders[id] = order.Order{
		ID: id, CustomerID: "c1", RestaurantID: "r1",
		Status: p.Status, TrackingInfo: p.TrackingInfo,
		TotalAmount: types.NewMoney(120000), DriverTips: types.NewMoney(0),
	}
}

func (m *memDB) seedDriver(id types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.drivers[id] = driver.Driver{ID: id, Available: true, CurrentLocation: types.Point{Lat: 10.77, Lng: 106.70}}
}

func (m *memDB) order(id types.ID) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.orders[id]
}

func (m *memDB) driver(id types.ID) driver.Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.drivers[id]
}

func (m *memDB) aggregateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.aggs)
}

func (m *memDB) linkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.links)
}

type memTx struct{ db *memDB }

func (t *memTx) Orders() OrderRepo      { return memOrders{t.db} }
func (t *memTx) Drivers() DriverRepo    { return memDrivers{t.db} }
func (t *memTx) Progress() ProgressRepo { return memProgress{t.db} }

type memOrders struct{ db *memDB }

func (r memOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := r.db.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r memOrders) GetForUpdate(ctx context.Context, id types.ID) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r memOrders) Assign(_ context.Context, id, driverID types.ID, p order.Progress, at time.Time) (bool, error) {
	o, ok := r.db.st.orders[id]
	if !ok || (o.DriverID != nil && *o.DriverID != driverID) {
		return false, nil
	}
	d := driverID
	o.DriverID, o.Status, o.TrackingInfo, o.UpdatedAt = &d, p.Status, p.TrackingInfo, at
	r.db.st.orders[id] = o
	return true, nil
}

func (r memOrders) SetProgress(_ context.Context, id types.ID, p order.Progress, at time.Time) error {
	o, ok := r.db.st.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status, o.TrackingInfo, o.UpdatedAt = p.Status, p.TrackingInfo, at
	r.db.st.orders[id] = o
	return nil
}

func (r memOrders) AddTip(_ context.Context, id types.ID, amount int64, at time.Time) (int64, error) {
	o, ok := r.db.st.orders[id]
	if !ok {
		return 0, order.ErrNotFound
	}
	o.DriverTips = o.DriverTips.Add(amount)
	o.UpdatedAt = at
	r.db.st.orders[id] = o
	return o.DriverTips.Amount, nil
}

type memDrivers struct{ db *memDB }

func (r memDrivers) GetForUpdate(_ context.Context, id types.ID) (*driver.Driver, error) {
	d, ok := r.db.st.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	d.CurrentOrders = append([]types.ID(nil), d.CurrentOrders...)
	return &d, nil
}

func (r memDrivers) AddCurrentOrder(_ context.Context, driverID, orderID types.ID) error {
	if r.db.failAddCurrent {
		return errors.New("injected failure")
	}
	d := r.db.st.drivers[driverID]
	if !d.Carries(orderID) {
		d.CurrentOrders = append(append([]types.ID(nil), d.CurrentOrders...), orderID)
	}
	r.db.st.drivers[driverID] = d
	return nil
}

func (r memDrivers) RemoveCurrentOrder(_ context.Context, driverID, orderID types.ID) error {
	d := r.db.st.drivers[driverID]
	var kept []types.ID
	for _, id := range d.CurrentOrders {
		if id != orderID {
			kept = append(kept, id)
		}
	}
	d.CurrentOrders = kept
	r.db.st.drivers[driverID] = d
	return nil
}

type memProgress struct{ db *memDB }

func (r memProgress) withLinks(a *progress.Aggregate) *progress.Aggregate {
	c := a.Clone()
	c.Links = nil
	for _, l := range r.db.st.links {
		if l.aggID == a.ID {
			c.Links = append(c.Links, l.orderID)
		}
	}
	return c
}

func (r memProgress) Create(_ context.Context, a *progress.Aggregate) error {
	for _, other := range r.db.st.aggs {
		if other.DriverID == a.DriverID && other.Active() {
			return errors.New("duplicate active progress for driver")
		}
	}
	r.db.st.aggs[a.ID] = a.Clone()
	return nil
}

func (r memProgress) Save(_ context.Context, a *progress.Aggregate) error {
	cur, ok := r.db.st.aggs[a.ID]
	if !ok {
		return progress.ErrNotFound
	}
	c := a.Clone()
	c.TotalTips = cur.TotalTips
	r.db.st.aggs[a.ID] = c
	return nil
}

func (r memProgress) GetForUpdate(_ context.Context, id types.ID) (*progress.Aggregate, error) {
	a, ok := r.db.st.aggs[id]
	if !ok {
		return nil, progress.ErrNotFound
	}
	return r.withLinks(a), nil
}

func (r memProgress) FindActiveByDriver(_ context.Context, driverID types.ID) (*progress.Aggregate, error) {
	for _, a := range r.db.st.aggs {
		if a.DriverID == driverID && a.Active() {
			return r.withLinks(a), nil
		}
	}
	return nil, progress.ErrNotFound
}

func (r memProgress) FindByOrder(_ context.Context, orderID types.ID) (*progress.Aggregate, error) {
	for _, l := range r.db.st.links {
		if l.orderID == orderID {
			return r.withLinks(r.db.st.aggs[l.aggID]), nil
		}
	}
	return nil, progress.ErrNotFound
}

func (r memProgress) LinkExists(_ context.Context, orderID types.ID) (bool, error) {
	for _, l := range r.db.st.links {
		if l.orderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r memProgress) AddOrderLink(_ context.Context, aggregateID, orderID types.ID) error {
	if r.db.dropLinks {
		return nil
	}
	for _, l := range r.db.st.links {
		if l.orderID == orderID {
			return errors.New("order already linked")
		}
	}
	r.db.st.links = append(r.db.st.links, link{aggID: aggregateID, orderID: orderID})
	return nil
}

func (r memProgress) AddTips(_ context.Context, driverID, orderID types.ID, amount int64) (bool, error) {
	for _, l := range r.db.st.links {
		if l.orderID != orderID {
			continue
		}
		a := r.db.st.aggs[l.aggID]
		if a.DriverID != driverID || !a.Active() {
			return false, nil
		}
		a.TotalTips = a.TotalTips.Add(amount)
		return true, nil
	}
	return false, nil
}

// --- recording collaborators ---

type recordingNotifier struct {
	mu     sync.Mutex
	orders []order.Order
	stages []progress.View
}

func (n *recordingNotifier) NotifyOnce(_ context.Context, o *order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, *o)
}

func (n *recordingNotifier) StagesUpdated(_ context.Context, a *progress.Aggregate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stages = append(n.stages, a.View())
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.orders), len(n.stages)
}

type stubSnapshots struct{}

func (stubSnapshots) Contacts(_ context.Context, orderID, _ types.ID) (progress.Contacts, error) {
	return progress.Contacts{
		RestaurantLocation: &types.Point{Lat: 10.78, Lng: 106.69},
		Restaurant:         &progress.RestaurantSnapshot{ID: "r1", Name: "Pho 24"},
		CustomerLocation:   &types.Point{Lat: 10.80, Lng: 106.66},
		Customer:           &progress.CustomerSnapshot{ID: "c1", FirstName: "Lan"},
		DriverLocation:     &types.Point{Lat: 10.77, Lng: 106.70},
	}, nil
}

type fixedRoutes struct{}

func (fixedRoutes) Estimate(context.Context, types.Point, types.Point) (time.Duration, float64, error) {
	return 6 * time.Minute, 1.8, nil
}

type recordingStats struct {
	mu      sync.Mutex
	drivers []types.ID
	err     error
}

func (s *recordingStats) Recompute(_ context.Context, driverID types.ID, _ stats.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers = append(s.drivers, driverID)
	return s.err
}

type fixture struct {
	db       *memDB
	svc      *Service
	notifier *recordingNotifier
	stats    *recordingStats
	clock    time.Time
}

func newFixture() *fixture {
	db := newMemDB()
	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{},
		stats:    &recordingStats{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Config{DriverCapacity: 3}, Deps{
		Tx:        db,
		Orders:    db,
		Snapshots: stubSnapshots{},
		Routes:    fixedRoutes{},
		Stats:     f.stats,
		Notifier:  f.notifier,
	})
	var seq int
	var mu sync.Mutex
	f.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	f.svc.newID = func() types.ID {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return types.ID(fmt.Sprintf("FF_DPS_%d", seq))
	}
	return f
}
