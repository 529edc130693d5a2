// README: Matching unit tests covering PickRandomDrivers and offer selection.
package matching

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"flashfood/internal/config"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/location"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

// ---------------------------------------------------------------------------
// Unit tests: PickRandomDrivers (pure function, no external dependencies)
// ---------------------------------------------------------------------------

func TestPickRandomDrivers_NormalCase(t *testing.T) {
	pool := makeDriverPool(10)
	selected := PickRandomDrivers(pool, 5)
	if len(selected) != 5 {
		t.Fatalf("expected 5, got %d", len(selected))
	}
	assertSubset(t, pool, selected)
	assertUnique(t, selected)
}

func TestPickRandomDrivers_FewerThanN(t *testing.T) {
	pool := makeDriverPool(3)
	selected := PickRandomDrivers(pool, 10)
	if len(selected) != 3 {
		t.Fatalf("expected all 3, got %d", len(selected))
	}
	assertUnique(t, selected)
}

func TestPickRandomDrivers_EmptyOrNonPositive(t *testing.T) {
	if got := PickRandomDrivers(nil, 5); len(got) != 0 {
		t.Fatalf("expected 0 from nil pool, got %d", len(got))
	}
	if got := PickRandomDrivers(makeDriverPool(5), 0); len(got) != 0 {
		t.Fatalf("expected 0 for n=0, got %d", len(got))
	}
	if got := PickRandomDrivers(makeDriverPool(5), -1); len(got) != 0 {
		t.Fatalf("expected 0 for n<0, got %d", len(got))
	}
}

func TestPickRandomDrivers_DoesNotMutatePool(t *testing.T) {
	pool := makeDriverPool(5)
	orig := make([]types.ID, len(pool))
	copy(orig, pool)
	PickRandomDrivers(pool, 3)
	for i, d := range pool {
		if d != orig[i] {
			t.Fatalf("pool mutated at index %d: got %s, want %s", i, d, orig[i])
		}
	}
}

// TestPickRandomDrivers_Distribution verifies that over many runs each driver is selected
// with roughly uniform probability.
func TestPickRandomDrivers_Distribution(t *testing.T) {
	pool := makeDriverPool(10)
	counts := make(map[types.ID]int, len(pool))
	const runs = 1000
	const pick = 5
	for i := 0; i < runs; i++ {
		for _, d := range PickRandomDrivers(pool, pick) {
			counts[d]++
		}
	}
	// Allow generous bounds (±60%) to avoid flakiness.
	expected := runs * pick / len(pool)
	lo, hi := expected*40/100, expected*160/100
	for _, d := range pool {
		c := counts[d]
		if c < lo || c > hi {
			t.Errorf("driver %s appeared %d times, want roughly %d (+/-60%%)", d, c, expected)
		}
	}
}

func TestPickRandomDrivers_Concurrent(t *testing.T) {
	pool := makeDriverPool(20)
	const goroutines = 8
	var wg sync.WaitGroup
	results := make(chan []types.ID, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- PickRandomDrivers(pool, 5)
		}()
	}
	wg.Wait()
	close(results)
	for sel := range results {
		if len(sel) != 5 {
			t.Fatalf("expected 5, got %d", len(sel))
		}
		assertUnique(t, sel)
		assertSubset(t, pool, sel)
	}
}

// ---------------------------------------------------------------------------
// Offer selection with in-memory collaborators
// ---------------------------------------------------------------------------

type mockMatchingStore struct {
	mu        sync.Mutex
	nearby    []Candidate
	notified  map[types.ID]map[types.ID]bool
	recordErr error
}

func newMockMatchingStore(nearby []Candidate) *mockMatchingStore {
	return &mockMatchingStore{nearby: nearby, notified: make(map[types.ID]map[types.ID]bool)}
}

func (m *mockMatchingStore) NearbyDrivers(_ context.Context, _ types.Point, _ float64, limit int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.nearby)
	if limit > 0 && limit < n {
		n = limit
	}
	cp := make([]Candidate, n)
	copy(cp, m.nearby[:n])
	return cp, nil
}

func (m *mockMatchingStore) RecordDispatch(_ context.Context, orderID types.ID, ids []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	set, ok := m.notified[orderID]
	if !ok {
		set = make(map[types.ID]bool)
		m.notified[orderID] = set
	}
	for _, id := range ids {
		set[id] = true
	}
	return nil
}

func (m *mockMatchingStore) Notified(_ context.Context, orderID types.ID) (map[types.ID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]bool)
	for id := range m.notified[orderID] {
		out[id] = true
	}
	return out, nil
}

type mockOrders map[types.ID]*order.Order

func (m mockOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := m[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type mockDrivers map[types.ID]*driver.Driver

func (m mockDrivers) Get(_ context.Context, id types.ID) (*driver.Driver, error) {
	d, ok := m[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return d, nil
}

type mockContacts struct {
	restaurant *types.Point
}

func (m mockContacts) Contacts(context.Context, types.ID, types.ID) (progress.Contacts, error) {
	return progress.Contacts{RestaurantLocation: m.restaurant}, nil
}

type mockOfferer struct {
	online map[types.ID]bool
	got    map[types.ID]realtime.Assignment
}

func (m *mockOfferer) OfferOrder(_ context.Context, id types.ID, a realtime.Assignment) bool {
	if m.got == nil {
		m.got = make(map[types.ID]realtime.Assignment)
	}
	m.got[id] = a
	return m.online[id]
}

type mockPusher struct {
	pushed []types.ID
	err    error
}

func (m *mockPusher) PushOffer(_ context.Context, id types.ID, _ realtime.Assignment) error {
	if m.err != nil {
		return m.err
	}
	m.pushed = append(m.pushed, id)
	return nil
}

var restaurantPoint = types.Point{Lat: 10.7769, Lng: 106.7009}

func newOfferFixture(drivers int) (*mockMatchingStore, mockOrders, mockDrivers) {
	nearby := make([]Candidate, drivers)
	ds := mockDrivers{}
	for i := range nearby {
		id := types.ID(fmt.Sprintf("driver_%02d", i))
		nearby[i] = Candidate{DriverID: id, DistanceKm: float64(i) / 10}
		ds[id] = &driver.Driver{ID: id, Available: true}
	}
	orders := mockOrders{"o1": {
		ID:           "o1",
		RestaurantID: "r1",
		CustomerID:   "c1",
		Status:       order.StatusPreparing,
		TotalAmount:  types.NewMoney(120000),
	}}
	return newMockMatchingStore(nearby), orders, ds
}

func newTestCfg() config.MatchingConfig {
	return config.MatchingConfig{RadiusKm: 3.0, OfferCount: 3}
}

func TestOfferOrder_OffersEligibleDrivers(t *testing.T) {
	store, orders, drivers := newOfferFixture(6)
	drivers["driver_00"].Available = false
	drivers["driver_01"].CurrentOrders = []types.ID{"a", "b", "c"}
	offers := &mockOfferer{online: map[types.ID]bool{"driver_02": true, "driver_03": true, "driver_04": true, "driver_05": true}}

	svc := NewService(Deps{
		Store: store, Orders: orders, Drivers: drivers,
		Contacts: mockContacts{restaurant: &restaurantPoint}, Offers: offers,
	}, newTestCfg(), 3)

	res, err := svc.OfferOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if len(res.Offered) != 3 || res.Delivered != 3 {
		t.Fatalf("expected 3 offered and delivered, got %+v", res)
	}
	for _, id := range res.Offered {
		if id == "driver_00" || id == "driver_01" {
			t.Fatalf("ineligible driver %s offered", id)
		}
		if offers.got[id].RestaurantLocation != restaurantPoint {
			t.Fatalf("assignment for %s missing restaurant location", id)
		}
	}
}

func TestOfferOrder_SkipsAlreadyNotified(t *testing.T) {
	store, orders, drivers := newOfferFixture(4)
	offers := &mockOfferer{online: map[types.ID]bool{}}
	svc := NewService(Deps{
		Store: store, Orders: orders, Drivers: drivers,
		Contacts: mockContacts{restaurant: &restaurantPoint}, Offers: offers,
	}, newTestCfg(), 3)
	ctx := context.Background()

	first, err := svc.OfferOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("first offer: %v", err)
	}
	second, err := svc.OfferOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("second offer: %v", err)
	}
	if len(first.Offered)+len(second.Offered) != 4 {
		t.Fatalf("expected 4 distinct drivers across both rounds, got %d and %d", len(first.Offered), len(second.Offered))
	}
	seen := map[types.ID]bool{}
	for _, id := range append(first.Offered, second.Offered...) {
		if seen[id] {
			t.Fatalf("driver %s offered twice", id)
		}
		seen[id] = true
	}
}

func TestOfferOrder_PushesOfflineDrivers(t *testing.T) {
	store, orders, drivers := newOfferFixture(2)
	pusher := &mockPusher{}
	svc := NewService(Deps{
		Store: store, Orders: orders, Drivers: drivers,
		Contacts: mockContacts{restaurant: &restaurantPoint},
		Offers:   &mockOfferer{online: map[types.ID]bool{"driver_00": true}},
		Push:     pusher,
	}, newTestCfg(), 3)

	res, err := svc.OfferOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if res.Delivered != 1 || res.Pushed != 1 {
		t.Fatalf("expected one live and one pushed offer, got %+v", res)
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0] != "driver_01" {
		t.Fatalf("expected push to driver_01, got %v", pusher.pushed)
	}
}

func TestOfferOrder_PushFailureIsNotFatal(t *testing.T) {
	store, orders, drivers := newOfferFixture(1)
	svc := NewService(Deps{
		Store: store, Orders: orders, Drivers: drivers,
		Contacts: mockContacts{restaurant: &restaurantPoint},
		Offers:   &mockOfferer{},
		Push:     &mockPusher{err: errors.New("fcm unavailable")},
	}, newTestCfg(), 3)

	res, err := svc.OfferOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if res.Pushed != 0 || len(res.Offered) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestOfferOrder_Rejections(t *testing.T) {
	store, orders, drivers := newOfferFixture(3)
	assigned := types.ID("driver_x")
	orders["assigned"] = &order.Order{ID: "assigned", Status: order.StatusDispatched, DriverID: &assigned}
	orders["cancelled"] = &order.Order{ID: "cancelled", Status: order.StatusCancelled}

	cases := []struct {
		name     string
		orderID  types.ID
		contacts mockContacts
		want     error
	}{
		{"missing order", "nope", mockContacts{restaurant: &restaurantPoint}, order.ErrNotFound},
		{"already assigned", "assigned", mockContacts{restaurant: &restaurantPoint}, ErrAlreadyAssigned},
		{"cancelled", "cancelled", mockContacts{restaurant: &restaurantPoint}, ErrNotOfferable},
		{"no restaurant location", "o1", mockContacts{}, ErrNoRestaurantLocation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(Deps{
				Store: store, Orders: orders, Drivers: drivers,
				Contacts: tc.contacts, Offers: &mockOfferer{},
			}, newTestCfg(), 3)
			if _, err := svc.OfferOrder(context.Background(), tc.orderID); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOfferOrder_NoDrivers(t *testing.T) {
	_, orders, _ := newOfferFixture(0)
	svc := NewService(Deps{
		Store: newMockMatchingStore(nil), Orders: orders, Drivers: mockDrivers{},
		Contacts: mockContacts{restaurant: &restaurantPoint}, Offers: &mockOfferer{},
	}, newTestCfg(), 3)

	res, err := svc.OfferOrder(context.Background(), "o1")
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if len(res.Offered) != 0 {
		t.Fatalf("expected no offers, got %v", res.Offered)
	}
}

func TestOfferMessageTargetsDriverTopic(t *testing.T) {
	msg := offerMessage("d1", realtime.Assignment{OrderID: "o1", DistanceKm: 1.25, TotalAmount: types.NewMoney(50000)})
	if msg.Topic != "driver_d1" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if msg.Data["order_id"] != "o1" || msg.Data["distance_km"] != "1.25" || msg.Data["currency"] != "VND" {
		t.Fatalf("unexpected data %v", msg.Data)
	}
}

// ---------------------------------------------------------------------------
// Redis integration
// ---------------------------------------------------------------------------

func TestStoreNearbyAndNotified(t *testing.T) {
	redisAddr := os.Getenv("FLASHFOOD_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("FLASHFOOD_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	ctx := context.Background()

	geo := location.NewStore(rdb)
	store := NewStore(rdb, time.Minute)
	suffix := time.Now().UnixNano()
	near := types.ID(fmt.Sprintf("driver_near_%d", suffix))
	far := types.ID(fmt.Sprintf("driver_far_%d", suffix))
	orderID := types.ID(fmt.Sprintf("order_%d", suffix))
	t.Cleanup(func() {
		_ = geo.RemoveGeo(ctx, near)
		_ = geo.RemoveGeo(ctx, far)
		rdb.Del(ctx, notifiedKey(orderID), dispatchedAtKey(orderID))
	})

	if err := geo.SetGeo(ctx, near, types.Point{Lat: 10.7775, Lng: 106.7012}); err != nil {
		t.Fatalf("set geo: %v", err)
	}
	if err := geo.SetGeo(ctx, far, types.Point{Lat: 21.0285, Lng: 105.8542}); err != nil {
		t.Fatalf("set geo: %v", err)
	}

	found, err := store.NearbyDrivers(ctx, restaurantPoint, 3, selectPoolSize)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	var sawNear bool
	for _, c := range found {
		if c.DriverID == far {
			t.Fatalf("driver in Hanoi returned for Saigon search")
		}
		if c.DriverID == near {
			sawNear = true
			if c.DistanceKm <= 0 || c.DistanceKm > 1 {
				t.Fatalf("unexpected distance %.3f", c.DistanceKm)
			}
		}
	}
	if !sawNear {
		t.Fatalf("expected %s in results", near)
	}

	if err := store.RecordDispatch(ctx, orderID, []types.ID{near}); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	notified, err := store.Notified(ctx, orderID)
	if err != nil {
		t.Fatalf("notified: %v", err)
	}
	if !notified[near] {
		t.Fatalf("expected %s notified", near)
	}
	if _, ok, err := store.GetDispatchedAt(ctx, orderID); err != nil || !ok {
		t.Fatalf("expected dispatched_at, ok=%v err=%v", ok, err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func makeDriverPool(n int) []types.ID {
	pool := make([]types.ID, n)
	for i := range pool {
		pool[i] = types.ID(fmt.Sprintf("driver_%02d", i))
	}
	return pool
}

func assertUnique(t *testing.T, ids []types.ID) {
	t.Helper()
	seen := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate driver %s in selection", id)
		}
		seen[id] = true
	}
}

func assertSubset(t *testing.T, pool, selected []types.ID) {
	t.Helper()
	in := make(map[types.ID]bool, len(pool))
	for _, id := range pool {
		in[id] = true
	}
	for _, id := range selected {
		if !in[id] {
			t.Fatalf("selected driver %s not in pool", id)
		}
	}
}
