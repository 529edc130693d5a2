// README: Driver progress aggregate: slots, typed stages and the state triplet.
package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flashfood/internal/types"
)

// Stage is one step of a single order's delivery. Stages run in declaration order.
type Stage int

const (
	StageDriverReady Stage = iota
	StageWaitingForPickup
	StageRestaurantPickup
	StageEnRouteToCustomer
	StageDeliveryComplete

	stageCount = 5
)

var stageNames = [stageCount]string{
	"driver_ready",
	"waiting_for_pickup",
	"restaurant_pickup",
	"en_route_to_customer",
	"delivery_complete",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= stageCount {
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
	return stageNames[s]
}

func (s Stage) Terminal() bool { return s == StageDeliveryComplete }

func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, ok := ParseStage(name)
	if !ok {
		return fmt.Errorf("unknown stage %q", name)
	}
	*s = st
	return nil
}

type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in_progress"
	StatusCompleted  StageStatus = "completed"
)

// StateKey is the textual form {stage}_order_{slot}; "" means null.
type StateKey string

const keySep = "_order_"

func KeyOf(stage Stage, slot int) StateKey {
	return StateKey(stage.String() + keySep + strconv.Itoa(slot))
}

// Parse splits the key into stage and 1-based slot index.
func (k StateKey) Parse() (Stage, int, bool) {
	i := strings.LastIndex(string(k), keySep)
	if i < 0 {
		return 0, 0, false
	}
	stage, ok := ParseStage(string(k[:i]))
	if !ok {
		return 0, 0, false
	}
	slot, err := strconv.Atoi(string(k[i+len(keySep):]))
	if err != nil || slot < 1 {
		return 0, 0, false
	}
	return stage, slot, true
}

// Terminal reports whether k names a delivery_complete stage.
func (k StateKey) Terminal() bool {
	return strings.HasPrefix(string(k), stageNames[StageDeliveryComplete]+keySep)
}

type RestaurantSnapshot struct {
	ID           types.ID `json:"id"`
	Name         string   `json:"restaurant_name"`
	Address      string   `json:"address"`
	Avatar       *string  `json:"avatar,omitempty"`
	ContactPhone string   `json:"contact_phone"`
}

type CustomerSnapshot struct {
	ID        types.ID `json:"id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Address   string   `json:"address"`
	Avatar    *string  `json:"avatar,omitempty"`
}

// StageDetails is denormalized at claim time and never refreshed.
type StageDetails struct {
	Location          *types.Point        `json:"location,omitempty"`
	Restaurant        *RestaurantSnapshot `json:"restaurant,omitempty"`
	Customer          *CustomerSnapshot   `json:"customer,omitempty"`
	EstimatedMinutes  float64             `json:"estimated_time,omitempty"`
	EstimatedDistance float64             `json:"estimated_distance,omitempty"`
}

type RouteEstimate struct {
	Duration   time.Duration
	DistanceKm float64
}

// Contacts is everything needed to fill stage details for one order.
type Contacts struct {
	RestaurantLocation *types.Point
	Restaurant         *RestaurantSnapshot
	CustomerLocation   *types.Point
	Customer           *CustomerSnapshot
	DriverLocation     *types.Point
	Route              *RouteEstimate
}

type StageRecord struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Details   StageDetails  `json:"details"`
}

type Slot struct {
	Index   int                     `json:"index"`
	OrderID types.ID                `json:"order_id"`
	Stages  [stageCount]StageRecord `json:"stages"`
}

func newSlot(index int, orderID types.ID) Slot {
	s := Slot{Index: index, OrderID: orderID}
	for i := range s.Stages {
		s.Stages[i] = StageRecord{Stage: Stage(i), Status: StatusPending}
	}
	return s
}

// InProgress returns the slot's in_progress stage, if any.
func (s *Slot) InProgress() (Stage, bool) {
	for i := range s.Stages {
		if s.Stages[i].Status == StatusInProgress {
			return Stage(i), true
		}
	}
	return 0, false
}

// HighestCompleted returns the furthest completed stage, if any.
func (s *Slot) HighestCompleted() (Stage, bool) {
	for i := stageCount - 1; i >= 0; i-- {
		if s.Stages[i].Status == StatusCompleted {
			return Stage(i), true
		}
	}
	return 0, false
}

// Done reports whether delivery_complete is completed.
func (s *Slot) Done() bool {
	return s.Stages[StageDeliveryComplete].Status == StatusCompleted
}

// Queued reports whether no stage has started yet.
func (s *Slot) Queued() bool {
	for i := range s.Stages {
		if s.Stages[i].Status != StatusPending {
			return false
		}
	}
	return true
}

func (s *Slot) activate(stage Stage, now time.Time) {
	s.Stages[stage].Status = StatusInProgress
	s.Stages[stage].Timestamp = now
	s.Stages[stage].Duration = 0
}

func (s *Slot) complete(stage Stage, now time.Time) {
	rec := &s.Stages[stage]
	if rec.Status == StatusInProgress && !rec.Timestamp.IsZero() {
		rec.Duration = now.Sub(rec.Timestamp)
	} else {
		rec.Timestamp = now
		rec.Duration = 0
	}
	rec.Status = StatusCompleted
}

// AttachDetails copies the claim-time snapshot into the slot's stages.
func (s *Slot) AttachDetails(c Contacts) {
	ready := &s.Stages[StageDriverReady].Details
	ready.Location = c.DriverLocation
	if c.Route != nil {
		ready.EstimatedMinutes = c.Route.Duration.Minutes()
		ready.EstimatedDistance = c.Route.DistanceKm
	}
	for _, st := range []Stage{StageWaitingForPickup, StageRestaurantPickup} {
		s.Stages[st].Details.Location = c.RestaurantLocation
		s.Stages[st].Details.Restaurant = c.Restaurant
	}
	for _, st := range []Stage{StageEnRouteToCustomer, StageDeliveryComplete} {
		s.Stages[st].Details.Location = c.CustomerLocation
		s.Stages[st].Details.Customer = c.Customer
	}
}

// Aggregate is one driver's delivery pipeline over up to capacity orders.
type Aggregate struct {
	ID            types.ID
	DriverID      types.ID
	CurrentState  StateKey
	PreviousState StateKey
	NextState     StateKey
	TotalTips     types.Money
	Slots         []Slot
	// Links holds the order ids linked through driver_progress_orders.
	Links     []types.ID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAggregate starts a pipeline whose first order is at driver_ready.
func NewAggregate(id, driverID, orderID types.ID, now time.Time) *Aggregate {
	a := &Aggregate{
		ID:        id,
		DriverID:  driverID,
		TotalTips: types.NewMoney(0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	slot := newSlot(1, orderID)
	slot.activate(StageDriverReady, now)
	a.Slots = append(a.Slots, slot)
	a.recompute()
	return a
}

// AppendSlot adds orderID as the next slot. The new slot stays queued while
// another slot is in progress.
func (a *Aggregate) AppendSlot(orderID types.ID, now time.Time) *Slot {
	if s := a.Slot(orderID); s != nil {
		return s
	}
	slot := newSlot(len(a.Slots)+1, orderID)
	if a.inProgressSlot() == nil {
		slot.activate(StageDriverReady, now)
	}
	a.Slots = append(a.Slots, slot)
	a.UpdatedAt = now
	a.recompute()
	return &a.Slots[len(a.Slots)-1]
}

// Slot returns the slot for orderID or nil.
func (a *Aggregate) Slot(orderID types.ID) *Slot {
	for i := range a.Slots {
		if a.Slots[i].OrderID == orderID {
			return &a.Slots[i]
		}
	}
	return nil
}

// Active reports whether the pipeline still has work.
func (a *Aggregate) Active() bool {
	return !a.CurrentState.Terminal()
}

func (a *Aggregate) Linked(orderID types.ID) bool {
	for _, id := range a.Links {
		if id == orderID {
			return true
		}
	}
	return false
}

func (a *Aggregate) OrderIDs() []types.ID {
	ids := make([]types.ID, 0, len(a.Slots))
	for _, s := range a.Slots {
		ids = append(ids, s.OrderID)
	}
	return ids
}

func (a *Aggregate) inProgressSlot() *Slot {
	for i := range a.Slots {
		if _, ok := a.Slots[i].InProgress(); ok {
			return &a.Slots[i]
		}
	}
	return nil
}

// recompute derives the state triplet from the slots.
func (a *Aggregate) recompute() {
	current := a.CurrentState
	if s := a.inProgressSlot(); s != nil {
		st, _ := s.InProgress()
		current = KeyOf(st, s.Index)
	} else if s := a.lastDelivered(); s != nil {
		current = KeyOf(StageDeliveryComplete, s.Index)
	}
	if current != a.CurrentState {
		a.PreviousState = a.CurrentState
		a.CurrentState = current
	}
	a.NextState = ""
	if st, slot, ok := a.CurrentState.Parse(); ok && !st.Terminal() {
		a.NextState = KeyOf(st+1, slot)
	}
}

// lastDelivered is the most recently completed terminal stage; ties go to the higher slot.
func (a *Aggregate) lastDelivered() *Slot {
	var best *Slot
	for i := range a.Slots {
		s := &a.Slots[i]
		if !s.Done() {
			continue
		}
		if best == nil || !s.Stages[StageDeliveryComplete].Timestamp.Before(best.Stages[StageDeliveryComplete].Timestamp) {
			best = s
		}
	}
	return best
}

// Fingerprint changes whenever the stages or the state triplet change.
func (a *Aggregate) Fingerprint() string {
	h := sha256.New()
	b, _ := json.Marshal(a.Slots)
	h.Write(b)
	fmt.Fprintf(h, "|%s|%s|%s", a.CurrentState, a.PreviousState, a.NextState)
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy; details pointers are shared since they are never mutated.
func (a *Aggregate) Clone() *Aggregate {
	c := *a
	c.Slots = append([]Slot(nil), a.Slots...)
	c.Links = append([]types.ID(nil), a.Links...)
	return &c
}
