// README: Order aggregate, status lifecycle and the status/tracking lockstep table.
package order

import (
	"time"

	"flashfood/internal/types"
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusRestaurantAccepted Status = "RESTAURANT_ACCEPTED"
	StatusPreparing          Status = "PREPARING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusReadyForPickup     Status = "READY_FOR_PICKUP"
	StatusRestaurantPickup   Status = "RESTAURANT_PICKUP"
	StatusDispatched         Status = "DISPATCHED"
	StatusEnRoute            Status = "EN_ROUTE"
	StatusOutForDelivery     Status = "OUT_FOR_DELIVERY"
	StatusDelivered          Status = "DELIVERED"
	StatusDeliveryFailed     Status = "DELIVERY_FAILED"
	StatusCancelled          Status = "CANCELLED"
)

// TrackingInfo is the customer-facing projection of Status.
type TrackingInfo string

const (
	TrackingOrderPlaced    TrackingInfo = "ORDER_PLACED"
	TrackingOrderReceived  TrackingInfo = "ORDER_RECEIVED"
	TrackingPreparing      TrackingInfo = "PREPARING"
	TrackingInProgress     TrackingInfo = "IN_PROGRESS"
	TrackingRestaurantPick TrackingInfo = "RESTAURANT_PICKUP"
	TrackingDispatched     TrackingInfo = "DISPATCHED"
	TrackingEnRoute        TrackingInfo = "EN_ROUTE"
	TrackingOutForDelivery TrackingInfo = "OUT_FOR_DELIVERY"
	TrackingDeliveryFailed TrackingInfo = "DELIVERY_FAILED"
	TrackingDelivered      TrackingInfo = "DELIVERED"
	TrackingCancelled      TrackingInfo = "CANCELLED"
)

var trackingByStatus = map[Status]TrackingInfo{
	StatusPending:            TrackingOrderPlaced,
	StatusRestaurantAccepted: TrackingOrderReceived,
	StatusPreparing:          TrackingPreparing,
	StatusInProgress:         TrackingInProgress,
	StatusReadyForPickup:     TrackingPreparing,
	StatusRestaurantPickup:   TrackingRestaurantPick,
	StatusDispatched:         TrackingDispatched,
	StatusEnRoute:            TrackingEnRoute,
	StatusOutForDelivery:     TrackingOutForDelivery,
	StatusDeliveryFailed:     TrackingDeliveryFailed,
	StatusDelivered:          TrackingDelivered,
	StatusCancelled:          TrackingCancelled,
}

// TrackingFor returns the tracking info written together with s.
func TrackingFor(s Status) (TrackingInfo, bool) {
	t, ok := trackingByStatus[s]
	return t, ok
}

// Progress is the only shape in which status is written, so status and
// tracking info always move together.
type Progress struct {
	Status       Status       `json:"status"`
	TrackingInfo TrackingInfo `json:"tracking_info"`
}

// ProgressFor pairs s with its tracking info from the lockstep table.
func ProgressFor(s Status) Progress {
	t, _ := TrackingFor(s)
	return Progress{Status: s, TrackingInfo: t}
}

type Order struct {
	ID               types.ID     `json:"id"`
	CustomerID       types.ID     `json:"customer_id"`
	RestaurantID     types.ID     `json:"restaurant_id"`
	DriverID         *types.ID    `json:"driver_id"`
	Status           Status       `json:"status"`
	TrackingInfo     TrackingInfo `json:"tracking_info"`
	TotalAmount      types.Money  `json:"total_amount"`
	DriverTips       types.Money  `json:"driver_tips"`
	DriverAvatar     *string      `json:"driver_avatar,omitempty"`
	RestaurantAvatar *string      `json:"restaurant_avatar,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// AssignedTo reports whether the order already belongs to driverID.
func (o *Order) AssignedTo(driverID types.ID) bool {
	return o.DriverID != nil && *o.DriverID == driverID
}

func (o *Order) Progress() Progress {
	return Progress{Status: o.Status, TrackingInfo: o.TrackingInfo}
}

// AllowedTransitions represents the order lifecycle as code. Delivery stages
// write DISPATCHED..DELIVERED directly; this table guards manual updates.
var AllowedTransitions = map[Status][]Status{
	StatusPending:            {StatusRestaurantAccepted, StatusCancelled},
	StatusRestaurantAccepted: {StatusPreparing, StatusCancelled},
	StatusPreparing:          {StatusInProgress, StatusReadyForPickup, StatusDispatched, StatusCancelled},
	StatusInProgress:         {StatusReadyForPickup, StatusDispatched, StatusCancelled},
	StatusReadyForPickup:     {StatusDispatched, StatusRestaurantPickup, StatusCancelled},
	StatusDispatched:         {StatusReadyForPickup, StatusDeliveryFailed, StatusCancelled},
	StatusRestaurantPickup:   {StatusEnRoute, StatusOutForDelivery, StatusDeliveryFailed},
	StatusEnRoute:            {StatusOutForDelivery, StatusDelivered, StatusDeliveryFailed},
	StatusOutForDelivery:     {StatusDelivered, StatusDeliveryFailed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// ClaimableStatuses are the statuses in which an unassigned order may be
// offered to and claimed by a driver.
var ClaimableStatuses = map[Status]bool{
	StatusPending:            true,
	StatusRestaurantAccepted: true,
	StatusPreparing:          true,
	StatusInProgress:         true,
	StatusReadyForPickup:     true,
}

func CanClaim(s Status) bool {
	return ClaimableStatuses[s]
}

// TippableStatuses is the window in which a tip may be added.
var TippableStatuses = map[Status]bool{
	StatusDispatched:       true,
	StatusReadyForPickup:   true,
	StatusRestaurantPickup: true,
	StatusEnRoute:          true,
	StatusDelivered:        true,
}

func CanTip(s Status) bool {
	return TippableStatuses[s]
}
