// README: Order tracking payload fanned out to customer, restaurant and driver.
package realtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"flashfood/internal/modules/order"
	"flashfood/internal/types"
)

type TrackingUpdate struct {
	OrderID          types.ID           `json:"orderId"`
	Status           order.Status       `json:"status"`
	TrackingInfo     order.TrackingInfo `json:"tracking_info"`
	UpdatedAt        int64              `json:"updated_at"`
	CustomerID       types.ID           `json:"customer_id"`
	DriverID         *types.ID          `json:"driver_id"`
	RestaurantID     types.ID           `json:"restaurant_id"`
	DriverAvatar     *string            `json:"driver_avatar"`
	RestaurantAvatar *string            `json:"restaurant_avatar"`
	DriverTips       int64              `json:"driver_tips"`
}

func NewTrackingUpdate(o *order.Order) TrackingUpdate {
	u := TrackingUpdate{
		OrderID:      o.ID,
		Status:       o.Status,
		TrackingInfo: o.TrackingInfo,
		UpdatedAt:    o.UpdatedAt.Unix(),
		CustomerID:   o.CustomerID,
		DriverID:     o.DriverID,
		RestaurantID: o.RestaurantID,
		DriverTips:   o.DriverTips.Amount,
	}
	u.RestaurantAvatar = RestaurantParty{ID: o.RestaurantID, Avatar: o.RestaurantAvatar}.NotificationPayload().Avatar
	if o.DriverID != nil {
		u.DriverAvatar = DriverParty{ID: *o.DriverID, Avatar: o.DriverAvatar}.NotificationPayload().Avatar
	}
	return u
}

// Fingerprint identifies the payload for duplicate suppression.
func (u TrackingUpdate) Fingerprint() string {
	b, _ := json.Marshal(u)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Groups lists the rooms that receive the update.
func (u TrackingUpdate) Groups() []string {
	groups := []string{
		GroupOf(KindCustomer, u.CustomerID),
		GroupOf(KindRestaurant, u.RestaurantID),
	}
	if u.DriverID != nil {
		groups = append(groups, GroupOf(KindDriver, *u.DriverID))
	}
	return groups
}
