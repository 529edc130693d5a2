// README: FCM topic push for offers to drivers without a live connection.
package matching

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

// FCMPusher publishes to the topic named after the driver's group; the
// driver app subscribes to driver_<id> at login.
type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(ctx context.Context, app *firebase.App) (*FCMPusher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return &FCMPusher{client: client}, nil
}

func (p *FCMPusher) PushOffer(ctx context.Context, driverID types.ID, a realtime.Assignment) error {
	if _, err := p.client.Send(ctx, offerMessage(driverID, a)); err != nil {
		return fmt.Errorf("sending FCM offer for order %s: %w", a.OrderID, err)
	}
	return nil
}

func offerMessage(driverID types.ID, a realtime.Assignment) *messaging.Message {
	return &messaging.Message{
		Topic: realtime.GroupOf(realtime.KindDriver, driverID),
		Data: map[string]string{
			"type":           realtime.EventIncomingOrder,
			"order_id":       a.OrderID.String(),
			"restaurant_id":  a.RestaurantID.String(),
			"restaurant_lat": strconv.FormatFloat(a.RestaurantLocation.Lat, 'f', 6, 64),
			"restaurant_lng": strconv.FormatFloat(a.RestaurantLocation.Lng, 'f', 6, 64),
			"distance_km":    strconv.FormatFloat(a.DistanceKm, 'f', 2, 64),
			"total_amount":   strconv.FormatInt(a.TotalAmount.Amount, 10),
			"currency":       a.TotalAmount.Currency,
		},
		Notification: &messaging.Notification{
			Title: "New order",
			Body:  fmt.Sprintf("Pickup %.1f km away", a.DistanceKm),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
