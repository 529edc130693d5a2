// README: Wire envelope for every realtime message, inbound and outbound.
package realtime

import "encoding/json"

const (
	EventConnected         = "connected"
	EventOrderTracking     = "orderTrackingUpdate"
	EventStagesUpdated     = "driverStagesUpdated"
	EventIncomingOrder     = "incomingOrderForDriver"
	EventDriverAcceptOrder = "driverAcceptOrder"
	EventUpdateProgress    = "updateDriverProgress"
	EventUpdateLocation    = "updateDriverLocation"
	EventError             = "error"
)

// Envelope is the outbound frame. Success is set only on acks.
type Envelope struct {
	Event   string `json:"event"`
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Inbound is a frame read from a client; Data is decoded by the handler for Event.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers an inbound frame.
func Ack(event string, success bool, message string, data any) Envelope {
	return Envelope{Event: event, Success: &success, Message: message, Data: data}
}
