// README: Websocket gateway: registers authenticated parties and serves driver events over the socket.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flashfood/internal/http/middleware"
	"flashfood/internal/modules/dispatch"
	"flashfood/internal/modules/location"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin; identity comes from the verified token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	registry *realtime.Registry
	dispatch Dispatcher
	location LocationUpdater
	log      *zap.Logger
}

func NewWSHandler(registry *realtime.Registry, dispatchSvc Dispatcher, locationSvc LocationUpdater, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{registry: registry, dispatch: dispatchSvc, location: locationSvc, log: log}
}

// Connect upgrades an authenticated request and blocks until the peer leaves.
func (h *WSHandler) Connect(c *gin.Context) {
	kind, ok := realtime.ParseKind(middleware.CallerRole(c))
	if !ok {
		writeError(c, http.StatusForbidden, "forbidden: unknown role")
		return
	}
	identity := realtime.Identity{Kind: kind, ID: types.ID(middleware.CallerUID(c))}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := realtime.NewClient(conn, h.log)
	h.registry.Register(identity, client)
	h.registry.JoinGroup(identity, identity.Group())
	h.log.Info("party connected", zap.String("identity", identity.String()), zap.String("handle", client.ID()))

	go client.WritePump()
	_ = client.Send(realtime.Envelope{
		Event: realtime.EventConnected,
		Data:  realtime.PartyFor(identity).NotificationPayload(),
	})

	ctx := c.Request.Context()
	client.ReadPump(func(in realtime.Inbound) {
		_ = client.Send(h.handle(ctx, identity, in))
	})

	h.registry.Unregister(client)
	client.Close()
}

type acceptOrderMsg struct {
	OrderID string `json:"orderId"`
}

type updateProgressMsg struct {
	StageID string  `json:"stageId"`
	OrderID *string `json:"orderId"`
}

type updateLocationMsg struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Available *bool   `json:"available"`
}

// handle runs one inbound event and returns its ack.
func (h *WSHandler) handle(ctx context.Context, identity realtime.Identity, in realtime.Inbound) realtime.Envelope {
	if identity.Kind != realtime.KindDriver {
		return realtime.Ack(in.Event, false, "forbidden: driver role required", nil)
	}
	switch in.Event {
	case realtime.EventDriverAcceptOrder:
		var msg acceptOrderMsg
		if err := json.Unmarshal(in.Data, &msg); err != nil || !isValidID(msg.OrderID) {
			return realtime.Ack(in.Event, false, "orderId is required", nil)
		}
		res, err := h.dispatch.ClaimOrder(ctx, dispatch.ClaimCommand{DriverID: identity.ID, OrderID: types.ID(msg.OrderID)})
		if err != nil {
			return h.failure(in.Event, err)
		}
		body := claimResponse(res)
		return realtime.Ack(in.Event, true, body["message"].(string), body)

	case realtime.EventUpdateProgress:
		var msg updateProgressMsg
		if err := json.Unmarshal(in.Data, &msg); err != nil || !isValidID(msg.StageID) {
			return realtime.Ack(in.Event, false, "stageId is required", nil)
		}
		cmd := dispatch.AdvanceCommand{DriverID: identity.ID, AggregateID: types.ID(msg.StageID)}
		if msg.OrderID != nil {
			cmd.OrderID = types.IDPtr(types.ID(*msg.OrderID))
		}
		res, err := h.dispatch.AdvanceStage(ctx, cmd)
		if err != nil {
			return h.failure(in.Event, err)
		}
		body := advanceResponse(res)
		return realtime.Ack(in.Event, true, body["message"].(string), body)

	case realtime.EventUpdateLocation:
		var msg updateLocationMsg
		if err := json.Unmarshal(in.Data, &msg); err != nil {
			return realtime.Ack(in.Event, false, "lat and lng are required", nil)
		}
		err := h.location.UpdateDriverLocation(ctx, location.Update{
			DriverID:  identity.ID,
			Point:     types.Point{Lat: msg.Lat, Lng: msg.Lng},
			Available: msg.Available,
		})
		if err != nil {
			return h.failure(in.Event, err)
		}
		return realtime.Ack(in.Event, true, "Location updated", nil)

	default:
		return realtime.Ack(in.Event, false, "unknown event", nil)
	}
}

func (h *WSHandler) failure(event string, err error) realtime.Envelope {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("websocket event failed", zap.String("event", event), zap.Error(err))
	}
	return realtime.Ack(event, false, msg, nil)
}
