// README: Websocket connection handle with a buffered write pump and keepalive pings.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 256
)

// Client owns one websocket connection. Only WritePump writes to conn.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Envelope
	done chan struct{}
	once sync.Once
	log  *zap.Logger
}

func NewClient(conn *websocket.Conn, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan Envelope, sendBuffer),
		done: make(chan struct{}),
		log:  log.With(zap.String("handle", id)),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues env; a full buffer drops it.
func (c *Client) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// WritePump drains the send buffer and pings until Close or a write error.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("websocket ping failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// ReadPump calls handle for every decoded frame and returns when the peer
// goes away. Malformed frames are answered with an error envelope.
func (c *Client) ReadPump(handle func(Inbound)) {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			_ = c.Send(Ack(EventError, false, "malformed message", nil))
			continue
		}
		handle(in)
	}
}
