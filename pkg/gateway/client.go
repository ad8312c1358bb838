package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboards are served from other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one dashboard connection. Its writes happen on its own goroutine,
// so a broken or slow connection only ever affects itself.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

func (c *Client) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRealtimeGateway, zap.String(common.LoggerFieldClientID, c.ID))
}

// ReadPump only services control frames; dashboards do not send data.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger().Debug("Read failed", zap.Error(err))
			}
			return
		}
	}
}

// WritePump writes queued messages one frame each and keeps the connection alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// closing the conn makes ReadPump fail, which unregisters the client
				c.logger().Debug("Write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var ErrHubStopped = errors.New("gateway hub stopped")

// ServeWS upgrades the request, acknowledges the connection and starts the pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
	}

	ack, err := bus.Encode(common.EventConnected, map[string]string{"client_id": client.ID})
	if err != nil {
		_ = conn.Close()
		return err
	}
	client.Send <- ack

	if !h.Register(client) {
		_ = conn.Close()
		return ErrHubStopped
	}

	go client.WritePump()
	go client.ReadPump()
	return nil
}
