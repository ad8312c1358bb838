package gateway

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
)

// Hub owns the live client set of one gateway instance and fans every
// broadcast out to all of them. Only the Run goroutine touches the set.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRealtimeGateway)
}

// Run serves registrations and broadcasts until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger().Info("Client connected",
				zap.String(common.LoggerFieldClientID, client.ID),
				zap.Int("clients", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger().Info("Client disconnected",
					zap.String(common.LoggerFieldClientID, client.ID),
					zap.Int("clients", len(h.clients)),
				)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// a client that cannot keep up is cut loose so it never holds back the rest
					h.drop(client)
					h.logger().Warn("Dropped slow client", zap.String(common.LoggerFieldClientID, client.ID))
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.count.Store(int64(len(h.clients)))
}

// Register adds client to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues an encoded message for every connected client.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- message:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Consume forwards everything published on the bus to the hub until ctx is
// done or the subscription ends.
func (h *Hub) Consume(ctx context.Context, subscriber bus.Subscriber) error {
	sub, err := subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	h.logger().Info("Consuming distribution bus")
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-sub.Messages():
			if !ok {
				h.logger().Warn("Distribution bus subscription closed")
				return nil
			}
			if !h.Broadcast(message) {
				return nil
			}
		}
	}
}
