package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var ErrClosed = errors.New("bus closed")

// Message is the envelope every subscriber receives.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher hands processed state to whoever is listening. Publishing is
// fire and forget: a nil error means the bus accepted the message, not that
// any subscriber saw it.
type Publisher interface {
	Publish(ctx context.Context, event *models.DistributionEvent) error
}

type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription delivers encoded Messages until Close is called or the bus goes away,
// at which point Messages is closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return json.Marshal(Message{Type: eventType, Payload: raw})
}

func EncodeEvent(event *models.DistributionEvent) ([]byte, error) {
	return Encode(common.EventTelemetryUpdate, event)
}

func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
