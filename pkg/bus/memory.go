package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

const defaultSubscriptionBuffer = 256

// MemoryBus fans messages out to subscribers in the same process.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	buffer int
	closed bool
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	return &MemoryBus{subs: make(map[*memorySubscription]struct{}), buffer: buffer}
}

func (b *MemoryBus) Publish(ctx context.Context, event *models.DistributionEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	return b.PublishRaw(ctx, data)
}

// PublishRaw delivers an already encoded message. A subscriber whose buffer
// is full misses the message; the others are unaffected.
func (b *MemoryBus) PublishRaw(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs {
		select {
		case sub.ch <- data:
		default:
			common.GetLoggerWith(common.LoggerNameDistributionBus).
				Warn("Dropped message for slow subscriber", zap.Int("buffer", cap(sub.ch)))
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{bus: b, ch: make(chan []byte, b.buffer)}
	b.subs[sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
	return nil
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

type memorySubscription struct {
	bus *MemoryBus
	ch  chan []byte
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.remove(s)
	return nil
}
