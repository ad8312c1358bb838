package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

const DefaultChannel = "telemetry-events"

type RedisOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	Channel  string
}

func (o RedisOptions) Addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// RedisBus distributes events through a Redis pub/sub channel so gateways
// in other processes receive what this process publishes.
type RedisBus struct {
	client  *redis.Client
	channel string
	owned   bool
}

func NewRedisBus(opts RedisOptions) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr(),
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	bus := NewRedisBusWithClient(client, opts.Channel)
	bus.owned = true
	return bus
}

func NewRedisBusWithClient(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameDistributionBus, zap.String(common.LoggerFieldDistributionChan, b.channel))
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Publish(ctx context.Context, event *models.DistributionEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	receivers, err := b.client.Publish(ctx, b.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	b.logger().Debug("Published event", zap.String(common.LoggerFieldJobID, event.JobID), zap.Int64("receivers", receivers))
	return nil
}

// Subscribe returns once Redis confirmed the subscription, so nothing
// published afterwards is missed.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan []byte, defaultSubscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.forward()
	b.logger().Info("Subscribed")
	return sub, nil
}

func (b *RedisBus) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		select {
		case s.ch <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
