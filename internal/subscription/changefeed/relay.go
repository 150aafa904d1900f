package changefeed

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel shared by all instances.
const Channel = "subscriptiond:subscription-changes"

// Relay publishes through Redis when it is configured so listeners connected
// to other instances are notified too. Without Redis it publishes straight
// to the local hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRelay(client *redis.Client, hub *Hub, log *zap.Logger) *Relay {
	return &Relay{
		client: client,
		hub:    hub,
		log:    log.Named("subscription.changefeed"),
	}
}

func (r *Relay) Publish(ctx context.Context, event Event) {
	if r.client == nil {
		r.hub.Publish(ctx, event)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Warn("encode change event", zap.Error(err))
		return
	}
	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		r.log.Warn("relay publish failed, delivering locally", zap.Error(err))
		r.hub.Publish(ctx, event)
	}
}

// Start subscribes to the relay channel and forwards into the local hub.
func (r *Relay) Start(ctx context.Context) error {
	if r.client == nil {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	r.pubsub = pubsub
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Warn("decode change event", zap.Error(err))
				continue
			}
			r.hub.Publish(context.Background(), event)
		}
	}()

	r.log.Info("change relay subscribed", zap.String("channel", Channel))
	return nil
}

func (r *Relay) Stop(context.Context) error {
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	<-r.done
	return err
}
