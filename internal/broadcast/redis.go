package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "crm:events"

// RedisPublisher forwards broadcasts to a Redis pub/sub channel so other
// instances behind the same load balancer can relay them to their clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	origin  string
	timeout time.Duration
	now     func() time.Time
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		timeout: 2 * time.Second,
		now:     time.Now,
	}
}

func (p *RedisPublisher) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[broadcast] Failed to marshal %s payload: %v", event, err)
		return
	}
	msg, err := json.Marshal(Message{Event: event, Payload: data, SentAt: p.now(), Origin: p.origin})
	if err != nil {
		log.Printf("[broadcast] Failed to marshal %s message: %v", event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		log.Printf("[broadcast] Failed to publish %s: %v", event, err)
	}
}

// Relay copies messages published by other instances into hub. Messages this
// publisher sent itself are skipped. It returns when ctx is cancelled.
func (p *RedisPublisher) Relay(ctx context.Context, hub *Hub) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Printf("[broadcast] Ignoring malformed message on %s: %v", p.channel, err)
				continue
			}
			if msg.Origin == p.origin {
				continue
			}
			hub.publish(msg)
		}
	}
}
