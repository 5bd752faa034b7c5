package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// progressTTL bounds how long transient progress messages sit in their queue.
const progressTTL = 300 // seconds

func msTime(ms int64) time.Time { return time.UnixMilli(ms) }

// priorityFor maps the envelope priority onto the AMQP priority byte.
func priorityFor(p domain.Priority) uint8 {
	switch p {
	case domain.PriorityLow:
		return 1
	case domain.PriorityHigh:
		return 10
	default:
		return 5
	}
}

// Publish serializes msg as UTF-8 JSON and routes it by its event type.
// Requests are persistent; progress messages are transient with a 300 s TTL.
// Publish failures surface to the caller, who decides retry.
func (c *Client) Publish(ctx context.Context, msg domain.Message) error {
	env := msg.Env()
	if !env.EventType.Valid() {
		return fmt.Errorf("op=rabbitmq.Publish: event type %q: %w", env.EventType, domain.ErrInvalidArgument)
	}
	key, err := RoutingKeyFor(env.EventType)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=rabbitmq.Publish: marshal %s: %w", env.EventType, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    env.MessageID,
		Timestamp:    msTime(env.Timestamp),
		DeliveryMode: amqp.Persistent,
		Priority:     priorityFor(env.Priority),
		Body:         body,
		Headers:      amqp.Table{"x-message-type": string(env.EventType)},
	}
	if env.EventType.Transient() {
		pub.DeliveryMode = amqp.Transient
		pub.Expiration = strconv.Itoa(progressTTL * 1000)
	}

	// The channel is single-threaded by the protocol; serialize publishes.
	c.mu.Lock()
	ch := c.ch
	healthy := c.healthy.Load()
	if !healthy {
		c.mu.Unlock()
		return fmt.Errorf("op=rabbitmq.Publish: %s: %w", env.EventType, domain.ErrUnhealthy)
	}
	err = ch.PublishWithContext(ctx, c.exchange, key, false, false, pub)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("op=rabbitmq.Publish: %s→%s: %w", env.EventType, key, err)
	}
	observability.MessagesPublishedTotal.WithLabelValues(string(env.EventType)).Inc()
	return nil
}
