package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Typed wraps a typed message handler into a raw Handler. Decode failures,
// unknown event types, and envelope/queue mismatches are poison: the consume
// loop rejects them to the DLX without retry.
func Typed[T any, PT interface {
	*T
	domain.Message
}](want domain.EventType, fn func(ctx context.Context, msg T) error) Handler {
	return func(ctx context.Context, body []byte) error {
		var msg T
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("op=rabbitmq.Typed: decode %s: %v: %w", want, err, domain.ErrPoisonMessage)
		}
		env := PT(&msg).Env()
		if !env.EventType.Valid() {
			return fmt.Errorf("op=rabbitmq.Typed: unknown event type %q: %w", env.EventType, domain.ErrPoisonMessage)
		}
		if env.EventType != want {
			return fmt.Errorf("op=rabbitmq.Typed: got %s on %s queue: %w", env.EventType, want, domain.ErrPoisonMessage)
		}
		if env.ItemID == "" {
			return fmt.Errorf("op=rabbitmq.Typed: %s without itemId: %w", want, domain.ErrPoisonMessage)
		}
		return fn(ctx, msg)
	}
}

// ConsumeTyped registers a typed consumer on the queue bound to the event
// type.
func ConsumeTyped[T any, PT interface {
	*T
	domain.Message
}](c *Client, want domain.EventType, fn func(ctx context.Context, msg T) error) error {
	queue, err := QueueFor(want)
	if err != nil {
		return err
	}
	return c.Consume(queue, Typed[T, PT](want, fn))
}
