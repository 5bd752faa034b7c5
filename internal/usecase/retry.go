// Package usecase implements the pipeline workers: analysis, coordination,
// splitting, conversion, storage, and merging. Each worker is a thin service
// over the domain ports, consumed through the broker adapter's typed handlers.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// classify maps port errors onto the retry taxonomy. Unrecognized errors are
// transient: the pessimistic default keeps a flaky dependency from turning
// into silent data loss.
func classify(err error) domain.ErrorKind {
	switch {
	case errors.Is(err, domain.ErrPoisonMessage):
		return domain.KindPoison
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		return domain.KindBadInput
	default:
		return domain.KindTransient
	}
}

// retryOrFail applies the single retry discipline: republish msg with a
// bumped envelope while the decision allows it, hand off to onExhausted when
// retries run out, and propagate poison so the consume loop dead-letters the
// delivery. msg must be a pointer to the message being retried.
func retryOrFail(ctx domain.Context, pub domain.Publisher, msg domain.Message, kind domain.ErrorKind, cause error, onExhausted func(ctx domain.Context) error) error {
	env := msg.Env()
	switch domain.DecideRetry(env.RetryCount, env.MaxRetries, kind) {
	case domain.RetryPublish:
		env.BumpRetry()
		observability.RetriesTotal.WithLabelValues(string(env.EventType)).Inc()
		slog.Warn("retrying message",
			"eventType", env.EventType, "itemId", env.ItemID,
			"retryCount", env.RetryCount, "error", cause)
		if err := pub.Publish(ctx, msg); err != nil {
			return fmt.Errorf("op=usecase.retryOrFail: republish: %w", err)
		}
		return nil
	case domain.PublishFailed:
		slog.Error("retries exhausted",
			"eventType", env.EventType, "itemId", env.ItemID,
			"retryCount", env.RetryCount, "error", cause)
		return onExhausted(ctx)
	default:
		return fmt.Errorf("op=usecase.retryOrFail: %w", cause)
	}
}
