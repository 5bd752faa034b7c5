package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Exchange and queue names are fixed; every queue is durable, non-exclusive,
// non-auto-delete, and dead-letters into the DLX.
const (
	DefaultExchange = "pdf.conversion"
	DefaultDLX      = "dead.letter"

	DeadLetterQueue      = "dead-letter-queue"
	DeadLetterRoutingKey = "dead.letter"
)

// Binding ties one queue to its routing key on the main exchange.
type Binding struct {
	Queue      string
	RoutingKey string
	EventType  domain.EventType
}

// Bindings enumerates the full topology. Queue per event type, fixed routing
// keys.
var Bindings = []Binding{
	{"pdf-analysis-request", "pdf.analysis.request", domain.EventPdfAnalysisRequest},
	{"pdf-analysis-completed", "pdf.analysis.completed", domain.EventPdfAnalysisCompleted},
	{"pdf-analysis-failed", "pdf.analysis.failed", domain.EventPdfAnalysisFailed},
	{"pdf-splitting-request", "pdf.splitting.request", domain.EventPdfSplittingRequest},
	{"pdf-conversion-request", "pdf.conversion.request", domain.EventPdfConversionRequest},
	{"pdf-conversion-progress", "pdf.conversion.progress", domain.EventPdfConversionProgress},
	{"pdf-conversion-completed", "pdf.conversion.completed", domain.EventPdfConversionCompleted},
	{"pdf-conversion-failed", "pdf.conversion.failed", domain.EventPdfConversionFailed},
	{"pdf-part-conversion-request", "pdf.part.conversion.request", domain.EventPdfPartConversionRequest},
	{"pdf-part-conversion-completed", "pdf.part.conversion.completed", domain.EventPdfPartConversionDone},
	{"pdf-part-conversion-failed", "pdf.part.conversion.failed", domain.EventPdfPartConversionFailed},
	{"pdf-merging-request", "pdf.merging.request", domain.EventPdfMergingRequest},
	{"pdf-merging-progress", "pdf.merging.progress", domain.EventPdfMergingProgress},
	{"markdown-storage-request", "markdown.storage.request", domain.EventMarkdownStorageRequest},
	{"markdown-storage-completed", "markdown.storage.completed", domain.EventMarkdownStorageCompleted},
	{"markdown-storage-failed", "markdown.storage.failed", domain.EventMarkdownStorageFailed},
}

// RoutingKeyFor resolves the routing key for an event type.
func RoutingKeyFor(t domain.EventType) (string, error) {
	for _, b := range Bindings {
		if b.EventType == t {
			return b.RoutingKey, nil
		}
	}
	return "", fmt.Errorf("op=rabbitmq.RoutingKeyFor: event type %q: %w", t, domain.ErrInvalidArgument)
}

// QueueFor resolves the queue bound to an event type.
func QueueFor(t domain.EventType) (string, error) {
	for _, b := range Bindings {
		if b.EventType == t {
			return b.Queue, nil
		}
	}
	return "", fmt.Errorf("op=rabbitmq.QueueFor: event type %q: %w", t, domain.ErrInvalidArgument)
}

// assertTopology declares the exchanges, queues, and bindings. It is
// idempotent and runs on every connect, including reconnects. A queue that
// already exists with different arguments fails the whole setup; we never
// silently adopt mismatched arguments.
func (c *Client) assertTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.assertTopology: exchange %s: %w", c.exchange, err)
	}
	if err := ch.ExchangeDeclare(c.dlx, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.assertTopology: dlx %s: %w", c.dlx, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    c.dlx,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
	}
	for _, b := range Bindings {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, args); err != nil {
			return c.queueDeclareError(b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, c.exchange, false, nil); err != nil {
			return fmt.Errorf("op=rabbitmq.assertTopology: bind %s→%s: %w", b.RoutingKey, b.Queue, err)
		}
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return c.queueDeclareError(DeadLetterQueue, err)
	}
	if err := ch.QueueBind(DeadLetterQueue, DeadLetterRoutingKey, c.dlx, false, nil); err != nil {
		return fmt.Errorf("op=rabbitmq.assertTopology: bind dlq: %w", err)
	}
	return nil
}

// queueDeclareError handles the PRECONDITION_FAILED edge case: the queue
// exists with different arguments. We log the existing queue's depth on a
// fresh channel (the failing declare closed the current one) and refuse to
// start.
func (c *Client) queueDeclareError(queue string, err error) error {
	var ae *amqp.Error
	if !asAMQPError(err, &ae) || ae.Code != amqp.PreconditionFailed {
		return fmt.Errorf("op=rabbitmq.assertTopology: declare %s: %w", queue, err)
	}
	if ch, chErr := c.conn.Channel(); chErr == nil {
		if q, inspErr := ch.QueueDeclarePassive(queue, true, false, false, false, nil); inspErr == nil {
			slog.Error("queue exists with mismatched arguments; refusing to start",
				slog.String("queue", queue),
				slog.Int("depth", q.Messages),
				slog.Int("consumers", q.Consumers))
		}
		_ = ch.Close()
	}
	return fmt.Errorf("op=rabbitmq.assertTopology: declare %s: precondition failed: %w", queue, err)
}
