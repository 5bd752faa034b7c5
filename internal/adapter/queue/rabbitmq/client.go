// Package rabbitmq provides the broker adapter for the PDF pipeline.
//
// It owns one logical connection and one channel, asserts the message
// topology on every (re)connect, and exposes typed publish and manually
// acknowledged consume. Handler failures never crash the consume loop; they
// reject the message to the dead-letter exchange unless the handler already
// republished a retry.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/config"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Handler processes one raw message body. A nil return acknowledges the
// message; an error rejects it without requeue so the DLX collects it.
type Handler func(ctx context.Context, body []byte) error

type consumerReg struct {
	queue   string
	tag     string
	handler Handler
}

// Client is the broker adapter. One per worker process.
type Client struct {
	cfg      config.Config
	exchange string
	dlx      string

	// mu serializes all channel access; the AMQP channel is not safe for
	// concurrent publishes.
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	consumers   map[string]consumerReg
	consumersMu sync.Mutex

	healthy atomic.Bool
	closing atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	// rootCtx is cancelled on Close; handlers inherit from it.
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New connects, asserts the topology, and starts the connection monitor and
// heartbeat. Topology mismatch is fatal: the caller should exit non-zero.
func New(cfg config.Config) (*Client, error) {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		exchange:   cfg.ExchangeName,
		dlx:        cfg.DLXName,
		consumers:  map[string]consumerReg{},
		done:       make(chan struct{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}
	if err := c.connect(); err != nil {
		rootCancel()
		return nil, err
	}
	c.healthy.Store(true)
	go c.monitor()
	go c.heartbeat()
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp.Dial(c.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("op=rabbitmq.connect: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("op=rabbitmq.connect: channel: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("op=rabbitmq.connect: qos: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.mu.Unlock()

	if err := c.assertTopology(ch); err != nil {
		_ = conn.Close()
		return err
	}
	slog.Info("broker connected",
		slog.String("exchange", c.exchange),
		slog.String("dlx", c.dlx),
		slog.Int("prefetch", c.cfg.Prefetch))
	return nil
}

// monitor watches for connection loss and drives the reconnect policy:
// exponential backoff starting at the configured initial interval, capped at
// the configured attempt count, then Unhealthy.
func (c *Client) monitor() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return
		case err := <-closeCh:
			if c.closing.Load() {
				return
			}
			slog.Error("broker connection lost", slog.Any("error", err))
			c.healthy.Store(false)
			if !c.reconnect() {
				slog.Error("broker reconnect attempts exhausted; adapter unhealthy")
				return
			}
		}
	}
}

func (c *Client) reconnect() bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.ReconnectInitial
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; attempt <= c.cfg.ReconnectMax; attempt++ {
		wait := bo.NextBackOff()
		slog.Info("broker reconnect scheduled",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.ReconnectMax),
			slog.Duration("wait", wait))
		select {
		case <-c.done:
			return false
		case <-time.After(wait):
		}
		observability.BrokerReconnectsTotal.Inc()

		if err := c.connect(); err != nil {
			slog.Error("broker reconnect failed", slog.Int("attempt", attempt), slog.Any("error", err))
			continue
		}
		if err := c.restartConsumers(); err != nil {
			slog.Error("consumer re-registration failed", slog.Any("error", err))
			continue
		}
		c.healthy.Store(true)
		slog.Info("broker reconnected", slog.Int("attempt", attempt))
		return true
	}
	return false
}

func (c *Client) restartConsumers() error {
	c.consumersMu.Lock()
	regs := make([]consumerReg, 0, len(c.consumers))
	for _, reg := range c.consumers {
		regs = append(regs, reg)
	}
	c.consumersMu.Unlock()
	for _, reg := range regs {
		if err := c.startConsumer(reg); err != nil {
			return err
		}
	}
	return nil
}

// heartbeat issues a passive check every interval. A failed check is logged
// but does not trigger reconnect; the connection's own close notification
// will. The check doubles as the DLQ depth sampler.
func (c *Client) heartbeat() {
	ticker := time.NewTicker(c.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil || conn.IsClosed() {
				slog.Warn("broker heartbeat: connection closed")
				continue
			}
			ch, err := conn.Channel()
			if err != nil {
				slog.Warn("broker heartbeat: channel open failed", slog.Any("error", err))
				continue
			}
			q, err := ch.QueueDeclarePassive(DeadLetterQueue, true, false, false, false, nil)
			if err != nil {
				slog.Warn("broker heartbeat: passive check failed", slog.Any("error", err))
			} else {
				observability.DeadLetterQueueDepth.Set(float64(q.Messages))
				if q.Messages > 0 {
					slog.Debug("dead letter queue depth", slog.Int("depth", q.Messages))
				}
			}
			_ = ch.Close()
		}
	}
}

// Healthy reports whether the adapter has a live connection (or has not yet
// exhausted its reconnect budget).
func (c *Client) Healthy() bool { return c.healthy.Load() }

// Consume registers a manually acknowledged consumer on queue. The consumer
// tag is derived from the queue name and survives reconnects. noAck consumers
// are not permitted on request queues, so none are offered at all.
func (c *Client) Consume(queue string, handler Handler) error {
	reg := consumerReg{queue: queue, tag: queue + "-consumer", handler: handler}

	c.consumersMu.Lock()
	if _, dup := c.consumers[reg.tag]; dup {
		c.consumersMu.Unlock()
		return fmt.Errorf("op=rabbitmq.Consume: queue %s already consumed: %w", queue, domain.ErrConflict)
	}
	c.consumers[reg.tag] = reg
	c.consumersMu.Unlock()

	return c.startConsumer(reg)
}

func (c *Client) startConsumer(reg consumerReg) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	deliveries, err := ch.Consume(reg.queue, reg.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("op=rabbitmq.startConsumer: %s: %w", reg.queue, err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range deliveries {
			c.dispatch(reg, d)
		}
		// Channel closed: either shutdown or reconnect in flight. The
		// reconnect path re-registers this consumer with the same tag.
	}()
	slog.Info("consumer registered", slog.String("queue", reg.queue), slog.String("tag", reg.tag))
	return nil
}

func (c *Client) dispatch(reg consumerReg, d amqp.Delivery) {
	start := time.Now()
	err := reg.handler(c.rootCtx, d.Body)
	observability.HandlerDuration.WithLabelValues(reg.queue).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "rejected"
		if errors.Is(err, domain.ErrPoisonMessage) {
			outcome = "poison"
		}
		slog.Error("handler failed; rejecting to DLX",
			slog.String("queue", reg.queue),
			slog.String("outcome", outcome),
			slog.Any("error", err))
		observability.MessagesConsumedTotal.WithLabelValues(reg.queue, outcome).Inc()
		observability.DeadLetteredTotal.WithLabelValues(reg.queue).Inc()
		if nerr := d.Nack(false, false); nerr != nil {
			slog.Error("nack failed", slog.String("queue", reg.queue), slog.Any("error", nerr))
		}
		return
	}
	observability.MessagesConsumedTotal.WithLabelValues(reg.queue, "ok").Inc()
	if aerr := d.Ack(false); aerr != nil {
		slog.Error("ack failed", slog.String("queue", reg.queue), slog.Any("error", aerr))
	}
}

// Close cancels all consumers, lets in-flight handlers finish within the
// grace period, then closes the channel and connection. Unacknowledged
// messages return to their queues for another replica.
func (c *Client) Close(ctx context.Context) error {
	c.closing.Store(true)
	close(c.done)

	c.mu.Lock()
	ch := c.ch
	conn := c.conn
	c.mu.Unlock()

	c.consumersMu.Lock()
	for tag := range c.consumers {
		if err := ch.Cancel(tag, false); err != nil {
			slog.Warn("consumer cancel failed", slog.String("tag", tag), slog.Any("error", err))
		}
	}
	c.consumersMu.Unlock()

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		slog.Warn("shutdown grace period elapsed with handlers in flight")
	}

	c.rootCancel()
	if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		slog.Warn("channel close failed", slog.Any("error", err))
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("op=rabbitmq.Close: %w", err)
	}
	return nil
}

func asAMQPError(err error, target **amqp.Error) bool {
	return errors.As(err, target)
}
