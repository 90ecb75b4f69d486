package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body.  A nil return acks the message; an
// error rejects it to the dead-letter exchange.
type Handler func(ctx context.Context, d amqp.Delivery) error

// ConsumerConfig describes the topology a Consumer declares.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	// DeadLetter is the fanout exchange rejected messages go to; its queue
	// is named DeadLetter + ".queue".
	DeadLetter string
	Keys       []string
	Prefetch   int
}

// Consumer reads a durable queue bound to a topic exchange and survives
// broker restarts with a reconnect loop.
type Consumer struct {
	cfg ConsumerConfig
	log *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{cfg: cfg, log: log}
}

// nextBackoff doubles d up to 30s.
func nextBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	if d *= 2; d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	backoff := time.Second
	for {
		conn, err := dial(c.cfg.URL)
		if err != nil {
			c.log.WarnContext(ctx, "dial broker failed", slog.Any("err", err), slog.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, h)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WarnContext(ctx, "consume loop ended, reconnecting", slog.Any("err", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// queueArgs routes rejected messages to the dead-letter exchange.
func (c *Consumer) queueArgs() amqp.Table {
	if c.cfg.DeadLetter == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": c.cfg.DeadLetter}
}

func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if c.cfg.DeadLetter != "" {
		if err := ch.ExchangeDeclare(c.cfg.DeadLetter, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter exchange: %w", err)
		}
		dlq := c.cfg.DeadLetter + ".queue"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue: %w", err)
		}
		if err := ch.QueueBind(dlq, "", c.cfg.DeadLetter, false, nil); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, c.queueArgs()); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, rk := range c.cfg.Keys {
		if err := ch.QueueBind(c.cfg.Queue, rk, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}
	return ch.Qos(c.cfg.Prefetch, 0, false)
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, h Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := c.declare(ch); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.InfoContext(ctx, "consuming", slog.String("queue", c.cfg.Queue), slog.Any("keys", c.cfg.Keys))

	for d := range msgs {
		if err := h(ctx, d); err != nil {
			c.log.ErrorContext(ctx, "message rejected", slog.String("routing_key", d.RoutingKey),
				slog.String("message_id", d.MessageId), slog.Any("err", err))
			_ = d.Nack(false, false) // dead-letter, never requeue into a tight loop
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
