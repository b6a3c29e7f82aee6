package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
)

// Client owns the NATS connection and the JetStream handles for the
// content stream. Construct one per worker process and close it on
// exit.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    config.QueueConfig
	logger *slog.Logger
}

// Connect dials NATS and ensures the content stream exists. The stream
// uses work-queue retention so an acked message is gone for good, and
// file storage so pending requests survive broker restarts.
func Connect(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %q: %w", cfg.Stream, err)
	}

	return &Client{
		nc:     nc,
		js:     js,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "queue")),
	}, nil
}

// Close drains the NATS connection.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

// PullConsumer binds the durable pull consumer for content requests.
// maxDeliveries is handed to the transport as MaxDeliver: once a
// message has been delivered that many times without an ack, JetStream
// stops redelivering it, which is the dead-letter cap the poison-pill
// guard relies on.
func (c *Client) PullConsumer(ctx context.Context, maxDeliveries int) (Consumer, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliveries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %q: %w", c.cfg.Durable, err)
	}

	return &jsConsumer{cons: cons, logger: c.logger}, nil
}

// Publish sends raw bytes to a subject through JetStream. Used by the
// producer path to enqueue durable request messages.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishEvent sends raw bytes over core NATS, outside the stream.
// Notification events take this path: delivery is best-effort and an
// absent listener must not pile messages into the work queue.
func (c *Client) PublishEvent(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// jsConsumer adapts a jetstream.Consumer to the Consumer interface.
type jsConsumer struct {
	cons   jetstream.Consumer
	logger *slog.Logger
}

func (jc *jsConsumer) Pull(ctx context.Context, max int, maxWait time.Duration) ([]Message, error) {
	batch, err := jc.cons.Fetch(max, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	var msgs []Message
	for msg := range batch.Messages() {
		msgs = append(msgs, &jsMessage{msg: msg})
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		// Deliver what arrived; the caller decides whether a partial
		// batch is worth processing.
		jc.logger.Warn("fetch completed with error",
			slog.Int("received", len(msgs)),
			slog.String("error", err.Error()))
	}

	return msgs, nil
}

// jsMessage adapts a jetstream.Msg to the Message interface.
type jsMessage struct {
	msg jetstream.Msg
}

func (m *jsMessage) Data() []byte {
	return m.msg.Data()
}

func (m *jsMessage) Deliveries() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		// Metadata is only absent for non-JetStream messages; treat as
		// a first delivery.
		return 1
	}
	return int(meta.NumDelivered)
}

func (m *jsMessage) Ack() error {
	return m.msg.Ack()
}

func (m *jsMessage) Nak() error {
	return m.msg.Nak()
}
