package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Outbox hands out batches of unpublished events. Dispatch locks up to limit
// events, calls publish and marks them published only if publish succeeds.
// It returns the number of events published.
type Outbox interface {
	Dispatch(ctx context.Context, limit int, publish func(ctx context.Context, evs []Event) error) (int, error)
}

// Writer is the subset of *kafka.Writer the relay uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer for topic that keys messages by sale id.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func (c *RelayConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// Relay moves outbox events to Kafka with at-least-once delivery.
type Relay struct {
	outbox Outbox
	writer Writer
	cfg    RelayConfig
}

// NewRelay creates a relay from outbox to writer.
func NewRelay(outbox Outbox, writer Writer, cfg RelayConfig) *Relay {
	cfg.setDefaults()
	return &Relay{outbox: outbox, writer: writer, cfg: cfg}
}

// Run polls until ctx is canceled. Full batches are followed immediately by
// another poll.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("relay")
	lg.Info("Outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-timer.C:
		}

		n, err := r.Flush(ctx)
		if err != nil && ctx.Err() == nil {
			lg.Warn("Outbox relay flush failed", zap.Error(err))
		}
		if n == r.cfg.BatchSize {
			timer.Reset(0)
			continue
		}
		timer.Reset(r.cfg.PollInterval)
	}
}

// Flush publishes one batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	n, err := r.outbox.Dispatch(ctx, r.cfg.BatchSize, r.publish)
	if err != nil {
		return 0, errors.Wrap(err, "dispatch outbox")
	}
	return n, nil
}

func (r *Relay) publish(ctx context.Context, evs []Event) error {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.SaleID),
			Value: ev.Payload,
			Time:  ev.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}
