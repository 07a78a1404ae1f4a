// Package kafka mirrors enriched contacts to a Kafka topic for downstream
// consumers such as loggers and award trackers.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/qso-map-service/internal/config"
	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/hub"
	"github.com/couchcryptid/qso-map-service/internal/observability"
)

// Pause applied after a failed write, doubled on each consecutive failure.
const (
	initialWriteBackoff = 100 * time.Millisecond
	maxWriteBackoff     = 5 * time.Second
)

// Attacher hands out hub subscriptions.
type Attacher interface {
	Attach() *hub.Subscription
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Mirror is a hub subscriber that produces every contact it receives to a
// Kafka topic. It obeys the same overflow rules as any other subscriber.
type Mirror struct {
	writer  messageWriter
	hub     Attacher
	topic   string
	logger  *slog.Logger
	metrics *observability.Metrics

	initialBackoff time.Duration
}

// NewMirror creates a Kafka producer for the configured topic.
func NewMirror(cfg *config.Config, h Attacher, logger *slog.Logger, metrics *observability.Metrics) *Mirror {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newMirror(w, cfg.KafkaTopic, h, logger, metrics)
}

func newMirror(w messageWriter, topic string, h Attacher, logger *slog.Logger, metrics *observability.Metrics) *Mirror {
	return &Mirror{
		writer:  w,
		hub:     h,
		topic:   topic,
		logger:  logger,
		metrics: metrics,

		initialBackoff: initialWriteBackoff,
	}
}

// Run attaches to the hub and mirrors contacts until the hub closes (nil) or
// ctx ends (ctx.Err()). A failed write is logged and the contact skipped;
// consecutive failures pause the mirror with exponential backoff.
func (m *Mirror) Run(ctx context.Context) error {
	sub := m.hub.Attach()
	defer sub.Close()
	m.logger.Info("kafka mirror started", "topic", m.topic, "subscriber", sub.ID().String())

	backoff := m.initialBackoff
	for {
		c, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(err, hub.ErrClosed) {
				m.logger.Info("hub closed, kafka mirror stopping")
				return nil
			}
			return err
		}

		msg, err := serializeToMessage(c, domain.Clock().Now())
		if err != nil {
			m.logger.Warn("serialize contact failed", "call", c.Call, "error", err)
			continue
		}
		if err := m.writer.WriteMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("kafka write failed, contact not mirrored",
				"call", c.Call,
				"topic", m.topic,
				"retry_in", backoff,
				"error", err,
			)
			if !retry.SleepWithContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = retry.NextBackoff(backoff, maxWriteBackoff)
			continue
		}
		backoff = m.initialBackoff
		m.metrics.KafkaMirrored.Inc()
	}
}

// Close flushes and closes the producer.
func (m *Mirror) Close() error {
	return m.writer.Close()
}

// serializeToMessage marshals a contact into a Kafka message keyed by callsign.
func serializeToMessage(c domain.EnrichedContact, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize contact: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(c.Call),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "band", Value: []byte(c.Band)},
			{Key: "published_at", Value: []byte(publishedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
