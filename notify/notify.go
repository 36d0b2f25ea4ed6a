/*
Package notify delivers incentive notifications.

Two dispatchers implement incentive.Notifier:

  KafkaDispatcher  publishes each notification as a JSON message keyed by
                   calculation id, so every event for one calculation lands
                   on the same partition in commit order
  LogDispatcher    writes notifications to the structured log; used when
                   no broker is configured and in local development

Fanout combines several dispatchers and reports every failure.

The engine calls Notify after a change has committed and only logs errors,
so a broker outage never blocks an approval.
*/
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/incentive-engine/incentive"
)

// DefaultTopic receives incentive notifications when no topic is configured.
const DefaultTopic = "incentive.notifications"

// messageWriter is the subset of *kafka.Writer the dispatcher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// =============================================================================
// KAFKA
// =============================================================================

// KafkaDispatcher publishes notifications to a Kafka topic.
type KafkaDispatcher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
}

// NewKafkaDispatcher wraps a writer. timeout bounds each publish; zero means 5s.
func NewKafkaDispatcher(w messageWriter, timeout time.Duration) *KafkaDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaDispatcher{writer: w, timeout: timeout}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, n incentive.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(n.CalculationID),
		Value: body,
		Time:  n.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(n.Event)},
			{Key: "recipient", Value: []byte(n.RecipientID)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for calculation %s: %w", n.Event, n.CalculationID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// =============================================================================
// LOG
// =============================================================================

// LogDispatcher writes notifications to a zap logger.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{log: log.Named("notify")}
}

func (d *LogDispatcher) Notify(_ context.Context, n incentive.Notification) error {
	fields := []zap.Field{
		zap.String("event", string(n.Event)),
		zap.String("calculation_id", n.CalculationID),
		zap.String("recipient", n.RecipientID),
		zap.Time("at", n.At),
	}
	if n.ApprovalID != "" {
		fields = append(fields, zap.String("approval_id", n.ApprovalID), zap.Int("level", n.Level))
	}
	if len(n.Payload) > 0 {
		fields = append(fields, zap.Any("payload", n.Payload))
	}
	d.log.Info("notification", fields...)
	return nil
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout sends every notification to all dispatchers, even if one fails.
type Fanout []incentive.Notifier

func (f Fanout) Notify(ctx context.Context, n incentive.Notification) error {
	var errs []error
	for _, d := range f {
		if err := d.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ incentive.Notifier = (*KafkaDispatcher)(nil)
	_ incentive.Notifier = (*LogDispatcher)(nil)
	_ incentive.Notifier = Fanout(nil)
)
