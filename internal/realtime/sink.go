// README: Notification sinks: local connection fan-out and the Kafka tracking stream.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink publishes a tracking update somewhere. Errors are logged by the
// notifier and never reach the caller of the domain operation.
type Sink interface {
	Name() string
	PublishTracking(ctx context.Context, u TrackingUpdate) error
}

type RegistrySink struct {
	registry *Registry
}

func NewRegistrySink(r *Registry) *RegistrySink {
	return &RegistrySink{registry: r}
}

func (s *RegistrySink) Name() string { return "registry" }

// PublishTracking never fails: offline parties simply miss the update.
func (s *RegistrySink) PublishTracking(_ context.Context, u TrackingUpdate) error {
	env := Envelope{Event: EventOrderTracking, Data: u}
	for _, g := range u.Groups() {
		s.registry.EmitToGroup(g, env)
	}
	return nil
}

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DefaultPublishTimeout bounds a single tracking write to the broker.
const DefaultPublishTimeout = 2 * time.Second

type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
}

func NewKafkaSink(w MessageWriter, timeout time.Duration) *KafkaSink {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &KafkaSink{writer: w, timeout: timeout}
}

func (s *KafkaSink) Name() string { return "kafka" }

// PublishTracking keys by order id so one order's updates stay ordered in a
// partition. The write runs after the order is committed, so it is detached
// from the caller's cancellation and bounded by the sink timeout instead.
func (s *KafkaSink) PublishTracking(ctx context.Context, u TrackingUpdate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	value, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal tracking update: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(u.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventOrderTracking)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", EventOrderTracking, err)
	}
	return nil
}
