// README: Kafka writer for outbound domain event streams.
package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns nil when no brokers are configured. Callers bound
// each write with their own context; WriteTimeout caps the network I/O.
func NewKafkaWriter(brokers []string, topic string, writeTimeout time.Duration) *kafka.Writer {
	if len(brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
		Async:        false,
	}
}
