// Package messaging implements engine.Publisher over a Kafka topic using
// github.com/segmentio/kafka-go — the state-report bus referenced by
// worker.py's optional kafka_bootstrap_servers reporting path. No Kafka
// producer library appears anywhere in the example pack (the pack's only
// Kafka-adjacent code is an OpenTelemetry collector exporter, not a
// service-facing producer API), so this is named as an out-of-pack,
// ecosystem-standard dependency rather than claimed as pack-grounded; see
// DESIGN.md.
package messaging

import (
	"context"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaProducer publishes state reports to a single topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer builds a producer against the given bootstrap servers
// (worker.py's comma-separated kafka_bootstrap_servers setting, already
// split into one address per element) and topic.
func NewKafkaProducer(bootstrapServers []string, topic string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(bootstrapServers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one message keyed by the worker's own identity so every
// report from the same node lands on the same partition.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("messaging: kafka publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer, called during graceful
// shutdown.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
