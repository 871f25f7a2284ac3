package archive

import (
	"context"
	"time"

	"github.com/farebid/dispatch/internal/events"
	"github.com/segmentio/kafka-go"
)

// Producer publishes terminal-state events to Kafka for downstream
// consumers (dashboards, settlement reconciliation, analytics).
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for the given brokers and topic
func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

// Publish writes one event keyed by entity id
func (p *Producer) Publish(ctx context.Context, key string, ev events.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: ev.Encode(),
	})
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
