package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/st-keller/librefollow/component"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes components to a topic keyed by component ID.
type Kafka struct {
	writer kafkaWriter
}

// NewKafka creates a writer for brokers/topic. Connections are made lazily on
// the first write.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic required")
	}
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

// Publish writes c as one message.
func (k *Kafka) Publish(ctx context.Context, c component.Component) error {
	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal component: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.ID),
		Value: value,
		Time:  c.Time,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(c.Type)},
			{Key: "checksum", Value: []byte(c.Checksum)},
		},
	})
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
