package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes booking events to a Kafka topic keyed by booking id so all events of
// one booking land on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// NewKafkaPublisher creates a synchronous writer requiring acknowledgement from all replicas.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka publisher: brokers are required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}}, nil
}

func newKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish writes one message.
func (k *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if k == nil || k.writer == nil {
		return errors.New("kafka publisher: not initialised")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := attributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventId", "eventType", "bookingId"} {
		if v, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(v)})
		}
	}
	msg := kafka.Message{Key: []byte(event.BookingID), Value: value, Headers: headers, Time: event.OccurredAt}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaPublisher) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
