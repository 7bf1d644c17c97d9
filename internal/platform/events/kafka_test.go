package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherKeysByBooking(t *testing.T) {
	fw := &fakeKafkaWriter{}
	publisher := newKafkaPublisherWith(fw)

	event := New(TypeBookingCancelled, "100007", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), nil)
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(fw.msgs))
	}
	msg := fw.msgs[0]
	if string(msg.Key) != "100007" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeBookingCancelled {
		t.Fatalf("unexpected type %q", decoded.Type)
	}
	if len(msg.Headers) != 3 || msg.Headers[1].Key != "eventType" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	if err := publisher.Close(); err != nil || !fw.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisherWith(&fakeKafkaWriter{err: boom})
	err := publisher.Publish(context.Background(), New(TypeBookingCreated, "1", time.Time{}, nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	if _, err := NewKafkaPublisher([]string{" ", ""}, "booking-events"); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Fatalf("expected error without topic")
	}
}
