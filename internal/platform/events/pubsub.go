package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes booking events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	client  *pubsub.Client
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a publisher for topic. The client, when provided, is closed
// together with the publisher.
func NewPubSubPublisher(topic *pubsub.Topic, client *pubsub.Client) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, client: client, marshal: json.Marshal}, nil
}

// Publish sends the event and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes(event),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
