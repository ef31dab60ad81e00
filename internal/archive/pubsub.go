package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes submitted events to a topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a topic backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("archive: pubsub topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish sends rec as JSON and waits for the server-assigned message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, rec Record) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("archive: publisher not initialised")
	}
	data, err := p.marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal submission event: %w", err)
	}

	attrs := map[string]string{"type": EventSubmitted}
	setAttr(attrs, "submissionId", rec.ID)
	setAttr(attrs, "service", rec.Service)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish submission event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
