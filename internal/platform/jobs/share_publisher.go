package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/nitu-designer/lehangas/internal/domain"
)

// PubSubSharePublisher publishes share analytics events to a Pub/Sub topic.
type PubSubSharePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubSharePublisher constructs a Pub/Sub backed share event publisher.
func NewPubSubSharePublisher(topic *pubsub.Topic) (*PubSubSharePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub share publisher: topic is required")
	}
	return &PubSubSharePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishShareEvent sends the event and waits for the server to acknowledge it.
func (p *PubSubSharePublisher) PublishShareEvent(ctx context.Context, event domain.ShareEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub share publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal share event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "kind", string(event.Kind))
	attrs["items"] = strconv.Itoa(len(event.Keys))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish share event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubSharePublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
