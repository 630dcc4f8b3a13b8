package events

import "context"

// NoopPublisher discards session lifecycle events. The daemon uses it when
// no event bus URL is configured.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error { return nil }
