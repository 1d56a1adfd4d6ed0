// Package realtime pushes alert payloads to subscribers over pub/sub
// channels. Delivery is best-effort, at-most-once.
package realtime

import "context"

// Publisher publishes a JSON-serializable payload to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
	Close() error
}

// AccountChannel is the channel addressed to everything an account owns.
func AccountChannel(accountID string) string { return "account:" + accountID }

// ProjectChannel is the channel addressed to one project's watchers.
func ProjectChannel(projectID string) string { return "project:" + projectID }

type noopPublisher struct{}

// NewNoop returns a publisher that drops everything. Used when no Redis
// address is configured.
func NewNoop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

func (noopPublisher) Close() error { return nil }
