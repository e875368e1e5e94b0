// Package feed is the client side of the hosted message collection: an
// ordered, push-based subscription plus single-document append.
package feed

import (
	"context"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
)

// RawDocument is a document as the store delivers it, before normalization.
type RawDocument struct {
	ID   string
	Data map[string]any
}

// BatchHandler receives the full current collection, newest first, every time
// it changes.
type BatchHandler func(docs []RawDocument)

// ErrorHandler receives delivery failures of a live subscription.
type ErrorHandler func(err error)

type Subscription interface {
	// Cancel releases the listener. It does not wait for an in-flight
	// delivery and is safe to call more than once.
	Cancel()
}

type Client interface {
	Subscribe(ctx context.Context, onBatch BatchHandler, onErr ErrorHandler) (Subscription, error)
	// Append stores one message and returns the server-assigned id. The ID
	// field of msg is ignored.
	Append(ctx context.Context, msg models.Message) (string, error)
}

// EventPublisher is notified after a successful append.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, msg models.Message) error
}
