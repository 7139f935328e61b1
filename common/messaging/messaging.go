// Package messaging defines the broker-neutral publishing contract used by
// the downstream sinks.
package messaging

import (
	"context"
	"time"
)

// Message is a single payload published to a subject.
type Message struct {
	Subject string
	Data    []byte

	// Metadata is carried as message headers.
	Metadata map[string]string

	Timestamp time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to subject, fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Client is a Publisher that can report its connection state and drain.
type Client interface {
	Publisher

	// Drain flushes pending messages and closes the connection.
	Drain() error

	IsConnected() bool
}
