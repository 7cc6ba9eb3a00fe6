package ports

import (
	"context"
	"time"
)

// QueueHandle identifies an opened queue. URL is what producers pass to Send.
type QueueHandle struct {
	Name string
	URL  string
}

// Message is one leased delivery. ReceiptHandle is only valid for the
// current lease; a redelivery carries a different one.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
	ReceiveCount  int
}

// Queue is an at-least-once work queue with visibility timeouts.
type Queue interface {
	CreateOrOpen(ctx context.Context, name string) (QueueHandle, error)

	// Receive returns up to max messages, hiding each from other consumers
	// for visibility. It waits up to wait for at least one message.
	Receive(ctx context.Context, q QueueHandle, max int, visibility, wait time.Duration) ([]Message, error)

	ExtendVisibility(ctx context.Context, q QueueHandle, receipt string, timeout time.Duration) error
	Delete(ctx context.Context, q QueueHandle, receipt string) error

	// Send enqueues body on the queue at queueURL and returns the message ID.
	Send(ctx context.Context, queueURL string, body []byte) (string, error)
}
