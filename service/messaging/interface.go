package messaging

import (
	"context"
)

// Queue represents an abstract message queue for any payload type. The
// engine uses it as the single-producer/single-consumer handoff between a
// background reader and its coordinator.
type Queue[T any] interface {
	// Publish adds a new payload to the queue, blocking while it is full.
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single payload from the queue, blocking until one
	// is available or the context expires.
	Consume(ctx context.Context) (*T, error)

	// Size returns the number of buffered payloads.
	Size() int
}
