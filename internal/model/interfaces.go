package model

import (
	"context"
)

// Fetcher obtains the raw accounting feed text from the router.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Writer defines a generic interface for persisting one cycle's traffic batch.
type Writer interface {
	// Name identifies the writer type in logs.
	Name() string

	// Write persists the whole batch and returns how many points the store accepted.
	// A non-nil error means the batch should be considered not written.
	Write(ctx context.Context, batch TrafficBatch) (int, error)

	// Close releases the underlying connection.
	Close() error
}

// Publisher announces a written cycle to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, batch TrafficBatch) error
	Close()
}

// CycleObserver is notified after every tick of the orchestrator, successful or not.
type CycleObserver interface {
	ObserveCycle(result CycleResult)
}
