package crawler

import (
	"context"
	"io"
	"time"
)

// RecordStore persists records, deduplicated by URL.
type RecordStore interface {
	// Save inserts the record unless a row with the same URL exists.
	// It reports whether a new row was written.
	Save(ctx context.Context, record Record) (bool, error)
	Exists(ctx context.Context, url string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes stored-record events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
