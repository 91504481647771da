package database

import "context"

// DatabaseService is the durable image store. Implementations create their
// schema lazily on first use and are safe for concurrent use.
type DatabaseService interface {
	// Put inserts or replaces the record stored under id.
	Put(ctx context.Context, id string, binary []byte) error
	// GetAll returns every stored record in no particular order.
	GetAll(ctx context.Context) ([]*Image, error)
	// Get returns the record stored under id, or nil if there is none.
	Get(ctx context.Context, id string) (*Image, error)
	// Delete removes the record stored under id. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error
	Close() error
}
