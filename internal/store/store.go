// Package store defines the persistence interface shared by the pipeline,
// the fanout broadcaster, and the connection lifecycle handler.
package store

import (
	"context"
	"time"

	"github.com/snackwars/tallyd/internal/model"
)

// Store is the persistence interface for tallyd. Implementations must be
// safe for concurrent use: multiple consumer workers increment tallies
// while connect/disconnect signals mutate the connection registry.
type Store interface {
	// SaveOrder persists an order record until expiresAt. Saving an order
	// that already exists is a no-op, not an error — the stream may
	// redeliver records.
	SaveOrder(ctx context.Context, o *model.Order, expiresAt time.Time) error

	// IncrementTally atomically adds 1 to the counter for product, creating
	// it first if absent, and returns the post-increment value. The
	// read-modify-write is a single atomic operation per key.
	IncrementTally(ctx context.Context, product string) (int64, error)

	// TallySnapshot returns the current count for every product that has
	// ever been incremented. Callers fill absent configured products with 0.
	TallySnapshot(ctx context.Context) (map[string]int64, error)

	// PutConnection inserts or overwrites a connection registry entry.
	PutConnection(ctx context.Context, id string, joinedAt, expiresAt time.Time) error

	// DeleteConnection removes a registry entry. Deleting an absent entry
	// is a no-op — disconnect signals may arrive for already-pruned
	// connections.
	DeleteConnection(ctx context.Context, id string) error

	// ListConnections returns the ids of all registered entries that have
	// not expired as of now. Expired entries are excluded lazily at read
	// time; PurgeExpired removes them for good.
	ListConnections(ctx context.Context, now time.Time) ([]string, error)

	// PurgeExpired deletes orders and connection entries whose TTL has
	// passed, returning the number of rows removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	Close() error
}
