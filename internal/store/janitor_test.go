package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snackwars/tallyd/internal/model"
)

// countingStore records PurgeExpired calls; everything else is unused.
type countingStore struct {
	purges atomic.Int64
}

func (c *countingStore) SaveOrder(context.Context, *model.Order, time.Time) error { return nil }
func (c *countingStore) IncrementTally(context.Context, string) (int64, error)    { return 0, nil }
func (c *countingStore) TallySnapshot(context.Context) (map[string]int64, error)  { return nil, nil }
func (c *countingStore) PutConnection(context.Context, string, time.Time, time.Time) error {
	return nil
}
func (c *countingStore) DeleteConnection(context.Context, string) error        { return nil }
func (c *countingStore) ListConnections(context.Context, time.Time) ([]string, error) {
	return nil, nil
}
func (c *countingStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	c.purges.Add(1)
	return 1, nil
}
func (c *countingStore) Close() error { return nil }

func TestJanitor_SweepsOnInterval(t *testing.T) {
	cs := &countingStore{}
	j := NewJanitor(cs, 10*time.Millisecond)
	j.Start()
	defer j.Stop()

	deadline := time.After(2 * time.Second)
	for cs.purges.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("janitor swept %d times, want at least 2", cs.purges.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestJanitor_StopIsIdempotent(t *testing.T) {
	j := NewJanitor(&countingStore{}, time.Hour)
	j.Start()
	j.Stop()
	j.Stop() // second Stop must not panic or block
}
