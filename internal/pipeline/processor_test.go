package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/snackwars/tallyd/internal/model"
	"github.com/snackwars/tallyd/internal/store"
	"github.com/snackwars/tallyd/internal/store/memory"
)

var testProducts = model.Products{"kinoko", "takenoko"}

// captureNotifier records every broadcast it receives.
type captureNotifier struct {
	mu        sync.Mutex
	snapshots []map[string]int64
	orders    []*model.Order
	fail      bool
}

func (c *captureNotifier) Broadcast(_ context.Context, snapshot map[string]int64, order *model.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("notification failure")
	}
	c.snapshots = append(c.snapshots, snapshot)
	c.orders = append(c.orders, order)
	return nil
}

func record(t *testing.T, o model.Order) []byte {
	t.Helper()
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestProcessBatch_EndToEnd(t *testing.T) {
	s := memory.New()
	n := &captureNotifier{}
	p := New(s, n, testProducts, 24*time.Hour)
	ctx := context.Background()

	err := p.ProcessBatch(ctx, [][]byte{
		record(t, model.Order{OrderID: "order_1", Product: "kinoko", Timestamp: model.NowISO()}),
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if got := n.snapshots[0]; got["kinoko"] != 1 || got["takenoko"] != 0 {
		t.Errorf("first broadcast = %v, want kinoko:1 takenoko:0", got)
	}

	err = p.ProcessBatch(ctx, [][]byte{
		record(t, model.Order{OrderID: "order_2", Product: "takenoko", Timestamp: model.NowISO()}),
		record(t, model.Order{OrderID: "order_3", Product: "takenoko", Timestamp: model.NowISO()}),
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	last := n.snapshots[len(n.snapshots)-1]
	if last["kinoko"] != 1 || last["takenoko"] != 2 {
		t.Errorf("final broadcast = %v, want kinoko:1 takenoko:2", last)
	}
	if len(n.orders) != 3 || n.orders[2].OrderID != "order_3" {
		t.Errorf("broadcasts carried wrong orders: %v", n.orders)
	}
}

func TestProcessBatch_MalformedRecordIsAllOrNothing(t *testing.T) {
	s := memory.New()
	n := &captureNotifier{}
	p := New(s, n, testProducts, 24*time.Hour)

	batch := [][]byte{
		record(t, model.Order{OrderID: "order_1", Product: "kinoko"}),
		record(t, model.Order{OrderID: "order_2", Product: "kinoko"}),
		record(t, model.Order{OrderID: "order_3", Product: "takenoko"}),
		[]byte(`{not json`),
	}
	if err := p.ProcessBatch(context.Background(), batch); err == nil {
		t.Fatal("expected decode error")
	}

	counts, _ := s.TallySnapshot(context.Background())
	if len(counts) != 0 {
		t.Errorf("counts = %v, want none applied (strict batch atomicity)", counts)
	}
	if s.OrderCount() != 0 {
		t.Errorf("orders persisted = %d, want 0", s.OrderCount())
	}
	if len(n.snapshots) != 0 {
		t.Errorf("broadcasts = %d, want 0", len(n.snapshots))
	}
}

func TestProcessBatch_UnknownProductFailsBatch(t *testing.T) {
	p := New(memory.New(), &captureNotifier{}, testProducts, 24*time.Hour)
	batch := [][]byte{
		record(t, model.Order{OrderID: "order_1", Product: "chocoball"}),
	}
	if err := p.ProcessBatch(context.Background(), batch); err == nil {
		t.Fatal("expected error for unknown product")
	}
}

// unavailableStore fails IncrementTally with a transient store error.
type unavailableStore struct {
	store.Store
}

func (u unavailableStore) IncrementTally(context.Context, string) (int64, error) {
	return 0, model.ErrStoreUnavailable
}

func TestProcessBatch_StoreFailurePropagates(t *testing.T) {
	n := &captureNotifier{}
	p := New(unavailableStore{memory.New()}, n, testProducts, 24*time.Hour)

	batch := [][]byte{record(t, model.Order{OrderID: "order_1", Product: "kinoko"})}
	err := p.ProcessBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("error %v is not ErrStoreUnavailable", err)
	}
	if len(n.snapshots) != 0 {
		t.Error("broadcast happened despite failed increment")
	}
}

func TestProcessBatch_NotificationFailureDoesNotFailBatch(t *testing.T) {
	s := memory.New()
	n := &captureNotifier{fail: true}
	p := New(s, n, testProducts, 24*time.Hour)

	batch := [][]byte{record(t, model.Order{OrderID: "order_1", Product: "kinoko"})}
	if err := p.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatalf("ProcessBatch: %v — notification failure must not fail the batch", err)
	}

	counts, _ := s.TallySnapshot(context.Background())
	if counts["kinoko"] != 1 {
		t.Errorf("count = %d, accounting must commit regardless of notification", counts["kinoko"])
	}
}

func TestProcessBatch_RedeliveryDoubleCounts(t *testing.T) {
	// At-least-once semantics: a redriven record increments again even
	// though the order row itself is saved only once.
	s := memory.New()
	p := New(s, &captureNotifier{}, testProducts, 24*time.Hour)
	batch := [][]byte{record(t, model.Order{OrderID: "order_1", Product: "kinoko"})}

	for i := 0; i < 2; i++ {
		if err := p.ProcessBatch(context.Background(), batch); err != nil {
			t.Fatalf("ProcessBatch #%d: %v", i, err)
		}
	}
	counts, _ := s.TallySnapshot(context.Background())
	if counts["kinoko"] != 2 {
		t.Errorf("count = %d, want 2 (documented double-count on redrive)", counts["kinoko"])
	}
	if s.OrderCount() != 1 {
		t.Errorf("order rows = %d, want 1 (idempotent persist)", s.OrderCount())
	}
}
