// Package pipeline turns raw stream records into persisted orders, tally
// increments, and viewer notifications.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/snackwars/tallyd/internal/model"
	"github.com/snackwars/tallyd/internal/store"
)

// Notifier pushes a tally snapshot (and the triggering order) to viewers.
// Errors are notification-side only and never roll back accounting.
type Notifier interface {
	Broadcast(ctx context.Context, snapshot map[string]int64, order *model.Order) error
}

// Processor applies one delivery batch at a time. Batches are strict: every
// record is decoded and validated before any side effect, so a malformed
// record leaves the whole batch unapplied and the transport redrives it.
// Store failures mid-batch also abort and redrive; the records already
// applied may then be counted again — accepted at-least-once behavior.
type Processor struct {
	store    store.Store
	notifier Notifier
	products model.Products
	orderTTL time.Duration
}

func New(s store.Store, n Notifier, products model.Products, orderTTL time.Duration) *Processor {
	return &Processor{
		store:    s,
		notifier: n,
		products: products,
		orderTTL: orderTTL,
	}
}

// ProcessBatch handles one batch of raw order records in arrival order.
func (p *Processor) ProcessBatch(ctx context.Context, records [][]byte) error {
	orders, err := p.decodeAll(records)
	if err != nil {
		return err
	}

	for _, o := range orders {
		if err := p.store.SaveOrder(ctx, o, time.Now().Add(p.orderTTL)); err != nil {
			return fmt.Errorf("persist order %s: %w", o.OrderID, err)
		}
		count, err := p.store.IncrementTally(ctx, o.Product)
		if err != nil {
			return fmt.Errorf("increment %s: %w", o.Product, err)
		}
		slog.Debug("order applied", "order_id", o.OrderID, "product", o.Product, "count", count)

		p.notify(ctx, o)
	}
	return nil
}

// decodeAll decodes and validates every record up front. One bad record
// fails the whole batch with no side effects.
func (p *Processor) decodeAll(records [][]byte) ([]*model.Order, error) {
	orders := make([]*model.Order, 0, len(records))
	for i, rec := range records {
		var o model.Order
		if err := json.Unmarshal(rec, &o); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		if err := o.Validate(p.products); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// notify reads the snapshot and broadcasts it with the triggering order.
// The order's persist and increment already committed, so any failure here
// is logged and swallowed; the next event's broadcast supersedes this one.
func (p *Processor) notify(ctx context.Context, o *model.Order) {
	counts, err := p.store.TallySnapshot(ctx)
	if err != nil {
		slog.Warn("snapshot for notification failed", "order_id", o.OrderID, "error", err)
		return
	}
	if err := p.notifier.Broadcast(ctx, p.products.FillSnapshot(counts), o); err != nil {
		slog.Warn("broadcast failed", "order_id", o.OrderID, "error", err)
	}
}
