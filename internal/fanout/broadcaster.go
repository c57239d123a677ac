// Package fanout delivers tally updates to every registered viewer
// connection. Deliveries are independent: a dead or slow peer never blocks
// the rest, and peers that report Gone are pruned from the registry.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snackwars/tallyd/internal/model"
)

// Sender writes one message to one connection. Implementations return
// model.ErrConnectionGone when the peer is confirmed terminated; any other
// error is treated as transient and the connection stays registered.
type Sender interface {
	Send(ctx context.Context, connID string, data []byte) error
}

// Registry is the slice of the store the broadcaster needs: enumerate live
// connections and prune dead ones.
type Registry interface {
	ListConnections(ctx context.Context, now time.Time) ([]string, error)
	DeleteConnection(ctx context.Context, id string) error
}

// Broadcaster fans one serialized update out to every registry entry.
type Broadcaster struct {
	registry    Registry
	sender      Sender
	sendTimeout time.Duration
}

func New(registry Registry, sender Sender, sendTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		registry:    registry,
		sender:      sender,
		sendTimeout: sendTimeout,
	}
}

// Broadcast serializes one update message (snapshot plus the optional
// triggering order) and delivers an identical copy to every connection
// registered at invocation time. Each delivery runs concurrently under its
// own timeout. The returned error covers only the broadcast step itself
// (registry enumeration, marshaling); per-connection failures are handled
// here and never escalate.
func (b *Broadcaster) Broadcast(ctx context.Context, snapshot map[string]int64, order *model.Order) error {
	data, err := json.Marshal(model.NewUpdate(snapshot, order))
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}

	ids, err := b.registry.ListConnections(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			b.deliver(ctx, connID, data)
		}(id)
	}
	wg.Wait()
	return nil
}

// deliver sends data to one connection under the per-connection timeout and
// classifies the outcome. Gone peers are unregistered; transient failures
// leave the connection registered for the next broadcast.
func (b *Broadcaster) deliver(ctx context.Context, connID string, data []byte) {
	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()

	err := b.sender.Send(sendCtx, connID, data)
	if err == nil {
		return
	}
	if errors.Is(err, model.ErrConnectionGone) {
		slog.Info("removing stale connection", "connection_id", connID)
		if err := b.registry.DeleteConnection(ctx, connID); err != nil {
			slog.Warn("failed to prune connection", "connection_id", connID, "error", err)
		}
		return
	}
	slog.Warn("send failed, connection stays registered", "connection_id", connID, "error", err)
}
