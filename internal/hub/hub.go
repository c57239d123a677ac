// Package hub owns the live viewer WebSocket connections. It registers and
// unregisters connections in the store-backed registry, seeds new viewers
// with the current tally, and implements the per-connection send used by
// the fanout broadcaster.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/snackwars/tallyd/internal/fanout"
	"github.com/snackwars/tallyd/internal/idgen"
	"github.com/snackwars/tallyd/internal/model"
	"github.com/snackwars/tallyd/internal/store"
)

// viewerConn serializes writes to one peer. Broadcast deliveries and
// snapshot sends may race on the same socket.
type viewerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// Hub is the connection lifecycle handler and the broadcaster's Sender.
type Hub struct {
	store       store.Store
	products    model.Products
	connTTL     time.Duration
	sendTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]*viewerConn
}

var _ fanout.Sender = (*Hub)(nil)

func New(s store.Store, products model.Products, connTTL, sendTimeout time.Duration) *Hub {
	return &Hub{
		store:       s,
		products:    products,
		connTTL:     connTTL,
		sendTimeout: sendTimeout,
		conns:       make(map[string]*viewerConn),
	}
}

// HandleWS upgrades the request, registers the connection, seeds it with
// the current tally, and spawns its read loop.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := idgen.NewConnectionID()
	if err != nil {
		slog.Error("connection id generation failed", "error", err)
		conn.Close()
		return
	}

	h.mu.Lock()
	h.conns[id] = &viewerConn{conn: conn}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()

	now := time.Now()
	if err := h.store.PutConnection(ctx, id, now, now.Add(h.connTTL)); err != nil {
		slog.Error("connection registration failed", "connection_id", id, "error", err)
		h.drop(id)
		return
	}
	slog.Info("viewer connected", "connection_id", id)

	// Seed the new viewer. Losing the initial snapshot does not close the
	// connection; the next broadcast catches it up.
	h.sendSnapshot(ctx, id)

	go h.readLoop(id, conn)
}

// clientRequest is the only message viewers are expected to send.
type clientRequest struct {
	Action string `json:"action"`
}

func (h *Hub) readLoop(id string, conn net.Conn) {
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			h.disconnect(id)
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Debug("ignoring malformed client message", "connection_id", id)
			continue
		}
		switch req.Action {
		case "getCurrentData":
			ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
			h.sendSnapshot(ctx, id)
			cancel()
		default:
			slog.Debug("unknown client action", "connection_id", id, "action", req.Action)
		}
	}
}

// sendSnapshot delivers the current tally to a single connection. Failures
// are logged and swallowed: the viewer stays connected and receives the
// next broadcast regardless.
func (h *Hub) sendSnapshot(ctx context.Context, id string) {
	counts, err := h.store.TallySnapshot(ctx)
	if err != nil {
		slog.Warn("snapshot read failed", "connection_id", id, "error", err)
		return
	}
	data, err := json.Marshal(model.NewUpdate(h.products.FillSnapshot(counts), nil))
	if err != nil {
		slog.Warn("snapshot marshal failed", "connection_id", id, "error", err)
		return
	}
	if err := h.Send(ctx, id, data); err != nil {
		slog.Warn("snapshot send failed", "connection_id", id, "error", err)
	}
}

// Send writes one text frame to the identified connection under the
// deadline carried by ctx. An unknown id or a hard socket failure reports
// model.ErrConnectionGone; a write timeout is transient and leaves the
// connection open.
func (h *Hub) Send(ctx context.Context, connID string, data []byte) error {
	h.mu.RLock()
	vc, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s: %w", connID, model.ErrConnectionGone)
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	deadline := time.Now().Add(h.sendTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := vc.conn.SetWriteDeadline(deadline); err != nil {
		h.drop(connID)
		return fmt.Errorf("connection %s: %w", connID, model.ErrConnectionGone)
	}

	err := wsutil.WriteServerText(vc.conn, data)
	if err == nil {
		return nil
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("write to %s timed out: %w", connID, err)
	}
	// Hard write failure: the peer is gone.
	h.drop(connID)
	return fmt.Errorf("connection %s: %w", connID, model.ErrConnectionGone)
}

// disconnect handles a disconnect signal from the read loop: best-effort
// cleanup of both the live socket and the registry entry.
func (h *Hub) disconnect(id string) {
	h.drop(id)

	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()
	if err := h.store.DeleteConnection(ctx, id); err != nil {
		slog.Warn("connection deregistration failed", "connection_id", id, "error", err)
	}
	slog.Info("viewer disconnected", "connection_id", id)
}

// drop removes the live socket, if any, without touching the registry.
func (h *Hub) drop(id string) {
	h.mu.Lock()
	vc, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	if ok {
		vc.conn.Close()
	}
}

// ClientCount returns the number of live sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes every live socket. Registry entries are left to their TTL;
// in-flight deliveries fail as Gone or transient and are not retried.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*viewerConn)
	h.mu.Unlock()
	for _, vc := range conns {
		vc.conn.Close()
	}
}
