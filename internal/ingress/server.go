// Package ingress is the HTTP edge: it accepts purchase orders and puts
// them on the stream, serves the viewer WebSocket endpoint, and answers
// health checks.
package ingress

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snackwars/tallyd/internal/model"
	"github.com/snackwars/tallyd/internal/stream"
)

// Server holds the ingress dependencies.
type Server struct {
	publisher stream.Publisher
	products  model.Products
}

// NewRouter builds the HTTP routes. wsHandler serves the viewer WebSocket
// endpoint; it lives in the hub package and is mounted here so the process
// exposes a single listener.
func NewRouter(publisher stream.Publisher, products model.Products, wsHandler http.HandlerFunc) http.Handler {
	s := &Server{publisher: publisher, products: products}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/orders", s.handleCreateOrder)
	r.Options("/orders", s.handleOrderPreflight)
	r.Get("/ws", wsHandler)
	r.Get("/healthz", s.handleHealth)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
