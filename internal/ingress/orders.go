package ingress

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/snackwars/tallyd/internal/idgen"
	"github.com/snackwars/tallyd/internal/model"
)

// createOrderRequest is the producer-facing order body. Timestamp and
// location are optional; product must be one of the configured keys.
type createOrderRequest struct {
	Product   string          `json:"product"`
	Timestamp string          `json:"timestamp"`
	Location  *model.Location `json:"location"`
}

type createOrderResponse struct {
	Success        bool            `json:"success"`
	OrderID        string          `json:"orderId"`
	SequenceNumber uint64          `json:"sequenceNumber"`
	Location       *model.Location `json:"location,omitempty"`
}

// handleCreateOrder validates the request, assigns an order id, and emits
// the order onto the stream keyed by product.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !s.products.Valid(req.Product) {
		writeError(w, http.StatusBadRequest, "Invalid product type")
		return
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = model.NowISO()
	}
	order := &model.Order{
		OrderID:   idgen.NewOrderID(),
		Product:   req.Product,
		Timestamp: timestamp,
		UserID:    userID(r),
		Location:  req.Location,
	}

	seq, err := s.publisher.PublishOrder(r.Context(), order)
	if err != nil {
		slog.Error("order publish failed", "order_id", order.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	slog.Info("order accepted", "order_id", order.OrderID, "product", order.Product, "sequence", seq)

	writeJSON(w, http.StatusOK, createOrderResponse{
		Success:        true,
		OrderID:        order.OrderID,
		SequenceNumber: seq,
		Location:       order.Location,
	})
}

// handleOrderPreflight answers CORS preflight with the fixed header set.
func (s *Server) handleOrderPreflight(w http.ResponseWriter, _ *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// userID identifies the producer. Without viewer authentication the best
// available identity is the client-supplied header, else "anonymous".
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return "anonymous"
}

// setCORSHeaders applies the fixed static CORS set on order endpoints.
func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
