// Package model defines the domain types shared across the tallyd pipeline:
// purchase orders, tally snapshots, and the JSON messages pushed to viewers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Location is the optional geo origin attached to an order by the producer.
type Location struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	City string  `json:"city,omitempty"`
}

// Order is a single purchase event as it travels on the stream.
// Orders are immutable once created and are retained for the order TTL.
type Order struct {
	OrderID   string    `json:"orderId"`
	Product   string    `json:"product"`
	Timestamp string    `json:"timestamp"` // ISO-8601, producer-assigned
	UserID    string    `json:"userId"`
	Location  *Location `json:"location,omitempty"`
}

// Validate checks that the order is well formed against the configured
// product set. A failing order makes its whole delivery batch undecodable.
func (o *Order) Validate(products Products) error {
	if o.OrderID == "" {
		return fmt.Errorf("order has no orderId")
	}
	if !products.Valid(o.Product) {
		return fmt.Errorf("unknown product %q", o.Product)
	}
	return nil
}

// Products is the configured set of product keys being tallied.
type Products []string

// ParseProducts splits a comma-separated product list from configuration.
func ParseProducts(s string) (Products, error) {
	var ps Products
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ps = append(ps, p)
	}
	if len(ps) < 2 {
		return nil, fmt.Errorf("need at least two products, got %q", s)
	}
	return ps, nil
}

// Valid reports whether p is one of the configured products.
func (ps Products) Valid(p string) bool {
	for _, known := range ps {
		if known == p {
			return true
		}
	}
	return false
}

// FillSnapshot returns counts with every configured product present,
// defaulting absent products to 0. Viewers always see the full key set,
// even before the first order for a product arrives.
func (ps Products) FillSnapshot(counts map[string]int64) map[string]int64 {
	full := make(map[string]int64, len(ps))
	for _, p := range ps {
		full[p] = counts[p]
	}
	return full
}

// NowISO returns the current UTC time in the ISO-8601 format used on the
// wire by both orders and update messages.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
