// Package idgen generates the two identifier shapes used by tallyd:
// short nanoid-backed connection IDs and timestamped order IDs.
package idgen

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// ConnPrefix is prepended to every generated connection ID.
var ConnPrefix = "conn_"

// Alphabet defines the character set used for the random portion of
// connection IDs.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters in a connection ID (excluding
// the prefix).
var Length = 12

// NewConnectionID returns a new opaque connection identifier assigned to a
// viewer when its socket is accepted.
func NewConnectionID() (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return ConnPrefix + id, nil
}

// NewOrderID returns a producer-assigned order identifier of the form
// order_<unix-millis>_<8 random hex chars>.
func NewOrderID() string {
	millis := time.Now().UTC().UnixMilli()
	return fmt.Sprintf("order_%d_%s", millis, uuid.NewString()[:8])
}
