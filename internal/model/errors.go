package model

import "errors"

// ErrStoreUnavailable marks a transient failure of the backing store.
// Batch processors propagate it so the transport redrives the batch.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrConnectionGone marks a delivery failure where the peer is confirmed
// terminated. The broadcaster prunes such connections from the registry;
// this is steady-state behavior, not an error to surface.
var ErrConnectionGone = errors.New("connection gone")
