package store

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically deletes expired orders and connection entries.
// Without it, missed disconnect signals and old orders would accumulate
// in the store forever.
type Janitor struct {
	store    Store
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewJanitor creates a janitor sweeping the given store every interval.
func NewJanitor(s Store, interval time.Duration) *Janitor {
	return &Janitor{store: s, interval: interval}
}

// Start launches the background sweep loop. Call Stop to shut it down.
func (j *Janitor) Start() {
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	go j.loop()
	slog.Info("janitor started", "interval", j.interval)
}

// Stop shuts down the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.stop != nil {
		close(j.stop)
		<-j.done
		j.stop = nil
		j.done = nil
	}
}

func (j *Janitor) loop() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		slog.Warn("janitor sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("janitor removed expired rows", "count", n)
	}
}
