package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// fetchWait bounds how long an idle Fetch blocks before the worker rechecks
// its context.
const fetchWait = 2 * time.Second

// Handler processes one delivery batch of raw order records. A nil return
// acknowledges the whole batch; an error naks it so JetStream redrives
// every record (at-least-once).
type Handler func(ctx context.Context, records [][]byte) error

// Consumer pulls order batches from the ORDERS stream through a shared
// durable consumer and hands them to a Handler. Multiple workers fetch
// concurrently; each batch is its own unit of work.
type Consumer struct {
	conn      *nats.Conn
	sub       *nats.Subscription
	handler   Handler
	batchSize int
	workers   int
}

// NewConsumer connects to NATS and binds a durable pull consumer to the
// ORDERS stream.
func NewConsumer(url, durable string, batchSize, workers int, handler Handler) (*Consumer, error) {
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	sub, err := js.PullSubscribe(subjectPrefix+"*", durable,
		nats.BindStream(StreamName),
		nats.AckExplicit(),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", StreamName, err)
	}
	return &Consumer{
		conn:      nc,
		sub:       sub,
		handler:   handler,
		batchSize: batchSize,
		workers:   workers,
	}, nil
}

// Run fetches and processes batches until ctx is cancelled. It blocks; the
// caller typically runs it in a goroutine and cancels ctx on shutdown.
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.fetchLoop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) fetchLoop(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, nats.ErrConnectionClosed) {
				return
			}
			slog.Warn("fetch failed", "worker", worker, "error", err)
			continue
		}

		records := make([][]byte, len(msgs))
		for i, m := range msgs {
			records[i] = m.Data
		}

		if err := c.handler(ctx, records); err != nil {
			// The whole batch is redriven; no partial apply happened.
			slog.Warn("batch failed, redriving", "worker", worker, "records", len(records), "error", err)
			for _, m := range msgs {
				if err := m.Nak(); err != nil {
					slog.Warn("nak failed", "error", err)
				}
			}
			continue
		}
		for _, m := range msgs {
			if err := m.Ack(); err != nil {
				slog.Warn("ack failed", "error", err)
			}
		}
	}
}

// Close drains the subscription and closes the connection.
func (c *Consumer) Close() error {
	if err := c.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.conn.Close()
		return fmt.Errorf("unsubscribing: %w", err)
	}
	c.conn.Close()
	return nil
}
