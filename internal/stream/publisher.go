// Package stream moves orders over NATS JetStream. Each order is published
// to orders.<product>, so the product acts as the partition key and
// per-product arrival order is preserved. JetStream's at-least-once
// delivery provides the redrive behavior the pipeline relies on.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/snackwars/tallyd/internal/model"
)

const (
	// StreamName is the JetStream stream holding order records.
	StreamName = "ORDERS"

	// subjectPrefix is the subject namespace; the product key is appended.
	subjectPrefix = "orders."
)

// Subject returns the stream subject for a product.
func Subject(product string) string {
	return subjectPrefix + product
}

// Publisher emits order records onto the stream.
type Publisher interface {
	// PublishOrder sends the order keyed by its product and returns the
	// stream sequence number assigned to it.
	PublishOrder(ctx context.Context, o *model.Order) (uint64, error)
	Close() error
}

// JetStreamPublisher publishes orders to NATS JetStream, creating the
// ORDERS stream on first use.
type JetStreamPublisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

var _ Publisher = (*JetStreamPublisher)(nil)

// NewPublisher connects to NATS with automatic reconnection and ensures the
// ORDERS stream exists. maxAge bounds record retention on the stream.
func NewPublisher(url string, maxAge time.Duration) (*JetStreamPublisher, error) {
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js, maxAge); err != nil {
		nc.Close()
		return nil, err
	}
	return &JetStreamPublisher{conn: nc, js: js}, nil
}

func (p *JetStreamPublisher) PublishOrder(ctx context.Context, o *model.Order) (uint64, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return 0, fmt.Errorf("marshaling order: %w", err)
	}
	ack, err := p.js.Publish(Subject(o.Product), data, nats.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("publishing order %s: %w", o.OrderID, err)
	}
	return ack.Sequence, nil
}

func (p *JetStreamPublisher) Close() error {
	p.conn.Close()
	return nil
}

func connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func ensureStream(js nats.JetStreamContext, maxAge time.Duration) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + "*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", StreamName, err)
	}
	return nil
}
