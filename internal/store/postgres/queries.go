package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/snackwars/tallyd/internal/model"
)

// storeErr wraps a database error so callers can detect transient store
// failure with errors.Is(err, model.ErrStoreUnavailable) and redrive the
// containing batch.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(model.ErrStoreUnavailable, err))
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o *model.Order, expiresAt time.Time) error {
	var location []byte
	if o.Location != nil {
		b, err := json.Marshal(o.Location)
		if err != nil {
			return fmt.Errorf("marshal location: %w", err)
		}
		location = b
	}

	// ON CONFLICT DO NOTHING: the stream may redeliver a record already saved.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, product, ts, user_id, location, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING`,
		o.OrderID, o.Product, o.Timestamp, o.UserID, nullBytes(location), expiresAt,
	)
	if err != nil {
		return storeErr("save order", err)
	}
	return nil
}

func (s *PostgresStore) IncrementTally(ctx context.Context, product string) (int64, error) {
	// Single-statement atomic read-modify-write; concurrent incrementers
	// never lose updates.
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tallies (product, count) VALUES ($1, 1)
		ON CONFLICT (product) DO UPDATE SET count = tallies.count + 1
		RETURNING count`,
		product,
	).Scan(&count)
	if err != nil {
		return 0, storeErr("increment tally", err)
	}
	return count, nil
}

func (s *PostgresStore) TallySnapshot(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product, count FROM tallies`)
	if err != nil {
		return nil, storeErr("tally snapshot", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var product string
		var count int64
		if err := rows.Scan(&product, &count); err != nil {
			return nil, storeErr("scan tally", err)
		}
		counts[product] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("tally snapshot", err)
	}
	return counts, nil
}

func (s *PostgresStore) PutConnection(ctx context.Context, id string, joinedAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (connection_id, joined_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (connection_id) DO UPDATE
		SET joined_at = EXCLUDED.joined_at, expires_at = EXCLUDED.expires_at`,
		id, joinedAt, expiresAt,
	)
	if err != nil {
		return storeErr("put connection", err)
	}
	return nil
}

func (s *PostgresStore) DeleteConnection(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = $1`, id)
	if err != nil {
		return storeErr("delete connection", err)
	}
	return nil
}

func (s *PostgresStore) ListConnections(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT connection_id FROM connections WHERE expires_at > $1`, now)
	if err != nil {
		return nil, storeErr("list connections", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan connection", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list connections", err)
	}
	return ids, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM orders WHERE expires_at <= $1`,
		`DELETE FROM connections WHERE expires_at <= $1`,
	} {
		res, err := s.db.ExecContext(ctx, q, now)
		if err != nil {
			return total, storeErr("purge expired", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, storeErr("purge expired", err)
		}
		total += n
	}
	return total, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
