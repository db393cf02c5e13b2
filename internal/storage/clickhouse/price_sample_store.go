package clickhouse

import (
	"context"
	"fmt"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
// MergeTree does not enforce uniqueness; duplicate samples are harmless
// for an append-only observation history.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// Insert adds one sample.
func (s *PriceSampleStore) Insert(ctx context.Context, sample *domain.PriceSample) error {
	if sample == nil || sample.FeedID == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (feed_id, fetched_at, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(sample.FeedID, uint64(sample.FetchedAt), sample.Price); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByFeed retrieves samples for a feed within [start, end] (inclusive).
func (s *PriceSampleStore) GetByFeed(ctx context.Context, feedID string, start, end int64) ([]*domain.PriceSample, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT feed_id, fetched_at, price
		FROM price_samples
		WHERE feed_id = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC
	`, feedID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query price samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceSample
	for rows.Next() {
		var sample domain.PriceSample
		var fetchedAt uint64
		if err := rows.Scan(&sample.FeedID, &fetchedAt, &sample.Price); err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		sample.FetchedAt = int64(fetchedAt)
		result = append(result, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price samples: %w", err)
	}

	return result, nil
}
