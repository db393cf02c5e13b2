package memory

import (
	"context"
	"sort"
	"sync"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data []*domain.PriceSample
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{}
}

// Insert adds one sample.
func (s *PriceSampleStore) Insert(_ context.Context, sample *domain.PriceSample) error {
	if sample == nil || sample.FeedID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sampleCopy := *sample
	s.data = append(s.data, &sampleCopy)
	return nil
}

// GetByFeed retrieves samples for a feed within [start, end] (inclusive).
func (s *PriceSampleStore) GetByFeed(_ context.Context, feedID string, start, end int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSample
	for _, sample := range s.data {
		if sample.FeedID == feedID && sample.FetchedAt >= start && sample.FetchedAt <= end {
			sampleCopy := *sample
			result = append(result, &sampleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAt < result[j].FetchedAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)
