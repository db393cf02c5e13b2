package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// PayoutLedgerStore is an in-memory implementation of storage.PayoutLedgerStore.
type PayoutLedgerStore struct {
	mu   sync.RWMutex
	data map[payoutKey]*domain.PayoutRecord
}

type payoutKey struct {
	runID  string
	wallet string
}

// NewPayoutLedgerStore creates a new in-memory payout ledger store.
func NewPayoutLedgerStore() *PayoutLedgerStore {
	return &PayoutLedgerStore{
		data: make(map[payoutKey]*domain.PayoutRecord),
	}
}

// Record adds a new payout row.
func (s *PayoutLedgerStore) Record(_ context.Context, p *domain.PayoutRecord) error {
	if p == nil || p.RunID == "" || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := payoutKey{p.RunID, p.Wallet}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *p
	if recordCopy.UpdatedAt == 0 {
		recordCopy.UpdatedAt = time.Now().Unix()
	}
	s.data[k] = &recordCopy
	return nil
}

// Update sets the status and signature of an existing row.
func (s *PayoutLedgerStore) Update(_ context.Context, runID, wallet, status, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[payoutKey{runID, wallet}]
	if !exists {
		return storage.ErrNotFound
	}

	p.Status = status
	p.Signature = signature
	p.UpdatedAt = time.Now().Unix()
	return nil
}

// Get retrieves one payout row.
func (s *PayoutLedgerStore) Get(_ context.Context, runID, wallet string) (*domain.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[payoutKey{runID, wallet}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *p
	return &recordCopy, nil
}

// ListRun retrieves all rows for a run ordered by wallet ASC.
func (s *PayoutLedgerStore) ListRun(_ context.Context, runID string) ([]*domain.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PayoutRecord
	for k, p := range s.data {
		if k.runID == runID {
			recordCopy := *p
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PayoutLedgerStore = (*PayoutLedgerStore)(nil)
