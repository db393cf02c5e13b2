package memory

import (
	"context"
	"sort"
	"sync"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// EntryStore is an in-memory implementation of storage.EntryStore.
type EntryStore struct {
	mu       sync.RWMutex
	entries  map[string]*domain.EntryRecord // keyed by wallet
	consumed map[string]string              // signature -> wallet that consumed it
}

// NewEntryStore creates a new in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		entries:  make(map[string]*domain.EntryRecord),
		consumed: make(map[string]string),
	}
}

// Insert adds a new entry and consumes its signature.
func (s *EntryStore) Insert(_ context.Context, e *domain.EntryRecord) error {
	if e == nil || e.Wallet == "" || e.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.Wallet]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.consumed[e.TxSignature]; exists {
		return storage.ErrSignatureConsumed
	}

	// Store a copy to prevent external mutation
	entryCopy := *e
	s.entries[e.Wallet] = &entryCopy
	s.consumed[e.TxSignature] = e.Wallet
	return nil
}

// Get retrieves the entry for a wallet.
func (s *EntryStore) Get(_ context.Context, wallet string) (*domain.EntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[wallet]
	if !exists {
		return nil, storage.ErrNotFound
	}

	entryCopy := *e
	return &entryCopy, nil
}

// Delete removes a wallet's entry. The signature stays consumed.
func (s *EntryStore) Delete(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[wallet]; !exists {
		return storage.ErrNotFound
	}
	delete(s.entries, wallet)
	return nil
}

// List retrieves all entries ordered by entered_at ASC.
func (s *EntryStore) List(_ context.Context) ([]*domain.EntryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.EntryRecord, 0, len(s.entries))
	for _, e := range s.entries {
		entryCopy := *e
		result = append(result, &entryCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EnteredAt != result[j].EnteredAt {
			return result[i].EnteredAt < result[j].EnteredAt
		}
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

// SignatureConsumed reports whether a signature has admitted any wallet.
func (s *EntryStore) SignatureConsumed(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.consumed[signature]
	return exists, nil
}

// Verify interface compliance at compile time.
var _ storage.EntryStore = (*EntryStore)(nil)
