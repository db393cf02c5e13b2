package storage

import (
	"context"

	"portsol-gate/internal/domain"
)

// EntryStore provides access to the admission registry and the global
// consumed-signature set. The two are written together: inserting an entry
// consumes its signature atomically.
type EntryStore interface {
	// Insert adds a new entry and consumes its signature. Returns
	// ErrDuplicateKey if the wallet already has an entry, and
	// ErrSignatureConsumed if the signature already admitted any wallet.
	Insert(ctx context.Context, e *domain.EntryRecord) error

	// Get retrieves the entry for a wallet. Returns ErrNotFound if absent.
	Get(ctx context.Context, wallet string) (*domain.EntryRecord, error)

	// Delete removes a wallet's entry (exit or settlement). The entry's
	// signature stays consumed. Returns ErrNotFound if absent.
	Delete(ctx context.Context, wallet string) error

	// List retrieves all entries ordered by entered_at ASC.
	List(ctx context.Context) ([]*domain.EntryRecord, error)

	// SignatureConsumed reports whether a signature has admitted any wallet,
	// including wallets whose entries have since been deleted.
	SignatureConsumed(ctx context.Context, signature string) (bool, error)
}

// PayoutLedgerStore persists per-wallet payout state for settlement runs.
type PayoutLedgerStore interface {
	// Record adds a new payout row, normally in PENDING status. Returns
	// ErrDuplicateKey if (run_id, wallet) already exists.
	Record(ctx context.Context, p *domain.PayoutRecord) error

	// Update sets the status and signature of an existing row.
	// Returns ErrNotFound if (run_id, wallet) does not exist.
	Update(ctx context.Context, runID, wallet, status, signature string) error

	// Get retrieves one payout row. Returns ErrNotFound if absent.
	Get(ctx context.Context, runID, wallet string) (*domain.PayoutRecord, error)

	// ListRun retrieves all rows for a run ordered by wallet ASC.
	ListRun(ctx context.Context, runID string) ([]*domain.PayoutRecord, error)
}

// PriceSampleStore records successful oracle observations for offline
// analysis. Best-effort: the oracle never fails a price read over it.
type PriceSampleStore interface {
	// Insert adds one sample.
	Insert(ctx context.Context, s *domain.PriceSample) error

	// GetByFeed retrieves samples for a feed within [start, end] ms
	// (inclusive), ordered by fetched_at ASC.
	GetByFeed(ctx context.Context, feedID string, start, end int64) ([]*domain.PriceSample, error)
}
