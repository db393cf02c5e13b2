package postgres

import (
	"context"
	"fmt"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// EntryStore implements storage.EntryStore using PostgreSQL.
// Entries and consumed signatures are written in one transaction so a
// replayed signature can never admit a second wallet, even across
// concurrent registrations.
type EntryStore struct {
	pool *Pool
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(pool *Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Insert adds a new entry and consumes its signature.
func (s *EntryStore) Insert(ctx context.Context, e *domain.EntryRecord) error {
	if e == nil || e.Wallet == "" || e.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert entry: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO entries (wallet, entered_at, tx_signature, fee_paid)
		VALUES ($1, $2, $3, $4)
	`, e.Wallet, e.EnteredAt, e.TxSignature, int64(e.FeePaid))
	if err != nil {
		if isDuplicateKeyError(err, "entries_pkey") {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert entry: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO consumed_signatures (tx_signature, wallet, consumed_at)
		VALUES ($1, $2, $3)
	`, e.TxSignature, e.Wallet, e.EnteredAt)
	if err != nil {
		if isDuplicateKeyError(err, "consumed_signatures_pkey") {
			return storage.ErrSignatureConsumed
		}
		return fmt.Errorf("consume signature: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert entry: %w", err)
	}
	return nil
}

// Get retrieves the entry for a wallet.
func (s *EntryStore) Get(ctx context.Context, wallet string) (*domain.EntryRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet, entered_at, tx_signature, fee_paid
		FROM entries
		WHERE wallet = $1
	`, wallet)

	var e domain.EntryRecord
	var feePaid int64
	if err := row.Scan(&e.Wallet, &e.EnteredAt, &e.TxSignature, &feePaid); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	e.FeePaid = uint64(feePaid)
	return &e, nil
}

// Delete removes a wallet's entry. The signature stays consumed because
// consumed_signatures rows are never deleted.
func (s *EntryStore) Delete(ctx context.Context, wallet string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE wallet = $1`, wallet)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all entries ordered by entered_at ASC.
func (s *EntryStore) List(ctx context.Context) ([]*domain.EntryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, entered_at, tx_signature, fee_paid
		FROM entries
		ORDER BY entered_at ASC, wallet ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var result []*domain.EntryRecord
	for rows.Next() {
		var e domain.EntryRecord
		var feePaid int64
		if err := rows.Scan(&e.Wallet, &e.EnteredAt, &e.TxSignature, &feePaid); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.FeePaid = uint64(feePaid)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return result, nil
}

// SignatureConsumed reports whether a signature has admitted any wallet.
func (s *EntryStore) SignatureConsumed(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consumed_signatures WHERE tx_signature = $1)
	`, signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check consumed signature: %w", err)
	}
	return exists, nil
}
