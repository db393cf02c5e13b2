package postgres

import (
	"context"
	"fmt"
	"time"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

// PayoutLedgerStore implements storage.PayoutLedgerStore using PostgreSQL.
type PayoutLedgerStore struct {
	pool *Pool
}

// NewPayoutLedgerStore creates a new PayoutLedgerStore.
func NewPayoutLedgerStore(pool *Pool) *PayoutLedgerStore {
	return &PayoutLedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PayoutLedgerStore = (*PayoutLedgerStore)(nil)

// Record adds a new payout row.
func (s *PayoutLedgerStore) Record(ctx context.Context, p *domain.PayoutRecord) error {
	if p == nil || p.RunID == "" || p.Wallet == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := p.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().Unix()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payout_ledger (
			run_id, wallet, lamports, baseline_lamports, status, signature, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.RunID, p.Wallet, int64(p.Lamports), int64(p.BaselineLamports), p.Status, p.Signature, updatedAt)
	if err != nil {
		if isDuplicateKeyError(err, "") {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("record payout: %w", err)
	}
	return nil
}

// Update sets the status and signature of an existing row.
func (s *PayoutLedgerStore) Update(ctx context.Context, runID, wallet, status, signature string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payout_ledger
		SET status = $3, signature = $4, updated_at = $5
		WHERE run_id = $1 AND wallet = $2
	`, runID, wallet, status, signature, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves one payout row.
func (s *PayoutLedgerStore) Get(ctx context.Context, runID, wallet string) (*domain.PayoutRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, wallet, lamports, baseline_lamports, status, signature, updated_at
		FROM payout_ledger
		WHERE run_id = $1 AND wallet = $2
	`, runID, wallet)

	p, err := scanPayout(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

// ListRun retrieves all rows for a run ordered by wallet ASC.
func (s *PayoutLedgerStore) ListRun(ctx context.Context, runID string) ([]*domain.PayoutRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, wallet, lamports, baseline_lamports, status, signature, updated_at
		FROM payout_ledger
		WHERE run_id = $1
		ORDER BY wallet ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var result []*domain.PayoutRecord
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payouts: %w", err)
	}
	return result, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (*domain.PayoutRecord, error) {
	var p domain.PayoutRecord
	var lamports, baseline int64
	if err := row.Scan(&p.RunID, &p.Wallet, &lamports, &baseline, &p.Status, &p.Signature, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Lamports = uint64(lamports)
	p.BaselineLamports = uint64(baseline)
	return &p, nil
}
