package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/observability"
	"portsol-gate/internal/solana"
	"portsol-gate/internal/storage"
)

// DefaultFeeReserve is held back from the pool to cover transfer fees for
// every payout in a run.
const DefaultFeeReserve = 5_000_000 // 0.005 SOL

// Distributor executes settlement plans. Every payout is written to the
// ledger as pending before its transfer is sent, so a crashed run resumed
// under the same run ID picks up where it stopped without paying anyone
// twice.
type Distributor struct {
	sub         TransferSubmitter
	rpc         solana.RPCClient
	ledger      storage.PayoutLedgerStore
	entries     storage.EntryStore // optional: wallets exit on payout
	logger      *log.Logger
	maxAttempts int
	now         func() time.Time
}

// TransferSubmitter issues confirmed transfers with bounded retry.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, key *solana.Keypair, dest string, lamports uint64, maxAttempts int) (string, error)
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithEntryStore makes paid wallets exit the admission registry.
func WithEntryStore(s storage.EntryStore) Option {
	return func(d *Distributor) {
		d.entries = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Distributor) {
		d.logger = l
	}
}

// WithMaxAttempts sets the per-payout transfer attempt limit.
func WithMaxAttempts(n int) Option {
	return func(d *Distributor) {
		d.maxAttempts = n
	}
}

// NewDistributor creates a Distributor.
func NewDistributor(sub TransferSubmitter, rpc solana.RPCClient, ledger storage.PayoutLedgerStore, opts ...Option) *Distributor {
	d := &Distributor{
		sub:         sub,
		rpc:         rpc,
		ledger:      ledger,
		logger:      log.New(log.Writer(), "[settlement] ", log.LstdFlags),
		maxAttempts: 3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ClampPool caps the requested pool to what the treasury actually holds,
// minus a fee reserve. Settling more than the balance would strand the run
// partway with terminal insufficient-funds failures.
func ClampPool(ctx context.Context, rpc solana.RPCClient, treasury string, requested, feeReserve uint64) (uint64, error) {
	balance, err := rpc.GetBalance(ctx, treasury)
	if err != nil {
		return 0, fmt.Errorf("read treasury balance: %w", err)
	}
	available := uint64(0)
	if balance > feeReserve {
		available = balance - feeReserve
	}
	if requested > available {
		return available, nil
	}
	return requested, nil
}

// ExecutePlan pays out each plan entry in order. One wallet's failure does
// not abort the rest; the returned outcomes carry per-wallet results in
// plan order. Re-running with the same run ID skips confirmed rows and
// re-checks pending ones against the ledger before sending anything.
func (d *Distributor) ExecutePlan(ctx context.Context, runID string, plan *domain.SettlementPlan, key *solana.Keypair) []domain.PayoutOutcome {
	outcomes := make([]domain.PayoutOutcome, 0, len(plan.Entries))

	failures := 0
	for _, entry := range plan.Entries {
		if entry.PayoutLamports == 0 {
			continue
		}
		outcome := d.executeOne(ctx, runID, entry, key)
		if outcome.Err != "" {
			failures++
		}
		outcomes = append(outcomes, outcome)
	}

	if failures == 0 && len(outcomes) > 0 {
		observability.DefaultMetrics.LastSuccessfulSettlement.Set(float64(d.now().Unix()))
	}
	d.logger.Printf("run %s: %d payouts executed, %d failed, dust=%d lamports",
		runID, len(outcomes), failures, plan.DustLamports)
	return outcomes
}

func (d *Distributor) executeOne(ctx context.Context, runID string, entry domain.PayoutEntry, key *solana.Keypair) domain.PayoutOutcome {
	outcome := domain.PayoutOutcome{Wallet: entry.Wallet, PayoutLamports: entry.PayoutLamports}

	rec, err := d.ledger.Get(ctx, runID, entry.Wallet)
	switch {
	case err == nil && rec.Status == domain.PayoutConfirmed:
		// Paid in an earlier pass of this run.
		observability.RecordPayout("already_paid")
		outcome.Signature = rec.Signature
		return outcome

	case err == nil && rec.Status == domain.PayoutPending:
		// A previous process wrote the marker and may or may not have
		// sent the transfer before dying. If the wallet's balance already
		// moved past the recorded baseline by the payout amount, treat it
		// as paid rather than risk a double payout.
		landed, checkErr := d.pendingLanded(ctx, rec)
		if checkErr != nil {
			outcome.Err = fmt.Sprintf("cannot verify pending payout: %v", checkErr)
			observability.RecordPayout("unverified")
			return outcome
		}
		if landed {
			if err := d.ledger.Update(ctx, runID, entry.Wallet, domain.PayoutConfirmed, rec.Signature); err != nil {
				d.logger.Printf("run %s: mark recovered payout for %s: %v", runID, entry.Wallet, err)
			}
			observability.RecordPayout("recovered")
			outcome.Signature = rec.Signature
			d.exitWallet(ctx, entry.Wallet)
			return outcome
		}
		// Provably not landed; send below.

	case err == nil && rec.Status == domain.PayoutFailed:
		// Failed on a previous pass; retry below under the same row.

	case errors.Is(err, storage.ErrNotFound):
		baseline, balErr := d.rpc.GetBalance(ctx, entry.Wallet)
		if balErr != nil {
			// Without a baseline a crashed run could not be resumed
			// safely, so the marker is not written and nothing is sent.
			outcome.Err = fmt.Sprintf("read recipient baseline: %v", balErr)
			observability.RecordPayout("failed")
			return outcome
		}
		rec = &domain.PayoutRecord{
			RunID:            runID,
			Wallet:           entry.Wallet,
			Lamports:         entry.PayoutLamports,
			BaselineLamports: baseline,
			Status:           domain.PayoutPending,
		}
		if err := d.ledger.Record(ctx, rec); err != nil {
			outcome.Err = fmt.Sprintf("write payout marker: %v", err)
			observability.RecordPayout("failed")
			return outcome
		}

	default:
		outcome.Err = fmt.Sprintf("read payout ledger: %v", err)
		observability.RecordPayout("failed")
		return outcome
	}

	sig, err := d.sub.SubmitTransfer(ctx, key, entry.Wallet, entry.PayoutLamports, d.maxAttempts)
	if err != nil {
		if updErr := d.ledger.Update(ctx, runID, entry.Wallet, domain.PayoutFailed, ""); updErr != nil {
			d.logger.Printf("run %s: mark failed payout for %s: %v", runID, entry.Wallet, updErr)
		}
		observability.RecordPayout("failed")
		d.logger.Printf("run %s: payout to %s failed: %v", runID, entry.Wallet, err)
		outcome.Err = err.Error()
		return outcome
	}

	if err := d.ledger.Update(ctx, runID, entry.Wallet, domain.PayoutConfirmed, sig); err != nil {
		// The transfer landed; the ledger just lags. The pending-landed
		// check covers this row on the next pass.
		d.logger.Printf("run %s: mark confirmed payout for %s: %v", runID, entry.Wallet, err)
	}
	observability.RecordPayout("confirmed")
	d.logger.Printf("run %s: paid %d lamports to %s (%s)", runID, entry.PayoutLamports, entry.Wallet, sig)
	outcome.Signature = sig
	d.exitWallet(ctx, entry.Wallet)
	return outcome
}

// pendingLanded reports whether a pending row's transfer reached the
// wallet. The row's signature is checked first when one was recorded; the
// balance delta against the recorded baseline is the fallback signal.
func (d *Distributor) pendingLanded(ctx context.Context, rec *domain.PayoutRecord) (bool, error) {
	if rec.Signature != "" {
		statuses, err := d.rpc.GetSignatureStatuses(ctx, []string{rec.Signature})
		if err != nil {
			return false, fmt.Errorf("signature status: %w", err)
		}
		if len(statuses) == 1 && statuses[0].Confirmed() {
			return true, nil
		}
	}

	balance, err := d.rpc.GetBalance(ctx, rec.Wallet)
	if err != nil {
		return false, fmt.Errorf("recipient balance: %w", err)
	}
	return balance >= rec.BaselineLamports+rec.Lamports, nil
}

// exitWallet removes a paid wallet from the admission registry, when one
// is attached.
func (d *Distributor) exitWallet(ctx context.Context, wallet string) {
	if d.entries == nil {
		return
	}
	if err := d.entries.Delete(ctx, wallet); err != nil && !errors.Is(err, storage.ErrNotFound) {
		d.logger.Printf("remove entry for %s after payout: %v", wallet, err)
	}
}
