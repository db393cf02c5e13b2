// Package gate maintains the admission registry: it verifies entry-fee
// payments against ledger truth before admitting a wallet, and answers
// admission and balance queries for the simulation.
package gate

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

// Default configuration values.
const (
	DefaultEntryFeeLamports = 10_000_000 // 0.01 SOL
	DefaultEntryDuration    = 7 * 24 * time.Hour
)

// Registration errors.
var (
	// ErrSignatureReplayed rejects a signature that already admitted a
	// wallet. Checked globally, not per wallet: a signature consumed for
	// wallet A never admits wallet B.
	ErrSignatureReplayed = errors.New("signature already consumed by a prior entry")

	// ErrAlreadyEntered rejects a second registration for the same wallet.
	ErrAlreadyEntered = errors.New("wallet already has an active entry")
)

// VerificationError is a payment rejection with a human-readable reason.
// Distinct from transport errors: the ledger answered, and the answer
// does not satisfy the admission requirements.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment rejected: %s", e.Reason)
}

// Config holds gate parameters.
type Config struct {
	// Treasury is the address that receives entry fees.
	Treasury string
	// EntryFee is the required payment in lamports.
	EntryFee uint64
	// EntryDuration is how long an entry stays active.
	EntryDuration time.Duration
	// EnforceExpiry controls whether EntryDuration is applied. Disabled,
	// entries never expire (the original deployment's behavior).
	EnforceExpiry bool
	// BypassAdmission admits every wallet without a registry lookup.
	// Testing aid only; logged loudly at construction and on every use.
	BypassAdmission bool
}

// Gate is the admission service. It owns the registry and the
// consumed-signature set exclusively; everything else it reads from the
// ledger.
type Gate struct {
	cfg     Config
	rpc     solana.RPCClient
	entries storage.EntryStore
	logger  *log.Logger
	now     func() time.Time
}

// New creates a Gate.
func New(cfg Config, rpc solana.RPCClient, entries storage.EntryStore, logger *log.Logger) (*Gate, error) {
	if err := solana.ValidateAddress(cfg.Treasury); err != nil {
		return nil, fmt.Errorf("treasury address: %w", err)
	}
	if cfg.EntryFee == 0 {
		cfg.EntryFee = DefaultEntryFeeLamports
	}
	if cfg.EntryDuration == 0 {
		cfg.EntryDuration = DefaultEntryDuration
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[gate] ", log.LstdFlags)
	}
	if cfg.BypassAdmission {
		logger.Printf("WARNING: admission bypass enabled; every wallet is treated as active")
	}

	return &Gate{
		cfg:     cfg,
		rpc:     rpc,
		entries: entries,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// EntryFee returns the required entry fee in lamports.
func (g *Gate) EntryFee() uint64 {
	return g.cfg.EntryFee
}

// VerifyPayment checks a claimed entry-fee transfer against the ledger and
// returns the lamports actually received by the treasury. Rejections are
// *VerificationError or ErrSignatureReplayed; any other error means the
// ledger could not be consulted and the caller may retry.
func (g *Gate) VerifyPayment(ctx context.Context, signature, sender string, minLamports uint64) (uint64, error) {
	if minLamports == 0 {
		minLamports = g.cfg.EntryFee
	}

	consumed, err := g.entries.SignatureConsumed(ctx, signature)
	if err != nil {
		return 0, fmt.Errorf("check consumed signature: %w", err)
	}
	if consumed {
		observability.RecordReplayRejection()
		return 0, ErrSignatureReplayed
	}

	tx, err := g.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return 0, fmt.Errorf("look up transaction: %w", err)
	}
	if tx == nil {
		return 0, g.reject("not_found", "transaction not found")
	}
	if tx.Meta == nil || tx.Message == nil {
		return 0, g.reject("details_unavailable", "transaction details unavailable")
	}
	if tx.Meta.Err != nil {
		return 0, g.reject("tx_failed", fmt.Sprintf("transaction failed: %v", tx.Meta.Err))
	}

	treasuryIdx, senderIdx := -1, -1
	for i, key := range tx.Message.AccountKeys {
		if key == g.cfg.Treasury {
			treasuryIdx = i
		}
		if key == sender {
			senderIdx = i
		}
	}
	if treasuryIdx == -1 {
		return 0, g.reject("treasury_absent", "treasury not found in transaction accounts")
	}
	if senderIdx == -1 {
		return 0, g.reject("sender_absent", "sender not found in transaction accounts")
	}
	if treasuryIdx >= len(tx.Meta.PreBalances) || treasuryIdx >= len(tx.Meta.PostBalances) {
		return 0, g.reject("balances_unavailable", "transaction balances unavailable")
	}

	pre := tx.Meta.PreBalances[treasuryIdx]
	post := tx.Meta.PostBalances[treasuryIdx]
	if post <= pre {
		return 0, g.reject("no_increase", "treasury balance did not increase")
	}
	received := post - pre
	if received < minLamports {
		return 0, g.reject("insufficient", fmt.Sprintf("insufficient transfer: %d lamports, need %d", received, minLamports))
	}

	return received, nil
}

// reject records the rejection under a bounded metric label; the reason
// carries the detail for the caller.
func (g *Gate) reject(label, reason string) error {
	observability.RecordVerificationFailure(label)
	return &VerificationError{Reason: reason}
}

// RegisterEntry admits a wallet after its payment verified, consuming the
// signature globally. The insert is atomic: a replayed signature can never
// overwrite or coexist with the entry it first admitted.
func (g *Gate) RegisterEntry(ctx context.Context, wallet, signature string) error {
	if err := solana.ValidateAddress(wallet); err != nil {
		return &VerificationError{Reason: fmt.Sprintf("wallet address: %v", err)}
	}
	if !solana.IsOnCurve(wallet) {
		return &VerificationError{Reason: "wallet address is not a valid ed25519 point"}
	}

	err := g.entries.Insert(ctx, &domain.EntryRecord{
		Wallet:      wallet,
		EnteredAt:   g.now().Unix(),
		TxSignature: signature,
		FeePaid:     g.cfg.EntryFee,
	})
	switch {
	case errors.Is(err, storage.ErrSignatureConsumed):
		observability.RecordReplayRejection()
		return ErrSignatureReplayed
	case errors.Is(err, storage.ErrDuplicateKey):
		return ErrAlreadyEntered
	case err != nil:
		return fmt.Errorf("register entry: %w", err)
	}

	observability.RecordEntryRegistered()
	g.logger.Printf("entry registered: wallet=%s signature=%s fee=%d", wallet, signature, g.cfg.EntryFee)
	return nil
}

// IsActive reports whether a wallet holds a live entry. Registry read
// failures deny conservatively.
func (g *Gate) IsActive(ctx context.Context, wallet string) bool {
	if g.cfg.BypassAdmission {
		g.logger.Printf("admission bypass: treating wallet %s as active", wallet)
		return true
	}

	rec, err := g.entries.Get(ctx, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		g.logger.Printf("registry read failed for %s, denying: %v", wallet, err)
		return false
	}

	if g.cfg.EnforceExpiry {
		enteredAt := time.Unix(rec.EnteredAt, 0)
		if g.now().Sub(enteredAt) >= g.cfg.EntryDuration {
			return false
		}
	}
	return true
}

// RemoveEntry exits a wallet (settlement or voluntary exit). Its signature
// stays consumed; re-entry requires a fresh payment.
func (g *Gate) RemoveEntry(ctx context.Context, wallet string) error {
	err := g.entries.Delete(ctx, wallet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Entries returns all registered entries, oldest first.
func (g *Gate) Entries(ctx context.Context) ([]*domain.EntryRecord, error) {
	return g.entries.List(ctx)
}

// LedgerBalance reads a wallet's on-chain balance. On RPC failure it
// returns (0, false): callers treat an unreachable ledger and an empty
// wallet identically (conservative denial), while the flag lets operators
// tell the two apart.
func (g *Gate) LedgerBalance(ctx context.Context, wallet string) (uint64, bool) {
	balance, err := g.rpc.GetBalance(ctx, wallet)
	if err != nil {
		observability.RecordBalanceReadFailure()
		g.logger.Printf("balance read failed for %s, reporting 0: %v", wallet, err)
		return 0, false
	}
	return balance, true
}

// RewardPool reads the treasury balance, which doubles as the prize pool.
func (g *Gate) RewardPool(ctx context.Context) (uint64, bool) {
	return g.LedgerBalance(ctx, g.cfg.Treasury)
}

// Connected reports whether the RPC node is reachable and healthy.
func (g *Gate) Connected(ctx context.Context) bool {
	return g.rpc.GetHealth(ctx) == nil
}
