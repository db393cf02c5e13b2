package domain

// PayoutEntry is one wallet's slice of the settlement pool.
type PayoutEntry struct {
	Wallet         string
	Credits        uint64 // credits at plan time
	PayoutLamports uint64 // floor(pool * credits / total_credits)
}

// SettlementPlan is the computed distribution for one settlement run.
// sum(PayoutLamports) <= PoolLamports always holds; the difference is
// rounding dust and stays with the treasury.
type SettlementPlan struct {
	PoolLamports uint64
	TotalCredits uint64 // saturates at MaxUint64; payouts are computed from the exact sum
	Entries      []PayoutEntry // sorted by wallet for deterministic execution order
	DustLamports uint64
}

// Payout ledger statuses. A row is written as pending before the transfer
// is issued so a crashed run can resume without double-paying.
const (
	PayoutPending   = "PENDING"
	PayoutConfirmed = "CONFIRMED"
	PayoutFailed    = "FAILED"
)

// PayoutRecord tracks one wallet's payout within a settlement run.
// Corresponds to payout_ledger table in PostgreSQL, keyed by (run_id, wallet).
type PayoutRecord struct {
	RunID            string
	Wallet           string
	Lamports         uint64
	BaselineLamports uint64 // destination balance observed before the transfer
	Status           string // PENDING | CONFIRMED | FAILED
	Signature        string // set once the transfer landed
	UpdatedAt        int64  // Unix timestamp in seconds
}

// PayoutOutcome reports the result of executing one plan entry.
type PayoutOutcome struct {
	Wallet         string
	PayoutLamports uint64
	Signature      string // empty on failure
	Err            string // empty on success
}
