package domain

// EntryRecord represents a paid admission into the game world.
// Corresponds to entries table in PostgreSQL. Append-only: a record is
// created once a payment has been verified and never mutated afterwards.
type EntryRecord struct {
	Wallet      string // PRIMARY KEY, base58 pubkey of the participant
	EnteredAt   int64  // Unix timestamp in seconds
	TxSignature string // entry fee transfer signature, globally unique
	FeePaid     uint64 // lamports received by the treasury
}

// ParticipantBalance is a participant's final in-world credit total,
// supplied by the simulation at settlement time. Read-only input.
type ParticipantBalance struct {
	Wallet  string
	Credits uint64
}
