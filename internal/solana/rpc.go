package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface the gate consumes.
type RPCClient interface {
	// GetBalance retrieves a wallet's balance in lamports at confirmed
	// commitment.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetLatestBlockhash retrieves a finalized recent blockhash.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, base64-encoded transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// GetSignatureStatuses retrieves the status of each signature.
	// Entries are nil for unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a transaction by signature, including
	// per-account pre/post balances. Returns (nil, nil) if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetHealth reports whether the RPC node considers itself healthy.
	GetHealth(ctx context.Context) error
}
