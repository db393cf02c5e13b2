package solana

import "context"

// Confirmer waits for a submitted signature to reach confirmed commitment.
type Confirmer interface {
	// AwaitSignature blocks until the signature is confirmed, the
	// transaction fails on-chain, or ctx expires. A nil error means the
	// transaction executed successfully at confirmed commitment.
	AwaitSignature(ctx context.Context, signature string) error
}
