package solana

import "fmt"

// TransactionError reports that a transaction was included on-chain but
// its execution failed. Distinct from transport errors: the signature is
// consumed and resubmitting the identical transaction cannot succeed.
type TransactionError struct {
	Err interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %v", e.Err)
}
