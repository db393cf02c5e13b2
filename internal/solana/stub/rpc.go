// Package stub provides a scriptable in-memory ledger implementing
// solana.RPCClient for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"portsol-gate/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Zero value behavior:
// every send succeeds, is assigned a sequential signature, and is
// immediately visible as confirmed.
type RPCClient struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Blockhash    solana.Blockhash
	Statuses     map[string]*solana.SignatureStatus
	Transactions map[string]*solana.Transaction

	// OnSend, when set, replaces the default send behavior.
	OnSend func(txBase64 string) (string, error)

	// Queued errors consumed one per call.
	balanceErrs   []error
	blockhashErrs []error
	sendErrs      []error
	statusErrs    []error

	HealthErr error

	sendCount   int
	SentTxs     []string
	StatusCalls int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:     make(map[string]uint64),
		Blockhash:    solana.Blockhash{Blockhash: "4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM"},
		Statuses:     make(map[string]*solana.SignatureStatus),
		Transactions: make(map[string]*solana.Transaction),
	}
}

// FailBalance queues errors for successive GetBalance calls.
func (c *RPCClient) FailBalance(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErrs = append(c.balanceErrs, errs...)
}

// FailBlockhash queues errors for successive GetLatestBlockhash calls.
func (c *RPCClient) FailBlockhash(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockhashErrs = append(c.blockhashErrs, errs...)
}

// FailSend queues errors for successive SendTransaction calls.
func (c *RPCClient) FailSend(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErrs = append(c.sendErrs, errs...)
}

// FailStatuses queues errors for successive GetSignatureStatuses calls.
func (c *RPCClient) FailStatuses(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusErrs = append(c.statusErrs, errs...)
}

// SetBalance sets a wallet's balance.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// AddTransaction adds a transaction retrievable by signature.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SendCount returns the number of SendTransaction calls observed.
func (c *RPCClient) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCount
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

// GetBalance retrieves a balance from the stub ledger.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := popErr(&c.balanceErrs); err != nil {
		return 0, err
	}
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := popErr(&c.blockhashErrs); err != nil {
		return nil, err
	}
	bh := c.Blockhash
	return &bh, nil
}

// SendTransaction records the transaction and returns a signature.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sendCount++
	if err := popErr(&c.sendErrs); err != nil {
		return "", err
	}

	if c.OnSend != nil {
		sig, err := c.OnSend(txBase64)
		if err != nil {
			return "", err
		}
		c.SentTxs = append(c.SentTxs, txBase64)
		return sig, nil
	}

	sig := fmt.Sprintf("stub-signature-%d", c.sendCount)
	c.SentTxs = append(c.SentTxs, txBase64)
	c.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: "confirmed"}
	return sig, nil
}

// GetSignatureStatuses returns statuses from the stub store.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.StatusCalls++
	if err := popErr(&c.statusErrs); err != nil {
		return nil, err
	}

	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = c.Statuses[sig]
	}
	return statuses, nil
}

// GetTransaction retrieves a transaction by signature, nil if unknown.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Transactions[signature], nil
}

// GetHealth returns the configured health error.
func (c *RPCClient) GetHealth(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.HealthErr
}

// Verify interface compliance at compile time.
var _ solana.RPCClient = (*RPCClient)(nil)
