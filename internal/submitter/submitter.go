// Package submitter builds, signs, sends, and confirms value transfers
// against the Solana ledger with bounded retry.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"portsol-gate/internal/observability"
	"portsol-gate/internal/solana"
)

// Default configuration values.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// TerminalError wraps failures that cannot succeed on retry: insufficient
// funds, malformed instructions, on-chain execution errors. SubmitTransfer
// returns it without consuming remaining attempts.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("terminal: %v", e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Submitter serializes transfer submission per signing key. A transfer may
// be accepted by the network but not confirm before the client gives up
// waiting; before every retry the submitter checks whether an earlier
// attempt already landed and, when it did, reports that signature instead
// of sending again.
type Submitter struct {
	rpc            solana.RPCClient
	confirmer      solana.Confirmer // optional fast path
	logger         *log.Logger
	confirmTimeout time.Duration
	pollInterval   time.Duration
	maxBackoff     time.Duration

	// wait is ctx-aware so a stuck run can be cancelled mid-backoff.
	wait func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithConfirmer sets a WebSocket confirmation fast path. Polling via
// signature statuses remains the fallback.
func WithConfirmer(c solana.Confirmer) Option {
	return func(s *Submitter) {
		s.confirmer = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Submitter) {
		s.logger = l
	}
}

// WithConfirmTimeout bounds how long one attempt waits for confirmation.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Submitter) {
		s.confirmTimeout = d
	}
}

// WithPollInterval sets the status polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = d
	}
}

// New creates a Submitter.
func New(rpc solana.RPCClient, opts ...Option) *Submitter {
	s := &Submitter{
		rpc:            rpc,
		logger:         log.New(log.Writer(), "[submitter] ", log.LstdFlags),
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		maxBackoff:     DefaultMaxBackoff,
		keyLocks:       make(map[string]*sync.Mutex),
	}
	s.wait = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockFor returns the mutex serializing submissions for one signing key.
// Concurrent submissions from the same key race on the latest blockhash
// and can invalidate each other.
func (s *Submitter) lockFor(pubkey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.keyLocks[pubkey]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[pubkey] = l
	}
	return l
}

// backoff returns the delay before retry attempt n (1-based): 1s, 2s, 4s...
// capped at maxBackoff.
func (s *Submitter) backoff(attempt int) time.Duration {
	d := time.Duration(1<<(attempt-1)) * time.Second
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	return d
}

// SubmitTransfer sends lamports from the signing key's wallet to dest and
// waits for confirmation, retrying up to maxAttempts times with a fresh
// blockhash per attempt. Terminal failures short-circuit. The caller is
// responsible for ensuring the source balance covers amount plus fee.
func (s *Submitter) SubmitTransfer(ctx context.Context, key *solana.Keypair, dest string, lamports uint64, maxAttempts int) (string, error) {
	if lamports == 0 {
		return "", &TerminalError{Err: errors.New("amount must be positive")}
	}
	if maxAttempts < 1 {
		return "", &TerminalError{Err: errors.New("max attempts must be at least 1")}
	}
	if err := solana.ValidateAddress(dest); err != nil {
		return "", &TerminalError{Err: fmt.Errorf("destination: %w", err)}
	}

	lock := s.lockFor(key.Pubkey())
	lock.Lock()
	defer lock.Unlock()

	// Destination baseline for the landed check. A failed read only
	// weakens the cross-check, it does not block submission.
	baseline, err := s.rpc.GetBalance(ctx, dest)
	baselineKnown := err == nil

	var attempted []string
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			observability.RecordTransferRetry()
			if err := s.wait(ctx, s.backoff(attempt)); err != nil {
				return "", err
			}

			sig, landed, err := s.priorLanded(ctx, attempted, dest, baseline, baselineKnown, lamports)
			if err != nil {
				// Cannot prove the last attempt did not land; do not
				// send again until the ledger answers.
				lastErr = err
				continue
			}
			if landed {
				s.logger.Printf("attempt %d: prior signature %s already landed", attempt, sig)
				observability.RecordTransferSubmitted("recovered")
				return sig, nil
			}
		}

		bh, err := s.rpc.GetLatestBlockhash(ctx)
		if err != nil {
			lastErr = fmt.Errorf("latest blockhash: %w", err)
			continue
		}

		msg, err := solana.BuildTransferMessage(key.Pubkey(), dest, lamports, bh.Blockhash)
		if err != nil {
			return "", &TerminalError{Err: err}
		}
		txBase64, sig := solana.SignMessage(msg, key)

		sent, err := s.rpc.SendTransaction(ctx, txBase64)
		if err != nil {
			if isTerminal(err) {
				observability.RecordTransferSubmitted("terminal")
				return "", &TerminalError{Err: err}
			}
			lastErr = fmt.Errorf("send: %w", err)
			continue
		}
		if sent != "" {
			sig = sent
		}
		attempted = append(attempted, sig)

		start := time.Now()
		if err := s.awaitConfirmation(ctx, sig); err != nil {
			if isTerminal(err) {
				observability.RecordTransferSubmitted("terminal")
				return "", &TerminalError{Err: err}
			}
			s.logger.Printf("attempt %d: signature %s not confirmed: %v", attempt+1, sig, err)
			lastErr = err
			continue
		}

		observability.DefaultMetrics.ConfirmLatency.Observe(time.Since(start).Seconds())
		observability.RecordTransferSubmitted("confirmed")
		return sig, nil
	}

	observability.RecordTransferSubmitted("exhausted")
	return "", fmt.Errorf("submit transfer: attempts exhausted: %w", lastErr)
}

// SubmitMemo writes a memo on-chain signed by key. Payloads over
// solana.MaxMemoBytes are truncated.
func (s *Submitter) SubmitMemo(ctx context.Context, key *solana.Keypair, memo string, maxAttempts int) (string, error) {
	if maxAttempts < 1 {
		return "", &TerminalError{Err: errors.New("max attempts must be at least 1")}
	}

	lock := s.lockFor(key.Pubkey())
	lock.Lock()
	defer lock.Unlock()

	var attempted []string
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.wait(ctx, s.backoff(attempt)); err != nil {
				return "", err
			}
			if sig, landed := s.anyConfirmed(ctx, attempted); landed {
				return sig, nil
			}
		}

		bh, err := s.rpc.GetLatestBlockhash(ctx)
		if err != nil {
			lastErr = fmt.Errorf("latest blockhash: %w", err)
			continue
		}

		msg, err := solana.BuildMemoMessage(key.Pubkey(), []byte(memo), bh.Blockhash)
		if err != nil {
			return "", &TerminalError{Err: err}
		}
		txBase64, sig := solana.SignMessage(msg, key)

		sent, err := s.rpc.SendTransaction(ctx, txBase64)
		if err != nil {
			if isTerminal(err) {
				return "", &TerminalError{Err: err}
			}
			lastErr = fmt.Errorf("send: %w", err)
			continue
		}
		if sent != "" {
			sig = sent
		}
		attempted = append(attempted, sig)

		if err := s.awaitConfirmation(ctx, sig); err != nil {
			if isTerminal(err) {
				return "", &TerminalError{Err: err}
			}
			lastErr = err
			continue
		}
		return sig, nil
	}

	return "", fmt.Errorf("submit memo: attempts exhausted: %w", lastErr)
}

// priorLanded reports whether any earlier attempt's signature confirmed.
// When the ledger cannot be read, it returns an error so the caller skips
// re-sending: an unprovable state must never trigger a duplicate transfer.
func (s *Submitter) priorLanded(ctx context.Context, sigs []string, dest string, baseline uint64, baselineKnown bool, lamports uint64) (string, bool, error) {
	if len(sigs) == 0 {
		return "", false, nil
	}

	statuses, err := s.rpc.GetSignatureStatuses(ctx, sigs)
	if err != nil {
		return "", false, fmt.Errorf("check prior attempts: %w", err)
	}

	for i, status := range statuses {
		if status.Confirmed() {
			return sigs[i], true, nil
		}
	}

	// Secondary signal: every status says not landed, but if the
	// destination balance already moved by at least the transfer amount
	// since the baseline, refuse to re-send rather than risk paying twice.
	if baselineKnown {
		balance, err := s.rpc.GetBalance(ctx, dest)
		if err != nil {
			return "", false, fmt.Errorf("check destination balance: %w", err)
		}
		if balance >= baseline+lamports {
			return "", false, fmt.Errorf("destination balance advanced without a confirmed attempt; refusing to re-send")
		}
	}

	return "", false, nil
}

// anyConfirmed is the memo variant of the landed check; best effort.
func (s *Submitter) anyConfirmed(ctx context.Context, sigs []string) (string, bool) {
	if len(sigs) == 0 {
		return "", false
	}
	statuses, err := s.rpc.GetSignatureStatuses(ctx, sigs)
	if err != nil {
		return "", false
	}
	for i, status := range statuses {
		if status.Confirmed() {
			return sigs[i], true
		}
	}
	return "", false
}

// awaitConfirmation waits for sig to confirm, preferring the WebSocket
// confirmer and falling back to status polling.
func (s *Submitter) awaitConfirmation(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	if s.confirmer != nil {
		err := s.confirmer.AwaitSignature(ctx, sig)
		if err == nil {
			return nil
		}
		var txErr *solana.TransactionError
		if errors.As(err, &txErr) {
			return err
		}
		// Connection trouble: fall through to polling.
	}

	for {
		statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{sig})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			status := statuses[0]
			if status.Err != nil {
				return &solana.TransactionError{Err: status.Err}
			}
			if status.Confirmed() {
				return nil
			}
		}
		if err := s.wait(ctx, s.pollInterval); err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}
	}
}

// isTerminal classifies errors that retrying cannot fix.
func isTerminal(err error) bool {
	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		return true
	}

	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		// An expired blockhash is the canonical retryable rejection.
		if strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "blockhash expired") {
			return false
		}
		for _, marker := range []string{"insufficient", "invalid", "unsupported", "malformed"} {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}
