package gate

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"portsol-gate/internal/solana"
	"portsol-gate/internal/solana/stub"
	"portsol-gate/internal/storage/memory"
)

// testAddr derives a deterministic valid on-curve wallet address.
func testAddr(t *testing.T, seed byte) string {
	t.Helper()

	s := bytes.Repeat([]byte{seed}, ed25519.SeedSize)
	kp, err := solana.KeypairFromBytes(ed25519.NewKeyFromSeed(s))
	if err != nil {
		t.Fatalf("derive keypair: %v", err)
	}
	return kp.Pubkey()
}

func newTestGate(t *testing.T, cfg Config, rpc *stub.RPCClient) (*Gate, *memory.EntryStore) {
	t.Helper()

	entries := memory.NewEntryStore()
	g, err := New(cfg, rpc, entries, log.New(os.Stderr, "[gate-test] ", 0))
	if err != nil {
		t.Fatalf("New gate: %v", err)
	}
	return g, entries
}

// paymentTx builds a verifiable transfer transaction in the stub ledger.
func paymentTx(sig, sender, treasury string, lamports uint64) *solana.Transaction {
	return &solana.Transaction{
		Slot:      100,
		Signature: sig,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{1_000_000_000, 50_000_000},
			PostBalances: []uint64{1_000_000_000 - lamports - 5000, 50_000_000 + lamports},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{sender, treasury, solana.SystemProgramID},
		},
	}
}

func TestVerifyPayment_Accepted(t *testing.T) {
	treasury := testAddr(t, 1)
	sender := testAddr(t, 2)
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(paymentTx("sig-1", sender, treasury, 10_000_000))

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	received, err := g.VerifyPayment(context.Background(), "sig-1", sender, 0)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if received != 10_000_000 {
		t.Errorf("received = %d, want 10000000", received)
	}
}

func TestVerifyPayment_TransactionNotFound(t *testing.T) {
	treasury := testAddr(t, 1)
	rpc := stub.NewRPCClient()

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	_, err := g.VerifyPayment(context.Background(), "missing-sig", testAddr(t, 2), 0)
	var vErr *VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestVerifyPayment_FailedOnChain(t *testing.T) {
	treasury := testAddr(t, 1)
	sender := testAddr(t, 2)
	rpc := stub.NewRPCClient()

	tx := paymentTx("sig-1", sender, treasury, 10_000_000)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	rpc.AddTransaction(tx)

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	_, err := g.VerifyPayment(context.Background(), "sig-1", sender, 0)
	var vErr *VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestVerifyPayment_PartiesAbsent(t *testing.T) {
	treasury := testAddr(t, 1)
	sender := testAddr(t, 2)
	other := testAddr(t, 3)
	rpc := stub.NewRPCClient()

	// Treasury not among the account keys.
	rpc.AddTransaction(paymentTx("sig-1", sender, other, 10_000_000))
	// Sender not among the account keys.
	rpc.AddTransaction(paymentTx("sig-2", other, treasury, 10_000_000))

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	var vErr *VerificationError
	if _, err := g.VerifyPayment(context.Background(), "sig-1", sender, 0); !errors.As(err, &vErr) {
		t.Errorf("missing treasury: expected VerificationError, got %v", err)
	}
	if _, err := g.VerifyPayment(context.Background(), "sig-2", sender, 0); !errors.As(err, &vErr) {
		t.Errorf("missing sender: expected VerificationError, got %v", err)
	}
}

func TestVerifyPayment_InsufficientAmount(t *testing.T) {
	treasury := testAddr(t, 1)
	sender := testAddr(t, 2)
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(paymentTx("sig-1", sender, treasury, 9_999_999))

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	_, err := g.VerifyPayment(context.Background(), "sig-1", sender, 10_000_000)
	var vErr *VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestVerifyPayment_NoBalanceIncrease(t *testing.T) {
	treasury := testAddr(t, 1)
	sender := testAddr(t, 2)
	rpc := stub.NewRPCClient()

	tx := paymentTx("sig-1", sender, treasury, 10_000_000)
	tx.Meta.PostBalances[1] = tx.Meta.PreBalances[1] // treasury unchanged
	rpc.AddTransaction(tx)

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	_, err := g.VerifyPayment(context.Background(), "sig-1", sender, 0)
	var vErr *VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestVerifyPayment_ReplayAcrossWallets(t *testing.T) {
	treasury := testAddr(t, 1)
	walletA := testAddr(t, 2)
	walletB := testAddr(t, 3)
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(paymentTx("sig-1", walletA, treasury, 10_000_000))

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)
	ctx := context.Background()

	if _, err := g.VerifyPayment(ctx, "sig-1", walletA, 0); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if err := g.RegisterEntry(ctx, walletA, "sig-1"); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	// The consumed signature admits nobody else, and not even the same
	// wallet again.
	if _, err := g.VerifyPayment(ctx, "sig-1", walletB, 0); !errors.Is(err, ErrSignatureReplayed) {
		t.Errorf("expected ErrSignatureReplayed for walletB, got %v", err)
	}
	if err := g.RegisterEntry(ctx, walletB, "sig-1"); !errors.Is(err, ErrSignatureReplayed) {
		t.Errorf("expected ErrSignatureReplayed on register, got %v", err)
	}
}

func TestRegisterEntry_AlreadyEntered(t *testing.T) {
	treasury := testAddr(t, 1)
	wallet := testAddr(t, 2)
	g, _ := newTestGate(t, Config{Treasury: treasury}, stub.NewRPCClient())
	ctx := context.Background()

	if err := g.RegisterEntry(ctx, wallet, "sig-1"); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	if err := g.RegisterEntry(ctx, wallet, "sig-2"); !errors.Is(err, ErrAlreadyEntered) {
		t.Errorf("expected ErrAlreadyEntered, got %v", err)
	}
}

func TestRegisterEntry_InvalidWallet(t *testing.T) {
	treasury := testAddr(t, 1)
	g, _ := newTestGate(t, Config{Treasury: treasury}, stub.NewRPCClient())

	err := g.RegisterEntry(context.Background(), "not-a-valid-address-0OIl", "sig-1")
	var vErr *VerificationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
}

func TestIsActive_Expiry(t *testing.T) {
	treasury := testAddr(t, 1)
	wallet := testAddr(t, 2)
	g, _ := newTestGate(t, Config{
		Treasury:      treasury,
		EntryDuration: 7 * 24 * time.Hour,
		EnforceExpiry: true,
	}, stub.NewRPCClient())
	ctx := context.Background()

	entered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return entered }

	if err := g.RegisterEntry(ctx, wallet, "sig-1"); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	g.now = func() time.Time { return entered.Add(6 * 24 * time.Hour) }
	if !g.IsActive(ctx, wallet) {
		t.Error("entry should be active before the duration elapses")
	}

	g.now = func() time.Time { return entered.Add(7 * 24 * time.Hour) }
	if g.IsActive(ctx, wallet) {
		t.Error("entry should have expired")
	}
}

func TestIsActive_ExpiryNotEnforced(t *testing.T) {
	treasury := testAddr(t, 1)
	wallet := testAddr(t, 2)
	g, _ := newTestGate(t, Config{
		Treasury:      treasury,
		EntryDuration: time.Hour,
		EnforceExpiry: false,
	}, stub.NewRPCClient())
	ctx := context.Background()

	entered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return entered }

	if err := g.RegisterEntry(ctx, wallet, "sig-1"); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}

	g.now = func() time.Time { return entered.Add(365 * 24 * time.Hour) }
	if !g.IsActive(ctx, wallet) {
		t.Error("entry should never expire when enforcement is off")
	}
}

func TestIsActive_Bypass(t *testing.T) {
	treasury := testAddr(t, 1)
	g, _ := newTestGate(t, Config{Treasury: treasury, BypassAdmission: true}, stub.NewRPCClient())

	if !g.IsActive(context.Background(), testAddr(t, 9)) {
		t.Error("bypass should treat any wallet as active")
	}
}

func TestIsActive_UnknownWallet(t *testing.T) {
	treasury := testAddr(t, 1)
	g, _ := newTestGate(t, Config{Treasury: treasury}, stub.NewRPCClient())

	if g.IsActive(context.Background(), testAddr(t, 9)) {
		t.Error("unknown wallet should not be active")
	}
}

func TestRemoveEntry_SignatureStaysConsumed(t *testing.T) {
	treasury := testAddr(t, 1)
	wallet := testAddr(t, 2)
	g, _ := newTestGate(t, Config{Treasury: treasury}, stub.NewRPCClient())
	ctx := context.Background()

	if err := g.RegisterEntry(ctx, wallet, "sig-1"); err != nil {
		t.Fatalf("RegisterEntry: %v", err)
	}
	if err := g.RemoveEntry(ctx, wallet); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if g.IsActive(ctx, wallet) {
		t.Error("removed wallet should not be active")
	}

	// Re-entry with the old signature is a replay.
	if err := g.RegisterEntry(ctx, wallet, "sig-1"); !errors.Is(err, ErrSignatureReplayed) {
		t.Errorf("expected ErrSignatureReplayed, got %v", err)
	}

	// Removing again is a no-op.
	if err := g.RemoveEntry(ctx, wallet); err != nil {
		t.Errorf("second RemoveEntry: %v", err)
	}
}

func TestLedgerBalance_FailSoft(t *testing.T) {
	treasury := testAddr(t, 1)
	wallet := testAddr(t, 2)
	rpc := stub.NewRPCClient()
	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)
	ctx := context.Background()

	rpc.SetBalance(wallet, 42_000_000)
	balance, ok := g.LedgerBalance(ctx, wallet)
	if !ok || balance != 42_000_000 {
		t.Errorf("LedgerBalance = (%d, %v), want (42000000, true)", balance, ok)
	}

	rpc.FailBalance(errors.New("rpc unreachable"))
	balance, ok = g.LedgerBalance(ctx, wallet)
	if ok || balance != 0 {
		t.Errorf("LedgerBalance = (%d, %v), want (0, false)", balance, ok)
	}
}

func TestRewardPool(t *testing.T) {
	treasury := testAddr(t, 1)
	rpc := stub.NewRPCClient()
	rpc.SetBalance(treasury, 2_000_000_000)

	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	pool, ok := g.RewardPool(context.Background())
	if !ok || pool != 2_000_000_000 {
		t.Errorf("RewardPool = (%d, %v), want (2000000000, true)", pool, ok)
	}
}

func TestConnected(t *testing.T) {
	treasury := testAddr(t, 1)
	rpc := stub.NewRPCClient()
	g, _ := newTestGate(t, Config{Treasury: treasury}, rpc)

	if !g.Connected(context.Background()) {
		t.Error("expected connected")
	}

	rpc.HealthErr = errors.New("node is behind")
	if g.Connected(context.Background()) {
		t.Error("expected disconnected")
	}
}
