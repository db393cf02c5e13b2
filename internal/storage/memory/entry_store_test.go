package memory

import (
	"context"
	"errors"
	"testing"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

func TestEntryStore_InsertAndGet(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	e := &domain.EntryRecord{
		Wallet:      "walletA",
		EnteredAt:   1700000000,
		TxSignature: "sig1",
		FeePaid:     10_000_000,
	}

	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get(ctx, "walletA")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TxSignature != "sig1" {
		t.Errorf("TxSignature mismatch: got %s, want sig1", got.TxSignature)
	}
	if got.FeePaid != 10_000_000 {
		t.Errorf("FeePaid mismatch: got %d, want 10000000", got.FeePaid)
	}
}

func TestEntryStore_DuplicateWallet(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	e := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 1, TxSignature: "sig1"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	dup := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 2, TxSignature: "sig2"}
	if err := store.Insert(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestEntryStore_ConsumedSignature(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	e := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 1, TxSignature: "sig1"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// The same signature cannot admit another wallet.
	replay := &domain.EntryRecord{Wallet: "walletB", EnteredAt: 2, TxSignature: "sig1"}
	if err := store.Insert(ctx, replay); !errors.Is(err, storage.ErrSignatureConsumed) {
		t.Errorf("Expected ErrSignatureConsumed, got %v", err)
	}

	consumed, err := store.SignatureConsumed(ctx, "sig1")
	if err != nil {
		t.Fatalf("SignatureConsumed failed: %v", err)
	}
	if !consumed {
		t.Error("Expected sig1 consumed")
	}

	consumed, err = store.SignatureConsumed(ctx, "sig-unknown")
	if err != nil {
		t.Fatalf("SignatureConsumed failed: %v", err)
	}
	if consumed {
		t.Error("Expected sig-unknown not consumed")
	}
}

func TestEntryStore_DeleteKeepsSignatureConsumed(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	e := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 1, TxSignature: "sig1"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Delete(ctx, "walletA"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "walletA"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Exit does not release the signature.
	consumed, _ := store.SignatureConsumed(ctx, "sig1")
	if !consumed {
		t.Error("Signature should stay consumed after the entry is deleted")
	}
	reentry := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 2, TxSignature: "sig1"}
	if err := store.Insert(ctx, reentry); !errors.Is(err, storage.ErrSignatureConsumed) {
		t.Errorf("Expected ErrSignatureConsumed on re-entry, got %v", err)
	}
}

func TestEntryStore_DeleteNotFound(t *testing.T) {
	store := NewEntryStore()

	if err := store.Delete(context.Background(), "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestEntryStore_ListOrdered(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	entries := []*domain.EntryRecord{
		{Wallet: "walletC", EnteredAt: 3000, TxSignature: "sig3"},
		{Wallet: "walletA", EnteredAt: 1000, TxSignature: "sig1"},
		{Wallet: "walletB", EnteredAt: 2000, TxSignature: "sig2"},
	}
	for _, e := range entries {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	for i, wallet := range []string{"walletA", "walletB", "walletC"} {
		if got[i].Wallet != wallet {
			t.Errorf("Entry %d = %s, want %s", i, got[i].Wallet, wallet)
		}
	}
}

func TestEntryStore_InvalidInput(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	cases := []*domain.EntryRecord{
		nil,
		{Wallet: "", TxSignature: "sig1"},
		{Wallet: "walletA", TxSignature: ""},
	}
	for _, e := range cases {
		if err := store.Insert(ctx, e); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Insert(%+v): expected ErrInvalidInput, got %v", e, err)
		}
	}
}

func TestEntryStore_CopyOnReadWrite(t *testing.T) {
	store := NewEntryStore()
	ctx := context.Background()

	e := &domain.EntryRecord{Wallet: "walletA", EnteredAt: 1, TxSignature: "sig1"}
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the inserted value or a read result must not leak into
	// the store.
	e.FeePaid = 999
	got, _ := store.Get(ctx, "walletA")
	if got.FeePaid != 0 {
		t.Error("store leaked a reference to the inserted record")
	}
	got.FeePaid = 777
	again, _ := store.Get(ctx, "walletA")
	if again.FeePaid != 0 {
		t.Error("store leaked a reference to a read result")
	}
}
