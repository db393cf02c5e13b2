package memory

import (
	"context"
	"errors"
	"testing"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/storage"
)

func TestPriceSampleStore_InsertAndQuery(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	samples := []*domain.PriceSample{
		{FeedID: "feed1", Price: 24.5, FetchedAt: 3000},
		{FeedID: "feed1", Price: 24.1, FetchedAt: 1000},
		{FeedID: "feed1", Price: 24.3, FetchedAt: 2000},
		{FeedID: "feed2", Price: 99.9, FetchedAt: 1500},
	}
	for _, s := range samples {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByFeed(ctx, "feed1", 1000, 2000)
	if err != nil {
		t.Fatalf("GetByFeed failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(got))
	}
	if got[0].FetchedAt != 1000 || got[1].FetchedAt != 2000 {
		t.Errorf("Samples out of order: %d, %d", got[0].FetchedAt, got[1].FetchedAt)
	}
	if got[0].Price != 24.1 {
		t.Errorf("Price = %v, want 24.1", got[0].Price)
	}
}

func TestPriceSampleStore_EmptyResult(t *testing.T) {
	store := NewPriceSampleStore()

	got, err := store.GetByFeed(context.Background(), "unknown", 0, 1<<60)
	if err != nil {
		t.Fatalf("GetByFeed failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no samples, got %d", len(got))
	}
}

func TestPriceSampleStore_InvalidInput(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.PriceSample{FeedID: ""}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
