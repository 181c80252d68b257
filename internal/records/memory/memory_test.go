package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

func TestMemoryStoreInsertAndList(t *testing.T) {
	s := New()
	ref, err := s.Insert(context.Background(), core.LineItem{
		Item:     "Bread",
		Category: "Food",
		Price:    decimal.RequireFromString("2.50"),
	})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected insert: ref=%q err=%v", ref, err)
	}
	ref, _ = s.Insert(context.Background(), core.LineItem{Category: "Drinks"})
	if ref != "mem:2" {
		t.Fatalf("unexpected second ref %q", ref)
	}

	recs, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].Item != "Bread" || recs[1].Category != "Drinks" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	recs[0].Item = "mutated"
	again, _ := s.List(context.Background())
	if again[0].Item != "Bread" {
		t.Fatalf("List must return a copy")
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Insert(ctx, core.LineItem{}); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromDir(dir)
	if err != nil {
		t.Fatalf("missing seed should not fail: %v", err)
	}
	if recs, _ := s.List(context.Background()); len(recs) != 0 {
		t.Fatalf("expected empty store, got %d", len(recs))
	}

	content := "# comment\nItem, Category ,Price\nBread,Food,2.50\n\nTea,Drinks,abc\n"
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromDir(dir)
	if err != nil {
		t.Fatalf("NewFromDir: %v", err)
	}
	recs, _ := s.List(context.Background())
	if len(recs) != 2 {
		t.Fatalf("expected 2 seeded records, got %+v", recs)
	}
	if recs[0].Price.StringFixed(2) != "2.50" || recs[1].Category != "Drinks" || !recs[1].Price.IsZero() {
		t.Fatalf("unexpected seeded records: %+v", recs)
	}
}

func TestNewFromDirRequiresCategory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, SeedFile), []byte("item,price\nBread,1\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewFromDir(dir); err == nil {
		t.Fatalf("expected error for seed without category column")
	}
}
