package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "tally.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateLineItem(ctx, core.LineItem{Item: "Bread", Category: "Food", Price: decimal.RequireFromString("2.50")})
	if err != nil {
		t.Fatalf("CreateLineItem: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	if _, err := repo.CreateLineItem(ctx, core.LineItem{Category: "Drinks"}); err != nil {
		t.Fatalf("CreateLineItem: %v", err)
	}

	recs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Item != "Bread" || recs[0].Price.StringFixed(2) != "2.50" || recs[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].ID != "2" || !recs[1].Price.IsZero() {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}

	rec, err := repo.GetRecord(ctx, 1)
	if err != nil || rec.Category != "Food" {
		t.Fatalf("GetRecord: %+v %v", rec, err)
	}
	if _, err := repo.GetRecord(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_SyncLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, cat := range []string{"a", "b", "c"} {
		if _, err := repo.CreateLineItem(ctx, core.LineItem{Category: cat}); err != nil {
			t.Fatalf("CreateLineItem: %v", err)
		}
	}

	pending, err := repo.GetPendingSync(ctx, 2)
	if err != nil {
		t.Fatalf("GetPendingSync: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != 1 {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	if err := repo.MarkSynced(ctx, 1); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, 2); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}

	pending, _ = repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].ID != 3 {
		t.Fatalf("expected only id 3 pending, got %+v", pending)
	}

	stats, err := repo.SyncStats(ctx)
	if err != nil {
		t.Fatalf("SyncStats: %v", err)
	}
	if stats[SyncPending] != 1 || stats[SyncSynced] != 1 || stats[SyncError] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.db")
	v1, err := RunMigrations(path, nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 1 || v2 != 1 {
		t.Fatalf("expected version 1, got %d and %d", v1, v2)
	}
}
