package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tally/internal/core"
	"tally/internal/log"
)

// ErrNotFound is returned when a line item id does not exist.
var ErrNotFound = errors.New("line item not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// PendingSyncItem is the minimal data needed to enqueue a sync message.
type PendingSyncItem struct {
	ID        int64
	CreatedAt time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateLineItem stores the item as pending sync and returns its id.
func (r *SQLiteRepository) CreateLineItem(ctx context.Context, it core.LineItem) (int64, error) {
	row, err := r.queries.CreateLineItem(ctx, CreateLineItemParams{
		Item:      it.Item,
		Category:  it.Category,
		Price:     it.Price.String(),
		CreatedAt: r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, fmt.Errorf("create line item: %w", err)
	}

	r.logger.DebugContext(ctx, "Line item saved to SQLite",
		"id", row.ID,
		log.FieldCategory, row.Category,
		log.FieldPrice, row.Price)
	return row.ID, nil
}

// GetRecord loads a single line item.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	row, err := r.queries.GetLineItem(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("get line item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get line item %d: %w", id, err)
	}
	return toRecord(row), nil
}

// List returns every stored line item in insertion order.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Record, error) {
	rows, err := r.queries.ListLineItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	out := make([]core.Record, len(rows))
	for i, row := range rows {
		out[i] = toRecord(row)
	}
	return out, nil
}

// GetPendingSync returns up to limit line items not yet mirrored to Sheets.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSyncItem, error) {
	rows, err := r.queries.GetPendingSyncLineItems(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync line items: %w", err)
	}
	out := make([]PendingSyncItem, len(rows))
	for i, row := range rows {
		out[i] = PendingSyncItem{ID: row.ID, CreatedAt: parseTime(row.CreatedAt)}
	}
	return out, nil
}

// MarkSynced marks a line item as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.queries.MarkLineItemSynced(ctx, r.now().UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("mark line item synced: %w", err)
	}
	r.logger.DebugContext(ctx, "Line item marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a line item whose mirroring failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.queries.MarkLineItemSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark line item sync error: %w", err)
	}
	r.logger.WarnContext(ctx, "Line item marked with sync error", "id", id)
	return nil
}

// SyncStats counts line items per sync status.
func (r *SQLiteRepository) SyncStats(ctx context.Context) (map[string]int64, error) {
	stats, err := r.queries.CountLineItemsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count line items: %w", err)
	}
	return stats, nil
}

func toRecord(row LineItem) core.Record {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		price = decimal.Zero
	}
	return core.Record{
		ID:        strconv.FormatInt(row.ID, 10),
		Item:      row.Item,
		Category:  row.Category,
		Price:     price,
		CreatedAt: parseTime(row.CreatedAt),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
