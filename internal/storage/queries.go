package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// SyncStatus values stored in line_items.sync_status.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// LineItem is a row of the line_items table.
type LineItem struct {
	ID         int64
	Item       string
	Category   string
	Price      string
	CreatedAt  string
	SyncStatus string
	SyncedAt   sql.NullString
}

const lineItemColumns = `id, item, category, price, created_at, sync_status, synced_at`

func scanLineItem(row interface{ Scan(...any) error }) (LineItem, error) {
	var i LineItem
	err := row.Scan(&i.ID, &i.Item, &i.Category, &i.Price, &i.CreatedAt, &i.SyncStatus, &i.SyncedAt)
	return i, err
}

const createLineItem = `INSERT INTO line_items (item, category, price, created_at)
VALUES (?, ?, ?, ?)
RETURNING ` + lineItemColumns

type CreateLineItemParams struct {
	Item      string
	Category  string
	Price     string
	CreatedAt string
}

func (q *Queries) CreateLineItem(ctx context.Context, arg CreateLineItemParams) (LineItem, error) {
	row := q.db.QueryRowContext(ctx, createLineItem, arg.Item, arg.Category, arg.Price, arg.CreatedAt)
	return scanLineItem(row)
}

const getLineItem = `SELECT ` + lineItemColumns + ` FROM line_items WHERE id = ?`

func (q *Queries) GetLineItem(ctx context.Context, id int64) (LineItem, error) {
	return scanLineItem(q.db.QueryRowContext(ctx, getLineItem, id))
}

const listLineItems = `SELECT ` + lineItemColumns + ` FROM line_items ORDER BY id`

func (q *Queries) ListLineItems(ctx context.Context) ([]LineItem, error) {
	return q.query(ctx, listLineItems)
}

const getPendingSyncLineItems = `SELECT ` + lineItemColumns + ` FROM line_items
WHERE sync_status = 'pending'
ORDER BY id
LIMIT ?`

func (q *Queries) GetPendingSyncLineItems(ctx context.Context, limit int64) ([]LineItem, error) {
	return q.query(ctx, getPendingSyncLineItems, limit)
}

const markLineItemSynced = `UPDATE line_items SET sync_status = 'synced', synced_at = ? WHERE id = ?`

func (q *Queries) MarkLineItemSynced(ctx context.Context, syncedAt string, id int64) error {
	_, err := q.db.ExecContext(ctx, markLineItemSynced, syncedAt, id)
	return err
}

const markLineItemSyncError = `UPDATE line_items SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkLineItemSyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markLineItemSyncError, id)
	return err
}

const countLineItemsByStatus = `SELECT sync_status, COUNT(*) FROM line_items GROUP BY sync_status`

func (q *Queries) CountLineItemsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countLineItemsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (q *Queries) query(ctx context.Context, query string, args ...any) ([]LineItem, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		i, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
