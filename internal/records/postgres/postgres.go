package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS "Spreadsheet Items" (
		id BIGSERIAL PRIMARY KEY,
		"Item" TEXT,
		"Category" TEXT,
		"Price" NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

	insertSQL = `INSERT INTO "Spreadsheet Items" ("Item", "Category", "Price") VALUES ($1, $2, $3) RETURNING id`

	listSQL = `SELECT id, COALESCE("Item", '') AS item, COALESCE("Category", '') AS category, "Price"::text AS price, created_at
	FROM "Spreadsheet Items" ORDER BY id`
)

// Store writes records to the "Spreadsheet Items" table.
type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

var _ records.Store = (*Store)(nil)

type recordRow struct {
	ID        int64     `db:"id"`
	Item      string    `db:"item"`
	Category  string    `db:"category"`
	Price     string    `db:"price"`
	CreatedAt time.Time `db:"created_at"`
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db, logger), nil
}

func New(db *sqlx.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{db: db, logger: logger.WithComponent(log.ComponentPostgres)}
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, it core.LineItem) (string, error) {
	var id int64
	if err := s.db.QueryRowxContext(ctx, insertSQL, it.Item, it.Category, it.Price.String()).Scan(&id); err != nil {
		return "", fmt.Errorf("insert line item: %w", err)
	}
	return "pg:" + strconv.FormatInt(id, 10), nil
}

func (s *Store) List(ctx context.Context) ([]core.Record, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, listSQL); err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}

	out := make([]core.Record, 0, len(rows))
	for _, r := range rows {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			s.logger.WarnContext(ctx, "Unreadable price, using zero", log.FieldRecordRef, r.ID, log.FieldPrice, r.Price)
			price = decimal.Zero
		}
		out = append(out, core.Record{
			ID:        strconv.FormatInt(r.ID, 10),
			Item:      r.Item,
			Category:  r.Category,
			Price:     price,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
