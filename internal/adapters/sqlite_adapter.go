package adapters

import (
	"context"

	"tally/internal/core"
	"tally/internal/records"
	"tally/internal/services"
	"tally/internal/storage"
)

// SQLiteAdapter exposes the SQLite repository and the line item service as a
// records.Store, so the upload pipeline writes through the service (and its
// sync publishing) while listings read straight from SQLite.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.LineItemService
}

var _ records.Store = (*SQLiteAdapter)(nil)

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.LineItemService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// Insert implements records.RecordWriter
func (a *SQLiteAdapter) Insert(ctx context.Context, it core.LineItem) (string, error) {
	return a.service.Insert(ctx, it)
}

// List implements records.RecordLister
func (a *SQLiteAdapter) List(ctx context.Context) ([]core.Record, error) {
	return a.storage.List(ctx)
}

func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

// Close closes the service, which owns the repository and the AMQP client.
func (a *SQLiteAdapter) Close() error {
	return a.service.Close()
}
