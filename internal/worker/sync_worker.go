// Package worker mirrors line items stored in SQLite to Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/storage"
)

// RecordSource is the local store the worker reads from and marks.
type RecordSource interface {
	GetRecord(ctx context.Context, id int64) (core.Record, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// RecordAppender is the remote sheet records are appended to.
type RecordAppender interface {
	AppendRecord(ctx context.Context, rec core.Record) (string, error)
}

// SyncWorker handles synchronization of line items from SQLite to Google Sheets
type SyncWorker struct {
	storage RecordSource
	sheets  RecordAppender
	logger  *log.Logger
}

func NewSyncWorker(storage RecordSource, sheets RecordAppender, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		storage: storage,
		sheets:  sheets,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage processes a single line item sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LineItemSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message", "id", msg.ID, "queued_at", msg.Timestamp)
	return w.SyncLineItem(ctx, msg.ID)
}

// SyncLineItem appends the stored line item to the sheet and marks it synced.
// Unknown ids are logged and skipped so their messages are not redelivered.
func (w *SyncWorker) SyncLineItem(ctx context.Context, id int64) error {
	rec, err := w.storage.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Line item no longer exists, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get line item from storage: %w", err)
	}

	ref, err := w.sheets.AppendRecord(ctx, rec)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", "id", id, log.FieldError, markErr.Error())
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The append already happened; a failed mark only means a later drain may
	// append it again.
	if err := w.storage.MarkSynced(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", "id", id, log.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Successfully synced line item",
		"id", id,
		log.FieldRecordRef, ref,
		log.FieldCategory, rec.Category,
		log.FieldPrice, rec.Price.String())
	return nil
}
