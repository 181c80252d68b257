package ingest

import (
	"context"
	"time"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

// Preload loads existing records into the store once at startup. A failure
// only sets the fetch error; uploads keep working either way.
func Preload(ctx context.Context, lister records.RecordLister, store *Store, logger *log.Logger) error {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentIngest)

	start := time.Now()
	recs, err := lister.List(ctx)
	if err != nil {
		store.SetFetchError(core.MsgFetchFailed)
		logger.ErrorContext(ctx, "Failed to preload records",
			log.FieldOperation, log.OpPreload,
			log.FieldError, err.Error())
		return err
	}

	store.SetRecords(recs)
	logger.InfoContext(ctx, "Preloaded records",
		log.FieldRows, len(recs),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
