package ingest

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

const (
	DefaultPersistConcurrency = 8
	DefaultPersistTimeout     = 10 * time.Second
)

// SinkConfig bounds the writes issued for one batch.
type SinkConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// RowResult is the outcome of writing a single row.
type RowResult struct {
	Index int
	Ref   string
	Err   error
}

// PersistReport collects the outcome of every write in a batch, in row order.
type PersistReport struct {
	Results   []RowResult
	Succeeded int
	Failed    int
}

// Errors returns the errors of the failed rows. Each is a *core.RowPersistError.
func (r PersistReport) Errors() []error {
	var out []error
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// Sink writes line items to a record store through a bounded worker pool.
type Sink struct {
	writer records.RecordWriter
	cfg    SinkConfig
	logger *log.Logger
}

func NewSink(writer records.RecordWriter, cfg SinkConfig, logger *log.Logger) *Sink {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultPersistConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPersistTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Sink{writer: writer, cfg: cfg, logger: logger.WithComponent(log.ComponentSink)}
}

// Persist writes one line item per row and waits for every write to settle.
// A failed or timed out write is logged and reported; it never cancels the
// rest of the batch.
func (s *Sink) Persist(ctx context.Context, rows []core.NormalizedRow) PersistReport {
	report := PersistReport{Results: make([]RowResult, len(rows))}
	if len(rows) == 0 {
		return report
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, row := range rows {
		item := core.LineItemFromRow(row)
		g.Go(func() error {
			report.Results[i] = s.write(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range report.Results {
		if res.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}

	s.logger.InfoContext(ctx, "Persisted batch",
		log.FieldRows, len(rows),
		log.FieldSucceeded, report.Succeeded,
		log.FieldFailed, report.Failed,
		log.FieldDuration, time.Since(start).Milliseconds())
	return report
}

func (s *Sink) write(ctx context.Context, index int, item core.LineItem) RowResult {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type outcome struct {
		ref string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ref, err := s.writer.Insert(wctx, item)
		done <- outcome{ref, err}
	}()

	// Writers that ignore ctx are still cut off at the timeout.
	var o outcome
	select {
	case o = <-done:
	case <-wctx.Done():
		o.err = wctx.Err()
	}

	ref, err := o.ref, o.err
	if err != nil {
		rowErr := &core.RowPersistError{Index: index, Err: err}
		fields := log.NewFields().
			WithOperation(log.OpInsert).
			WithLineItem(index, item.Item, item.Category, item.Price.String()).
			WithError(rowErr)
		s.logger.ErrorContext(ctx, "Failed to persist line item", fields.ToSlice()...)
		return RowResult{Index: index, Err: rowErr}
	}
	return RowResult{Index: index, Ref: ref}
}
