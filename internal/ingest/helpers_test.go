package ingest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tally/internal/core"
)

// workbook builds an xlsx file whose first sheet holds rows. Nil cells are
// left unset.
func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	writeSheet(t, f, "Sheet1", rows)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func writeSheet(t *testing.T, f *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
}

type fakeWriter struct {
	mu    sync.Mutex
	items []core.LineItem
	calls atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	delay time.Duration
	block chan struct{}
	fail  func(core.LineItem) error
}

func (w *fakeWriter) Insert(ctx context.Context, item core.LineItem) (string, error) {
	w.calls.Add(1)
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		m := w.maxInFlight.Load()
		if n <= m || w.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if w.fail != nil {
		if err := w.fail(item); err != nil {
			return "", err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append(w.items, item)
	return fmt.Sprintf("fake:%d", len(w.items)), nil
}

func (w *fakeWriter) stored() []core.LineItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.LineItem(nil), w.items...)
}

// totalsByCategory renders totals with two decimals for easy comparison.
func totalsByCategory(totals []core.CategoryTotal) map[string]string {
	out := make(map[string]string, len(totals))
	for _, ct := range totals {
		out[ct.Category] = ct.Total.StringFixed(2)
	}
	return out
}

func categories(totals []core.CategoryTotal) []string {
	out := make([]string, len(totals))
	for i, ct := range totals {
		out[i] = ct.Category
	}
	return out
}

func row(kv ...any) core.NormalizedRow {
	out := core.NormalizedRow{}
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			out[key] = core.StringValue(v)
		case float64:
			out[key] = core.NumberValue(v)
		case int:
			out[key] = core.NumberValue(float64(v))
		}
	}
	return out
}

// rawRow turns a normalized row back into a raw row with sorted keys.
func rawRow(row core.NormalizedRow) core.RawRow {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make(core.RawRow, len(keys))
	for i, k := range keys {
		out[i] = core.Cell{Key: k, Value: row[k]}
	}
	return out
}
