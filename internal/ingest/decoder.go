// Package ingest turns uploaded spreadsheets into per-category totals.
//
// A run flows through Decode, Normalize and Validate, then persists every
// row through a Sink while Aggregate computes the totals. Pipeline ties the
// stages together and publishes each transition to a Store.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"tally/internal/core"
	"tally/internal/log"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM   = []byte("\xef\xbb\xbf")
)

// Format is the detected container of an upload.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatCSV     Format = "csv"
	FormatUnknown Format = "unknown"
)

// DetectFormat sniffs the content, never the file name.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, ole2Magic):
		return FormatXLS
	case strings.HasPrefix(http.DetectContentType(data), "text/"):
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// Decoder reads the first worksheet of an upload into raw rows.
type Decoder struct {
	maxRows int
	logger  *log.Logger
}

// NewDecoder returns a decoder that rejects sheets with more than maxRows
// data rows. A maxRows of zero disables the limit.
func NewDecoder(maxRows int, logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Discard()
	}
	return &Decoder{maxRows: maxRows, logger: logger.WithComponent(log.ComponentIngest)}
}

// Decode parses data as a workbook or CSV file. Row 1 holds the headers.
func (d *Decoder) Decode(ctx context.Context, data []byte) ([]core.RawRow, error) {
	if len(data) == 0 {
		return nil, core.NewDecodeError("empty file", nil)
	}

	format := DetectFormat(data)
	d.logger.DebugContext(ctx, "Detected upload format", "format", format, log.FieldFileSize, len(data))

	switch format {
	case FormatXLSX:
		return d.decodeWorkbook(ctx, data)
	case FormatCSV:
		return d.DecodeCSV(ctx, bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	case FormatXLS:
		return nil, core.NewDecodeError("legacy workbook", core.ErrUnsupportedXLS)
	default:
		return nil, core.NewDecodeError("unrecognized content", nil)
	}
}

func (d *Decoder) decodeWorkbook(ctx context.Context, data []byte) ([]core.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, core.NewDecodeError("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []core.RawRow{}, nil
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, core.NewDecodeError(fmt.Sprintf("read sheet %q", sheet), err)
	}

	typeOf := func(col, row int) excelize.CellType {
		cell, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return excelize.CellTypeUnset
		}
		t, err := f.GetCellType(sheet, cell)
		if err != nil {
			return excelize.CellTypeUnset
		}
		return t
	}

	return d.buildRows(ctx, rows, func(col, row int, raw string) core.Value {
		return workbookValue(typeOf(col, row), raw)
	})
}

// DecodeCSV reads comma separated text with the same header and row rules as
// a workbook. Every cell is a string value.
func (d *Decoder) DecodeCSV(ctx context.Context, r io.Reader) ([]core.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.NewDecodeError("read csv", err)
		}
		rows = append(rows, rec)
		if d.maxRows > 0 && len(rows) > d.maxRows+1 {
			return nil, core.NewDecodeError(fmt.Sprintf("more than %d rows", d.maxRows), core.ErrTooManyRows)
		}
	}

	return d.buildRows(ctx, rows, func(_, _ int, raw string) core.Value {
		return core.StringValue(raw)
	})
}

func (d *Decoder) buildRows(ctx context.Context, rows [][]string, value func(col, row int, raw string) core.Value) ([]core.RawRow, error) {
	// The header is the first non-blank row, so a sheet whose used range
	// starts further down still decodes.
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	if start == len(rows) {
		return []core.RawRow{}, nil
	}
	if d.maxRows > 0 && len(rows)-start-1 > d.maxRows {
		return nil, core.NewDecodeError(fmt.Sprintf("more than %d rows", d.maxRows), core.ErrTooManyRows)
	}

	headers := headerNames(rows[start])
	out := make([]core.RawRow, 0, len(rows)-start-1)
	for r := start + 1; r < len(rows); r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var row core.RawRow
		for c, raw := range rows[r] {
			if c >= len(headers) || headers[c] == "" || raw == "" {
				continue
			}
			row = append(row, core.Cell{Key: headers[c], Value: value(c, r, raw)})
		}
		// Blank rows are dropped.
		if len(row) == 0 {
			continue
		}
		out = append(out, row)
	}

	d.logger.DebugContext(ctx, "Decoded sheet", log.FieldRows, len(out), "columns", len(headers))
	return out, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// headerNames returns one name per column. Blank headers stay blank so the
// column is skipped; exact repeats are suffixed _1, _2 and so on.
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		if strings.TrimSpace(h) == "" {
			continue
		}
		name := h
		if n, dup := seen[h]; dup {
			for {
				name = h + "_" + strconv.Itoa(n)
				n++
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[h] = n
		} else {
			seen[h] = 1
		}
		seen[name] = max(seen[name], 1)
		names[i] = name
	}
	return names
}

func workbookValue(t excelize.CellType, raw string) core.Value {
	switch t {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return core.NumberValue(f)
		}
	case excelize.CellTypeBool:
		if raw == "1" {
			return core.StringValue("TRUE")
		}
		if raw == "0" {
			return core.StringValue("FALSE")
		}
	}
	return core.StringValue(raw)
}
