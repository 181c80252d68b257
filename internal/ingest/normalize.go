package ingest

import "tally/internal/core"

// NormalizeRow rewrites every key to its canonical form. When two headers
// collapse to the same key the later column wins.
func NormalizeRow(row core.RawRow) core.NormalizedRow {
	out := make(core.NormalizedRow, len(row))
	for _, cell := range row {
		out[core.Key(cell.Key)] = cell.Value
	}
	return out
}

// Normalize applies NormalizeRow to every row, keeping order.
func Normalize(rows []core.RawRow) []core.NormalizedRow {
	out := make([]core.NormalizedRow, len(rows))
	for i, row := range rows {
		out[i] = NormalizeRow(row)
	}
	return out
}
