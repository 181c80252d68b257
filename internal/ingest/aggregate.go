package ingest

import (
	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Aggregate sums prices per category in first-seen order.
//
// Category values are compared exactly as written, so "Food" and "food" are
// two categories. Rows with an empty category contribute nothing. A price
// that is missing or not a number adds zero but still creates the entry.
func Aggregate(rows []core.NormalizedRow) []core.CategoryTotal {
	index := make(map[string]int)
	var out []core.CategoryTotal

	for _, row := range rows {
		category := row[core.KeyCategory].String()
		if category == "" {
			continue
		}
		i, ok := index[category]
		if !ok {
			i = len(out)
			index[category] = i
			out = append(out, core.CategoryTotal{Category: category, Total: decimal.Zero})
		}
		if price, ok := core.ParseNumber(row[core.KeyPrice]); ok {
			out[i].Total = out[i].Total.Add(price)
		}
	}

	if out == nil {
		return []core.CategoryTotal{}
	}
	return out
}
