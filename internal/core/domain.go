package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KeyItem     = "item"
	KeyCategory = "category"
	KeyPrice    = "price"
)

const (
	EmptyKind ValueKind = iota
	StringKind
	NumberKind
)

type (
	ValueKind int

	// Value is a single spreadsheet cell: a string, a number, or empty.
	Value struct {
		Kind ValueKind
		Str  string
		Num  float64
	}

	// Cell is one column of a decoded row, keyed by its header as written.
	Cell struct {
		Key   string
		Value Value
	}

	// RawRow keeps cells in header column order.
	RawRow []Cell

	// NormalizedRow maps canonical column names to cell values.
	NormalizedRow map[string]Value

	LineItem struct {
		Item     string
		Category string
		Price    decimal.Decimal
	}

	// CategoryTotal is the summed price of every line item sharing a category.
	CategoryTotal struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	}

	// Record is a line item as returned by a record store.
	Record struct {
		ID        string          `json:"id"`
		Item      string          `json:"item"`
		Category  string          `json:"category"`
		Price     decimal.Decimal `json:"price"`
		CreatedAt time.Time       `json:"created_at"`
	}
)

func StringValue(s string) Value  { return Value{Kind: StringKind, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: NumberKind, Num: f} }
func EmptyValue() Value           { return Value{} }

// IsEmpty reports whether the cell renders to the empty string.
func (v Value) IsEmpty() bool {
	return v.String() == ""
}

// String renders the cell the way it is shown and stored.
func (v Value) String() string {
	switch v.Kind {
	case StringKind:
		return v.Str
	case NumberKind:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Get returns the value stored under key and whether it was present.
func (r NormalizedRow) Get(key string) (Value, bool) {
	v, ok := r[key]
	return v, ok
}

func (r NormalizedRow) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// LineItemFromRow reads item, category and price from a normalized row.
// Price falls back to zero when absent or not a number.
func LineItemFromRow(row NormalizedRow) LineItem {
	price, ok := ParseNumber(row[KeyPrice])
	if !ok {
		price = decimal.Zero
	}
	return LineItem{
		Item:     row[KeyItem].String(),
		Category: row[KeyCategory].String(),
		Price:    price,
	}
}

// Key returns the canonical column name for a header as written.
func Key(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

// FormatTotal renders an amount with two decimals and a dollar sign.
func FormatTotal(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
