package ingest

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"tally/internal/core"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		rows  []core.NormalizedRow
		order []string
		want  map[string]string
	}{
		{
			name: "category values are case sensitive",
			rows: []core.NormalizedRow{
				row("category", "Food", "item", "Bread", "price", "2.50"),
				row("category", "food", "price", "1.5"),
				row("category", "Drinks", "price", "abc"),
			},
			order: []string{"Food", "food", "Drinks"},
			want:  map[string]string{"Food": "2.50", "food": "1.50", "Drinks": "0.00"},
		},
		{
			name: "missing and non numeric prices add zero",
			rows: []core.NormalizedRow{
				row("category", "Tools"),
				row("category", "Tools", "price", "n/a"),
				row("category", "Tools", "price", 4),
			},
			order: []string{"Tools"},
			want:  map[string]string{"Tools": "4.00"},
		},
		{
			name: "rows without category are skipped",
			rows: []core.NormalizedRow{
				row("item", "Orphan", "price", "9"),
				row("category", "", "price", "5"),
				row("category", "Food", "price", "1"),
			},
			order: []string{"Food"},
			want:  map[string]string{"Food": "1.00"},
		},
		{
			name: "numeric category",
			rows: []core.NormalizedRow{
				row("category", 0, "price", "1"),
				row("category", 2024, "price", 2.25),
			},
			order: []string{"0", "2024"},
			want:  map[string]string{"0": "1.00", "2024": "2.25"},
		},
		{
			name: "decimal sums are exact",
			rows: []core.NormalizedRow{
				row("category", "a", "price", 0.1),
				row("category", "a", "price", 0.2),
			},
			order: []string{"a"},
			want:  map[string]string{"a": "0.30"},
		},
		{
			name:  "no rows",
			rows:  nil,
			order: []string{},
			want:  map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.rows)
			assert.Equal(t, tt.order, categories(got))
			assert.Equal(t, tt.want, totalsByCategory(got))
		})
	}
}

func TestAggregate_ExactTotal(t *testing.T) {
	got := Aggregate([]core.NormalizedRow{
		row("category", "a", "price", 0.1),
		row("category", "a", "price", 0.2),
	})
	assert.Equal(t, "0.3", got[0].Total.String())
}

func TestAggregate_OrderInvariant(t *testing.T) {
	rows := []core.NormalizedRow{
		row("category", "Food", "price", "2.50"),
		row("category", "Drinks", "price", "1.25"),
		row("category", "Food", "price", "3"),
		row("category", "", "price", "7"),
		row("category", "Drinks", "price", "x"),
		row("category", "Home", "price", 10.5),
	}
	want := totalsByCategory(Aggregate(rows))

	reversed := slices.Clone(rows)
	slices.Reverse(reversed)
	assert.Equal(t, want, totalsByCategory(Aggregate(reversed)))

	rotated := append(slices.Clone(rows[2:]), rows[:2]...)
	assert.Equal(t, want, totalsByCategory(Aggregate(rotated)))
}

func TestAggregate_NoEmptyCategoryEntry(t *testing.T) {
	got := Aggregate([]core.NormalizedRow{
		row("price", "1"),
		{"category": core.EmptyValue(), "price": core.StringValue("2")},
	})
	assert.Empty(t, got)
	assert.NotContains(t, totalsByCategory(got), "")
}
