package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{StringValue("Food"), "Food"},
		{NumberValue(2.5), "2.5"},
		{NumberValue(3), "3"},
		{EmptyValue(), ""},
	}
	for i, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("case %d expected %q, got %q", i, tc.want, got)
		}
	}
}

func TestLineItemFromRow(t *testing.T) {
	item := LineItemFromRow(NormalizedRow{
		KeyItem:     StringValue("Bread"),
		KeyCategory: StringValue("Food"),
		KeyPrice:    StringValue("2.50"),
	})
	if item.Item != "Bread" || item.Category != "Food" || !item.Price.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected item: %+v", item)
	}

	item = LineItemFromRow(NormalizedRow{KeyCategory: StringValue("Drinks"), KeyPrice: StringValue("abc")})
	if item.Item != "" || !item.Price.IsZero() {
		t.Fatalf("expected zero price and empty item, got %+v", item)
	}
}

func TestKey(t *testing.T) {
	for _, in := range []string{"Category", " CATEGORY ", "category", "\tcategory\n"} {
		if got := Key(in); got != "category" {
			t.Fatalf("Key(%q) = %q", in, got)
		}
	}
}

func TestFormatTotal(t *testing.T) {
	if got := FormatTotal(decimal.RequireFromString("2.5")); got != "$2.50" {
		t.Fatalf("got %s", got)
	}
	if got := FormatTotal(decimal.Zero); got != "$0.00" {
		t.Fatalf("got %s", got)
	}
}

func TestAsPipelineError(t *testing.T) {
	decodeErr := fmt.Errorf("run: %w", NewDecodeError("open workbook", errors.New("zip: not a valid zip file")))
	pe, ok := AsPipelineError(decodeErr)
	if !ok || pe.Kind != KindDecode || pe.Message != MsgDecodeFailed {
		t.Fatalf("unexpected decode mapping: %+v ok=%v", pe, ok)
	}

	pe, ok = AsPipelineError(&SchemaError{Column: KeyCategory})
	if !ok || pe.Kind != KindSchema || pe.Message != "No 'category' column" {
		t.Fatalf("unexpected schema mapping: %+v ok=%v", pe, ok)
	}

	if _, ok := AsPipelineError(errors.New("boom")); ok {
		t.Fatalf("unexpected mapping for unrelated error")
	}
	if !errors.Is(&SchemaError{}, ErrNoCategoryColumn) {
		t.Fatalf("schema error should unwrap to ErrNoCategoryColumn")
	}
}
