package core

import (
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in  Value
		out string
		ok  bool
	}{
		{StringValue("1"), "1", true},
		{StringValue("2.50"), "2.5", true},
		{StringValue(" 1.5"), "1.5", true},
		{StringValue("1.5kg"), "1.5", true},
		{StringValue(".5"), "0.5", true},
		{StringValue("-.25"), "-0.25", true},
		{StringValue("2."), "2", true},
		{StringValue("1e3"), "1000", true},
		{StringValue("1e"), "1", true},
		{StringValue("-3"), "-3", true},
		{NumberValue(2.5), "2.5", true},
		{NumberValue(0), "0", true},
		{StringValue("abc"), "0", false},
		{StringValue(""), "0", false},
		{StringValue("."), "0", false},
		{StringValue("$4"), "0", false},
		{EmptyValue(), "0", false},
		{NumberValue(math.NaN()), "0", false},
		{NumberValue(math.Inf(1)), "0", false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok {
			t.Fatalf("%+v expected ok=%v, got %v", tc.in, tc.ok, ok)
		}
		if got.String() != tc.out {
			t.Fatalf("%+v expected %s, got %s", tc.in, tc.out, got.String())
		}
	}
}
