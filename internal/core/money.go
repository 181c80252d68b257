// Package core provides the domain types of the ingestion pipeline.
//
// This file contains number parsing for price cells. Prices are parsed
// leniently: a string cell contributes the longest leading decimal literal
// it contains, so "2.50 USD" is 2.50 and "abc" is not a number.
package core

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var leadingNumber = regexp.MustCompile(`^([+-]?)(\d*)(?:\.(\d*))?(?:[eE]([+-]?\d+))?`)

// ParseNumber converts a cell to a decimal amount.
//
// Number cells are used as-is (NaN and infinities are rejected). String cells
// are trimmed on the left and their leading decimal literal is parsed; an
// empty or non-numeric string reports false.
//
// Examples:
//
//	ParseNumber(StringValue("2.50"))   -> 2.5, true
//	ParseNumber(StringValue(" 1.5kg")) -> 1.5, true
//	ParseNumber(StringValue(".5"))     -> 0.5, true
//	ParseNumber(StringValue("abc"))    -> 0, false
//	ParseNumber(EmptyValue())          -> 0, false
func ParseNumber(v Value) (decimal.Decimal, bool) {
	switch v.Kind {
	case NumberKind:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v.Num), true
	case StringKind:
		return parseLeadingDecimal(v.Str)
	default:
		return decimal.Zero, false
	}
}

func parseLeadingDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	sign, intPart, fracPart, exp := m[1], m[2], m[3], m[4]
	if intPart == "" && fracPart == "" {
		return decimal.Zero, false
	}
	if intPart == "" {
		intPart = "0"
	}
	literal := sign + intPart
	if fracPart != "" {
		literal += "." + fracPart
	}
	if exp != "" {
		literal += "e" + exp
	}
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
