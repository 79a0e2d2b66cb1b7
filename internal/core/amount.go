// Package core provides amount parsing and formatting utilities.
//
// This file contains the conversions between the free-text amount typed in
// the forms and the REAL value persisted by the store.
package core

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a form amount to a float.
//
// Any finite decimal number is accepted, including negatives, zero and
// exponent notation. Decimal commas and hex floats are rejected. NaN and the
// infinities are rejected because the column cannot hold them.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("-5")    -> -5, nil
//	ParseAmount("12,34") -> 0, ErrInvalidAmount
//	ParseAmount("0x1p3") -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if isHex(s) {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// isHex reports whether s starts with a 0x prefix after an optional sign.
func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// FormatAmount renders an amount with the shortest representation that
// round-trips, so editing a record does not change its value.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatMoney renders an amount for display with two decimals.
func FormatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := "$" + strconv.FormatFloat(v, 'f', 2, 64)
	if neg {
		return "-" + s
	}
	return s
}
