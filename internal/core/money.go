// Package core holds the schedule domain: the coarse month/week calendar,
// money handling and the entities stored per plan.
//
// This file parses and formats monetary amounts. Amounts are decimals kept
// at cent precision; floats are only used for percentages.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied decimal string to an amount rounded
// half-up to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. When
// both appear, the last one is the decimal separator and the other groups
// thousands. A lone comma followed by exactly three digits groups thousands.
// Signs are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("1,234.5")  -> 1234.50
//	ParseAmount("1.234,5")  -> 1234.50
//	ParseAmount("12,345")   -> 12345.00
//	ParseAmount("12.345")   -> 12.35 (rounds up)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if len(intPart) > 15 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(intPart + "." + fracPart + "0")
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatMoney renders an amount with the default locale, e.g. "$1,234.50".
func FormatMoney(d decimal.Decimal) string {
	return DefaultLocale().FormatMoney(d)
}

// ToNumber parses text produced by FormatMoney back into an amount.
// Negative amounts are rejected.
func ToNumber(s string) (decimal.Decimal, error) {
	return DefaultLocale().ToNumber(s)
}

func (l Locale) FormatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	intPart, frac, _ := strings.Cut(d.Abs().StringFixed(2), ".")
	b.WriteString(l.Symbol)
	b.WriteString(groupDigits(intPart, l.Group))
	b.WriteString(l.Decimal)
	b.WriteString(frac)
	return b.String()
}

func (l Locale) ToNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, l.Symbol))
	s = strings.ReplaceAll(s, l.Group, "")
	s = strings.Replace(s, l.Decimal, ".", 1)
	return ParseAmount(s)
}

func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
