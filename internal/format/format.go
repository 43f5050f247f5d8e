// Package format renders decimal token amounts as human-readable strings.
//
// All functions are pure and locale independent. Fixed-point formatting
// rounds half away from zero at the cutoff digit; FormatFluidDecimalPoints
// truncates instead.
package format

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Delimiter separates thousands in the integer part.
const Delimiter = ","

// postfixExponent is log10 of the magnitude from which amounts are
// compressed with the "M" suffix.
const postfixExponent = 6

// PostfixThreshold is 10^postfixExponent.
var PostfixThreshold = decimal.New(1, postfixExponent)

// ErrMalformed is returned for strings that are not decimal numbers.
var ErrMalformed = errors.New("malformed decimal")

// ParseDecimal parses s, rejecting anything that is not a plain decimal number.
func ParseDecimal(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Decimal{}, errors.WithMessage(ErrMalformed, "empty input")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, errors.WithMessage(ErrMalformed, fmt.Sprintf("%q", s))
	}
	return d, nil
}

// FormatDecimal renders d with exactly decimalPoints fractional digits.
func FormatDecimal(d decimal.Decimal, decimalPoints int32, useDelimiter bool) string {
	if decimalPoints < 0 {
		decimalPoints = 0
	}
	s := d.StringFixed(decimalPoints)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	i, f := SplitDecimal(s)
	if useDelimiter {
		i = delimit(i)
	}
	if f == "" {
		return sign + i
	}
	return sign + i + "." + f
}

// FormatInteger renders d without a fractional part.
func FormatInteger(d decimal.Decimal, useDelimiter bool) string {
	return FormatDecimal(d, 0, useDelimiter)
}

// FormatDecimalString parses s and formats it with FormatDecimal.
func FormatDecimalString(s string, decimalPoints int32, useDelimiter bool) (string, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return "", err
	}
	return FormatDecimal(d, decimalPoints, useDelimiter), nil
}

// FormatFluidDecimalPoints truncates d to fallbackDecimalPoints digits.
// Values below one whose first significant digit lies past that cutoff are
// widened so that digit stays visible.
func FormatFluidDecimalPoints(d decimal.Decimal, fallbackDecimalPoints int32, useDelimiter bool) string {
	if d.IsZero() {
		return "0"
	}

	points := fallbackDecimalPoints
	abs := d.Abs()
	if abs.LessThan(decimal.NewFromInt(1)) {
		integerDigits := int32(len(abs.Coefficient().String())) + abs.Exponent()
		if first := 1 - integerDigits; first > points {
			points = first
		}
	}

	return FormatDecimal(d.Truncate(points), points, useDelimiter)
}

// WithPostfixUnits renders d compressed with "M" at postfixPoints when it
// reaches PostfixThreshold, and at points otherwise.
func WithPostfixUnits(d decimal.Decimal, points, postfixPoints int32) string {
	if d.GreaterThanOrEqual(PostfixThreshold) {
		return FormatDecimal(d.Shift(-postfixExponent), postfixPoints, true) + "M"
	}
	return FormatDecimal(d, points, true)
}

// SplitDecimal splits a decimal string at the decimal point.
func SplitDecimal(s string) (integer, fraction string) {
	integer, fraction, _ = strings.Cut(s, ".")
	return integer, fraction
}

func delimit(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
