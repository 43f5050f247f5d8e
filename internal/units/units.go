// Package units tags token amounts with their asset and denomination.
//
// Micro[A] is an amount in the smallest accounting unit of asset A,
// Amount[A] the same quantity in display units. The two are distinct types,
// as are amounts of different assets, so mixing them does not compile.
// Converting between the two is always an explicit call to Demicrofy or
// Microfy.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MicroExponent is log10 of the micro factor.
const MicroExponent = 6

var (
	// ErrInvalidAmount is returned for input that is not a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNegativeAmount is returned for amounts below zero.
	ErrNegativeAmount = errors.New("negative amount")

	// MicroFactor is the number of micro units per display unit.
	MicroFactor = decimal.New(1, MicroExponent)
)

// Asset identifies a token kind.
type Asset interface {
	// Symbol is the display ticker, e.g. "bLUNA".
	Symbol() string
	// Denom is the on-chain micro denom, e.g. "ubluna".
	Denom() string
}

type (
	Luna  struct{}
	BLuna struct{}
	UST   struct{}
	AUST  struct{}
	ANC   struct{}
	LP    struct{}
)

func (Luna) Symbol() string  { return "LUNA" }
func (Luna) Denom() string   { return "uluna" }
func (BLuna) Symbol() string { return "bLUNA" }
func (BLuna) Denom() string  { return "ubluna" }
func (UST) Symbol() string   { return "UST" }
func (UST) Denom() string    { return "uusd" }
func (AUST) Symbol() string  { return "aUST" }
func (AUST) Denom() string   { return "uaust" }
func (ANC) Symbol() string   { return "ANC" }
func (ANC) Denom() string    { return "uanc" }
func (LP) Symbol() string    { return "LP" }
func (LP) Denom() string     { return "ulp" }

// Micro is an amount of A in micro units.
type Micro[A Asset] struct {
	v decimal.Decimal
}

// Amount is an amount of A in display units.
type Amount[A Asset] struct {
	v decimal.Decimal
}

// NewMicro tags d as a micro amount of A.
func NewMicro[A Asset](d decimal.Decimal) Micro[A] { return Micro[A]{v: d} }

// NewAmount tags d as a display amount of A.
func NewAmount[A Asset](d decimal.Decimal) Amount[A] { return Amount[A]{v: d} }

// ParseMicro parses a non-negative micro amount such as "5000000".
func ParseMicro[A Asset](s string) (Micro[A], error) {
	d, err := parse(s)
	if err != nil {
		return Micro[A]{}, err
	}
	return Micro[A]{v: d}, nil
}

// ParseAmount parses a non-negative display amount such as "5.25".
func ParseAmount[A Asset](s string) (Amount[A], error) {
	d, err := parse(s)
	if err != nil {
		return Amount[A]{}, err
	}
	return Amount[A]{v: d}, nil
}

func parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNegativeAmount, s)
	}
	return d, nil
}

// Demicrofy converts a micro amount to display units. The shift is exact.
func Demicrofy[A Asset](m Micro[A]) Amount[A] {
	return Amount[A]{v: m.v.Shift(-MicroExponent)}
}

// Microfy converts a display amount to micro units, dropping any precision
// below one micro unit.
func Microfy[A Asset](a Amount[A]) Micro[A] {
	return Micro[A]{v: a.v.Shift(MicroExponent).Truncate(0)}
}

func (m Micro[A]) Decimal() decimal.Decimal { return m.v }
func (m Micro[A]) IsZero() bool             { return m.v.IsZero() }

// String is the integer micro amount, as the chain encodes it.
func (m Micro[A]) String() string { return m.v.String() }

// Coin is m in the chain's coin representation, e.g. "5000000uluna".
func (m Micro[A]) Coin() string {
	var a A
	return m.v.String() + a.Denom()
}

func (a Amount[A]) Decimal() decimal.Decimal { return a.v }
func (a Amount[A]) IsZero() bool             { return a.v.IsZero() }
func (a Amount[A]) String() string           { return a.v.String() }

// Symbol returns the ticker of A.
func Symbol[A Asset]() string {
	var a A
	return a.Symbol()
}

// Denom returns the micro denom of A.
func Denom[A Asset]() string {
	var a A
	return a.Denom()
}

// ExchangeRate is bonded / minted. It reports false when either side is zero.
func ExchangeRate(bonded Micro[Luna], minted Micro[BLuna]) (decimal.Decimal, bool) {
	if bonded.IsZero() || minted.IsZero() {
		return decimal.Decimal{}, false
	}
	return bonded.v.Div(minted.v), true
}
