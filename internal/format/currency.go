package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/manifest-network/txpipe/internal/units"
)

// Preset is the decimal precision used to display one asset kind.
type Preset struct {
	// Points is the precision of the plain formatter.
	Points int32
	// SmallPoints is used by the postfix formatter below the threshold.
	SmallPoints int32
	// PostfixPoints is used by the postfix formatter from the threshold on.
	PostfixPoints int32
}

var (
	USTPreset  = Preset{Points: 3, SmallPoints: 3, PostfixPoints: 2}
	LunaPreset = Preset{Points: 6, SmallPoints: 3, PostfixPoints: 3}
	ANCPreset  = Preset{Points: 6, SmallPoints: 6, PostfixPoints: 3}
	LPPreset   = Preset{Points: 6, SmallPoints: 6, PostfixPoints: 3}
)

// Format renders d at the preset precision with delimiters.
func (p Preset) Format(d decimal.Decimal) string { return FormatDecimal(d, p.Points, true) }

// FormatInput renders d at the preset precision without delimiters, as an
// input field would hold it.
func (p Preset) FormatInput(d decimal.Decimal) string { return FormatDecimal(d, p.Points, false) }

// FormatWithPostfixUnits renders d compressed with "M" from one million on.
func (p Preset) FormatWithPostfixUnits(d decimal.Decimal) string {
	return WithPostfixUnits(d, p.SmallPoints, p.PostfixPoints)
}

// PresetFor looks up the preset by ticker or micro denom, case-insensitively.
func PresetFor(asset string) (Preset, error) {
	switch strings.ToLower(asset) {
	case "ust", "uusd", "aust", "uaust":
		return USTPreset, nil
	case "luna", "uluna", "bluna", "ubluna":
		return LunaPreset, nil
	case "anc", "uanc":
		return ANCPreset, nil
	case "lp", "ulp":
		return LPPreset, nil
	}
	return Preset{}, fmt.Errorf("no format preset for asset %q", asset)
}

// USTLike are the assets displayed with UST precision.
type USTLike interface {
	units.Asset
	units.UST | units.AUST
}

// LunaLike are the assets displayed with Luna precision.
type LunaLike interface {
	units.Asset
	units.Luna | units.BLuna
}

func FormatUST[A USTLike](n units.Amount[A]) string { return USTPreset.Format(n.Decimal()) }

func FormatUSTInput[A USTLike](n units.Amount[A]) string { return USTPreset.FormatInput(n.Decimal()) }

func FormatUSTWithPostfixUnits[A USTLike](n units.Amount[A]) string {
	return USTPreset.FormatWithPostfixUnits(n.Decimal())
}

func FormatLuna[A LunaLike](n units.Amount[A]) string { return LunaPreset.Format(n.Decimal()) }

func FormatLunaInput[A LunaLike](n units.Amount[A]) string {
	return LunaPreset.FormatInput(n.Decimal())
}

func FormatLunaWithPostfixUnits[A LunaLike](n units.Amount[A]) string {
	return LunaPreset.FormatWithPostfixUnits(n.Decimal())
}

func FormatANC(n units.Amount[units.ANC]) string      { return ANCPreset.Format(n.Decimal()) }
func FormatANCInput(n units.Amount[units.ANC]) string { return ANCPreset.FormatInput(n.Decimal()) }

func FormatANCWithPostfixUnits(n units.Amount[units.ANC]) string {
	return ANCPreset.FormatWithPostfixUnits(n.Decimal())
}

func FormatLP(n units.Amount[units.LP]) string      { return LPPreset.Format(n.Decimal()) }
func FormatLPInput(n units.Amount[units.LP]) string { return LPPreset.FormatInput(n.Decimal()) }

// FormatUTokenDecimal2 demicrofies m and renders it with two decimal points,
// compressed with "M" from one million display units on.
func FormatUTokenDecimal2[A units.Asset](m units.Micro[A]) string {
	return WithPostfixUnits(units.Demicrofy(m).Decimal(), 2, 2)
}

// FormatUTokenInteger demicrofies m and renders it as an integer, compressed
// with "M" from one million display units on.
func FormatUTokenInteger[A units.Asset](m units.Micro[A]) string {
	return FormatTokenInteger(units.Demicrofy(m))
}

// FormatTokenInteger renders n as an integer, compressed with "M" from one
// million on.
func FormatTokenInteger[A units.Asset](n units.Amount[A]) string {
	return WithPostfixUnits(n.Decimal(), 0, 0)
}
