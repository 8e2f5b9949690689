package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// VERSIONED TAXES AND FEES
// =============================================================================

// ValueKind tells how a tax or fee version applies to its base.
type ValueKind string

const (
	ValueRate ValueKind = "rate" // Value is a percentage of the base
	ValueFlat ValueKind = "flat" // Value is a fixed amount
)

// Version is one dated value of a tax or fee.
type Version struct {
	Start              generic.TimePoint
	End                *generic.TimePoint
	Kind               ValueKind
	Value              decimal.Decimal
	ApplyAtPricingTime bool
}

func (v Version) Period() generic.Period {
	return generic.Period{Start: v.Start, End: v.End}
}

var hundred = decimal.NewFromInt(100)

// Apply returns the unrounded amount for base.
func (v Version) Apply(base decimal.Decimal) decimal.Decimal {
	if v.Kind == ValueFlat {
		return v.Value
	}
	return base.Mul(v.Value).Div(hundred)
}

type TaxVersion struct {
	Version
}

func (v TaxVersion) ApplyTax(base decimal.Decimal) decimal.Decimal { return v.Apply(base) }

type FeeVersion struct {
	Version
}

func (v FeeVersion) ApplyFee(base decimal.Decimal) decimal.Decimal { return v.Apply(base) }

// Tax is a tax descriptor with its versions.
type Tax struct {
	Code     string
	Name     string
	Versions []TaxVersion
}

// VersionAt returns the version valid at date.
func (t *Tax) VersionAt(date generic.TimePoint) (TaxVersion, bool) {
	for _, v := range t.Versions {
		if v.Period().Contains(date) {
			return v, true
		}
	}
	return TaxVersion{}, false
}

func (t *Tax) versions() []Version {
	out := make([]Version, len(t.Versions))
	for i, v := range t.Versions {
		out[i] = v.Version
	}
	return out
}

func (t *Tax) label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Code
}

// Fee is a fee descriptor with its versions.
type Fee struct {
	Code     string
	Name     string
	Versions []FeeVersion
}

func (f *Fee) VersionAt(date generic.TimePoint) (FeeVersion, bool) {
	for _, v := range f.Versions {
		if v.Period().Contains(date) {
			return v, true
		}
	}
	return FeeVersion{}, false
}

func (f *Fee) versions() []Version {
	out := make([]Version, len(f.Versions))
	for i, v := range f.Versions {
		out[i] = v.Version
	}
	return out
}

func (f *Fee) label() string {
	if f.Name != "" {
		return f.Name
	}
	return f.Code
}
