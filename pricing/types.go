/*
Package pricing computes premiums from versioned pricing rules.

OVERVIEW:
  A Rule owns two component sets (global and sub-item). Each Component
  contributes a base amount, a tax or a fee. CalculatePrice evaluates
  every component, then combines them either with the default algorithm
  or with a custom combination rule.

DEFAULT COMBINATION:
  amount = sum(base)
  fee_i  = fee_version_i.ApplyFee(amount)
  amount = amount + sum(fee_i)
  tax_i  = tax_version_i.ApplyTax(amount)   (not added to amount)

  Example: base PP=12, fee FEE=20 flat, tax TT=14%
    amount = 12 + 20 = 32
    TT     = 0.14 * 32 = 4.48
    result = 32 with details [PP 12, FEE 20, TT 4.48]

CUSTOM COMBINATION:
  The combination rule receives the raw details (PriceDetails) and an
  empty FinalDetails accumulator. It fills the accumulator and returns
  the total. The result is rebuilt from the accumulator.

ERRORS:
  Calculation never fails with a Go error. Problems are returned as
  Message values so callers can display all of them at once.
  Configuration errors are returned by Rule.Validate at save time.
*/
package pricing

import "github.com/warp/premium-engine/generic"

// =============================================================================
// KINDS
// =============================================================================

// LineKind is what a component contributes.
type LineKind string

const (
	KindBase LineKind = "base"
	KindTax  LineKind = "tax"
	KindFee  LineKind = "fee"
)

// lineKinds is the order of the default combination output.
var lineKinds = []LineKind{KindBase, KindFee, KindTax}

func (k LineKind) IsValid() bool {
	return k == KindBase || k == KindTax || k == KindFee
}

// ConfigKind tells whether a base component is a fixed amount or a rule.
type ConfigKind string

const (
	ConfigSimple   ConfigKind = "simple"
	ConfigAdvanced ConfigKind = "advanced"
)

// RatedObjectKind selects the component set of a rule.
type RatedObjectKind string

const (
	RatedGlobal  RatedObjectKind = "global"
	RatedSubItem RatedObjectKind = "sub_item"
)

func (k RatedObjectKind) IsValid() bool {
	return k == RatedGlobal || k == RatedSubItem
}

// AnnualFactor converts a per-frequency amount into a yearly amount.
// yearly 1, half-yearly 2, quarterly 4, monthly 12.
func AnnualFactor(f generic.Frequency) int {
	return f.PeriodsPerYear()
}

// DefaultCurrencyDigits is used when a rule has no explicit precision.
const DefaultCurrencyDigits int32 = 2

// BasicPriceCode is the code of the component created by SetBasicPrice.
const BasicPriceCode = "PP"
