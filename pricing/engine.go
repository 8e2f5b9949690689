package pricing

import (
	"maps"

	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// ARGS - Evaluation context
// =============================================================================

// Args is the context passed to components and rules.
type Args struct {
	Date       *generic.TimePoint
	Contract   string
	Option     string
	Subscriber string

	// Values are extra named inputs visible to expression rules.
	Values map[string]any

	// PriceDetails and FinalDetails are only set for combination rules.
	PriceDetails []Detail
	FinalDetails *FinalDetails
}

// NewArgs returns args evaluated at date.
func NewArgs(date generic.TimePoint) *Args {
	return &Args{Date: &date, Values: map[string]any{}}
}

// Clone returns a shallow copy with its own Values map.
func (a *Args) Clone() *Args {
	if a == nil {
		return &Args{Values: map[string]any{}}
	}
	clone := *a
	clone.Values = maps.Clone(a.Values)
	if clone.Values == nil {
		clone.Values = map[string]any{}
	}
	return &clone
}

// HasDate reports whether a base date is set.
func (a *Args) HasDate() bool {
	return a != nil && a.Date != nil && !a.Date.IsZero()
}

// =============================================================================
// RULE ENGINE - External rule capability
// =============================================================================

// RuleResult is what a rule returns. Warnings and Errors never stop
// the calculation: callers append them to their message list.
type RuleResult struct {
	Value    decimal.Decimal
	Warnings []Message
	Errors   []Message
}

// RuleEngine computes a numeric value from args.
type RuleEngine interface {
	Compute(args *Args) RuleResult
}

// Named is implemented by rules that have a display name.
type Named interface {
	RuleName() string
}

// RuleFunc adapts a function to RuleEngine.
type RuleFunc func(args *Args) RuleResult

func (f RuleFunc) Compute(args *Args) RuleResult { return f(args) }

// =============================================================================
// FINAL DETAILS - Output accumulator of combination rules
// =============================================================================

// FinalDetails collects the details a combination rule keeps.
// Set on an existing key replaces its amount and keeps its position.
type FinalDetails struct {
	keys   []DetailKey
	values map[DetailKey]Detail
}

func NewFinalDetails() *FinalDetails {
	return &FinalDetails{values: make(map[DetailKey]Detail)}
}

// Set records amount for (kind, code). The detail is tagged with the
// component found in source, if any.
func (f *FinalDetails) Set(kind LineKind, code string, amount decimal.Decimal, source []Detail) {
	key := DetailKey{Kind: kind, Code: code}
	d, exists := f.values[key]
	if !exists {
		d = Detail{Kind: kind, Code: code}
		for _, s := range source {
			if s.Key() == key {
				d.OnObject = s.OnObject
				d.ToRecalculate = s.ToRecalculate
				break
			}
		}
		f.keys = append(f.keys, key)
	}
	d.Amount = amount
	f.values[key] = d
}

func (f *FinalDetails) Len() int { return len(f.keys) }

// Details returns the recorded details in insertion order.
func (f *FinalDetails) Details() []Detail {
	out := make([]Detail, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, f.values[k])
	}
	return out
}
