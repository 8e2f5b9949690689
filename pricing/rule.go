package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// RULE - Versioned pricing configuration
// =============================================================================

type Rule struct {
	ID        string
	Name      string
	Start     generic.TimePoint
	End       *generic.TimePoint
	Frequency generic.Frequency

	Components        []*Component
	SubItemComponents []*Component

	CombinationRule        RuleEngine
	SubItemCombinationRule RuleEngine

	// CurrencyDigits rounds computed taxes and fees. Nil means
	// DefaultCurrencyDigits; 0 is a zero-decimal currency.
	CurrencyDigits *int32
}

func (r *Rule) Period() generic.Period {
	return generic.Period{Start: r.Start, End: r.End}
}

// Digits is the rounding precision of the rule's amounts.
func (r *Rule) Digits() int32 {
	if r.CurrencyDigits == nil || *r.CurrencyDigits < 0 {
		return DefaultCurrencyDigits
	}
	return *r.CurrencyDigits
}

func (r *Rule) frequency() generic.Frequency {
	if r.Frequency == "" {
		return generic.FrequencyYearly
	}
	return r.Frequency
}

func (r *Rule) components(kind RatedObjectKind) []*Component {
	switch kind {
	case RatedGlobal:
		return r.Components
	case RatedSubItem:
		return r.SubItemComponents
	}
	return nil
}

func (r *Rule) combinationRule(kind RatedObjectKind) RuleEngine {
	switch kind {
	case RatedGlobal:
		return r.CombinationRule
	case RatedSubItem:
		return r.SubItemCombinationRule
	}
	return nil
}

// =============================================================================
// PRICE CALCULATION
// =============================================================================

// CalculatePrice evaluates the component set of kind and combines it.
func (r *Rule) CalculatePrice(args *Args, kind RatedObjectKind) (*ResultLine, []Message) {
	result := &ResultLine{}
	var msgs []Message
	if !kind.IsValid() {
		msgs = append(msgs, NewMessage(MsgUnknownRatedObject, kind))
	}
	for _, c := range r.components(kind) {
		d, errs := c.CalculateValue(args)
		result.AddDetail(d)
		msgs = append(msgs, errs...)
	}

	combination := r.combinationRule(kind)
	switch {
	case combination != nil && len(msgs) == 0:
		newArgs := args.Clone()
		newArgs.PriceDetails = append([]Detail(nil), result.Details...)
		newArgs.FinalDetails = NewFinalDetails()
		res := combination.Compute(newArgs)
		msgs = append(msgs, res.Errors...)
		msgs = append(msgs, res.Warnings...)
		result.Amount = res.Value
		result.Details = newArgs.FinalDetails.Details()
	case combination == nil:
		combined, errs := r.combineDefault(result.Details, args)
		result = combined
		msgs = append(msgs, errs...)
	}
	// combination rule with errors: raw details are returned

	result.Frequency = r.frequency()
	return result, msgs
}

// combineDefault rebuilds the details as base, fee, tax.
func (r *Rule) combineDefault(details []Detail, args *Args) (*ResultLine, []Message) {
	groups := make(map[LineKind][]Detail, len(lineKinds))
	for _, d := range details {
		groups[d.Kind] = append(groups[d.Kind], d)
	}

	var msgs []Message
	result := &ResultLine{}
	for _, d := range groups[KindBase] {
		result.AddDetail(d)
	}

	needsDate := len(groups[KindFee])+len(groups[KindTax]) > 0
	if needsDate && !args.HasDate() {
		msgs = append(msgs, NewMessage(MsgMissingBaseDate))
	}

	base := result.Amount
	for _, d := range groups[KindFee] {
		fee, errs := r.feeDetail(d, args, base)
		msgs = append(msgs, errs...)
		result.AddDetail(fee)
	}

	// taxes are computed on the fee-inclusive amount but not added to it
	base = result.Amount
	for _, d := range groups[KindTax] {
		tax, errs := r.taxDetail(d, args, base)
		msgs = append(msgs, errs...)
		result.Details = append(result.Details, tax)
	}
	return result, msgs
}

func (r *Rule) feeDetail(d Detail, args *Args, base decimal.Decimal) (Detail, []Message) {
	out := d
	out.Amount = decimal.Zero
	if d.OnObject == nil || d.OnObject.Fee == nil {
		return out, []Message{NewMessage(MsgMissingFee, d.Code)}
	}
	if !args.HasDate() {
		return out, nil
	}
	v, ok := d.OnObject.Fee.VersionAt(*args.Date)
	if !ok {
		return out, []Message{NewMessage(MsgMissingFeeVersion, d.OnObject.Fee.Code, args.Date.String())}
	}
	out.Amount = v.ApplyFee(base).Round(r.Digits())
	out.ToRecalculate = v.ApplyAtPricingTime
	return out, nil
}

func (r *Rule) taxDetail(d Detail, args *Args, base decimal.Decimal) (Detail, []Message) {
	out := d
	out.Amount = decimal.Zero
	if d.OnObject == nil || d.OnObject.Tax == nil {
		return out, []Message{NewMessage(MsgMissingTax, d.Code)}
	}
	if !args.HasDate() {
		return out, nil
	}
	v, ok := d.OnObject.Tax.VersionAt(*args.Date)
	if !ok {
		return out, []Message{NewMessage(MsgMissingTaxVersion, d.OnObject.Tax.Code, args.Date.String())}
	}
	out.Amount = v.ApplyTax(base).Round(r.Digits())
	out.ToRecalculate = v.ApplyAtPricingTime
	return out, nil
}

func (r *Rule) GiveMePrice(args *Args) (*ResultLine, []Message) {
	return r.CalculatePrice(args, RatedGlobal)
}

func (r *Rule) GiveMeSubElemPrice(args *Args) (*ResultLine, []Message) {
	return r.CalculatePrice(args, RatedSubItem)
}

func (r *Rule) GiveMeFrequency() generic.Frequency {
	return r.Frequency
}

// GiveMeFrequencyDays returns the number of days from args.Date to the
// next occurrence of the rule frequency. Without a date it returns 0
// and MsgMissingBaseDate.
func (r *Rule) GiveMeFrequencyDays(args *Args) (int, []Message) {
	if !args.HasDate() {
		return 0, []Message{NewMessage(MsgMissingBaseDate)}
	}
	next, err := generic.AddFrequency(r.frequency(), *args.Date)
	if err != nil {
		return 0, []Message{NewMessage(MsgUnknownFrequency, r.Frequency)}
	}
	return generic.DaysBetween(*args.Date, next), nil
}

// AnnualPremium prices the global scope and converts it to a yearly amount.
func (r *Rule) AnnualPremium(args *Args) (decimal.Decimal, []Message) {
	line, msgs := r.GiveMePrice(args)
	factor := decimal.NewFromInt(int64(AnnualFactor(line.Frequency)))
	return line.Amount.Mul(factor), msgs
}

// =============================================================================
// BASIC ACCESSORS - Single fixed price / single tax rules
// =============================================================================

func (r *Rule) ComponentsOfKind(kind LineKind, scope RatedObjectKind) []*Component {
	var out []*Component
	for _, c := range r.components(scope) {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// SingleComponentOfKind returns the component if exactly one matches.
func (r *Rule) SingleComponentOfKind(kind LineKind, scope RatedObjectKind) *Component {
	cs := r.ComponentsOfKind(kind, scope)
	if len(cs) != 1 {
		return nil
	}
	return cs[0]
}

func (r *Rule) BasicPrice(scope RatedObjectKind) decimal.Decimal {
	if c := r.SingleComponentOfKind(KindBase, scope); c != nil {
		return c.FixedAmount
	}
	return decimal.Zero
}

func (r *Rule) BasicTax(scope RatedObjectKind) *Tax {
	if c := r.SingleComponentOfKind(KindTax, scope); c != nil {
		return c.Tax
	}
	return nil
}

// SetBasicPrice replaces the global base components and every sub-item
// component with a single fixed base. Zero is ignored.
func (r *Rule) SetBasicPrice(amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	r.Components = append(withoutKind(r.Components, KindBase), &Component{
		Code:            BasicPriceCode,
		Kind:            KindBase,
		ConfigKind:      ConfigSimple,
		RatedObjectKind: RatedGlobal,
		FixedAmount:     amount,
	})
	r.SubItemComponents = nil
}

// SetBasicTax replaces the global tax components and every sub-item
// component with a single tax. Nil is ignored.
func (r *Rule) SetBasicTax(tax *Tax) {
	if tax == nil {
		return
	}
	r.Components = append(withoutKind(r.Components, KindTax), &Component{
		Code:            tax.Code,
		Kind:            KindTax,
		RatedObjectKind: RatedGlobal,
		Tax:             tax,
	})
	r.SubItemComponents = nil
}

func withoutKind(cs []*Component, kind LineKind) []*Component {
	var out []*Component
	for _, c := range cs {
		if c.Kind != kind {
			out = append(out, c)
		}
	}
	return out
}
