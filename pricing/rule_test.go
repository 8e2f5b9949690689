package pricing_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func jan2025() generic.TimePoint { return generic.NewTimePoint(2025, time.January, 1) }

func taxTT(applyAtPricing bool) *pricing.Tax {
	return &pricing.Tax{
		Code: "TT",
		Name: "Insurance tax",
		Versions: []pricing.TaxVersion{{Version: pricing.Version{
			Start:              generic.NewTimePoint(2020, time.January, 1),
			Kind:               pricing.ValueRate,
			Value:              dec("14"),
			ApplyAtPricingTime: applyAtPricing,
		}}},
	}
}

func feeFEE() *pricing.Fee {
	return &pricing.Fee{
		Code: "FEE",
		Versions: []pricing.FeeVersion{{Version: pricing.Version{
			Start: generic.NewTimePoint(2020, time.January, 1),
			Kind:  pricing.ValueFlat,
			Value: dec("20"),
		}}},
	}
}

// scenarioARule has base PP=12, tax TT=14%, fee FEE=20. Components are
// listed tax first to show the output order doesn't depend on it.
func scenarioARule() *pricing.Rule {
	return &pricing.Rule{
		ID:        "PR-A",
		Start:     jan2025(),
		Frequency: generic.FrequencyYearly,
		Components: []*pricing.Component{
			{Code: "TT", Kind: pricing.KindTax, Tax: taxTT(false)},
			{Code: "PP", Kind: pricing.KindBase, ConfigKind: pricing.ConfigSimple, FixedAmount: dec("12")},
			{Code: "FEE", Kind: pricing.KindFee, Fee: feeFEE()},
		},
	}
}

// =============================================================================
// COMPONENT
// =============================================================================

func TestComponent_CalculateValue_IsPure(t *testing.T) {
	// GIVEN: An advanced component backed by an expression rule
	// WHEN: Evaluating it twice with the same args
	// THEN: Both results are identical
	rule, err := pricing.NewExpressionRule("age_rate", "age * 0.5 + 3")
	require.NoError(t, err)
	c := &pricing.Component{Code: "AGE", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced, Rule: rule}
	args := pricing.NewArgs(jan2025())
	args.Values["age"] = 40

	d1, errs1 := c.CalculateValue(args)
	d2, errs2 := c.CalculateValue(args)

	assert.True(t, d1.Amount.Equal(dec("23")), "got %s", d1.Amount)
	assert.True(t, d1.Amount.Equal(d2.Amount))
	assert.Equal(t, errs1, errs2)
	assert.Empty(t, errs1)
}

func TestComponent_TaxAndFeeDeferToCombination(t *testing.T) {
	args := pricing.NewArgs(jan2025())
	for _, c := range []*pricing.Component{
		{Code: "TT", Kind: pricing.KindTax, Tax: taxTT(false)},
		{Code: "FEE", Kind: pricing.KindFee, Fee: feeFEE()},
	} {
		d, errs := c.CalculateValue(args)
		assert.True(t, d.Amount.IsZero(), "%s should be 0 before combination", c.Code)
		assert.Empty(t, errs)
		assert.Same(t, c, d.OnObject)
	}
}

func TestComponent_AdvancedWithoutRule_ReportsMessage(t *testing.T) {
	c := &pricing.Component{Code: "X", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced}

	d, errs := c.CalculateValue(pricing.NewArgs(jan2025()))

	assert.True(t, d.Amount.IsZero())
	require.Len(t, errs, 1)
	assert.Equal(t, pricing.MsgMissingRule, errs[0].Key)
	assert.Equal(t, "Component X has no rule configured", errs[0].String())
}

func TestComponent_RuleWarningsAreCollected(t *testing.T) {
	c := &pricing.Component{
		Code: "W", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced,
		Rule: pricing.RuleFunc(func(*pricing.Args) pricing.RuleResult {
			return pricing.RuleResult{
				Value:    dec("5"),
				Warnings: []pricing.Message{pricing.NewMessage(pricing.MsgRuleWarning, "w", "check age")},
			}
		}),
	}

	d, errs := c.CalculateValue(pricing.NewArgs(jan2025()))

	assert.True(t, d.Amount.Equal(dec("5")))
	require.Len(t, errs, 1)
	assert.Equal(t, "Rule w : check age", errs[0].String())
}

// =============================================================================
// DEFAULT COMBINATION
// =============================================================================

func TestRule_DefaultCombination_ScenarioA(t *testing.T) {
	// GIVEN: base PP=12, tax TT=14%, fee FEE=20 flat
	// WHEN: Pricing on 2025-01-01
	// THEN: amount = 12 + 20 = 32, tax detail = 0.14 * 32 = 4.48 (not added)
	result, errs := scenarioARule().CalculatePrice(pricing.NewArgs(jan2025()), pricing.RatedGlobal)

	require.Empty(t, errs)
	assert.True(t, result.Amount.Equal(dec("32")), "amount %s", result.Amount)
	assert.Equal(t, generic.FrequencyYearly, result.Frequency)

	require.Len(t, result.Details, 3)
	assert.Equal(t, pricing.DetailKey{Kind: pricing.KindBase, Code: "PP"}, result.Details[0].Key())
	assert.Equal(t, pricing.DetailKey{Kind: pricing.KindFee, Code: "FEE"}, result.Details[1].Key())
	assert.Equal(t, pricing.DetailKey{Kind: pricing.KindTax, Code: "TT"}, result.Details[2].Key())
	assert.True(t, result.Details[0].Amount.Equal(dec("12")))
	assert.True(t, result.Details[1].Amount.Equal(dec("20")))
	assert.True(t, result.Details[2].Amount.Equal(dec("4.48")), "tax %s", result.Details[2].Amount)
}

func TestRule_DefaultCombination_TaxOnFeeInclusiveBase(t *testing.T) {
	// GIVEN: Scenario A
	// THEN: amount + tax would be 36.48, but tax is excluded from amount
	result, _ := scenarioARule().GiveMePrice(pricing.NewArgs(jan2025()))

	withTax := result.Amount.Add(result.DetailAmount(pricing.KindTax, "TT"))
	assert.True(t, withTax.Equal(dec("36.48")))
	assert.True(t, result.Amount.Equal(dec("32")))
}

func TestRule_DefaultCombination_DoesNotMutateComponents(t *testing.T) {
	rule := scenarioARule()
	args := pricing.NewArgs(jan2025())

	first, _ := rule.GiveMePrice(args)
	second, _ := rule.GiveMePrice(args)

	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.Breakdown(), second.Breakdown())
	assert.True(t, rule.Components[1].FixedAmount.Equal(dec("12")))
}

func TestRule_DefaultCombination_ToRecalculateFollowsVersion(t *testing.T) {
	rule := scenarioARule()
	rule.Components[0].Tax = taxTT(true)

	result, _ := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	assert.True(t, result.Details[2].ToRecalculate)
	assert.False(t, result.Details[1].ToRecalculate)
}

func TestRule_DefaultCombination_RateFee(t *testing.T) {
	// GIVEN: base 100, fee 10% of base, tax 10%
	// THEN: fee = 10, amount = 110, tax = 11
	rule := &pricing.Rule{
		Start: jan2025(),
		Components: []*pricing.Component{
			{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("100")},
			{Code: "F10", Kind: pricing.KindFee, Fee: &pricing.Fee{Code: "F10", Versions: []pricing.FeeVersion{{Version: pricing.Version{
				Start: jan2025(), Kind: pricing.ValueRate, Value: dec("10"),
			}}}}},
			{Code: "T10", Kind: pricing.KindTax, Tax: &pricing.Tax{Code: "T10", Versions: []pricing.TaxVersion{{Version: pricing.Version{
				Start: jan2025(), Kind: pricing.ValueRate, Value: dec("10"),
			}}}}},
		},
	}

	result, errs := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	require.Empty(t, errs)
	assert.True(t, result.Amount.Equal(dec("110")))
	assert.True(t, result.DetailAmount(pricing.KindFee, "F10").Equal(dec("10")))
	assert.True(t, result.DetailAmount(pricing.KindTax, "T10").Equal(dec("11")))
}

func TestRule_DefaultCombination_MissingVersionIsMessage(t *testing.T) {
	// GIVEN: Tax versions only valid from 2020, priced in 2019
	rule := scenarioARule()
	args := pricing.NewArgs(generic.NewTimePoint(2019, time.June, 1))

	result, errs := rule.GiveMePrice(args)

	assert.True(t, pricing.HasKey(errs, pricing.MsgMissingTaxVersion))
	assert.True(t, pricing.HasKey(errs, pricing.MsgMissingFeeVersion))
	assert.True(t, result.Amount.Equal(dec("12")))
}

func TestRule_DefaultCombination_ZeroCurrencyDigits(t *testing.T) {
	rule := scenarioARule()
	zero := int32(0)
	rule.CurrencyDigits = &zero

	result, errs := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	require.Empty(t, errs)
	assert.True(t, result.DetailAmount(pricing.KindTax, "TT").Equal(dec("4")), "got %s", result.DetailAmount(pricing.KindTax, "TT"))
	assert.Equal(t, int32(2), scenarioARule().Digits(), "nil is the default")
}

func TestRule_DefaultCombination_MissingDate(t *testing.T) {
	result, errs := scenarioARule().GiveMePrice(&pricing.Args{})

	assert.True(t, pricing.HasKey(errs, pricing.MsgMissingBaseDate))
	assert.True(t, result.Amount.Equal(dec("12")))
}

func TestRule_SubItemScope(t *testing.T) {
	rule := scenarioARule()
	rule.SubItemComponents = []*pricing.Component{
		{Code: "CI", Kind: pricing.KindBase, RatedObjectKind: pricing.RatedSubItem, FixedAmount: dec("3.5")},
	}

	result, errs := rule.GiveMeSubElemPrice(pricing.NewArgs(jan2025()))

	require.Empty(t, errs)
	assert.True(t, result.Amount.Equal(dec("3.5")))
	require.Len(t, result.Details, 1)
}

// =============================================================================
// CUSTOM COMBINATION
// =============================================================================

func TestRule_CustomCombination_UsesFinalDetails(t *testing.T) {
	// GIVEN: A combination rule doubling the base and keeping only it
	combo, err := pricing.NewExpressionRule("double", "set_detail('base', 'PP', detail('base', 'PP') * 2)")
	require.NoError(t, err)
	rule := &pricing.Rule{
		Start: jan2025(),
		Components: []*pricing.Component{
			{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("12")},
			{Code: "FEE", Kind: pricing.KindFee, Fee: feeFEE()},
		},
		CombinationRule: combo,
	}

	result, errs := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	require.Empty(t, errs)
	assert.True(t, result.Amount.Equal(dec("24")), "amount %s", result.Amount)
	require.Len(t, result.Details, 1)
	assert.Equal(t, "PP", result.Details[0].Code)
	assert.True(t, result.Details[0].Amount.Equal(dec("24")))
	assert.Same(t, rule.Components[0], result.Details[0].OnObject)
}

func TestRule_CustomCombination_SeesRawDetailsAndOwnAccumulator(t *testing.T) {
	var seen *pricing.Args
	rule := &pricing.Rule{
		Start: jan2025(),
		Components: []*pricing.Component{
			{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("12")},
			{Code: "TT", Kind: pricing.KindTax, Tax: taxTT(false)},
		},
		CombinationRule: pricing.RuleFunc(func(a *pricing.Args) pricing.RuleResult {
			seen = a
			a.FinalDetails.Set(pricing.KindTax, "TT", dec("1"), a.PriceDetails)
			return pricing.RuleResult{Value: dec("13")}
		}),
	}
	args := pricing.NewArgs(jan2025())

	result, errs := rule.GiveMePrice(args)

	require.Empty(t, errs)
	require.NotNil(t, seen)
	assert.Len(t, seen.PriceDetails, 2)
	assert.Nil(t, args.FinalDetails, "caller args must not be modified")
	assert.True(t, result.Amount.Equal(dec("13")))
	require.Len(t, result.Details, 1)
	assert.Equal(t, pricing.KindTax, result.Details[0].Kind)
}

func TestRule_CustomCombination_SkippedOnComponentErrors(t *testing.T) {
	// GIVEN: An advanced component without rule and a combination rule
	// THEN: The combination rule is not called, raw details are returned
	called := false
	rule := &pricing.Rule{
		Start: jan2025(),
		Components: []*pricing.Component{
			{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("12")},
			{Code: "X", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced},
		},
		CombinationRule: pricing.RuleFunc(func(*pricing.Args) pricing.RuleResult {
			called = true
			return pricing.RuleResult{}
		}),
	}

	result, errs := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	assert.False(t, called)
	assert.True(t, pricing.HasKey(errs, pricing.MsgMissingRule))
	assert.True(t, result.Amount.Equal(dec("12")))
	assert.Len(t, result.Details, 2)
}

func TestRule_CustomCombination_ErrorsAreReturned(t *testing.T) {
	combo, err := pricing.NewExpressionRule("broken", "unknown_var * 2")
	require.NoError(t, err)
	rule := &pricing.Rule{
		Start:           jan2025(),
		Components:      []*pricing.Component{{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("12")}},
		CombinationRule: combo,
	}

	_, errs := rule.GiveMePrice(pricing.NewArgs(jan2025()))

	assert.True(t, pricing.HasKey(errs, pricing.MsgRuleError))
}

// =============================================================================
// FREQUENCY
// =============================================================================

func TestRule_FrequencyDays_ScenarioB(t *testing.T) {
	rule := &pricing.Rule{Frequency: generic.FrequencyYearly}

	days, errs := rule.GiveMeFrequencyDays(pricing.NewArgs(jan2025()))
	assert.Empty(t, errs)
	assert.Equal(t, 365, days)

	days, errs = rule.GiveMeFrequencyDays(pricing.NewArgs(generic.NewTimePoint(2024, time.January, 1)))
	assert.Empty(t, errs)
	assert.Equal(t, 366, days)

	days, errs = rule.GiveMeFrequencyDays(&pricing.Args{})
	assert.Equal(t, 0, days)
	require.Len(t, errs, 1)
	assert.Equal(t, "A base date must be provided !", errs[0].String())
}

func TestRule_FrequencyDays_OtherFrequencies(t *testing.T) {
	tests := []struct {
		freq generic.Frequency
		want int
	}{
		{generic.FrequencyMonthly, 31},
		{generic.FrequencyQuarterly, 90},
		{generic.FrequencyHalfYearly, 181},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			days, errs := (&pricing.Rule{Frequency: tt.freq}).GiveMeFrequencyDays(pricing.NewArgs(jan2025()))
			assert.Empty(t, errs)
			assert.Equal(t, tt.want, days)
		})
	}
}

func TestRule_FrequencyDays_MonthEnd(t *testing.T) {
	tests := []struct {
		name string
		freq generic.Frequency
		date generic.TimePoint
		want int
	}{
		{"jan 31 monthly", generic.FrequencyMonthly, generic.NewTimePoint(2025, time.January, 31), 28},
		{"nov 30 quarterly", generic.FrequencyQuarterly, generic.NewTimePoint(2025, time.November, 30), 90},
		{"feb 29 yearly", generic.FrequencyYearly, generic.NewTimePoint(2024, time.February, 29), 365},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, errs := (&pricing.Rule{Frequency: tt.freq}).GiveMeFrequencyDays(pricing.NewArgs(tt.date))
			assert.Empty(t, errs)
			assert.Equal(t, tt.want, days)
		})
	}
}

func TestRule_AnnualPremium(t *testing.T) {
	rule := scenarioARule()
	rule.Frequency = generic.FrequencyMonthly

	annual, errs := rule.AnnualPremium(pricing.NewArgs(jan2025()))

	require.Empty(t, errs)
	assert.True(t, annual.Equal(dec("384")), "got %s", annual)
}

// =============================================================================
// BASIC ACCESSORS
// =============================================================================

func TestRule_BasicPriceAndTax(t *testing.T) {
	rule := scenarioARule()
	assert.True(t, rule.BasicPrice(pricing.RatedGlobal).Equal(dec("12")))
	assert.Equal(t, "TT", rule.BasicTax(pricing.RatedGlobal).Code)

	rule.SetBasicPrice(dec("15"))
	base := rule.ComponentsOfKind(pricing.KindBase, pricing.RatedGlobal)
	require.Len(t, base, 1)
	assert.Equal(t, pricing.BasicPriceCode, base[0].Code)
	assert.True(t, rule.BasicPrice(pricing.RatedGlobal).Equal(dec("15")))

	rule.SetBasicPrice(decimal.Zero)
	assert.True(t, rule.BasicPrice(pricing.RatedGlobal).Equal(dec("15")), "zero is ignored")

	other := &pricing.Tax{Code: "T2"}
	rule.SetBasicTax(other)
	assert.Same(t, other, rule.BasicTax(pricing.RatedGlobal))
	assert.Len(t, rule.Components, 3)
}

func TestComponent_SummaryAndSyncCode(t *testing.T) {
	c := &pricing.Component{Code: "old", Kind: pricing.KindTax, Tax: taxTT(false)}
	c.SyncCode()
	assert.Equal(t, "TT", c.Code)
	assert.Equal(t, "Insurance tax", c.Summary())

	rule, err := pricing.NewExpressionRule("age_rate", "1")
	require.NoError(t, err)
	adv := &pricing.Component{Code: "A", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced, Rule: rule}
	assert.Equal(t, "age_rate", adv.Summary())

	simple := &pricing.Component{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("12")}
	assert.Equal(t, "12", simple.Summary())
}
