package pricing_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

func combinationRule(t *testing.T) pricing.RuleEngine {
	t.Helper()
	r, err := pricing.NewExpressionRule("combo", "total('base')")
	require.NoError(t, err)
	return r
}

func TestValidate_ScenarioARuleIsValid(t *testing.T) {
	assert.NoError(t, scenarioARule().Validate())
}

func TestCheckCombinationCompatibility_RejectsApplyAtPricingTime(t *testing.T) {
	// GIVEN: A combination rule and a tax version applied at pricing time
	// WHEN: Validating
	// THEN: Save is rejected with the tax version named
	rule := scenarioARule()
	rule.Components[0].Tax = taxTT(true)
	rule.CombinationRule = combinationRule(t)

	err := rule.Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, generic.ErrValidation))
	assert.Contains(t, err.Error(), "2025-01-01 : Rule combination unavailable with tax (TT) version (2020-01-01)")
}

func TestCheckCombinationCompatibility_IgnoresNonOverlappingVersion(t *testing.T) {
	// GIVEN: The pricing-time version ended before the rule starts
	rule := scenarioARule()
	end := generic.NewTimePoint(2024, time.December, 31)
	rule.Components[0].Tax = &pricing.Tax{Code: "TT", Versions: []pricing.TaxVersion{
		{Version: pricing.Version{Start: generic.NewTimePoint(2020, time.January, 1), End: &end, Kind: pricing.ValueRate, Value: dec("14"), ApplyAtPricingTime: true}},
		{Version: pricing.Version{Start: jan2025(), Kind: pricing.ValueRate, Value: dec("14")}},
	}}
	rule.CombinationRule = combinationRule(t)

	assert.NoError(t, rule.CheckCombinationCompatibility())
}

func TestCheckCombinationCompatibility_OnlyWithCombinationRule(t *testing.T) {
	rule := scenarioARule()
	rule.Components[0].Tax = taxTT(true)

	assert.NoError(t, rule.CheckCombinationCompatibility())
}

func TestCheckCombinationCompatibility_SubItemFee(t *testing.T) {
	fee := feeFEE()
	fee.Versions[0].ApplyAtPricingTime = true
	rule := &pricing.Rule{
		ID:    "PR-S",
		Start: jan2025(),
		SubItemComponents: []*pricing.Component{
			{Code: "FEE", Kind: pricing.KindFee, RatedObjectKind: pricing.RatedSubItem, Fee: fee},
		},
		SubItemCombinationRule: combinationRule(t),
	}

	err := rule.CheckCombinationCompatibility()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Rule combination unavailable with fee (FEE)")
}

func TestValidate_ComponentInvariants(t *testing.T) {
	tests := []struct {
		name string
		c    *pricing.Component
	}{
		{"advanced without rule", &pricing.Component{Code: "A", Kind: pricing.KindBase, ConfigKind: pricing.ConfigAdvanced}},
		{"tax without tax", &pricing.Component{Code: "T", Kind: pricing.KindTax}},
		{"fee with amount", &pricing.Component{Code: "F", Kind: pricing.KindFee, Fee: feeFEE(), FixedAmount: dec("1")}},
		{"base with tax", &pricing.Component{Code: "B", Kind: pricing.KindBase, Tax: taxTT(false)}},
		{"missing code", &pricing.Component{Kind: pricing.KindBase}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &pricing.Rule{ID: "PR", Start: jan2025(), Components: []*pricing.Component{tt.c}}
			err := rule.Validate()
			require.Error(t, err)
			assert.True(t, generic.IsClientError(err))
		})
	}
}

func TestValidate_DuplicateCodeAndBadPeriod(t *testing.T) {
	rule := scenarioARule()
	rule.Components = append(rule.Components, &pricing.Component{Code: "PP", Kind: pricing.KindBase, FixedAmount: dec("1")})
	assert.Error(t, rule.Validate())

	rule = scenarioARule()
	end := generic.NewTimePoint(2024, time.January, 1)
	rule.End = &end
	assert.Error(t, rule.Validate())
}
