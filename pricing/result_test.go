package pricing_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

func lineOf(onObject string, details ...pricing.Detail) *pricing.ResultLine {
	l := &pricing.ResultLine{OnObject: onObject}
	for _, d := range details {
		l.AddDetail(d)
	}
	return l
}

func TestResultLine_AddDetail_SumsAmount(t *testing.T) {
	l := lineOf("cov",
		pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("12")},
		pricing.Detail{Kind: pricing.KindFee, Code: "FEE", Amount: dec("20")},
	)

	assert.True(t, l.Amount.Equal(dec("32")))
	assert.Len(t, l.Details, 2)
}

func TestResultLine_Add_IsLinearInAmount(t *testing.T) {
	// GIVEN: Two lines a and b
	// THEN: (a+b).Amount == a.Amount + b.Amount, inputs untouched
	a := lineOf("a", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("12.5")})
	b := lineOf("b", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("-2.25")})

	sum := a.Add(b)

	assert.True(t, sum.Amount.Equal(a.Amount.Add(b.Amount)))
	assert.Len(t, a.Details, 1)
	assert.Len(t, b.Details, 1)
}

func TestResultLine_Add_NestsRightHandLine(t *testing.T) {
	// GIVEN: Three single-detail lines folded left: (a+b)+c
	// THEN: The result keeps a's detail plus one nested entry per added line
	a := lineOf("a", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("1")})
	b := lineOf("b", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("2")})
	c := lineOf("c", pricing.Detail{Kind: pricing.KindTax, Code: "TT", Amount: dec("3")})

	folded := a.Add(b).Add(c)

	require.Len(t, folded.Details, 3)
	assert.True(t, folded.Details[0].IsLeaf())
	assert.Equal(t, "b", folded.Details[1].Code)
	assert.Len(t, folded.Details[1].Details, 1)
	assert.Equal(t, "c", folded.Details[2].Code)
	assert.True(t, folded.Amount.Equal(dec("6")))

	// a+(b+c) has the same total with a different tree
	other := a.Add(b.Add(c))
	assert.True(t, other.Amount.Equal(folded.Amount))
	assert.Len(t, other.Details, 2)
}

func TestResultLine_Breakdown_MergesByKey(t *testing.T) {
	a := lineOf("a",
		pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("10")},
		pricing.Detail{Kind: pricing.KindTax, Code: "TT", Amount: dec("1.4")},
	)
	b := lineOf("b",
		pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("5")},
	)

	bd := a.Add(b).Breakdown()

	require.Len(t, bd, 2)
	assert.Equal(t, pricing.DetailKey{Kind: pricing.KindBase, Code: "PP"}, bd[0].Key)
	assert.True(t, bd[0].Amount.Equal(dec("15")))
	assert.True(t, bd[1].Amount.Equal(dec("1.4")))
}

func TestResultLine_AddDetailFromLine_Frequency(t *testing.T) {
	l := &pricing.ResultLine{}
	yearly := lineOf("cov", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("12")})
	yearly.Frequency = generic.FrequencyYearly

	assert.Empty(t, l.AddDetailFromLine(yearly))
	assert.Equal(t, generic.FrequencyYearly, l.Frequency)
	assert.True(t, l.Amount.Equal(dec("12")))

	monthly := lineOf("cov2", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("1")})
	monthly.Frequency = generic.FrequencyMonthly
	errs := l.AddDetailFromLine(monthly)

	require.Len(t, errs, 1)
	assert.Equal(t, pricing.MsgFrequencyMismatch, errs[0].Key)
	assert.True(t, l.Amount.Equal(dec("12")), "mismatched line is not merged")
}

func TestResultLine_Add_LineWithoutDetails(t *testing.T) {
	// GIVEN: A right-hand line carrying only an amount
	a := lineOf("COV-A", pricing.Detail{Kind: pricing.KindBase, Code: "PP", Amount: dec("10")})
	b := &pricing.ResultLine{OnObject: "COV-B", Amount: dec("5")}

	// WHEN: Adding it
	sum := a.Add(b)

	// THEN: Its entry is labelled by the covered object alone
	bd := sum.Breakdown()
	require.Len(t, bd, 2)
	assert.Equal(t, "COV-B", bd[1].Key.String())
	assert.Equal(t, "base:PP", bd[0].Key.String())

	desc := sum.Description()
	assert.True(t, strings.Contains(desc, "\nCOV-B: 5.00\n"), desc)
	assert.True(t, strings.HasPrefix(desc, "base PP: 10.00\n"), desc)
}

func TestResultLine_InitFromArgsAndDescription(t *testing.T) {
	result, _ := scenarioARule().GiveMePrice(pricing.NewArgs(jan2025()))
	args := pricing.NewArgs(jan2025())
	args.Contract = "CTR-1"
	result.InitFromArgs(args)

	assert.Equal(t, "CTR-1", result.Contract)
	require.NotNil(t, result.StartDate)
	assert.Equal(t, "2025-01-01", result.StartDate.String())

	desc := result.Description()
	assert.True(t, strings.Contains(desc, "base PP: 12.00"), desc)
	assert.True(t, strings.Contains(desc, "tax TT: 4.48"), desc)
	assert.True(t, strings.HasSuffix(desc, "Total: 32.00 (yearly)"), desc)
}

func TestFinalDetails_SetKeepsPosition(t *testing.T) {
	fd := pricing.NewFinalDetails()
	fd.Set(pricing.KindBase, "PP", dec("1"), nil)
	fd.Set(pricing.KindTax, "TT", dec("2"), nil)
	fd.Set(pricing.KindBase, "PP", dec("3"), nil)

	ds := fd.Details()
	require.Len(t, ds, 2)
	assert.Equal(t, "PP", ds[0].Code)
	assert.True(t, ds[0].Amount.Equal(dec("3")))
}
