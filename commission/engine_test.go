package commission_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/generic/store"
	"github.com/warp/premium-engine/logger"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func today() generic.TimePoint { return generic.NewTimePoint(2025, time.March, 1) }

func newEngine() (*commission.Engine, *store.TxMemory) {
	mem := store.NewTxMemory()
	e := commission.NewEngine(mem, logger.NewNop())
	e.Today = today
	return e, mem
}

func brokerPlan(prepaymentFormula string) *commission.Plan {
	return &commission.Plan{
		ID:                "PLAN-BROKER",
		CommissionProduct: "COM",
		Lines: []commission.PlanLine{{
			Options:           []string{"DEATH"},
			Formula:           "amount * 0.1",
			PrepaymentFormula: prepaymentFormula,
		}},
	}
}

// scenarioC: broker plan 60% of first-year premium, premium 1200.
func scenarioC() *commission.Contract {
	signed := generic.NewTimePoint(2025, time.January, 15)
	start := generic.NewTimePoint(2025, time.January, 15)
	return &commission.Contract{
		ID:            "CTR-1",
		Product:       "LIFE",
		SignatureDate: &signed,
		Status:        commission.StatusActive,
		Agent:         &commission.Agent{ID: "BROKER", Kind: commission.AgentBroker, Plan: brokerPlan("first_year_premium * 0.6")},
		Options: []*commission.Option{{
			ID:              "OPT-1",
			Coverage:        "DEATH",
			StartDate:       &start,
			PremiumOverride: generic.NullDecimal(dec("1200")),
		}},
	}
}

func rowsOf(t *testing.T, mem *store.TxMemory, filter generic.Filter) []generic.Commission {
	t.Helper()
	rows, err := mem.Find(context.Background(), filter)
	require.NoError(t, err)
	return rows
}

func sumAmounts(rows []generic.Commission) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}

// =============================================================================
// PLAN
// =============================================================================

func TestPlanLine_Match(t *testing.T) {
	line := commission.PlanLine{Options: []string{"DEATH", "DISABILITY"}, Product: "LIFE"}

	assert.True(t, line.Match(commission.Pattern{Coverage: "DEATH"}))
	assert.False(t, line.Match(commission.Pattern{Coverage: "HEALTH", Product: "LIFE"}), "coverage wins over product")
	assert.True(t, line.Match(commission.Pattern{Product: "LIFE"}))
	assert.False(t, line.Match(commission.Pattern{}))
}

func TestPlan_FirstMatchWins(t *testing.T) {
	plan := &commission.Plan{Lines: []commission.PlanLine{
		{Options: []string{"DEATH"}, PrepaymentFormula: "first_year_premium * 0.5"},
		{Options: []string{"DEATH"}, PrepaymentFormula: "first_year_premium * 0.9"},
	}}

	amount, err := plan.ComputePrepayment("LIFE", commission.Pattern{Coverage: "DEATH", FirstYearPremium: dec("100")})

	require.NoError(t, err)
	require.True(t, amount.Valid)
	assert.True(t, amount.Decimal.Equal(dec("50")))
}

func TestPlan_ComputePrepayment_NoMatchOrFormula(t *testing.T) {
	plan := brokerPlan("")

	amount, err := plan.ComputePrepayment("LIFE", commission.Pattern{Coverage: "DEATH"})
	require.NoError(t, err)
	assert.False(t, amount.Valid)

	amount, err = plan.ComputePrepayment("LIFE", commission.Pattern{Coverage: "OTHER"})
	require.NoError(t, err)
	assert.False(t, amount.Valid)
}

func TestPlan_Compute(t *testing.T) {
	amount, err := brokerPlan("").Compute(dec("250"), "LIFE", commission.Pattern{Coverage: "DEATH"})

	require.NoError(t, err)
	assert.True(t, amount.Decimal.Equal(dec("25")))
}

func TestPlan_Validate(t *testing.T) {
	assert.NoError(t, brokerPlan("first_year_premium * 0.6").Validate())
	assert.Error(t, brokerPlan("first_year_premium *").Validate())
	assert.Error(t, (&commission.Plan{ID: "EMPTY"}).Validate())
}

// =============================================================================
// PREPAYMENT
// =============================================================================

func TestPrepayment_ScenarioC_Activation(t *testing.T) {
	// GIVEN: Broker plan "first_year_premium * 0.6", premium 1200
	// WHEN: Activating the contract
	// THEN: One prepayment of 720 at rate 0.6, no redemption
	e, mem := newEngine()
	contract := scenarioC()

	created, err := e.CreatePrepaymentCommissions(context.Background(), contract, false)

	require.NoError(t, err)
	require.Len(t, created, 1)
	c := created[0]
	assert.True(t, c.IsPrepayment)
	assert.True(t, c.Amount.Equal(dec("720")), "amount %s", c.Amount)
	require.True(t, c.CommissionRate.Valid)
	assert.True(t, c.CommissionRate.Decimal.Equal(dec("0.6")))
	assert.False(t, c.RedeemedPrepayment.Valid)
	assert.False(t, c.IsInvoiced())
	assert.Equal(t, generic.OptionRef("OPT-1"), c.Origin)
	assert.Equal(t, "2025-03-01", c.Date.String(), "max(signature, today)")
	assert.Len(t, rowsOf(t, mem, generic.Filter{}), 1)
}

func TestPrepayment_RerunReplacesEstimate(t *testing.T) {
	// GIVEN: An activated contract
	// WHEN: Activating again with unchanged inputs
	// THEN: Still one row per (agent, option), not two
	e, mem := newEngine()
	ctx := context.Background()
	contract := scenarioC()

	_, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)
	_, err = e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)

	rows := rowsOf(t, mem, generic.Filter{})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("720")))
}

func TestPrepayment_NettedAgainstPaid(t *testing.T) {
	// GIVEN: 720 prepayment already paid on a broker invoice
	// WHEN: Recomputing with the same formula
	// THEN: Net amount is 0, no row is created
	e, mem := newEngine()
	ctx := context.Background()
	contract := scenarioC()

	_, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)
	_, err = e.InvoiceAgentCommissions(ctx, "BROKER", today(), "BROKER-INV-1")
	require.NoError(t, err)

	created, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)
	assert.Empty(t, created)
	rows := rowsOf(t, mem, generic.Filter{})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsInvoiced())
}

func TestPrepayment_DeltaBeyondPaid(t *testing.T) {
	e, _ := newEngine()
	ctx := context.Background()
	contract := scenarioC()

	_, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)
	_, err = e.InvoiceAgentCommissions(ctx, "BROKER", today(), "BROKER-INV-1")
	require.NoError(t, err)

	contract.Options[0].PremiumOverride = generic.NullDecimal(dec("1400"))
	created, err := e.CreatePrepaymentCommissions(ctx, contract, false)

	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].Amount.Equal(dec("120")), "840 - 720, got %s", created[0].Amount)
}

func TestPrepayment_RebillOnlyAdjustablePlans(t *testing.T) {
	// GIVEN: An activated contract whose premium then changes
	// WHEN: Rebilling with a non-adjustable plan
	// THEN: The estimate stays; with an adjustable plan it is recomputed
	e, mem := newEngine()
	ctx := context.Background()
	contract := scenarioC()

	_, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)
	contract.Options[0].PremiumOverride = generic.NullDecimal(dec("1000"))

	created, err := e.Rebill(ctx, contract)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.True(t, sumAmounts(rowsOf(t, mem, generic.Filter{})).Equal(dec("720")))

	contract.Agent.Plan.AdjustPrepayment = true
	created, err = e.Rebill(ctx, contract)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, sumAmounts(rowsOf(t, mem, generic.Filter{})).Equal(dec("600")))
}

func TestPrepayment_InsurerAgentAlsoCommissioned(t *testing.T) {
	e, _ := newEngine()
	contract := scenarioC()
	contract.Insurers = []*commission.Agent{{
		ID: "INSURER", Kind: commission.AgentInsurer, Coverages: []string{"DEATH"},
		Plan: &commission.Plan{ID: "PLAN-INS", Lines: []commission.PlanLine{{
			Options: []string{"DEATH"}, PrepaymentFormula: "first_year_premium * 0.1",
		}}},
	}}

	created, err := e.CreatePrepaymentCommissions(context.Background(), contract, false)

	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, generic.AgentID("BROKER"), created[0].Agent)
	assert.Equal(t, generic.AgentID("INSURER"), created[1].Agent)
	assert.True(t, created[1].Amount.Equal(dec("120")))
}

func TestPrepayment_LinearScheduleSumsToNet(t *testing.T) {
	// GIVEN: A 7-installment monthly schedule
	// THEN: 7 rows, one month apart, summing exactly to 720
	e, _ := newEngine()
	contract := scenarioC()
	contract.Agent.Plan.Schedule = commission.LinearSchedule{Installments: 7, Frequency: generic.FrequencyMonthly}

	created, err := e.CreatePrepaymentCommissions(context.Background(), contract, false)

	require.NoError(t, err)
	require.Len(t, created, 7)
	assert.True(t, sumAmounts(created).Equal(dec("720")))
	assert.Equal(t, "2025-03-01", created[0].Date.String())
	assert.Equal(t, "2025-09-01", created[6].Date.String())
	for _, c := range created {
		assert.True(t, c.CommissionRate.Decimal.Equal(dec("0.6")), "same rate on every row")
	}
}

func TestPrepayment_FormulaErrorRollsBack(t *testing.T) {
	// GIVEN: An activated option, then a second option whose plan line is broken
	// WHEN: Recomputing the whole contract
	// THEN: Nothing changes, the first option estimate is not deleted
	e, mem := newEngine()
	ctx := context.Background()
	contract := scenarioC()
	_, err := e.CreatePrepaymentCommissions(ctx, contract, false)
	require.NoError(t, err)

	start := generic.NewTimePoint(2025, time.January, 15)
	contract.Options = append(contract.Options, &commission.Option{
		ID: "OPT-2", Coverage: "BROKEN", StartDate: &start, PremiumOverride: generic.NullDecimal(dec("10")),
	})
	contract.Agent.Plan.Lines = append(contract.Agent.Plan.Lines, commission.PlanLine{
		Options: []string{"BROKEN"}, PrepaymentFormula: "first_year_premium * unknown",
	})

	_, err = e.CreatePrepaymentCommissions(ctx, contract, false)

	require.Error(t, err)
	assert.True(t, generic.IsClientError(err))
	rows := rowsOf(t, mem, generic.Filter{})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("720")))
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestSchedule_Validation(t *testing.T) {
	d := today()
	assert.NoError(t, commission.ValidateSchedule([]commission.ScheduleEntry{{Date: d, Fraction: dec("1")}}))
	assert.Error(t, commission.ValidateSchedule(nil))
	assert.Error(t, commission.ValidateSchedule([]commission.ScheduleEntry{{Date: d, Fraction: dec("0.5")}}))
	assert.Error(t, commission.ValidateSchedule([]commission.ScheduleEntry{
		{Date: d, Fraction: dec("1.5")}, {Date: d, Fraction: dec("-0.5")},
	}))

	entries := commission.LinearSchedule{Installments: 3, Frequency: generic.FrequencyQuarterly}.Entries(nil, nil, d)
	require.Len(t, entries, 3)
	assert.NoError(t, commission.ValidateSchedule(entries))
	assert.Equal(t, "2025-09-01", entries[2].Date.String())
}

func TestSchedule_LinearFromMonthEnd(t *testing.T) {
	// GIVEN: A monthly schedule starting on Jan 31
	start := generic.NewTimePoint(2025, time.January, 31)

	// WHEN: Building three installments
	entries := commission.LinearSchedule{Installments: 3, Frequency: generic.FrequencyMonthly}.Entries(nil, nil, start)

	// THEN: Dates stop at month end without drifting
	require.Len(t, entries, 3)
	assert.Equal(t, "2025-01-31", entries[0].Date.String())
	assert.Equal(t, "2025-02-28", entries[1].Date.String())
	assert.Equal(t, "2025-03-31", entries[2].Date.String())
}

func TestOption_NbYears_LeapDayStart(t *testing.T) {
	start := generic.NewTimePoint(2024, time.February, 29)
	opt := &commission.Option{ID: "O", StartDate: &start}

	assert.Equal(t, 0, opt.NbYears(generic.NewTimePoint(2025, time.February, 27)))
	assert.Equal(t, 1, opt.NbYears(generic.NewTimePoint(2025, time.February, 28)))
	assert.Equal(t, 3, opt.NbYears(generic.NewTimePoint(2027, time.March, 1)))
	assert.Equal(t, 3, opt.NbYears(generic.NewTimePoint(2028, time.February, 28)))
	assert.Equal(t, 4, opt.NbYears(generic.NewTimePoint(2028, time.February, 29)))
}

func TestPrepayment_PartialPremiumIsLogged(t *testing.T) {
	// GIVEN: A premium rule whose tax has no version at the option start
	core, logs := observer.New(zapcore.WarnLevel)
	e, mem := newEngine()
	e.Logger = &logger.Logger{SugaredLogger: zap.New(core).Sugar()}
	contract := scenarioC()
	contract.Options[0].PremiumOverride = decimal.NullDecimal{}
	contract.Options[0].PremiumRule = &pricing.Rule{
		ID:        "PR-PARTIAL",
		Frequency: generic.FrequencyYearly,
		Components: []*pricing.Component{
			{Code: "PP", Kind: pricing.KindBase, ConfigKind: pricing.ConfigSimple, FixedAmount: dec("1000")},
			{Code: "T0", Kind: pricing.KindTax, Tax: &pricing.Tax{Code: "T0"}},
		},
	}

	// WHEN: Activating
	_, err := e.CreatePrepaymentCommissions(context.Background(), contract, false)

	// THEN: The prepayment uses the partial premium and the messages are logged
	require.NoError(t, err)
	rows := rowsOf(t, mem, generic.Filter{IsPrepayment: lo.ToPtr(true)})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(dec("600")), "got %s", rows[0].Amount)

	warnings := logs.FilterMessage("first-year premium computed with pricing messages").All()
	require.NotEmpty(t, warnings)
	assert.Equal(t, "OPT-1", fmt.Sprint(warnings[0].ContextMap()["option"]))
}
