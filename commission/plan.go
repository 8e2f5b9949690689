/*
plan.go - Commission plans, plan lines and formula evaluation

PURPOSE:
  A Plan is an ordered list of lines. Each line matches a coverage or
  a product and carries two formulas:
    - Formula:           real commission from the invoiced amount
    - PrepaymentFormula: upfront commission from the first-year premium

FIRST MATCH WINS:
  Lines are tried in configured order. The first line whose Match
  accepts the pattern is used, even if a later one is more specific.

FORMULA CONTEXT:
  amount              invoiced amount (0 for prepayments)
  first_year_premium  projected first-year premium
  nb_years            contract age in years
  + any Pattern.Extra value

EXAMPLE:
  PrepaymentFormula: "first_year_premium * 0.6"
  first_year_premium = 1200  =>  720

SEE ALSO:
  - schedule.go: When a prepayment is recognised
  - prepayment.go: Engine computing prepayment rows
*/
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// PATTERN - What a plan line is matched against
// =============================================================================

type Pattern struct {
	Coverage         string
	Product          string
	Agent            generic.AgentID
	Option           generic.OptionID
	FirstYearPremium decimal.Decimal
	NbYears          int
	Extra            map[string]any
}

// =============================================================================
// PLAN LINE
// =============================================================================

type PlanLine struct {
	// Options are the coverage codes this line applies to.
	Options           []string
	Product           string
	Formula           string
	PrepaymentFormula string
}

// Match accepts the pattern coverage if listed in Options. Without a
// coverage, it compares products.
func (l PlanLine) Match(p Pattern) bool {
	if p.Coverage == "" {
		return p.Product != "" && l.Product != "" && p.Product == l.Product
	}
	for _, o := range l.Options {
		if o == p.Coverage {
			return true
		}
	}
	return false
}

// =============================================================================
// PLAN
// =============================================================================

type Plan struct {
	ID                generic.PlanID
	Name              string
	CommissionProduct string
	AdjustPrepayment  bool
	Lines             []PlanLine

	// Schedule defaults to ImmediateSchedule.
	Schedule PrepaymentSchedule
}

// MatchingLine returns the first line matching p.
func (p *Plan) MatchingLine(pattern Pattern) (PlanLine, bool) {
	for _, l := range p.Lines {
		if l.Match(pattern) {
			return l, true
		}
	}
	return PlanLine{}, false
}

func (p *Plan) contextFormula(amount decimal.Decimal, pattern Pattern) map[string]any {
	names := map[string]any{}
	for k, v := range pattern.Extra {
		names[k] = v
	}
	names["amount"] = amount
	names["first_year_premium"] = pattern.FirstYearPremium
	names["nb_years"] = pattern.NbYears
	return pricing.Parameters(names)
}

// ComputePrepayment evaluates the prepayment formula of the first
// matching line. Invalid means no line matched or no formula is set.
func (p *Plan) ComputePrepayment(product string, pattern Pattern) (decimal.NullDecimal, error) {
	pattern.Product = product
	line, ok := p.MatchingLine(pattern)
	if !ok || line.PrepaymentFormula == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := pricing.Evaluate(line.PrepaymentFormula, p.contextFormula(decimal.Zero, pattern), nil)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return generic.NullDecimal(v), nil
}

// Compute evaluates the commission formula of the first matching line
// for an invoiced amount.
func (p *Plan) Compute(amount decimal.Decimal, product string, pattern Pattern) (decimal.NullDecimal, error) {
	pattern.Product = product
	line, ok := p.MatchingLine(pattern)
	if !ok || line.Formula == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := pricing.Evaluate(line.Formula, p.contextFormula(amount, pattern), nil)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return generic.NullDecimal(v), nil
}

// ComputePrepaymentSchedule returns (date, fraction) pairs summing to 1.
func (p *Plan) ComputePrepaymentSchedule(contract *Contract, option *Option, today generic.TimePoint) ([]ScheduleEntry, error) {
	schedule := p.Schedule
	if schedule == nil {
		schedule = ImmediateSchedule{}
	}
	entries := schedule.Entries(contract, option, today)
	if err := ValidateSchedule(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Validate checks every formula parses.
func (p *Plan) Validate() error {
	obj := "plan:" + string(p.ID)
	if len(p.Lines) == 0 {
		return generic.NewValidationError(obj, "lines", "plan has no lines")
	}
	for i, l := range p.Lines {
		for _, f := range []string{l.Formula, l.PrepaymentFormula} {
			if f == "" {
				continue
			}
			if _, err := pricing.NewExpressionRule(obj, f); err != nil {
				return generic.NewValidationError(obj, "lines", "line %d: %v", i, err)
			}
		}
	}
	if ls, ok := p.Schedule.(LinearSchedule); ok {
		if err := ls.Validate(); err != nil {
			return generic.NewValidationError(obj, "schedule", "%v", err)
		}
	}
	return nil
}
