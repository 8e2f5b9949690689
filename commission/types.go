package commission

import (
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// AGENT
// =============================================================================

type AgentKind string

const (
	AgentBroker  AgentKind = "broker"
	AgentInsurer AgentKind = "insurer"
)

// Agent binds a plan to a party. Insurer agents list the coverages
// they carry.
type Agent struct {
	ID        generic.AgentID
	Party     string
	Kind      AgentKind
	Currency  string
	Plan      *Plan
	Coverages []string
}

func (a *Agent) Carries(coverage string) bool {
	for _, c := range a.Coverages {
		if c == coverage {
			return true
		}
	}
	return false
}

// AgentPlan is one (agent, plan) pair used by an option.
type AgentPlan struct {
	Agent *Agent
	Plan  *Plan
}

// =============================================================================
// CONTRACT & OPTION
// =============================================================================

type ContractStatus string

const (
	StatusQuote      ContractStatus = "quote"
	StatusActive     ContractStatus = "active"
	StatusTerminated ContractStatus = "terminated"
	StatusVoid       ContractStatus = "void"
)

type Contract struct {
	ID                generic.ContractID
	Product           string
	SignatureDate     *generic.TimePoint
	Status            ContractStatus
	TerminationReason string

	// Agent is the distributing broker.
	Agent    *Agent
	Insurers []*Agent
	Options  []*Option
}

// IsTerminated is true once the contract has a termination reason or is void.
func (c *Contract) IsTerminated() bool {
	return c.TerminationReason != "" || c.Status == StatusVoid || c.Status == StatusTerminated
}

// FindInsurerAgent returns the first insurer carrying coverage.
func (c *Contract) FindInsurerAgent(coverage string) *Agent {
	for _, a := range c.Insurers {
		if a.Carries(coverage) {
			return a
		}
	}
	return nil
}

func (c *Contract) Option(id generic.OptionID) *Option {
	for _, o := range c.Options {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// AgentPlansUsed lists the contract agent and the coverage insurer.
func (c *Contract) AgentPlansUsed(o *Option) []AgentPlan {
	var used []AgentPlan
	if c.Agent != nil && c.Agent.Plan != nil {
		used = append(used, AgentPlan{Agent: c.Agent, Plan: c.Agent.Plan})
	}
	if insurer := c.FindInsurerAgent(o.Coverage); insurer != nil && insurer.Plan != nil {
		used = append(used, AgentPlan{Agent: insurer, Plan: insurer.Plan})
	}
	return used
}

// Option is one subscribed coverage of a contract.
type Option struct {
	ID        generic.OptionID
	Coverage  string
	StartDate *generic.TimePoint

	// PremiumOverride, when set, is used as first-year premium.
	PremiumOverride decimal.NullDecimal

	// PremiumRule prices the option when no override is set.
	PremiumRule *pricing.Rule
}

// FirstYearPremium is the override, else the annualised price of the
// premium rule at the option start, with the pricing messages of that
// calculation. Options without start date (void contracts) have no premium.
func (o *Option) FirstYearPremium() (decimal.Decimal, []pricing.Message) {
	if o.PremiumOverride.Valid {
		return o.PremiumOverride.Decimal, nil
	}
	if o.StartDate == nil || o.PremiumRule == nil {
		return decimal.Zero, nil
	}
	annual, msgs := o.PremiumRule.AnnualPremium(pricing.NewArgs(*o.StartDate))
	return annual.Round(o.PremiumRule.Digits()), msgs
}

// NbYears is the number of full years between the option start and date.
func (o *Option) NbYears(date generic.TimePoint) int {
	if o.StartDate == nil {
		return 0
	}
	years := 0
	for o.StartDate.AddYears(years + 1).BeforeOrEqual(date) {
		years++
	}
	return years
}

// =============================================================================
// INVOICE - Customer invoice commissions are generated from
// =============================================================================

type Invoice struct {
	ID       string
	Contract *Contract
	Date     generic.TimePoint
	Lines    []InvoiceLine
}

type InvoiceLine struct {
	ID     string
	Option generic.OptionID
	Amount decimal.Decimal
}
