package factory

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PlanJSON is the JSON representation of a commission plan.
//
//	{
//	  "id": "PLAN-BROKER",
//	  "commission_product": "COM",
//	  "adjust_prepayment": true,
//	  "lines": [{"options": ["DEATH"], "formula": "amount * 0.1",
//	             "prepayment_formula": "first_year_premium * 0.6"}],
//	  "schedule": {"type": "linear", "installments": 12, "frequency": "monthly"}
//	}
type PlanJSON struct {
	ID                string         `json:"id" validate:"required"`
	Name              string         `json:"name,omitempty"`
	CommissionProduct string         `json:"commission_product,omitempty"`
	AdjustPrepayment  bool           `json:"adjust_prepayment,omitempty"`
	Lines             []PlanLineJSON `json:"lines" validate:"required,min=1,dive"`
	Schedule          *ScheduleJSON  `json:"schedule,omitempty"`
}

type PlanLineJSON struct {
	Options           []string `json:"options,omitempty"`
	Product           string   `json:"product,omitempty"`
	Formula           string   `json:"formula,omitempty"`
	PrepaymentFormula string   `json:"prepayment_formula,omitempty"`
}

type ScheduleJSON struct {
	Type         string `json:"type" validate:"required,oneof=immediate linear"`
	Installments int    `json:"installments,omitempty" validate:"gte=0"`
	Frequency    string `json:"frequency,omitempty" validate:"omitempty,oneof=yearly half-yearly quarterly monthly"`
}

// AgentJSON binds a plan to a broker or insurer.
type AgentJSON struct {
	ID        string   `json:"id" validate:"required"`
	Party     string   `json:"party,omitempty"`
	Kind      string   `json:"kind" validate:"required,oneof=broker insurer"`
	Currency  string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	PlanID    string   `json:"plan_id,omitempty"`
	Coverages []string `json:"coverages,omitempty"`
}

type ContractJSON struct {
	ID                string       `json:"id" validate:"required"`
	Product           string       `json:"product" validate:"required"`
	SignatureDate     string       `json:"signature_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status            string       `json:"status,omitempty" validate:"omitempty,oneof=quote active terminated void"`
	TerminationReason string       `json:"termination_reason,omitempty"`
	AgentID           string       `json:"agent_id,omitempty"`
	InsurerIDs        []string     `json:"insurer_ids,omitempty"`
	Options           []OptionJSON `json:"options" validate:"dive"`
}

type OptionJSON struct {
	ID            string              `json:"id" validate:"required"`
	Coverage      string              `json:"coverage" validate:"required"`
	StartDate     string              `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Premium       decimal.NullDecimal `json:"premium,omitempty"`
	PremiumRuleID string              `json:"premium_rule_id,omitempty"`
}

type InvoiceJSON struct {
	ID         string            `json:"id" validate:"required"`
	ContractID string            `json:"contract_id" validate:"required"`
	Date       string            `json:"date" validate:"required,datetime=2006-01-02"`
	Lines      []InvoiceLineJSON `json:"lines" validate:"required,min=1,dive"`
}

type InvoiceLineJSON struct {
	ID       string          `json:"id" validate:"required"`
	OptionID string          `json:"option_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// =============================================================================
// LOOKUPS - Resolve references between documents
// =============================================================================

// Lookup resolves document references. Nil functions make any reference
// of that kind fail with ErrNotFound.
type Lookup struct {
	Plan     func(id string) (*commission.Plan, error)
	Agent    func(id string) (*commission.Agent, error)
	Rule     func(id string) (*pricing.Rule, error)
	Contract func(id string) (*commission.Contract, error)
}

func resolve[T any](fn func(string) (T, error), kind, id string) (T, error) {
	if fn == nil {
		var zero T
		return zero, errors.Wrapf(generic.ErrNotFound, "%s %s", kind, id)
	}
	return fn(id)
}

// =============================================================================
// PARSERS
// =============================================================================

func (f *Factory) ParsePlan(data []byte) (*commission.Plan, error) {
	var pj PlanJSON
	if err := decode("plan", data, &pj); err != nil {
		return nil, err
	}
	return f.PlanFromJSON(pj)
}

func (f *Factory) PlanFromJSON(pj PlanJSON) (*commission.Plan, error) {
	if err := f.check("plan", pj); err != nil {
		return nil, err
	}
	plan := &commission.Plan{
		ID:                generic.PlanID(pj.ID),
		Name:              pj.Name,
		CommissionProduct: pj.CommissionProduct,
		AdjustPrepayment:  pj.AdjustPrepayment,
	}
	for _, lj := range pj.Lines {
		plan.Lines = append(plan.Lines, commission.PlanLine{
			Options:           lj.Options,
			Product:           lj.Product,
			Formula:           lj.Formula,
			PrepaymentFormula: lj.PrepaymentFormula,
		})
	}
	if pj.Schedule != nil && pj.Schedule.Type == "linear" {
		plan.Schedule = commission.LinearSchedule{
			Installments: pj.Schedule.Installments,
			Frequency:    generic.Frequency(pj.Schedule.Frequency),
		}
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (f *Factory) ParseAgent(data []byte, lookup Lookup) (*commission.Agent, error) {
	var aj AgentJSON
	if err := decode("agent", data, &aj); err != nil {
		return nil, err
	}
	return f.AgentFromJSON(aj, lookup)
}

func (f *Factory) AgentFromJSON(aj AgentJSON, lookup Lookup) (*commission.Agent, error) {
	if err := f.check("agent", aj); err != nil {
		return nil, err
	}
	agent := &commission.Agent{
		ID:        generic.AgentID(aj.ID),
		Party:     aj.Party,
		Kind:      commission.AgentKind(aj.Kind),
		Currency:  aj.Currency,
		Coverages: aj.Coverages,
	}
	if aj.PlanID != "" {
		plan, err := resolve(lookup.Plan, "plan", aj.PlanID)
		if err != nil {
			return nil, errors.Wrapf(err, "agent %s", aj.ID)
		}
		agent.Plan = plan
	}
	return agent, nil
}

func (f *Factory) ParseContract(data []byte, lookup Lookup) (*commission.Contract, error) {
	var cj ContractJSON
	if err := decode("contract", data, &cj); err != nil {
		return nil, err
	}
	return f.ContractFromJSON(cj, lookup)
}

func (f *Factory) ContractFromJSON(cj ContractJSON, lookup Lookup) (*commission.Contract, error) {
	if err := f.check("contract", cj); err != nil {
		return nil, err
	}
	contract := &commission.Contract{
		ID:                generic.ContractID(cj.ID),
		Product:           cj.Product,
		SignatureDate:     optionalDate(cj.SignatureDate),
		Status:            commission.ContractStatus(cj.Status),
		TerminationReason: cj.TerminationReason,
	}
	if contract.Status == "" {
		contract.Status = commission.StatusQuote
	}
	if cj.AgentID != "" {
		agent, err := resolve(lookup.Agent, "agent", cj.AgentID)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", cj.ID)
		}
		contract.Agent = agent
	}
	for _, id := range cj.InsurerIDs {
		insurer, err := resolve(lookup.Agent, "agent", id)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", cj.ID)
		}
		contract.Insurers = append(contract.Insurers, insurer)
	}

	seen := map[string]bool{}
	for _, oj := range cj.Options {
		if seen[oj.ID] {
			return nil, generic.NewValidationError("contract:"+cj.ID, "options", "duplicate option %q", oj.ID)
		}
		seen[oj.ID] = true
		option := &commission.Option{
			ID:              generic.OptionID(oj.ID),
			Coverage:        oj.Coverage,
			StartDate:       optionalDate(oj.StartDate),
			PremiumOverride: oj.Premium,
		}
		if option.StartDate == nil {
			option.StartDate = contract.SignatureDate
		}
		if oj.PremiumRuleID != "" {
			rule, err := resolve(lookup.Rule, "pricing rule", oj.PremiumRuleID)
			if err != nil {
				return nil, errors.Wrapf(err, "option %s", oj.ID)
			}
			option.PremiumRule = rule
		}
		contract.Options = append(contract.Options, option)
	}
	return contract, nil
}

func (f *Factory) ParseInvoice(data []byte, lookup Lookup) (*commission.Invoice, error) {
	var ij InvoiceJSON
	if err := decode("invoice", data, &ij); err != nil {
		return nil, err
	}
	return f.InvoiceFromJSON(ij, lookup)
}

func (f *Factory) InvoiceFromJSON(ij InvoiceJSON, lookup Lookup) (*commission.Invoice, error) {
	if err := f.check("invoice", ij); err != nil {
		return nil, err
	}
	contract, err := resolve(lookup.Contract, "contract", ij.ContractID)
	if err != nil {
		return nil, errors.Wrapf(err, "invoice %s", ij.ID)
	}
	date, _ := generic.ParseDate(ij.Date)
	invoice := &commission.Invoice{ID: ij.ID, Contract: contract, Date: date}
	for _, lj := range ij.Lines {
		if contract.Option(generic.OptionID(lj.OptionID)) == nil {
			return nil, generic.NewValidationError("invoice:"+ij.ID, "lines", "option %q is not part of contract %s", lj.OptionID, ij.ContractID)
		}
		invoice.Lines = append(invoice.Lines, commission.InvoiceLine{
			ID:     lj.ID,
			Option: generic.OptionID(lj.OptionID),
			Amount: lj.Amount,
		})
	}
	return invoice, nil
}
