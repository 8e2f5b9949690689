/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

Configuration documents (pricing rules, plans, agents, contracts,
invoices) are posted as the factory JSON schema and need no DTO here.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/pricing.go, factory/commission.go: document schemas
*/
package api

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/commission"
	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// PRICING
// =============================================================================

type PricingRuleDTO struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	StartDate         string         `json:"start_date"`
	EndDate           *string        `json:"end_date,omitempty"`
	Frequency         string         `json:"frequency"`
	Components        []ComponentDTO `json:"components"`
	SubItemComponents []ComponentDTO `json:"sub_item_components,omitempty"`
	CustomCombination bool           `json:"custom_combination"`
}

type ComponentDTO struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	ConfigKind string `json:"config_kind,omitempty"`
}

// PriceRequest carries the calculation args. Scope "sub_item" prices
// with the rule's sub-item components.
type PriceRequest struct {
	Date       string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Contract   string         `json:"contract,omitempty"`
	Option     string         `json:"option,omitempty"`
	Subscriber string         `json:"subscriber,omitempty"`
	Scope      string         `json:"scope,omitempty" validate:"omitempty,oneof=global sub_item"`
	Values     map[string]any `json:"values,omitempty"`
}

type PriceResponse struct {
	Amount      decimal.Decimal `json:"amount"`
	Frequency   string          `json:"frequency"`
	Description string          `json:"description"`
	Details     []DetailDTO     `json:"details"`
	Breakdown   []BreakdownDTO  `json:"breakdown"`
	Messages    []MessageDTO    `json:"messages"`
}

type DetailDTO struct {
	Kind          string          `json:"kind,omitempty"`
	Code          string          `json:"code,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	ToRecalculate bool            `json:"to_recalculate,omitempty"`
	Details       []DetailDTO     `json:"details,omitempty"`
}

type BreakdownDTO struct {
	Kind   string          `json:"kind,omitempty"`
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// MessageDTO is a non-fatal calculation message.
type MessageDTO struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type FrequencyDaysResponse struct {
	Frequency string       `json:"frequency"`
	Days      *int         `json:"days"`
	Messages  []MessageDTO `json:"messages"`
}

// =============================================================================
// COMMISSIONS
// =============================================================================

type PlanDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	CommissionProduct string `json:"commission_product,omitempty"`
	AdjustPrepayment  bool   `json:"adjust_prepayment"`
	Lines             int    `json:"lines"`
}

type AgentDTO struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Party     string   `json:"party,omitempty"`
	PlanID    string   `json:"plan_id,omitempty"`
	Coverages []string `json:"coverages,omitempty"`
}

type ContractDTO struct {
	ID                string   `json:"id"`
	Product           string   `json:"product"`
	Status            string   `json:"status"`
	TerminationReason string   `json:"termination_reason,omitempty"`
	Options           []string `json:"options"`
}

// CommissionDTO represents a ledger row in API responses.
type CommissionDTO struct {
	ID                 string              `json:"id"`
	Agent              string              `json:"agent"`
	Date               string              `json:"date"`
	Origin             string              `json:"origin"`
	InvoiceLine        string              `json:"invoice_line,omitempty"`
	Contract           string              `json:"contract"`
	Option             string              `json:"option"`
	Product            string              `json:"product,omitempty"`
	Amount             decimal.Decimal     `json:"amount"`
	IsPrepayment       bool                `json:"is_prepayment"`
	RedeemedPrepayment decimal.NullDecimal `json:"redeemed_prepayment"`
	BaseAmount         decimal.Decimal     `json:"base_amount"`
	CommissionRate     decimal.NullDecimal `json:"commission_rate"`
	Cancels            string              `json:"cancels,omitempty"`
	Description        string              `json:"description"`
}

// CommissionsResponse wraps rows produced by an operation.
type CommissionsResponse struct {
	Commissions []CommissionDTO `json:"commissions"`
	Total       decimal.Decimal `json:"total"`
}

type PrepaymentDTO struct {
	Agent           string          `json:"agent"`
	Option          string          `json:"option"`
	Paid            decimal.Decimal `json:"paid"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	OutstandingPaid decimal.Decimal `json:"outstanding_paid"`
}

// InvoiceAgentRequest recognises the agent's due rows on InvoiceLine.
type InvoiceAgentRequest struct {
	Until       string `json:"until" validate:"omitempty,datetime=2006-01-02"`
	InvoiceLine string `json:"invoice_line" validate:"required"`
}

type TerminateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRuleDTO(r *pricing.Rule) PricingRuleDTO {
	dto := PricingRuleDTO{
		ID:                r.ID,
		Name:              r.Name,
		StartDate:         r.Start.String(),
		Frequency:         string(r.GiveMeFrequency()),
		Components:        toComponentDTOs(r.Components),
		SubItemComponents: toComponentDTOs(r.SubItemComponents),
		CustomCombination: r.CombinationRule != nil,
	}
	if r.End != nil {
		dto.EndDate = lo.ToPtr(r.End.String())
	}
	return dto
}

func toComponentDTOs(cs []*pricing.Component) []ComponentDTO {
	return lo.Map(cs, func(c *pricing.Component, _ int) ComponentDTO {
		return ComponentDTO{Code: c.Code, Kind: string(c.Kind), ConfigKind: string(c.ConfigKind)}
	})
}

func toPriceResponse(line *pricing.ResultLine, msgs []pricing.Message) PriceResponse {
	return PriceResponse{
		Amount:      line.Amount,
		Frequency:   string(line.Frequency),
		Description: line.Description(),
		Details:     toDetailDTOs(line.Details),
		Breakdown: lo.Map(line.Breakdown(), func(b pricing.BreakdownEntry, _ int) BreakdownDTO {
			return BreakdownDTO{Kind: string(b.Key.Kind), Code: b.Key.Code, Amount: b.Amount}
		}),
		Messages: toMessageDTOs(msgs),
	}
}

func toDetailDTOs(ds []pricing.Detail) []DetailDTO {
	return lo.Map(ds, func(d pricing.Detail, _ int) DetailDTO {
		return DetailDTO{
			Kind:          string(d.Kind),
			Code:          d.Code,
			Amount:        d.Amount,
			ToRecalculate: d.ToRecalculate,
			Details:       toDetailDTOs(d.Details),
		}
	})
}

func toMessageDTOs(msgs []pricing.Message) []MessageDTO {
	return lo.Map(msgs, func(m pricing.Message, _ int) MessageDTO {
		return MessageDTO{Key: string(m.Key), Text: m.String()}
	})
}

func toPlanDTO(p *commission.Plan) PlanDTO {
	return PlanDTO{
		ID:                string(p.ID),
		Name:              p.Name,
		CommissionProduct: p.CommissionProduct,
		AdjustPrepayment:  p.AdjustPrepayment,
		Lines:             len(p.Lines),
	}
}

func toAgentDTO(a *commission.Agent) AgentDTO {
	dto := AgentDTO{ID: string(a.ID), Kind: string(a.Kind), Party: a.Party, Coverages: a.Coverages}
	if a.Plan != nil {
		dto.PlanID = string(a.Plan.ID)
	}
	return dto
}

func toContractDTO(c *commission.Contract) ContractDTO {
	return ContractDTO{
		ID:                string(c.ID),
		Product:           c.Product,
		Status:            string(c.Status),
		TerminationReason: c.TerminationReason,
		Options: lo.Map(c.Options, func(o *commission.Option, _ int) string {
			return string(o.ID)
		}),
	}
}

func toCommissionDTO(c generic.Commission) CommissionDTO {
	return CommissionDTO{
		ID:                 string(c.ID),
		Agent:              string(c.Agent),
		Date:               c.Date.String(),
		Origin:             c.Origin.String(),
		InvoiceLine:        c.InvoiceLine,
		Contract:           string(c.CommissionedContract),
		Option:             string(c.CommissionedOption),
		Product:            c.Product,
		Amount:             c.Amount,
		IsPrepayment:       c.IsPrepayment,
		RedeemedPrepayment: c.RedeemedPrepayment,
		BaseAmount:         c.BaseAmount,
		CommissionRate:     c.CommissionRate,
		Cancels:            string(c.Cancels),
		Description:        c.CalculationDescription(),
	}
}

func toCommissionsResponse(rows []generic.Commission) CommissionsResponse {
	return CommissionsResponse{
		Commissions: lo.Map(rows, func(c generic.Commission, _ int) CommissionDTO { return toCommissionDTO(c) }),
		Total: generic.SumDecimals(lo.Map(rows, func(c generic.Commission, _ int) decimal.Decimal {
			return c.Amount
		})...),
	}
}
