/*
Package factory converts JSON configuration documents into engine types.

PURPOSE:
  Pricing rules, commission plans, agents, contracts and invoices are
  configured as JSON documents. The factory validates the documents and
  builds the pricing.Rule / commission.* structs the engines compute on,
  so configuration changes need no code change.

JSON SCHEMA (pricing rule):
  {
    "id": "PR-A",
    "name": "Scenario A",
    "start_date": "2025-01-01",
    "frequency": "monthly",
    "taxes": [{"code": "TT", "versions": [
      {"start_date": "2020-01-01", "kind": "rate", "value": 14}
    ]}],
    "fees": [{"code": "FEE", "versions": [
      {"start_date": "2020-01-01", "kind": "flat", "value": 20}
    ]}],
    "components": [
      {"code": "PP", "kind": "base", "fixed_amount": 12},
      {"code": "FEE", "kind": "fee", "fee": "FEE"},
      {"code": "TT", "kind": "tax", "tax": "TT"}
    ],
    "combination_rule": {"name": "custom", "expression": "..."}
  }

  Components reference taxes and fees by code. Advanced components and
  combination rules carry a govaluate expression.

VALIDATION:
  1. Struct tags (go-playground/validator)
  2. References to taxes/fees resolved
  3. Rule.Validate() (component invariants, combination compatibility)

SEE ALSO:
  - commission.go: Plans, agents, contracts, invoices
  - repository.go: Documents store + lookups
  - pricing/rule.go: Rule type definition
*/
package factory

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/pricing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a pricing rule.
type RuleJSON struct {
	ID                     string          `json:"id" validate:"required"`
	Name                   string          `json:"name"`
	StartDate              string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate                string          `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Frequency              string          `json:"frequency,omitempty" validate:"omitempty,oneof=yearly half-yearly quarterly monthly"`
	CurrencyDigits         *int32          `json:"currency_digits,omitempty" validate:"omitnil,gte=0,lte=8"`
	Taxes                  []TaxJSON       `json:"taxes,omitempty" validate:"dive"`
	Fees                   []TaxJSON       `json:"fees,omitempty" validate:"dive"`
	Components             []ComponentJSON `json:"components" validate:"dive"`
	SubItemComponents      []ComponentJSON `json:"sub_item_components,omitempty" validate:"dive"`
	CombinationRule        *ExpressionJSON `json:"combination_rule,omitempty"`
	SubItemCombinationRule *ExpressionJSON `json:"sub_item_combination_rule,omitempty"`
}

// TaxJSON describes a tax or a fee with its versions.
type TaxJSON struct {
	Code     string        `json:"code" validate:"required"`
	Name     string        `json:"name,omitempty"`
	Versions []VersionJSON `json:"versions" validate:"required,min=1,dive"`
}

type VersionJSON struct {
	StartDate          string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string          `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Kind               string          `json:"kind" validate:"required,oneof=rate flat"`
	Value              decimal.Decimal `json:"value"`
	ApplyAtPricingTime bool            `json:"apply_at_pricing_time,omitempty"`
}

type ComponentJSON struct {
	Code            string          `json:"code"`
	Kind            string          `json:"kind" validate:"required,oneof=base tax fee"`
	ConfigKind      string          `json:"config_kind,omitempty" validate:"omitempty,oneof=simple advanced"`
	RatedObjectKind string          `json:"rated_object_kind,omitempty" validate:"omitempty,oneof=global sub_item"`
	FixedAmount     decimal.Decimal `json:"fixed_amount,omitempty"`
	Rule            *ExpressionJSON `json:"rule,omitempty"`
	Tax             string          `json:"tax,omitempty"`
	Fee             string          `json:"fee,omitempty"`
}

type ExpressionJSON struct {
	Name       string `json:"name"`
	Expression string `json:"expression" validate:"required"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON documents to engine structs.
type Factory struct {
	validate *validator.Validate

	// CurrencyDigits applies to rules that don't set currency_digits.
	CurrencyDigits int32
}

func New() *Factory {
	return &Factory{
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		CurrencyDigits: pricing.DefaultCurrencyDigits,
	}
}

func (f *Factory) check(kind string, doc any) error {
	if err := f.validate.Struct(doc); err != nil {
		return errors.Mark(errors.Wrapf(err, "invalid %s document", kind), generic.ErrValidation)
	}
	return nil
}

func decode(kind string, data []byte, doc any) error {
	if err := json.Unmarshal(data, doc); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to parse %s JSON", kind), generic.ErrValidation)
	}
	return nil
}

// ParseRule parses and validates a pricing rule document.
func (f *Factory) ParseRule(data []byte) (*pricing.Rule, error) {
	var rj RuleJSON
	if err := decode("pricing rule", data, &rj); err != nil {
		return nil, err
	}
	return f.RuleFromJSON(rj)
}

// RuleFromJSON converts RuleJSON to pricing.Rule and validates it.
func (f *Factory) RuleFromJSON(rj RuleJSON) (*pricing.Rule, error) {
	if err := f.check("pricing rule", rj); err != nil {
		return nil, err
	}

	start, _ := generic.ParseDate(rj.StartDate)
	rule := &pricing.Rule{
		ID:             rj.ID,
		Name:           rj.Name,
		Start:          start,
		End:            optionalDate(rj.EndDate),
		Frequency:      generic.Frequency(rj.Frequency),
		CurrencyDigits: rj.CurrencyDigits,
	}
	if rule.CurrencyDigits == nil {
		digits := f.CurrencyDigits
		rule.CurrencyDigits = &digits
	}

	taxes := make(map[string]*pricing.Tax, len(rj.Taxes))
	for _, tj := range rj.Taxes {
		tax := &pricing.Tax{Code: tj.Code, Name: tj.Name}
		for _, vj := range tj.Versions {
			tax.Versions = append(tax.Versions, pricing.TaxVersion{Version: parseVersion(vj)})
		}
		taxes[tj.Code] = tax
	}
	fees := make(map[string]*pricing.Fee, len(rj.Fees))
	for _, fj := range rj.Fees {
		fee := &pricing.Fee{Code: fj.Code, Name: fj.Name}
		for _, vj := range fj.Versions {
			fee.Versions = append(fee.Versions, pricing.FeeVersion{Version: parseVersion(vj)})
		}
		fees[fj.Code] = fee
	}

	var err error
	if rule.Components, err = parseComponents(rj.Components, pricing.RatedGlobal, taxes, fees); err != nil {
		return nil, err
	}
	if rule.SubItemComponents, err = parseComponents(rj.SubItemComponents, pricing.RatedSubItem, taxes, fees); err != nil {
		return nil, err
	}
	if rule.CombinationRule, err = parseExpression(rj.CombinationRule); err != nil {
		return nil, err
	}
	if rule.SubItemCombinationRule, err = parseExpression(rj.SubItemCombinationRule); err != nil {
		return nil, err
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

func parseComponents(cjs []ComponentJSON, scope pricing.RatedObjectKind, taxes map[string]*pricing.Tax, fees map[string]*pricing.Fee) ([]*pricing.Component, error) {
	components := make([]*pricing.Component, 0, len(cjs))
	for _, cj := range cjs {
		c := &pricing.Component{
			Code:            cj.Code,
			Kind:            pricing.LineKind(cj.Kind),
			ConfigKind:      pricing.ConfigKind(cj.ConfigKind),
			RatedObjectKind: pricing.RatedObjectKind(cj.RatedObjectKind),
			FixedAmount:     cj.FixedAmount,
		}
		if c.RatedObjectKind == "" {
			c.RatedObjectKind = scope
		}
		if c.Kind == pricing.KindBase && c.ConfigKind == "" {
			c.ConfigKind = pricing.ConfigSimple
			if cj.Rule != nil {
				c.ConfigKind = pricing.ConfigAdvanced
			}
		}
		if cj.Rule != nil {
			rule, err := parseExpression(cj.Rule)
			if err != nil {
				return nil, err
			}
			c.Rule = rule
		}
		if cj.Tax != "" {
			tax, ok := taxes[cj.Tax]
			if !ok {
				return nil, generic.NewValidationError("component:"+cj.Code, "tax", "unknown tax %q", cj.Tax)
			}
			c.Tax = tax
		}
		if cj.Fee != "" {
			fee, ok := fees[cj.Fee]
			if !ok {
				return nil, generic.NewValidationError("component:"+cj.Code, "fee", "unknown fee %q", cj.Fee)
			}
			c.Fee = fee
		}
		c.SyncCode()
		components = append(components, c)
	}
	return components, nil
}

// parseExpression returns a nil RuleEngine (not a typed nil) when absent.
func parseExpression(ej *ExpressionJSON) (pricing.RuleEngine, error) {
	if ej == nil {
		return nil, nil
	}
	rule, err := pricing.NewExpressionRule(ej.Name, ej.Expression)
	if err != nil {
		return nil, errors.Mark(err, generic.ErrValidation)
	}
	return rule, nil
}

func parseVersion(vj VersionJSON) pricing.Version {
	start, _ := generic.ParseDate(vj.StartDate)
	return pricing.Version{
		Start:              start,
		End:                optionalDate(vj.EndDate),
		Kind:               pricing.ValueKind(vj.Kind),
		Value:              vj.Value,
		ApplyAtPricingTime: vj.ApplyAtPricingTime,
	}
}

// optionalDate parses a date already checked by the validator.
func optionalDate(s string) *generic.TimePoint {
	if s == "" {
		return nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return nil
	}
	return &tp
}
