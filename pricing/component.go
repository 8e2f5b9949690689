package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// COMPONENT - One contribution to a price
// =============================================================================

// Component contributes a base amount, a tax or a fee.
//
// Meaningful source by kind:
//
//	base/simple   FixedAmount
//	base/advanced Rule
//	tax           Tax
//	fee           Fee
type Component struct {
	Code            string
	Kind            LineKind
	ConfigKind      ConfigKind
	RatedObjectKind RatedObjectKind
	FixedAmount     decimal.Decimal
	Rule            RuleEngine
	Tax             *Tax
	Fee             *Fee
}

// CalculateValue evaluates the component alone. Taxes and fees return 0
// because their base is only known at combination time.
func (c *Component) CalculateValue(args *Args) (Detail, []Message) {
	detail := Detail{Kind: c.Kind, Code: c.Code, Amount: decimal.Zero, OnObject: c}
	switch {
	case c.Kind == KindTax || c.Kind == KindFee:
		return detail, nil
	case c.configKind() == ConfigSimple:
		detail.Amount = c.FixedAmount
		return detail, nil
	case c.Rule == nil:
		return detail, []Message{NewMessage(MsgMissingRule, c.Code)}
	}

	res := c.Rule.Compute(args)
	detail.Amount = res.Value
	var msgs []Message
	msgs = append(msgs, res.Errors...)
	msgs = append(msgs, res.Warnings...)
	return detail, msgs
}

func (c *Component) configKind() ConfigKind {
	if c.ConfigKind == "" {
		return ConfigSimple
	}
	return c.ConfigKind
}

func (c *Component) ratedObjectKind() RatedObjectKind {
	if c.RatedObjectKind == "" {
		return RatedGlobal
	}
	return c.RatedObjectKind
}

// Summary is a short display value: tax or fee label, rule name, or amount.
func (c *Component) Summary() string {
	switch {
	case c.Kind == KindTax && c.Tax != nil:
		return c.Tax.label()
	case c.Kind == KindFee && c.Fee != nil:
		return c.Fee.label()
	case c.configKind() == ConfigAdvanced && c.Rule != nil:
		if n, ok := c.Rule.(Named); ok {
			return n.RuleName()
		}
		return "rule"
	case c.configKind() == ConfigSimple:
		return c.FixedAmount.String()
	}
	return ""
}

// SyncCode aligns the code with the referenced tax or fee.
func (c *Component) SyncCode() {
	switch {
	case c.Tax != nil:
		c.Code = c.Tax.Code
	case c.Fee != nil:
		c.Code = c.Fee.Code
	}
}

// Validate checks that exactly one source is meaningful for the kind.
func (c *Component) Validate(owner string) error {
	obj := owner + ":" + c.Code
	if c.Code == "" {
		return generic.NewValidationError(owner, "code", "component code is required")
	}
	if !c.Kind.IsValid() {
		return generic.NewValidationError(obj, "kind", "unknown kind %q", c.Kind)
	}
	if !c.ratedObjectKind().IsValid() {
		return generic.NewValidationError(obj, "rated_object_kind", "unknown rated object kind %q", c.RatedObjectKind)
	}
	switch c.Kind {
	case KindTax:
		if c.Tax == nil {
			return generic.NewValidationError(obj, "tax", "tax component requires a tax")
		}
		if c.Fee != nil || c.Rule != nil || !c.FixedAmount.IsZero() {
			return generic.NewValidationError(obj, "tax", "tax component only uses its tax")
		}
	case KindFee:
		if c.Fee == nil {
			return generic.NewValidationError(obj, "fee", "fee component requires a fee")
		}
		if c.Tax != nil || c.Rule != nil || !c.FixedAmount.IsZero() {
			return generic.NewValidationError(obj, "fee", "fee component only uses its fee")
		}
	case KindBase:
		if c.Tax != nil || c.Fee != nil {
			return generic.NewValidationError(obj, "kind", "base component cannot reference a tax or fee")
		}
		switch c.configKind() {
		case ConfigSimple:
			if c.Rule != nil {
				return generic.NewValidationError(obj, "rule", "simple component cannot use a rule")
			}
		case ConfigAdvanced:
			if c.Rule == nil {
				return generic.NewValidationError(obj, "rule", "advanced component requires a rule")
			}
			if !c.FixedAmount.IsZero() {
				return generic.NewValidationError(obj, "fixed_amount", "advanced component cannot use a fixed amount")
			}
		default:
			return generic.NewValidationError(obj, "config_kind", "unknown config kind %q", c.ConfigKind)
		}
	}
	return nil
}
