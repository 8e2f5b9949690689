package pricing

import "github.com/warp/premium-engine/generic"

// =============================================================================
// SAVE-TIME VALIDATION
// =============================================================================

// Validate rejects configurations that must not be persisted.
func (r *Rule) Validate() error {
	obj := "pricing_rule:" + r.ID
	if err := r.Period().Validate(); err != nil {
		return generic.NewValidationError(obj, "end_date", "%v", err)
	}
	if r.Frequency != "" && !r.Frequency.IsValid() {
		return generic.NewValidationError(obj, "frequency", "unknown frequency %q", r.Frequency)
	}
	for _, scope := range []RatedObjectKind{RatedGlobal, RatedSubItem} {
		seen := map[DetailKey]bool{}
		for _, c := range r.components(scope) {
			if err := c.Validate(obj); err != nil {
				return err
			}
			if c.ratedObjectKind() != scope {
				return generic.NewValidationError(obj+":"+c.Code, "rated_object_kind",
					"component rated on %s listed in %s components", c.ratedObjectKind(), scope)
			}
			k := DetailKey{Kind: c.Kind, Code: c.Code}
			if seen[k] {
				return generic.NewValidationError(obj, "code", "duplicate %s component code %q", c.Kind, c.Code)
			}
			seen[k] = true
		}
	}
	return r.CheckCombinationCompatibility()
}

// CheckCombinationCompatibility fails when a custom combination rule is
// set and a referenced tax or fee version overlapping the rule window
// must be applied at pricing time.
func (r *Rule) CheckCombinationCompatibility() error {
	for _, scope := range []RatedObjectKind{RatedGlobal, RatedSubItem} {
		if r.combinationRule(scope) == nil {
			continue
		}
		for _, c := range r.components(scope) {
			if msg, bad := r.incompatibleVersion(c); bad {
				return generic.NewValidationError("pricing_rule:"+r.ID, "combination_rule", "%s", msg.String())
			}
		}
	}
	return nil
}

func (r *Rule) incompatibleVersion(c *Component) (Message, bool) {
	var (
		versions []Version
		code     string
		key      MessageKey
	)
	switch {
	case c.Kind == KindTax && c.Tax != nil:
		versions, code, key = c.Tax.versions(), c.Tax.Code, MsgBadTaxVersion
	case c.Kind == KindFee && c.Fee != nil:
		versions, code, key = c.Fee.versions(), c.Fee.Code, MsgBadFeeVersion
	default:
		return Message{}, false
	}
	for _, v := range versions {
		if v.ApplyAtPricingTime && v.Period().Overlaps(r.Period()) {
			return NewMessage(key, r.Start.String(), code, v.Start.String()), true
		}
	}
	return Message{}, false
}
