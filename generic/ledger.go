/*
ledger.go - Prepayment balance queries over the commission ledger

PURPOSE:
  Balances are never stored. Paid and outstanding prepayments are
  always recomputed by summing commission rows, so they can't drift
  from the rows that explain them.

QUERIES:
  PaidPrepayments:
    sum(amount) of prepayment rows recognised on an invoice,
    grouped by (agent, origin option).

  OutstandingPrepayment:
    sum(amount) of all prepayment rows grouped by (agent, origin option)
    minus sum(redeemed_prepayment) grouped by (agent, commissioned option).

  OutstandingPaidPrepayment:
    like OutstandingPrepayment but only counting invoiced prepayments.
    Used when a terminated option must give back what was really paid.

  Keys absent from the ledger are absent from the result maps.

EXAMPLE:
  prepayment 720 invoiced, two real commissions redeemed 60 each
  Paid:        {broker/O1: 720}
  Outstanding: {broker/O1: 600}

SEE ALSO:
  - store.go: Find used by every query
  - commission/redemption.go: Consumes OutstandingPrepayment
*/
package generic

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Read-side view of commission rows
// =============================================================================

type Ledger interface {
	PaidPrepayments(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error)
	OutstandingPrepayment(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error)
	OutstandingPaidPrepayment(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error)
}

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) PaidPrepayments(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error) {
	rows, err := l.prepayments(ctx, keys)
	if err != nil {
		return nil, err
	}
	rows = lo.Filter(rows, func(c Commission, _ int) bool { return c.IsInvoiced() })
	return sumByOrigin(rows, keys), nil
}

func (l *DefaultLedger) OutstandingPrepayment(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error) {
	return l.outstanding(ctx, keys, false)
}

func (l *DefaultLedger) OutstandingPaidPrepayment(ctx context.Context, keys []AgentOption) (map[AgentOption]decimal.Decimal, error) {
	return l.outstanding(ctx, keys, true)
}

func (l *DefaultLedger) outstanding(ctx context.Context, keys []AgentOption, paidOnly bool) (map[AgentOption]decimal.Decimal, error) {
	if len(keys) == 0 {
		return map[AgentOption]decimal.Decimal{}, nil
	}
	redeemedRows, err := l.Store.Find(ctx, Filter{
		Agents:      agentsOf(keys),
		Options:     optionsOf(keys),
		HasRedeemed: true,
	})
	if err != nil {
		return nil, err
	}
	result := make(map[AgentOption]decimal.Decimal)
	for _, c := range redeemedRows {
		k := c.Key()
		if !lo.Contains(keys, k) {
			continue
		}
		result[k] = result[k].Sub(c.RedeemedPrepayment.Decimal)
	}

	prepayRows, err := l.prepayments(ctx, keys)
	if err != nil {
		return nil, err
	}
	if paidOnly {
		prepayRows = lo.Filter(prepayRows, func(c Commission, _ int) bool { return c.IsInvoiced() })
	}
	for k, v := range sumByOrigin(prepayRows, keys) {
		result[k] = result[k].Add(v)
	}
	return result, nil
}

func (l *DefaultLedger) prepayments(ctx context.Context, keys []AgentOption) ([]Commission, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return l.Store.Find(ctx, Filter{
		Agents:       agentsOf(keys),
		IsPrepayment: lo.ToPtr(true),
	})
}

// sumByOrigin groups prepayment rows by (agent, origin option).
func sumByOrigin(rows []Commission, keys []AgentOption) map[AgentOption]decimal.Decimal {
	result := make(map[AgentOption]decimal.Decimal)
	for _, c := range rows {
		if !c.Origin.Is(RefOption) {
			continue
		}
		k := AgentOption{Agent: c.Agent, Option: OptionID(c.Origin.ID)}
		if !lo.Contains(keys, k) {
			continue
		}
		result[k] = result[k].Add(c.Amount)
	}
	return result
}

func agentsOf(keys []AgentOption) []AgentID {
	return lo.Uniq(lo.Map(keys, func(k AgentOption, _ int) AgentID { return k.Agent }))
}

func optionsOf(keys []AgentOption) []OptionID {
	return lo.Uniq(lo.Map(keys, func(k AgentOption, _ int) OptionID { return k.Option }))
}
