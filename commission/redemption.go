package commission

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// PREPAYMENT REDEMPTION
// =============================================================================

// UpdateCommissionsWithPrepayment consumes the outstanding prepayment of
// each (agent, option) against new commission rows, greedily in slice
// order. Rows are modified in place and the same slice is returned.
//
// Must run exactly once on rows built from invoice lines, never on
// persisted rows: a second call redeems twice.
//
// Example: balance 60, rows [100, 100] => [40 (redeemed 60), 100 (redeemed 0)]
func (e *Engine) UpdateCommissionsWithPrepayment(ctx context.Context, st generic.Store, commissions []generic.Commission) ([]generic.Commission, error) {
	if len(commissions) == 0 {
		return commissions, nil
	}
	keys := lo.Uniq(lo.Map(commissions, func(c generic.Commission, _ int) generic.AgentOption { return c.Key() }))
	outstanding, err := generic.NewLedger(st).OutstandingPrepayment(ctx, keys)
	if err != nil {
		return nil, err
	}

	for i := range commissions {
		c := &commissions[i]
		balance, ok := outstanding[c.Key()]
		if !ok {
			continue
		}
		used := decimal.Min(balance, c.Amount)
		if used.IsNegative() {
			used = decimal.Zero
		}
		c.Amount = c.Amount.Sub(used)
		c.RedeemedPrepayment = generic.NullDecimal(used)
		outstanding[c.Key()] = balance.Sub(used)
	}
	return commissions, nil
}
