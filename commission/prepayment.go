package commission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// PREPAYMENT COMPUTATION
// =============================================================================

// CreatePrepaymentCommissions recomputes the prepayment of every option.
// adjustment=false is the activation pass (all plans), adjustment=true
// the rebill pass (only plans with AdjustPrepayment).
func (e *Engine) CreatePrepaymentCommissions(ctx context.Context, contract *Contract, adjustment bool) ([]generic.Commission, error) {
	var created []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		created = nil
		for _, o := range contract.Options {
			rows, err := e.computePrepayment(ctx, st, contract, o, adjustment)
			if err != nil {
				return err
			}
			created = append(created, rows...)
		}
		if len(created) == 0 {
			return nil
		}
		return st.Save(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	e.log().Infow("prepayment commissions created",
		"contract", contract.ID, "adjustment", adjustment, "rows", len(created))
	return created, nil
}

// ComputePrepayment recomputes and persists the prepayment of one option.
func (e *Engine) ComputePrepayment(ctx context.Context, contract *Contract, option *Option, adjustment bool) ([]generic.Commission, error) {
	var created []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		rows, err := e.computePrepayment(ctx, st, contract, option, adjustment)
		if err != nil {
			return err
		}
		created = rows
		if len(rows) == 0 {
			return nil
		}
		return st.Save(ctx, rows)
	})
	return created, err
}

// PrepaymentAmountAndRate evaluates the plan for an option.
// rate = amount / first_year_premium.
func (e *Engine) PrepaymentAmountAndRate(contract *Contract, option *Option, ap AgentPlan) (decimal.NullDecimal, decimal.NullDecimal, error) {
	fyp := e.firstYearPremium(option)
	pattern := Pattern{
		Coverage:         option.Coverage,
		Agent:            ap.Agent.ID,
		Option:           option.ID,
		FirstYearPremium: fyp,
	}
	amount, err := ap.Plan.ComputePrepayment(contract.Product, pattern)
	if err != nil || !amount.Valid {
		return decimal.NullDecimal{}, decimal.NullDecimal{}, err
	}
	return amount, e.rate(amount.Decimal, fyp), nil
}

// computePrepayment deletes stale estimates and returns the new rows
// (not saved).
func (e *Engine) computePrepayment(ctx context.Context, st generic.Store, contract *Contract, option *Option, adjustment bool) ([]generic.Commission, error) {
	pairs := contract.AgentPlansUsed(option)
	if len(pairs) == 0 {
		return nil, nil
	}
	ledger := generic.NewLedger(st)
	keys := lo.Map(pairs, func(ap AgentPlan, _ int) generic.AgentOption {
		return generic.AgentOption{Agent: ap.Agent.ID, Option: option.ID}
	})
	paid, err := ledger.PaidPrepayments(ctx, keys)
	if err != nil {
		return nil, err
	}

	var (
		rows     []generic.Commission
		toDelete []generic.CommissionID
	)
	for i, ap := range pairs {
		if adjustment && !ap.Plan.AdjustPrepayment {
			continue
		}
		amount, rate, err := e.PrepaymentAmountAndRate(contract, option, ap)
		if err != nil {
			return nil, errors.Wrapf(err, "prepayment of option %s for agent %s", option.ID, ap.Agent.ID)
		}
		if !amount.Valid {
			continue
		}

		stale, err := st.Find(ctx, generic.Filter{
			Agents:       []generic.AgentID{ap.Agent.ID},
			Origin:       lo.ToPtr(generic.OptionRef(option.ID)),
			InvoiceLine:  lo.ToPtr(""),
			IsPrepayment: lo.ToPtr(true),
		})
		if err != nil {
			return nil, err
		}
		toDelete = append(toDelete, lo.Map(stale, func(c generic.Commission, _ int) generic.CommissionID { return c.ID })...)

		net := e.roundAmount(amount.Decimal.Sub(paid[keys[i]]))
		e.log().Debugw("prepayment computed",
			"agent", ap.Agent.ID, "option", option.ID, "amount", amount.Decimal, "paid", paid[keys[i]], "net", net)
		if net.IsZero() {
			continue
		}

		entries, err := ap.Plan.ComputePrepaymentSchedule(contract, option, e.today())
		if err != nil {
			return nil, err
		}
		rows = append(rows, e.scheduleRows(contract, option, ap, net, rate, entries)...)
	}

	if len(toDelete) > 0 {
		if err := st.Delete(ctx, lo.Uniq(toDelete)); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// scheduleRows expands net into one row per schedule entry. The last
// row takes the rounding remainder so rows sum to net.
func (e *Engine) scheduleRows(contract *Contract, option *Option, ap AgentPlan, net decimal.Decimal, rate decimal.NullDecimal, entries []ScheduleEntry) []generic.Commission {
	rows := make([]generic.Commission, 0, len(entries))
	// messages were logged when the amount was computed
	base, _ := option.FirstYearPremium()
	allocated := decimal.Zero
	for i, entry := range entries {
		amount := e.roundAmount(entry.Fraction.Mul(net))
		if i == len(entries)-1 {
			amount = net.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		rows = append(rows, generic.Commission{
			ID:                   generic.NewCommissionID(),
			Agent:                ap.Agent.ID,
			Date:                 entry.Date,
			Origin:               generic.OptionRef(option.ID),
			CommissionedContract: contract.ID,
			CommissionedOption:   option.ID,
			Product:              ap.Plan.CommissionProduct,
			Amount:               amount,
			IsPrepayment:         true,
			BaseAmount:           base,
			CommissionRate:       rate,
		})
	}
	return rows
}

// =============================================================================
// TERMINATION
// =============================================================================

// AdjustPrepaymentCommissionsOnceTerminated runs the termination
// adjustment on every option of the contract.
func (e *Engine) AdjustPrepaymentCommissionsOnceTerminated(ctx context.Context, contract *Contract) ([]generic.Commission, error) {
	var created []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		created = nil
		for _, o := range contract.Options {
			rows, err := e.adjustOnceTerminated(ctx, st, contract, o)
			if err != nil {
				return err
			}
			created = append(created, rows...)
		}
		if len(created) == 0 {
			return nil
		}
		return st.Save(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	e.log().Infow("prepayment adjusted after termination", "contract", contract.ID, "rows", len(created))
	return created, nil
}

// AdjustPrepaymentOnceTerminated gives back the paid prepayment of one
// option that was not redeemed yet, and drops unpaid estimates.
func (e *Engine) AdjustPrepaymentOnceTerminated(ctx context.Context, contract *Contract, option *Option) ([]generic.Commission, error) {
	var created []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		rows, err := e.adjustOnceTerminated(ctx, st, contract, option)
		if err != nil {
			return err
		}
		created = rows
		if len(rows) == 0 {
			return nil
		}
		return st.Save(ctx, rows)
	})
	return created, err
}

func (e *Engine) adjustOnceTerminated(ctx context.Context, st generic.Store, contract *Contract, option *Option) ([]generic.Commission, error) {
	pairs := contract.AgentPlansUsed(option)
	if len(pairs) == 0 {
		return nil, nil
	}
	keys := lo.Map(pairs, func(ap AgentPlan, _ int) generic.AgentOption {
		return generic.AgentOption{Agent: ap.Agent.ID, Option: option.ID}
	})
	outstanding, err := generic.NewLedger(st).OutstandingPaidPrepayment(ctx, keys)
	if err != nil {
		return nil, err
	}

	var rows []generic.Commission
	for i, ap := range pairs {
		balance, ok := outstanding[keys[i]]
		if !ok {
			continue
		}
		amount := e.roundAmount(balance)
		if amount.IsZero() {
			continue
		}
		rows = append(rows, generic.Commission{
			ID:                   generic.NewCommissionID(),
			Agent:                ap.Agent.ID,
			Date:                 e.today(),
			Origin:               generic.OptionRef(option.ID),
			CommissionedContract: contract.ID,
			CommissionedOption:   option.ID,
			Product:              ap.Plan.CommissionProduct,
			Amount:               amount.Neg(),
			IsPrepayment:         true,
		})
	}

	stale, err := st.Find(ctx, generic.Filter{
		Agents:       lo.Map(pairs, func(ap AgentPlan, _ int) generic.AgentID { return ap.Agent.ID }),
		Options:      []generic.OptionID{option.ID},
		InvoiceLine:  lo.ToPtr(""),
		IsPrepayment: lo.ToPtr(true),
	})
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		ids := lo.Map(stale, func(c generic.Commission, _ int) generic.CommissionID { return c.ID })
		if err := st.Delete(ctx, ids); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Rebill recomputes prepayments after a contract change: termination
// adjustment if terminated or void, else the adjustment pass.
func (e *Engine) Rebill(ctx context.Context, contract *Contract) ([]generic.Commission, error) {
	if contract.IsTerminated() {
		return e.AdjustPrepaymentCommissionsOnceTerminated(ctx, contract)
	}
	return e.CreatePrepaymentCommissions(ctx, contract, true)
}
