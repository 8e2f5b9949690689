package commission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// INVOICE COMMISSIONS
// =============================================================================

// GenerateInvoiceCommissions builds the real commissions of every invoice
// line for every agent plan of the option, redeems outstanding
// prepayment once and saves the rows. Rows ending at zero without
// redemption are dropped.
func (e *Engine) GenerateInvoiceCommissions(ctx context.Context, invoice *Invoice) ([]generic.Commission, error) {
	if invoice.Contract == nil {
		return nil, errors.Wrapf(generic.ErrNotFound, "contract of invoice %s", invoice.ID)
	}
	contract := invoice.Contract

	var saved []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		var rows []generic.Commission
		for _, line := range invoice.Lines {
			existing, err := st.Find(ctx, generic.Filter{Origin: lo.ToPtr(generic.InvoiceLineRef(line.ID))})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return errors.Wrapf(generic.ErrAlreadyGenerated, "invoice line %s", line.ID)
			}
			option := contract.Option(line.Option)
			if option == nil {
				return errors.Wrapf(generic.ErrNotFound, "option %s of invoice line %s", line.Option, line.ID)
			}
			lineRows, err := e.lineCommissions(contract, option, invoice, line)
			if err != nil {
				return err
			}
			rows = append(rows, lineRows...)
		}

		rows, err := e.UpdateCommissionsWithPrepayment(ctx, st, rows)
		if err != nil {
			return err
		}
		rows = lo.Filter(rows, func(c generic.Commission, _ int) bool {
			return !c.Amount.IsZero() || (c.RedeemedPrepayment.Valid && !c.RedeemedPrepayment.Decimal.IsZero())
		})
		saved = rows
		if len(rows) == 0 {
			return nil
		}
		return st.Save(ctx, rows)
	})
	if err != nil {
		return nil, err
	}
	e.log().Infow("invoice commissions generated", "invoice", invoice.ID, "rows", len(saved))
	return saved, nil
}

func (e *Engine) lineCommissions(contract *Contract, option *Option, invoice *Invoice, line InvoiceLine) ([]generic.Commission, error) {
	var rows []generic.Commission
	for _, ap := range contract.AgentPlansUsed(option) {
		pattern := Pattern{
			Coverage:         option.Coverage,
			Agent:            ap.Agent.ID,
			Option:           option.ID,
			FirstYearPremium: e.firstYearPremium(option),
			NbYears:          option.NbYears(invoice.Date),
			Extra:            map[string]any{"invoice_line": line.ID},
		}
		amount, err := ap.Plan.Compute(line.Amount, contract.Product, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "commission of line %s for agent %s", line.ID, ap.Agent.ID)
		}
		if !amount.Valid {
			continue
		}
		value := e.roundAmount(amount.Decimal)
		rows = append(rows, generic.Commission{
			ID:                   generic.NewCommissionID(),
			Agent:                ap.Agent.ID,
			Date:                 invoice.Date,
			Origin:               generic.InvoiceLineRef(line.ID),
			CommissionedContract: contract.ID,
			CommissionedOption:   option.ID,
			Product:              ap.Plan.CommissionProduct,
			Amount:               value,
			BaseAmount:           line.Amount,
			CommissionRate:       e.rate(value, line.Amount),
		})
	}
	return rows, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelInvoice reverses the commissions of every invoice line with
// negated clones. Rows already reversed are skipped.
func (e *Engine) CancelInvoice(ctx context.Context, invoice *Invoice) ([]generic.Commission, error) {
	var clones []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		clones = nil
		for _, line := range invoice.Lines {
			rows, err := st.Find(ctx, generic.Filter{Origin: lo.ToPtr(generic.InvoiceLineRef(line.ID))})
			if err != nil {
				return err
			}
			reversed := map[generic.CommissionID]bool{}
			for _, c := range rows {
				if c.Cancels != "" {
					reversed[c.Cancels] = true
				}
			}
			for _, c := range rows {
				if c.Cancels != "" || reversed[c.ID] {
					continue
				}
				clone := c.NegatedCopy(generic.CopyOptions{CancelInvoices: true})
				clone.Date = e.today()
				clones = append(clones, clone)
			}
		}
		if len(clones) == 0 {
			return nil
		}
		return st.Save(ctx, clones)
	})
	if err != nil {
		return nil, err
	}
	e.log().Infow("invoice commissions cancelled", "invoice", invoice.ID, "rows", len(clones))
	return clones, nil
}

// =============================================================================
// AGENT INVOICING
// =============================================================================

// InvoiceAgentCommissions recognises the uninvoiced rows of an agent
// dated on or before until on a broker/insurer invoice line. Recognised
// prepayments count as paid from then on.
func (e *Engine) InvoiceAgentCommissions(ctx context.Context, agent generic.AgentID, until generic.TimePoint, invoiceLine string) ([]generic.Commission, error) {
	if invoiceLine == "" {
		return nil, generic.NewValidationError("agent:"+string(agent), "invoice_line", "invoice line is required")
	}
	var marked []generic.Commission
	err := e.withTx(ctx, func(st generic.Store) error {
		rows, err := st.Find(ctx, generic.Filter{
			Agents:      []generic.AgentID{agent},
			InvoiceLine: lo.ToPtr(""),
			Until:       &until,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			marked = nil
			return nil
		}
		ids := lo.Map(rows, func(c generic.Commission, _ int) generic.CommissionID { return c.ID })
		if err := st.MarkInvoiced(ctx, ids, invoiceLine); err != nil {
			return err
		}
		for i := range rows {
			rows[i].InvoiceLine = invoiceLine
		}
		marked = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Infow("agent commissions invoiced", "agent", agent, "invoice_line", invoiceLine, "rows", len(marked))
	return marked, nil
}
