/*
Package commission computes commission and prepayment ledger rows.

OPERATIONS (each runs in one store transaction):
  CreatePrepaymentCommissions  activation (adjustment=false) / rebill (true)
  AdjustPrepaymentOnceTerminated  negate paid, unredeemed prepayment
  Rebill                       dispatch on contract status
  GenerateInvoiceCommissions   real commissions + prepayment redemption
  CancelInvoice                negated clones of the invoice commissions
  InvoiceAgentCommissions      recognise due rows on an agent invoice line

LEDGER DISCIPLINE:
  Uninvoiced prepayment estimates are replaced (delete stale, save new).
  Invoiced rows are never deleted or changed. Cancellation and
  termination add compensating rows.

CONCURRENCY:
  Outstanding balances are read and consumed in the same transaction,
  so two invoicings of the same (agent, option) can't both redeem
  the same prepayment.
*/
package commission

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
	"github.com/warp/premium-engine/logger"
	"github.com/warp/premium-engine/pricing"
)

// Default precisions of commission amounts and rates.
const (
	DefaultAmountDigits int32 = 8
	DefaultRateDigits   int32 = 4
)

type Engine struct {
	Store        generic.TxStore
	Logger       *logger.Logger
	Today        func() generic.TimePoint
	AmountDigits int32
	RateDigits   int32
}

func NewEngine(store generic.TxStore, log *logger.Logger) *Engine {
	return &Engine{
		Store:        store,
		Logger:       log.OrNop(),
		Today:        generic.Today,
		AmountDigits: DefaultAmountDigits,
		RateDigits:   DefaultRateDigits,
	}
}

func (e *Engine) today() generic.TimePoint {
	if e.Today == nil {
		return generic.Today()
	}
	return e.Today()
}

func (e *Engine) log() *logger.Logger {
	return e.Logger.OrNop()
}

// firstYearPremium prices the option. A premium computed with pricing
// messages is partial: it is still used, and the messages are logged.
func (e *Engine) firstYearPremium(option *Option) decimal.Decimal {
	fyp, msgs := option.FirstYearPremium()
	if len(msgs) > 0 {
		e.log().Warnw("first-year premium computed with pricing messages",
			"option", option.ID, "premium", fyp, "messages", pricing.Messages(msgs))
	}
	return fyp
}

func (e *Engine) roundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(e.AmountDigits)
}

// rate is amount/base rounded, invalid when either is zero.
func (e *Engine) rate(amount, base decimal.Decimal) decimal.NullDecimal {
	if amount.IsZero() || base.IsZero() {
		return decimal.NullDecimal{}
	}
	return generic.NullDecimal(amount.DivRound(base, e.RateDigits))
}

func (e *Engine) withTx(ctx context.Context, fn func(st generic.Store) error) error {
	return e.Store.WithTx(ctx, fn)
}

// Commissions returns the rows of an agent, optionally restricted.
func (e *Engine) Commissions(ctx context.Context, filter generic.Filter) ([]generic.Commission, error) {
	return e.Store.Find(ctx, filter)
}
