/*
types.go - Core types shared by pricing and commission packages

PURPOSE:
  Defines identifiers, decimal helpers, the polymorphic Ref to the object
  that produced a commission, and the Commission ledger row itself.

KEY TYPES:
  - Ref: Tagged reference (contract, option, invoice line)
  - Commission: One ledger row (prepayment estimate or real commission)
  - AgentOption: Grouping key of the prepayment ledger queries

COMMISSION ROW LIFECYCLE:
  Prepayment rows are created at activation with no invoice line.
  Once recognised on a broker invoice they carry the invoice line and
  can no longer be deleted. Corrections are made by negated clones.

SEE ALSO:
  - ledger.go: Sum queries over Commission rows
  - store.go: Persistence interface
*/
package generic

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	AgentID      string
	ContractID   string
	OptionID     string
	CommissionID string
	PlanID       string
)

// NewCommissionID returns a random row identifier.
func NewCommissionID() CommissionID {
	return CommissionID(uuid.NewString())
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// Round rounds half away from zero to the given number of digits.
func Round(d decimal.Decimal, digits int32) decimal.Decimal {
	return d.Round(digits)
}

// NullDecimal wraps a value as a valid decimal.NullDecimal.
func NullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// SumDecimals adds all values.
func SumDecimals(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// REF - Polymorphic reference to the object a commission comes from
// =============================================================================

type RefKind string

const (
	RefContract    RefKind = "contract"
	RefOption      RefKind = "option"
	RefInvoiceLine RefKind = "invoice_line"
)

// Ref points at a contract, an option or an invoice line.
type Ref struct {
	Kind RefKind
	ID   string
}

func OptionRef(id OptionID) Ref     { return Ref{Kind: RefOption, ID: string(id)} }
func ContractRef(id ContractID) Ref { return Ref{Kind: RefContract, ID: string(id)} }
func InvoiceLineRef(id string) Ref  { return Ref{Kind: RefInvoiceLine, ID: id} }

func (r Ref) IsZero() bool         { return r.Kind == "" && r.ID == "" }
func (r Ref) Is(kind RefKind) bool { return r.Kind == kind }
func (r Ref) String() string       { return string(r.Kind) + ":" + r.ID }

// ParseRef parses "kind:id".
func ParseRef(s string) (Ref, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Ref{}, errors.Newf("invalid reference %q", s)
	}
	switch RefKind(kind) {
	case RefContract, RefOption, RefInvoiceLine:
		return Ref{Kind: RefKind(kind), ID: id}, nil
	}
	return Ref{}, errors.Newf("unknown reference kind %q", kind)
}

// =============================================================================
// COMMISSION - Ledger row
// =============================================================================

// Commission is one row of the commission ledger.
//
// INVARIANTS:
//   - IsPrepayment rows never have RedeemedPrepayment set.
//   - Rows with a non-empty InvoiceLine are never deleted.
//   - Cancels is set on negated clones and names the reversed row.
type Commission struct {
	ID    CommissionID
	Agent AgentID
	Date  TimePoint

	// Origin is the option for prepayments, the invoice line otherwise.
	Origin Ref

	// InvoiceLine is the broker/insurer invoice line that recognised the row.
	InvoiceLine string

	CommissionedContract ContractID
	CommissionedOption   OptionID
	Product              string

	Amount             decimal.Decimal
	IsPrepayment       bool
	RedeemedPrepayment decimal.NullDecimal
	BaseAmount         decimal.Decimal
	CommissionRate     decimal.NullDecimal

	Cancels   CommissionID
	CreatedAt time.Time
}

func (c Commission) IsInvoiced() bool { return c.InvoiceLine != "" }

// Key returns the (agent, option) pair the row belongs to.
func (c Commission) Key() AgentOption {
	return AgentOption{Agent: c.Agent, Option: c.CommissionedOption}
}

// CopyOptions controls how a reversal clone is built.
type CopyOptions struct {
	// CancelInvoices also negates RedeemedPrepayment.
	CancelInvoices bool
}

// NegatedCopy returns a fresh, uninvoiced row reversing c.
func (c Commission) NegatedCopy(opts CopyOptions) Commission {
	clone := c
	clone.ID = NewCommissionID()
	clone.InvoiceLine = ""
	clone.Amount = c.Amount.Neg()
	clone.BaseAmount = c.BaseAmount.Neg()
	clone.Cancels = c.ID
	clone.CreatedAt = time.Time{}
	if opts.CancelInvoices && c.RedeemedPrepayment.Valid {
		clone.RedeemedPrepayment = NullDecimal(c.RedeemedPrepayment.Decimal.Neg())
	}
	return clone
}

// EffectiveBaseAmount adds back the base consumed by redeemed prepayment.
func (c Commission) EffectiveBaseAmount() decimal.Decimal {
	if !c.RedeemedPrepayment.Valid || !c.CommissionRate.Valid || c.CommissionRate.Decimal.IsZero() {
		return c.BaseAmount
	}
	return c.BaseAmount.Add(c.RedeemedPrepayment.Decimal.Div(c.CommissionRate.Decimal))
}

// CalculationDescription explains how the amount was obtained.
func (c Commission) CalculationDescription() string {
	if c.IsPrepayment {
		rate := "n/a"
		if c.CommissionRate.Valid {
			rate = c.CommissionRate.Decimal.String()
		}
		return fmt.Sprintf("Prepayment %s (rate %s)", c.Amount.String(), rate)
	}
	desc := fmt.Sprintf("Commission %s on base %s", c.Amount.String(), c.BaseAmount.String())
	if c.CommissionRate.Valid {
		desc += fmt.Sprintf(" at rate %s", c.CommissionRate.Decimal.String())
	}
	if c.RedeemedPrepayment.Valid && !c.RedeemedPrepayment.Decimal.IsZero() {
		desc += fmt.Sprintf(", prepayment redeemed %s", c.RedeemedPrepayment.Decimal.String())
	}
	return desc
}

// =============================================================================
// AGENT OPTION - Grouping key of ledger queries
// =============================================================================

type AgentOption struct {
	Agent  AgentID
	Option OptionID
}

func (k AgentOption) String() string { return string(k.Agent) + "/" + string(k.Option) }
