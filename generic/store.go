/*
store.go - Persistence interface for commission rows

PURPOSE:
  Defines the interface between the commission engine and the database.
  Implementations: SQLite (store/sqlite) and in-memory (generic/store).

WRITE CONTRACT:
  - Save(): Insert rows or update not-yet-invoiced rows
  - Delete(): Only uninvoiced rows. Invoiced rows return ErrInvoicedCommission
  - MarkInvoiced(): Recognise rows on a broker/insurer invoice line
  Invoiced rows are never changed again. Cancellation adds negated clones.

TRANSACTIONS:
  Every engine operation (activation, invoicing, cancellation) runs
  inside WithTx so reads of the outstanding balance and the writes that
  depend on them are atomic. Implementations serialize writers.

SEE ALSO:
  - ledger.go: Sum queries built on Find
  - store/sqlite/sqlite.go: Concrete implementation
*/
package generic

import "context"

// =============================================================================
// FILTER - Row selection
// =============================================================================

// Filter selects commission rows. Zero fields don't filter.
type Filter struct {
	Agents       []AgentID
	Options      []OptionID
	Origin       *Ref
	InvoiceLine  *string // pointer to "" selects uninvoiced rows
	IsPrepayment *bool
	Until        *TimePoint // Date <= Until
	HasRedeemed  bool
}

// Matches applies the filter in memory.
func (f Filter) Matches(c Commission) bool {
	if len(f.Agents) > 0 && !containsID(f.Agents, c.Agent) {
		return false
	}
	if len(f.Options) > 0 && !containsID(f.Options, c.CommissionedOption) {
		return false
	}
	if f.Origin != nil && c.Origin != *f.Origin {
		return false
	}
	if f.InvoiceLine != nil && c.InvoiceLine != *f.InvoiceLine {
		return false
	}
	if f.IsPrepayment != nil && c.IsPrepayment != *f.IsPrepayment {
		return false
	}
	if f.Until != nil && c.Date.After(*f.Until) {
		return false
	}
	if f.HasRedeemed && !c.RedeemedPrepayment.Valid {
		return false
	}
	return true
}

func containsID[T comparable](ids []T, id T) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// =============================================================================
// STORE - Commission row persistence
// =============================================================================

type Store interface {
	// Save inserts rows, or replaces uninvoiced rows with the same ID.
	Save(ctx context.Context, rows []Commission) error

	// Delete removes uninvoiced rows. Fails on any invoiced row.
	Delete(ctx context.Context, ids []CommissionID) error

	// Find returns rows matching filter, ordered by Date then creation.
	Find(ctx context.Context, filter Filter) ([]Commission, error)

	// Get returns one row or ErrNotFound.
	Get(ctx context.Context, id CommissionID) (Commission, error)

	// MarkInvoiced sets InvoiceLine on uninvoiced rows.
	MarkInvoiced(ctx context.Context, ids []CommissionID, invoiceLine string) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// DOCUMENT STORE - Configuration persistence
// =============================================================================

// DocumentStore keeps configuration documents (pricing rules, plans,
// agents, contracts, invoices) as raw JSON keyed by kind and ID.
type DocumentStore interface {
	PutDocument(ctx context.Context, kind, id string, body []byte) error
	GetDocument(ctx context.Context, kind, id string) ([]byte, error)
	ListDocuments(ctx context.Context, kind string) ([][]byte, error)
}
