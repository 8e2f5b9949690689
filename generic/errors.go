/*
errors.go - Centralized error types for the ledger and configuration layers

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap or mark these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Commission row persistence failures
  2. Validation errors - Configuration rejected at save time
  3. Formula errors - Commission formulas that cannot be evaluated
  4. Store errors - Database-level failures

PRICING MESSAGES:
  Price calculation never returns these errors. It collects
  pricing.Message values instead so callers can show every problem at once.

USAGE:
  if errors.Is(err, generic.ErrValidation) {
      // reject the configuration
  }

SEE ALSO:
  - ledger.go: Uses these errors
  - pricing/errors.go: Calculation-time messages
*/
package generic

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced configuration or row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks configuration that must not be persisted.
	ErrValidation = errors.New("validation error")

	// ErrFormula is returned when a plan formula cannot be evaluated.
	ErrFormula = errors.New("formula error")

	// ErrInvoicedCommission is returned when trying to delete a commission
	// row that was already recognised on an invoice. Those rows are only
	// ever reversed.
	ErrInvoicedCommission = errors.New("commission already invoiced")

	// ErrDuplicateID is returned when a commission row ID already exists.
	ErrDuplicateID = errors.New("duplicate commission id")

	// ErrAlreadyGenerated is returned when commissions already exist for
	// an invoice line. Redemption must only run once per line.
	ErrAlreadyGenerated = errors.New("commissions already generated")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrConcurrentModification is returned when a transaction conflict is detected.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes why a configuration was rejected.
type ValidationError struct {
	Object  string // e.g. "pricing_rule:PR-1"
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Object, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Object, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError wrapped with a user hint.
func NewValidationError(object, field, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.WithHint(&ValidationError{Object: object, Field: field, Message: msg}, msg)
}

// FormulaError carries the expression that failed.
type FormulaError struct {
	Formula string
	Err     error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula %q: %v", e.Formula, e.Err)
}

func (e *FormulaError) Unwrap() error { return ErrFormula }

// InvoicedCommissionError identifies the row that blocked a delete.
type InvoicedCommissionError struct {
	CommissionID CommissionID
	InvoiceLine  string
}

func (e *InvoicedCommissionError) Error() string {
	return fmt.Sprintf("commission %s is invoiced on line %s", e.CommissionID, e.InvoiceLine)
}

func (e *InvoicedCommissionError) Unwrap() error { return ErrInvoicedCommission }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrFormula) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the error comes from ledger immutability.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvoicedCommission) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrAlreadyGenerated)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
