package commission

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// PREPAYMENT SCHEDULE - When a prepayment is recognised
// =============================================================================

type ScheduleEntry struct {
	Date     generic.TimePoint
	Fraction decimal.Decimal
}

// PrepaymentSchedule splits a prepayment into dated fractions.
// Fractions must sum to exactly 1.
type PrepaymentSchedule interface {
	Entries(contract *Contract, option *Option, today generic.TimePoint) []ScheduleEntry
}

// FractionDigits is the precision of schedule fractions.
const FractionDigits int32 = 8

// paymentDate is max(signature date or today, today).
func paymentDate(contract *Contract, today generic.TimePoint) generic.TimePoint {
	date := today
	if contract != nil && contract.SignatureDate != nil {
		date = *contract.SignatureDate
	}
	return generic.MaxTimePoint(date, today)
}

// ImmediateSchedule recognises the whole prepayment at once.
type ImmediateSchedule struct{}

func (ImmediateSchedule) Entries(contract *Contract, _ *Option, today generic.TimePoint) []ScheduleEntry {
	return []ScheduleEntry{{Date: paymentDate(contract, today), Fraction: decimal.NewFromInt(1)}}
}

// LinearSchedule recognises the prepayment in equal installments, one
// per frequency period. The last installment absorbs rounding.
type LinearSchedule struct {
	Installments int
	Frequency    generic.Frequency
}

func (s LinearSchedule) Validate() error {
	if s.Installments < 1 {
		return errors.Newf("linear schedule needs at least one installment, got %d", s.Installments)
	}
	if !s.Frequency.IsValid() {
		return errors.Newf("unknown frequency %q", s.Frequency)
	}
	return nil
}

func (s LinearSchedule) Entries(contract *Contract, _ *Option, today generic.TimePoint) []ScheduleEntry {
	if s.Validate() != nil {
		return nil
	}
	n := decimal.NewFromInt(int64(s.Installments))
	share := decimal.NewFromInt(1).DivRound(n, FractionDigits)
	start := paymentDate(contract, today)
	entries := make([]ScheduleEntry, 0, s.Installments)
	allocated := decimal.Zero
	for i := 0; i < s.Installments; i++ {
		fraction := share
		if i == s.Installments-1 {
			fraction = decimal.NewFromInt(1).Sub(allocated)
		}
		date, _ := generic.AddFrequencies(s.Frequency, start, i)
		entries = append(entries, ScheduleEntry{Date: date, Fraction: fraction})
		allocated = allocated.Add(fraction)
	}
	return entries
}

// ValidateSchedule checks a schedule is usable.
func ValidateSchedule(entries []ScheduleEntry) error {
	if len(entries) == 0 {
		return errors.Mark(errors.New("prepayment schedule is empty"), generic.ErrValidation)
	}
	total := decimal.Zero
	for _, e := range entries {
		if !e.Fraction.IsPositive() {
			return errors.Mark(errors.Newf("schedule fraction %s on %s is not positive", e.Fraction, e.Date), generic.ErrValidation)
		}
		total = total.Add(e.Fraction)
	}
	if !total.Equal(decimal.NewFromInt(1)) {
		return errors.Mark(errors.Newf("schedule fractions sum to %s, want 1", total), generic.ErrValidation)
	}
	return nil
}
