package generic

// =============================================================================
// PERIOD - Validity window of a versioned configuration
// =============================================================================

// Period is a closed date window [Start, End]. A nil End is open-ended.
//
// Examples:
//   - Pricing rule valid from 2025-01-01, no end
//   - Tax version valid 2024-01-01 .. 2024-12-31
type Period struct {
	Start TimePoint
	End   *TimePoint
}

func NewPeriod(start TimePoint, end *TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) Validate() error {
	if p.End != nil && p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

func (p Period) IsOpenEnded() bool { return p.End == nil }

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	if t.Before(p.Start) {
		return false
	}
	return p.End == nil || t.BeforeOrEqual(*p.End)
}

// Overlaps reports whether the two windows share at least one day.
func (p Period) Overlaps(other Period) bool {
	if p.End != nil && p.End.Before(other.Start) {
		return false
	}
	if other.End != nil && other.End.Before(p.Start) {
		return false
	}
	return true
}

// String returns a string representation of the period.
func (p Period) String() string {
	end := "..."
	if p.End != nil {
		end = p.End.String()
	}
	return "[" + p.Start.String() + ", " + end + "]"
}
