package generic

import (
	"time"

	"github.com/cockroachdb/errors"
)

// =============================================================================
// TIME POINT - Calendar date used for effective dates and validity windows
// =============================================================================

type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, errors.Wrapf(err, "invalid date %q (use YYYY-MM-DD)", s)
	}
	return FromTime(t), nil
}

const DateLayout = "2006-01-02"

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return tp.addMonthsClamped(n) }
func (tp TimePoint) AddYears(n int) TimePoint  { return tp.addMonthsClamped(12 * n) }

// addMonthsClamped stops at the last day of the target month when the
// day does not exist there: Jan 31 + 1 month = Feb 28.
func (tp TimePoint) addMonthsClamped(n int) TimePoint {
	first := time.Date(tp.Time.Year(), tp.Time.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := min(tp.Time.Day(), EndOfMonth(FromTime(first)).Day())
	return NewTimePoint(first.Year(), first.Month(), day)
}

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// MaxTimePoint returns the later of two dates.
func MaxTimePoint(a, b TimePoint) TimePoint {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// FREQUENCY - Billing / rating frequencies
// =============================================================================

type Frequency string

const (
	FrequencyYearly     Frequency = "yearly"
	FrequencyHalfYearly Frequency = "half-yearly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyMonthly    Frequency = "monthly"
)

// monthsPerFrequency is also the annual conversion table (12 / months).
var monthsPerFrequency = map[Frequency]int{
	FrequencyYearly:     12,
	FrequencyHalfYearly: 6,
	FrequencyQuarterly:  3,
	FrequencyMonthly:    1,
}

func (f Frequency) IsValid() bool {
	_, ok := monthsPerFrequency[f]
	return ok
}

// PeriodsPerYear returns how many periods of this frequency fit in a year.
// Unknown frequencies count as monthly.
func (f Frequency) PeriodsPerYear() int {
	m, ok := monthsPerFrequency[f]
	if !ok {
		return 12
	}
	return 12 / m
}

// AddFrequency returns the next occurrence of the frequency after date.
func AddFrequency(f Frequency, date TimePoint) (TimePoint, error) {
	return AddFrequencies(f, date, 1)
}

// AddFrequencies returns the n-th occurrence after date. Each occurrence
// is counted from date itself so month-end clamping does not drift:
// Jan 31 + 2 months is Mar 31, not Mar 28.
func AddFrequencies(f Frequency, date TimePoint, n int) (TimePoint, error) {
	m, ok := monthsPerFrequency[f]
	if !ok {
		return TimePoint{}, errors.Newf("unknown frequency %q", f)
	}
	return date.AddMonths(m * n), nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// EndOfMonth returns the last day of the month containing tp.
func EndOfMonth(tp TimePoint) TimePoint {
	return NewTimePoint(tp.Year(), tp.Month()+1, 0)
}

func DaysBetween(from, to TimePoint) int { return int(to.normalize().Sub(from.normalize()).Hours() / 24) }
