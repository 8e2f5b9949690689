package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// DETAIL - One (kind, code) contribution
// =============================================================================

type DetailKey struct {
	Kind LineKind
	Code string
}

// String is "kind:code", or the code alone for a nested line without
// details, which has no kind.
func (k DetailKey) String() string {
	if k.Kind == "" {
		return k.Code
	}
	return string(k.Kind) + ":" + k.Code
}

// label is the display form used by Description.
func (k DetailKey) label() string {
	if k.Kind == "" {
		return k.Code
	}
	return string(k.Kind) + " " + k.Code
}

// Detail is one contribution with a back reference to its component.
// A detail built from a whole line (AddDetailFromLine) carries the
// line's details as children and has no kind.
type Detail struct {
	Kind          LineKind
	Code          string
	Amount        decimal.Decimal
	OnObject      *Component
	ToRecalculate bool
	Details       []Detail
}

func (d Detail) Key() DetailKey { return DetailKey{Kind: d.Kind, Code: d.Code} }

func (d Detail) IsLeaf() bool { return len(d.Details) == 0 }

// =============================================================================
// RESULT LINE - Additive price accumulator
// =============================================================================

type ResultLine struct {
	Amount    decimal.Decimal
	Contract  string
	StartDate *generic.TimePoint
	EndDate   *generic.TimePoint
	OnObject  string
	Frequency generic.Frequency
	Details   []Detail
}

// InitFromArgs copies the contract and start date from args.
func (l *ResultLine) InitFromArgs(args *Args) {
	if args == nil {
		return
	}
	if args.Contract != "" {
		l.Contract = args.Contract
	}
	if args.Date != nil {
		d := *args.Date
		l.StartDate = &d
	}
}

// AddDetail appends d and adds its amount.
func (l *ResultLine) AddDetail(d Detail) {
	l.Amount = l.Amount.Add(d.Amount)
	l.Details = append(l.Details, d)
}

// AddDetailFromLine nests other as a single detail. Lines with
// different frequencies can't be merged.
func (l *ResultLine) AddDetailFromLine(other *ResultLine) []Message {
	if other == nil {
		return nil
	}
	switch {
	case l.Frequency == "" && other.Frequency != "":
		l.Frequency = other.Frequency
	case other.Frequency != "" && l.Frequency != other.Frequency:
		return []Message{NewMessage(MsgFrequencyMismatch, l.Frequency, other.Frequency)}
	}
	l.Amount = l.Amount.Add(other.Amount)
	l.Details = append(l.Details, Detail{
		Code:    other.OnObject,
		Amount:  other.Amount,
		Details: append([]Detail(nil), other.Details...),
	})
	return nil
}

// Add returns a new line: amounts summed, the right-hand line nested
// under the left one's details.
func (l *ResultLine) Add(other *ResultLine) *ResultLine {
	out := l.clone()
	if other == nil {
		return out
	}
	if out.Frequency == "" {
		out.Frequency = other.Frequency
	}
	out.Amount = out.Amount.Add(other.Amount)
	out.Details = append(out.Details, Detail{
		Code:    other.OnObject,
		Amount:  other.Amount,
		Details: append([]Detail(nil), other.Details...),
	})
	return out
}

func (l *ResultLine) clone() *ResultLine {
	if l == nil {
		return &ResultLine{}
	}
	out := *l
	out.Details = append([]Detail(nil), l.Details...)
	return &out
}

// DetailAmount sums leaf details matching (kind, code) at any depth.
func (l *ResultLine) DetailAmount(kind LineKind, code string) decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.Breakdown() {
		if e.Key.Kind == kind && e.Key.Code == code {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// TotalOfKind sums leaf details of a kind at any depth.
func (l *ResultLine) TotalOfKind(kind LineKind) decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.Breakdown() {
		if e.Key.Kind == kind {
			total = total.Add(e.Amount)
		}
	}
	return total
}

type BreakdownEntry struct {
	Key    DetailKey
	Amount decimal.Decimal
}

// Breakdown sums leaf details by (kind, code), in first-seen order.
func (l *ResultLine) Breakdown() []BreakdownEntry {
	var out []BreakdownEntry
	index := map[DetailKey]int{}
	var walk func(ds []Detail)
	walk = func(ds []Detail) {
		for _, d := range ds {
			if !d.IsLeaf() {
				walk(d.Details)
				continue
			}
			k := d.Key()
			if i, ok := index[k]; ok {
				out[i].Amount = out[i].Amount.Add(d.Amount)
				continue
			}
			index[k] = len(out)
			out = append(out, BreakdownEntry{Key: k, Amount: d.Amount})
		}
	}
	walk(l.Details)
	return out
}

// Description renders the breakdown for display on a contract.
func (l *ResultLine) Description() string {
	var b strings.Builder
	for _, e := range l.Breakdown() {
		fmt.Fprintf(&b, "%s: %s\n", e.Key.label(), e.Amount.StringFixed(DefaultCurrencyDigits))
	}
	total := "Total: " + l.Amount.StringFixed(DefaultCurrencyDigits)
	if l.Frequency != "" {
		total += " (" + string(l.Frequency) + ")"
	}
	b.WriteString(total)
	return b.String()
}

func (l *ResultLine) String() string {
	return fmt.Sprintf("%s %s %v %s", l.Amount.String(), l.Contract, l.StartDate, l.OnObject)
}
