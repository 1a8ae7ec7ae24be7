package domain

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// PenaltyRate is the exit penalty charged from a given cycle onward.
type PenaltyRate struct {
	Cycle int             `json:"cycle"`
	Rate  decimal.Decimal `json:"rate"`
}

// PenaltyTable maps cycle numbers to exit penalty rates, ordered by cycle.
type PenaltyTable struct {
	entries []PenaltyRate
}

// NewPenaltyTable sorts the entries and rejects tables whose rates increase
// with the cycle number or fall outside [0, 1].
func NewPenaltyTable(entries []PenaltyRate) (PenaltyTable, error) {
	sorted := make([]PenaltyRate, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cycle < sorted[j].Cycle })
	for i, e := range sorted {
		if e.Cycle <= 0 || e.Rate.IsNegative() || e.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return PenaltyTable{}, ErrInvalidPenaltyTable
		}
		if i > 0 && (e.Cycle == sorted[i-1].Cycle || e.Rate.GreaterThan(sorted[i-1].Rate)) {
			return PenaltyTable{}, ErrInvalidPenaltyTable
		}
	}
	return PenaltyTable{entries: sorted}, nil
}

// PenaltyTableFromMap builds a table from string-keyed JSON style input,
// e.g. {"12":"0.5","15":"0.4"}.
func PenaltyTableFromMap(m map[string]string) (PenaltyTable, error) {
	entries := make([]PenaltyRate, 0, len(m))
	for k, v := range m {
		cycle, err := strconv.Atoi(k)
		if err != nil {
			return PenaltyTable{}, ErrInvalidPenaltyTable
		}
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return PenaltyTable{}, ErrInvalidPenaltyTable
		}
		entries = append(entries, PenaltyRate{Cycle: cycle, Rate: rate})
	}
	return NewPenaltyTable(entries)
}

func (t PenaltyTable) Entries() []PenaltyRate {
	out := make([]PenaltyRate, len(t.entries))
	copy(out, t.entries)
	return out
}

// RateFor returns the rate defined for cycle, or the nearest preceding
// defined rate. Cycles before the first entry have no penalty.
func (t PenaltyTable) RateFor(cycle int) decimal.Decimal {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Cycle > cycle })
	if i == 0 {
		return decimal.Zero
	}
	return t.entries[i-1].Rate
}

// ExitRate is the rate applied when a unit exits after completing cycle.
// A zero rate falls back to the preceding cycle's rate (grace period).
func (t PenaltyTable) ExitRate(cycle int) decimal.Decimal {
	rate := t.RateFor(cycle)
	if rate.IsZero() && cycle > 1 {
		return t.RateFor(cycle - 1)
	}
	return rate
}

func (t PenaltyTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.entries)
}

func (t *PenaltyTable) UnmarshalJSON(b []byte) error {
	var entries []PenaltyRate
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	parsed, err := NewPenaltyTable(entries)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
