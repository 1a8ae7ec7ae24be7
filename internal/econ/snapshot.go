// Package econ provides the economic parameters of the product as an
// immutable Snapshot. Engine operations take a Snapshot as input and never
// read configuration ambiently.
package econ

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"tpia/internal/domain"
)

// Setting keys in system_settings.
const (
	KeyUnitPrice                = "econ.unit_price"
	KeyProfitPerCycle           = "econ.profit_per_cycle"
	KeyCycleDurationDays        = "econ.cycle_duration_days"
	KeyCoreCycles               = "econ.core_cycles"
	KeyExtendedCycles           = "econ.extended_cycles"
	KeyExitWindowIntervalCycles = "econ.exit_window_interval_cycles"
	KeyExitWindowDurationDays   = "econ.exit_window_duration_days"
	KeyExitPenalties            = "econ.exit_penalties"
	KeyAutoApproveEnabled       = "econ.auto_approve_enabled"
	KeyApprovalWindowMinutes    = "econ.approval_window_minutes"
)

type Snapshot struct {
	Version                  int64               `json:"version"`
	UnitPrice                decimal.Decimal     `json:"unit_price"`
	ProfitPerCycle           decimal.Decimal     `json:"profit_per_cycle"`
	CycleDurationDays        int                 `json:"cycle_duration_days"`
	CoreCycles               int                 `json:"core_cycles"`
	ExtendedCycles           int                 `json:"extended_cycles"`
	ExitWindowIntervalCycles int                 `json:"exit_window_interval_cycles"`
	ExitWindowDurationDays   int                 `json:"exit_window_duration_days"`
	ExitPenalties            domain.PenaltyTable `json:"exit_penalties"`
	AutoApproveEnabled       bool                `json:"auto_approve_enabled"`
	ApprovalWindowMinutes    int                 `json:"approval_window_minutes"`
}

func (s Snapshot) TotalCycles() int { return s.CoreCycles + s.ExtendedCycles }

func (s Snapshot) CycleDuration() time.Duration {
	return time.Duration(s.CycleDurationDays) * 24 * time.Hour
}

func (s Snapshot) ExitWindowDuration() time.Duration {
	return time.Duration(s.ExitWindowDurationDays) * 24 * time.Hour
}

func (s Snapshot) ApprovalWindow() time.Duration {
	return time.Duration(s.ApprovalWindowMinutes) * time.Minute
}

// ProfitRatio is profit per cycle over unit price, used when a unit carries
// no stored per-cycle amount.
func (s Snapshot) ProfitRatio() decimal.Decimal {
	if s.UnitPrice.IsZero() {
		return decimal.Zero
	}
	return s.ProfitPerCycle.Div(s.UnitPrice)
}

func (s Snapshot) Validate() error {
	switch {
	case !s.UnitPrice.IsPositive():
		return fmt.Errorf("econ: unit price must be positive")
	case s.ProfitPerCycle.IsNegative():
		return fmt.Errorf("econ: profit per cycle must not be negative")
	case s.CycleDurationDays <= 0:
		return fmt.Errorf("econ: cycle duration must be positive")
	case s.CoreCycles <= 0 || s.ExtendedCycles < 0:
		return fmt.Errorf("econ: invalid phase boundaries %d/%d", s.CoreCycles, s.ExtendedCycles)
	case s.ExitWindowIntervalCycles <= 0:
		return fmt.Errorf("econ: exit window interval must be positive")
	case s.ExitWindowDurationDays <= 0:
		return fmt.Errorf("econ: exit window duration must be positive")
	case s.ApprovalWindowMinutes < 0:
		return fmt.Errorf("econ: approval window must not be negative")
	}
	return nil
}

// Defaults is the product configuration seeded on first migrate.
func Defaults() Snapshot {
	penalties, _ := domain.NewPenaltyTable([]domain.PenaltyRate{
		{Cycle: 12, Rate: decimal.RequireFromString("0.5")},
		{Cycle: 15, Rate: decimal.RequireFromString("0.4")},
		{Cycle: 18, Rate: decimal.RequireFromString("0.3")},
		{Cycle: 21, Rate: decimal.RequireFromString("0.2")},
		{Cycle: 24, Rate: decimal.Zero},
	})
	return Snapshot{
		UnitPrice:                decimal.NewFromInt(1_000_000),
		ProfitPerCycle:           decimal.NewFromInt(37_000),
		CycleDurationDays:        37,
		CoreCycles:               12,
		ExtendedCycles:           12,
		ExitWindowIntervalCycles: 3,
		ExitWindowDurationDays:   7,
		ExitPenalties:            penalties,
		AutoApproveEnabled:       false,
		ApprovalWindowMinutes:    60,
	}
}

// Settings renders s as system_settings key/value pairs.
func (s Snapshot) Settings() map[string]string {
	penalties := make(map[string]string, len(s.ExitPenalties.Entries()))
	for _, e := range s.ExitPenalties.Entries() {
		penalties[strconv.Itoa(e.Cycle)] = e.Rate.String()
	}
	raw, _ := json.Marshal(penalties)
	return map[string]string{
		KeyUnitPrice:                s.UnitPrice.String(),
		KeyProfitPerCycle:           s.ProfitPerCycle.String(),
		KeyCycleDurationDays:        strconv.Itoa(s.CycleDurationDays),
		KeyCoreCycles:               strconv.Itoa(s.CoreCycles),
		KeyExtendedCycles:           strconv.Itoa(s.ExtendedCycles),
		KeyExitWindowIntervalCycles: strconv.Itoa(s.ExitWindowIntervalCycles),
		KeyExitWindowDurationDays:   strconv.Itoa(s.ExitWindowDurationDays),
		KeyExitPenalties:            string(raw),
		KeyAutoApproveEnabled:       strconv.FormatBool(s.AutoApproveEnabled),
		KeyApprovalWindowMinutes:    strconv.Itoa(s.ApprovalWindowMinutes),
	}
}

// FromSettings overlays the given key/value pairs on Defaults. Unknown keys
// are ignored.
func FromSettings(kv map[string]string) (Snapshot, error) {
	s := Defaults()
	var err error
	for k, v := range kv {
		switch k {
		case KeyUnitPrice:
			s.UnitPrice, err = decimal.NewFromString(v)
		case KeyProfitPerCycle:
			s.ProfitPerCycle, err = decimal.NewFromString(v)
		case KeyCycleDurationDays:
			s.CycleDurationDays, err = strconv.Atoi(v)
		case KeyCoreCycles:
			s.CoreCycles, err = strconv.Atoi(v)
		case KeyExtendedCycles:
			s.ExtendedCycles, err = strconv.Atoi(v)
		case KeyExitWindowIntervalCycles:
			s.ExitWindowIntervalCycles, err = strconv.Atoi(v)
		case KeyExitWindowDurationDays:
			s.ExitWindowDurationDays, err = strconv.Atoi(v)
		case KeyAutoApproveEnabled:
			s.AutoApproveEnabled, err = strconv.ParseBool(v)
		case KeyApprovalWindowMinutes:
			s.ApprovalWindowMinutes, err = strconv.Atoi(v)
		case KeyExitPenalties:
			var m map[string]string
			if err = json.Unmarshal([]byte(v), &m); err == nil {
				s.ExitPenalties, err = domain.PenaltyTableFromMap(m)
			}
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("econ: setting %s=%q: %w", k, v, err)
		}
	}
	return s, s.Validate()
}
