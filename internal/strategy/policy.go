// Package strategy defines the per-symbol position phases and the exit
// policies that decide when a held position is closed.
package strategy

import (
	"fmt"

	"rsibot/internal/config"
	"rsibot/internal/state"
)

type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseHolding Phase = "HOLDING"
)

func PhaseOf(pos state.Position) Phase {
	if pos.InPosition {
		return PhaseHolding
	}
	return PhaseIdle
}

// ExitPolicy owns the auxiliary price field of a position. Arm initializes it
// at entry; ShouldExit is called once per cycle with the current price and may
// mutate the position (the trailing policy ratchets its peak) before deciding.
type ExitPolicy interface {
	Name() string
	Arm(pos *state.Position, entryPrice float64)
	ShouldExit(pos *state.Position, price float64) bool
	AuxPrice(pos state.Position) float64
}

// ForConfig returns the configured exit policy. Both policies widen their
// thresholds by the round-trip commission so an exit at the boundary still
// clears fees.
func ForConfig(cfg config.StrategyConfig) (ExitPolicy, error) {
	switch cfg.ExitPolicy {
	case "trailing":
		return &TrailingStop{StopPct: cfg.StopPct, CommissionPct: cfg.CommissionPct}, nil
	case "band":
		return &TakeProfitBand{TakePct: cfg.TakeProfitPct, StopPct: cfg.StopPct, CommissionPct: cfg.CommissionPct}, nil
	default:
		return nil, fmt.Errorf("unknown exit policy %q", cfg.ExitPolicy)
	}
}

// TrailingStop exits when the price falls a fixed percentage below the
// highest price seen while holding.
type TrailingStop struct {
	StopPct       float64
	CommissionPct float64
}

func (t *TrailingStop) Name() string { return "trailing" }

func (t *TrailingStop) Arm(pos *state.Position, entryPrice float64) {
	pos.PeakPrice = entryPrice
	pos.TargetPrice = 0
}

func (t *TrailingStop) ShouldExit(pos *state.Position, price float64) bool {
	if price > pos.PeakPrice {
		pos.PeakPrice = price
	}
	stopPct := t.StopPct + 2*t.CommissionPct
	stopPrice := pos.PeakPrice * (1 - stopPct/100)
	return price <= stopPrice
}

func (t *TrailingStop) AuxPrice(pos state.Position) float64 { return pos.PeakPrice }

// TakeProfitBand exits on fixed take-profit and stop-loss percentages from
// the entry price.
type TakeProfitBand struct {
	TakePct       float64
	StopPct       float64
	CommissionPct float64
}

func (b *TakeProfitBand) Name() string { return "band" }

func (b *TakeProfitBand) Arm(pos *state.Position, entryPrice float64) {
	pos.TargetPrice = entryPrice * (1 + (b.TakePct+2*b.CommissionPct)/100)
	pos.PeakPrice = 0
}

func (b *TakeProfitBand) ShouldExit(pos *state.Position, price float64) bool {
	if pos.EntryPrice <= 0 {
		return false
	}
	change := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if change >= b.TakePct+2*b.CommissionPct {
		return true
	}
	return change <= -(b.StopPct + 2*b.CommissionPct)
}

func (b *TakeProfitBand) AuxPrice(pos state.Position) float64 { return pos.TargetPrice }
