package models

import (
	"time"
)

// SignalState classifies the latest z-score against the configured
// thresholds. It is derived on every evaluation, never persisted.
type SignalState string

const (
	SignalNeutral          SignalState = "NEUTRAL"
	SignalLongSpread       SignalState = "LONG_SPREAD"
	SignalShortSpread      SignalState = "SHORT_SPREAD"
	SignalCustomUpperAlert SignalState = "CUSTOM_UPPER_ALERT"
	SignalCustomLowerAlert SignalState = "CUSTOM_LOWER_ALERT"
)

// Position is the backtest engine's per-timestep state.
type Position int

const (
	PositionFlat  Position = 0
	PositionLong  Position = 1
	PositionShort Position = -1
)

func (p Position) String() string {
	switch p {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Trade records a round trip: opened when the engine leaves FLAT, written
// when it returns to FLAT. Immutable once created.
type Trade struct {
	Direction   Position  `json:"direction"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	EntrySpread float64   `json:"entry_spread"`
	ExitSpread  float64   `json:"exit_spread"`
	PnL         float64   `json:"pnl"`
}

// EquityPoint is one point of the cumulative PnL curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	PnL       float64   `json:"pnl"`
}

// BacktestResult holds the outcome of a single backtest run. A run over
// insufficient data yields the zero value rather than an error.
type BacktestResult struct {
	EquityCurve []EquityPoint `json:"equity_curve"`
	TotalReturn float64       `json:"total_return"`
	SharpeRatio float64       `json:"sharpe_ratio"`
	Sortino     float64       `json:"sortino_ratio"`
	Calmar      float64       `json:"calmar_ratio"`
	MaxDrawdown float64       `json:"max_drawdown"`
	NumTrades   int           `json:"num_trades"`
	WinRate     float64       `json:"win_rate"`
	AvgWin      float64       `json:"avg_win"`
	AvgLoss     float64       `json:"avg_loss"`
	Trades      []Trade       `json:"trades"`
}

// Alert is an entry in the session's signal log.
type Alert struct {
	Timestamp time.Time   `json:"timestamp"`
	Signal    SignalState `json:"signal"`
	ZScore    float64     `json:"z_score"`
	Message   string      `json:"message"`
}

// StationarityResult is the outcome of the unit-root test on the spread.
// Insufficient data is a defined result (statistic 0, p-value 1), not an
// error.
type StationarityResult struct {
	Statistic    float64 `json:"statistic"`
	PValue       float64 `json:"p_value"`
	IsStationary bool    `json:"is_stationary"`
}
