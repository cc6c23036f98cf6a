// Package backtest replays the z-score signal through a position state
// machine and scores the resulting strategy.
package backtest

import (
	"math"
	"time"

	"github.com/alphatrawler/statarb/pkg/models"
)

// annualization converts per-step statistics to annual terms assuming
// roughly one-minute bars (252 trading days of 1440 minutes). The constant
// is an assumption about bar frequency, not a generic calendar factor.
const annualization = 252 * 1440

// Engine is a deterministic mean-reversion backtest over a spread and its
// z-score. Entry must be positive; exit is typically inside (-entry, entry)
// and may be zero.
type Engine struct {
	Entry float64
	Exit  float64
}

func NewEngine(entry, exit float64) *Engine {
	return &Engine{Entry: entry, Exit: exit}
}

// Run simulates positions over the aligned (timestamp, spread, z) rows.
// Rows where either series is undefined are dropped first. With fewer than
// two usable rows the zero-valued result is returned.
//
// The state machine is strict hysteresis: a position opened on an entry
// breach is held until its own exit condition fires, regardless of further
// entry-threshold crossings. Per-step PnL uses the position lagged by one
// step, so a decision at t earns only the t→t+1 spread move.
func (e *Engine) Run(timestamps []time.Time, spread, z []float64) models.BacktestResult {
	ts, sp, zs := dropUndefined(timestamps, spread, z)
	n := len(ts)
	if n < 2 {
		return models.BacktestResult{}
	}

	positions := make([]models.Position, n)
	var trades []models.Trade

	pos := models.PositionFlat
	var entrySpread float64
	var entryTime time.Time

	for i := 0; i < n; i++ {
		switch pos {
		case models.PositionFlat:
			if zs[i] > e.Entry {
				pos = models.PositionShort
				entrySpread = sp[i]
				entryTime = ts[i]
			} else if zs[i] < -e.Entry {
				pos = models.PositionLong
				entrySpread = sp[i]
				entryTime = ts[i]
			}
		case models.PositionLong:
			if zs[i] >= e.Exit {
				trades = append(trades, models.Trade{
					Direction:   models.PositionLong,
					EntryTime:   entryTime,
					ExitTime:    ts[i],
					EntrySpread: entrySpread,
					ExitSpread:  sp[i],
					PnL:         sp[i] - entrySpread,
				})
				pos = models.PositionFlat
			}
		case models.PositionShort:
			if zs[i] <= -e.Exit {
				trades = append(trades, models.Trade{
					Direction:   models.PositionShort,
					EntryTime:   entryTime,
					ExitTime:    ts[i],
					EntrySpread: entrySpread,
					ExitSpread:  sp[i],
					PnL:         entrySpread - sp[i],
				})
				pos = models.PositionFlat
			}
		}
		positions[i] = pos
	}

	// Lagged per-step PnL; the first diff is undefined so the curve starts
	// at the second in-sample timestep.
	steps := make([]float64, 0, n-1)
	curve := make([]models.EquityPoint, 0, n-1)
	var cum float64
	for i := 1; i < n; i++ {
		step := float64(positions[i-1]) * (sp[i] - sp[i-1])
		cum += step
		steps = append(steps, step)
		curve = append(curve, models.EquityPoint{Timestamp: ts[i], PnL: cum})
	}

	result := models.BacktestResult{
		EquityCurve: curve,
		TotalReturn: cum,
		SharpeRatio: sharpe(steps),
		Sortino:     sortino(steps),
		MaxDrawdown: maxDrawdown(curve),
		NumTrades:   len(trades),
		Trades:      trades,
	}
	result.Calmar = safeDivide(result.TotalReturn, math.Abs(result.MaxDrawdown))
	result.WinRate, result.AvgWin, result.AvgLoss = tradeStats(trades)

	return result
}

func dropUndefined(timestamps []time.Time, spread, z []float64) ([]time.Time, []float64, []float64) {
	ts := make([]time.Time, 0, len(timestamps))
	sp := make([]float64, 0, len(spread))
	zs := make([]float64, 0, len(z))
	for i := range timestamps {
		if math.IsNaN(spread[i]) || math.IsNaN(z[i]) {
			continue
		}
		ts = append(ts, timestamps[i])
		sp = append(sp, spread[i])
		zs = append(zs, z[i])
	}
	return ts, sp, zs
}

func sharpe(steps []float64) float64 {
	mean, std := meanStd(steps)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(annualization)
}

func sortino(steps []float64) float64 {
	var downside []float64
	for _, s := range steps {
		if s < 0 {
			downside = append(downside, s)
		}
	}
	mean, _ := meanStd(steps)
	_, downStd := meanStd(downside)
	return safeDivide(mean*math.Sqrt(annualization), downStd)
}

// maxDrawdown shifts the curve to strictly positive values (add |min|+1)
// before taking the trough of (equity - running peak)/running peak, keeping
// the ratio well-defined around zero and negative equity.
func maxDrawdown(curve []models.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	minV := math.Inf(1)
	for _, p := range curve {
		if p.PnL < minV {
			minV = p.PnL
		}
	}
	base := math.Abs(minV) + 1

	worst := 0.0
	peak := math.Inf(-1)
	for _, p := range curve {
		v := p.PnL + base
		if v > peak {
			peak = v
		}
		dd := (v - peak) / peak
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

func tradeStats(trades []models.Trade) (winRate, avgWin, avgLoss float64) {
	if len(trades) == 0 {
		return 0, 0, 0
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else {
			losses++
			lossSum += t.PnL
		}
	}

	winRate = float64(wins) / float64(len(trades))
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}
	return winRate, avgWin, avgLoss
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	if len(vals) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(vals)-1))
}

func safeDivide(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	return a / b
}
