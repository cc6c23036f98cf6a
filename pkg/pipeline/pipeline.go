// Package pipeline wires the refresh cycle: aggregate ticks into bars, read
// the aligned close frame, estimate the hedge ratio, derive the signal, and
// backtest it. Each cycle is a pure function of (configuration, store
// snapshot); estimator state never survives between cycles.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphatrawler/statarb/internal/config"
	"github.com/alphatrawler/statarb/pkg/analytics"
	"github.com/alphatrawler/statarb/pkg/backtest"
	"github.com/alphatrawler/statarb/pkg/bars"
	"github.com/alphatrawler/statarb/pkg/models"
	"github.com/alphatrawler/statarb/pkg/store"
)

// ErrInsufficientData marks a cycle that had less history than the lookback
// window requires. It is expected during warm-up and is not logged as a
// failure.
var ErrInsufficientData = errors.New("insufficient data for evaluation")

// Snapshot is the complete output of one refresh cycle. LastBarAt against
// EvaluatedAt tells clients how stale the feed is; a growing DataAge means
// the bridge has gone quiet.
type Snapshot struct {
	Frame        models.Frame              `json:"frame"`
	Signal       models.SignalState        `json:"signal"`
	Beta         float64                   `json:"beta"`
	Spread       float64                   `json:"spread"`
	ZScore       float64                   `json:"z_score"`
	Stationarity models.StationarityResult `json:"stationarity"`
	Backtest     models.BacktestResult     `json:"backtest"`
	LastBarAt    time.Time                 `json:"last_bar_at"`
	DataAge      time.Duration             `json:"data_age_ns"`
	EvaluatedAt  time.Time                 `json:"evaluated_at"`
}

// Session carries the state that outlives single cycles: the alert history.
// It is passed into each evaluation explicitly rather than living in a
// package global. Record runs on the runner goroutine while Alerts serves
// API handlers, so the history is mutex-guarded.
type Session struct {
	mu     sync.RWMutex
	alerts []models.Alert
}

func NewSession() *Session {
	return &Session{}
}

// Record appends an alert unless it duplicates the most recent entry, so a
// signal persisting across cycles produces one log line, not one per cycle.
func (s *Session) Record(alert models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.alerts); n > 0 && s.alerts[n-1].Message == alert.Message {
		return
	}
	s.alerts = append(s.alerts, alert)
}

// Alerts returns a copy of the alert history, newest last.
func (s *Session) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Pipeline evaluates the configured pair against the store.
type Pipeline struct {
	cfg    *config.Config
	agg    *bars.Aggregator
	est    analytics.Estimator
	engine *backtest.Engine
	logger *logrus.Logger
}

func New(cfg *config.Config, st store.Store, logger *logrus.Logger) (*Pipeline, error) {
	var est analytics.Estimator
	switch cfg.Analytics.Estimator {
	case config.EstimatorRollingOLS:
		est = &analytics.RollingOLS{Window: cfg.Analytics.Window}
	case config.EstimatorKalman:
		est = &analytics.Kalman{
			Delta:          cfg.Analytics.KalmanDelta,
			MeasurementVar: cfg.Analytics.KalmanVariance,
		}
	default:
		return nil, fmt.Errorf("unknown estimator %q", cfg.Analytics.Estimator)
	}

	return &Pipeline{
		cfg:    cfg,
		agg:    bars.NewAggregator(st, logger),
		est:    est,
		engine: backtest.NewEngine(cfg.Strategy.EntryZ, cfg.Strategy.ExitZ),
		logger: logger,
	}, nil
}

// Evaluate runs one full cycle and records any signal alert on the session.
func (p *Pipeline) Evaluate(session *Session) (*Snapshot, error) {
	if _, err := p.agg.Aggregate(p.cfg.Analytics.Frequency); err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	target := p.cfg.Pair.Target
	reference := p.cfg.Pair.Reference

	frame, err := p.agg.LatestBars([]string{target, reference}, p.cfg.Analytics.BarLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load bars: %w", err)
	}
	if frame.Len() < p.cfg.Analytics.Window {
		return nil, ErrInsufficientData
	}

	y := frame.Closes[target]
	x := frame.Closes[reference]

	beta, spread, err := p.est.Estimate(y, x)
	if err != nil {
		return nil, fmt.Errorf("estimation failed: %w", err)
	}
	if len(beta) != frame.Len() {
		return nil, ErrInsufficientData
	}

	z := analytics.ZScore(spread, p.cfg.Analytics.Window)

	combined := buildFrame(frame.Timestamps, y, x, beta, spread, z)
	if combined.Len() == 0 {
		return nil, ErrInsufficientData
	}

	last := combined.Len() - 1
	thresholds := analytics.Thresholds{
		Entry:       p.cfg.Strategy.EntryZ,
		Exit:        p.cfg.Strategy.ExitZ,
		CustomUpper: p.cfg.Strategy.CustomUpper,
		CustomLower: p.cfg.Strategy.CustomLower,
	}
	signal := analytics.Classify(combined.ZScore[last], thresholds)

	if signal != models.SignalNeutral {
		session.Record(models.Alert{
			Timestamp: combined.Timestamps[last],
			Signal:    signal,
			ZScore:    combined.ZScore[last],
			Message:   fmt.Sprintf("%s | %s | z=%.2f", combined.Timestamps[last].Format("15:04:05"), signal, combined.ZScore[last]),
		})
	}

	result := p.engine.Run(frame.Timestamps, spread, z)

	lastBar := frame.Timestamps[frame.Len()-1]
	evaluatedAt := time.Now().UTC()

	return &Snapshot{
		Frame:        combined,
		Signal:       signal,
		Beta:         combined.Beta[last],
		Spread:       combined.Spread[last],
		ZScore:       combined.ZScore[last],
		Stationarity: analytics.ADFTest(spread),
		Backtest:     result,
		LastBarAt:    lastBar,
		DataAge:      evaluatedAt.Sub(lastBar),
		EvaluatedAt:  evaluatedAt,
	}, nil
}

// buildFrame keeps only rows where every column is defined.
func buildFrame(ts []time.Time, y, x, beta, spread, z []float64) models.Frame {
	var f models.Frame
	for i := range ts {
		if math.IsNaN(beta[i]) || math.IsNaN(spread[i]) || math.IsNaN(z[i]) {
			continue
		}
		f.Timestamps = append(f.Timestamps, ts[i])
		f.Target = append(f.Target, y[i])
		f.Reference = append(f.Reference, x[i])
		f.Beta = append(f.Beta, beta[i])
		f.Spread = append(f.Spread, spread[i])
		f.ZScore = append(f.ZScore, z[i])
	}
	return f
}
