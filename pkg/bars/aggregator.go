// Package bars resamples raw ticks into OHLCV bars and serves aligned
// close-price frames to the analytics pipeline.
package bars

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphatrawler/statarb/pkg/metrics"
	"github.com/alphatrawler/statarb/pkg/models"
	"github.com/alphatrawler/statarb/pkg/store"
)

// CloseFrame is a pivoted view of close prices: one row per timestamp, one
// column per symbol, with every row fully populated.
type CloseFrame struct {
	Timestamps []time.Time
	Closes     map[string][]float64
}

// Len returns the number of rows.
func (f *CloseFrame) Len() int {
	return len(f.Timestamps)
}

// Aggregator turns stored ticks into stored bars.
type Aggregator struct {
	store  store.Store
	logger *logrus.Logger
}

func NewAggregator(st store.Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{store: st, logger: logger}
}

// Aggregate resamples all ticks newer than the bar watermark into
// frequency-wide, left-closed and left-labeled buckets, and persists the
// resulting bars in one transaction. It is idempotent: with no new ticks a
// second call writes nothing.
//
// The watermark is the max bar timestamp across all symbols, not per
// symbol. Late ticks for a quiet symbol behind a busier symbol's watermark
// are skipped; known limitation inherited from the resampling design.
func (a *Aggregator) Aggregate(frequency time.Duration) (int, error) {
	if frequency <= 0 {
		return 0, fmt.Errorf("invalid bar frequency %v", frequency)
	}

	watermark, err := a.store.MaxBarTimestamp()
	if err != nil {
		return 0, fmt.Errorf("failed to read bar watermark: %w", err)
	}

	ticks, err := a.store.QueryTicks("", watermark)
	if err != nil {
		return 0, fmt.Errorf("failed to read ticks: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	newBars := resample(ticks, frequency, watermark)
	if len(newBars) == 0 {
		return 0, nil
	}

	if err := a.store.AppendBars(newBars); err != nil {
		return 0, fmt.Errorf("failed to save bars: %w", err)
	}

	metrics.BarsTotal.Add(float64(len(newBars)))
	a.logger.WithFields(logrus.Fields{
		"ticks": len(ticks),
		"bars":  len(newBars),
	}).Debug("Resampled ticks into bars")

	return len(newBars), nil
}

// resample folds ticks into per-symbol OHLCV buckets. Ticks must arrive in
// timestamp order (the store query guarantees it) so open/close follow tick
// order within a bucket. Buckets with no ticks produce no bar, and a bucket
// whose start is at or before the watermark is never re-emitted: ticks that
// land in an already-written bar's bucket are dropped rather than producing
// a duplicate bar.
func resample(ticks []models.TradeTick, frequency time.Duration, watermark time.Time) []models.OHLCVBar {
	type bucketKey struct {
		symbol string
		start  int64
	}

	buckets := make(map[bucketKey]*models.OHLCVBar)
	order := make([]bucketKey, 0)

	for i := range ticks {
		t := &ticks[i]
		start := t.Timestamp.Truncate(frequency)
		if !start.After(watermark) {
			continue
		}
		key := bucketKey{symbol: t.Symbol, start: start.UnixMilli()}

		bar, ok := buckets[key]
		if !ok {
			bar = &models.OHLCVBar{
				Symbol:    t.Symbol,
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Timestamp: start,
			}
			buckets[key] = bar
			order = append(order, key)
		}

		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Close = t.Price
		bar.Volume += t.Quantity
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].symbol != order[j].symbol {
			return order[i].symbol < order[j].symbol
		}
		return order[i].start < order[j].start
	})

	bars := make([]models.OHLCVBar, 0, len(order))
	for _, key := range order {
		bars = append(bars, *buckets[key])
	}
	return bars
}

// LatestBars fetches the most recent limit bars per symbol, deduplicates by
// (symbol, timestamp) keeping the latest written duplicate, pivots into one
// row per timestamp, forward-fills per-symbol gaps to align timestamps, and
// drops rows still missing a symbol. The forward-fill is the one deliberate
// interpolation in the read path.
func (a *Aggregator) LatestBars(symbols []string, limit int) (*CloseFrame, error) {
	rows, err := a.store.QueryLatestBars(symbols, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bars: %w", err)
	}
	if len(rows) == 0 {
		return &CloseFrame{Closes: make(map[string][]float64)}, nil
	}

	// Rows come newest-first with the latest duplicate first.
	type cell struct {
		symbol string
		ts     int64
	}
	closes := make(map[cell]float64)
	tsSet := make(map[int64]struct{})
	for i := range rows {
		b := &rows[i]
		key := cell{symbol: b.Symbol, ts: b.Timestamp.UnixMilli()}
		if _, dup := closes[key]; dup {
			continue
		}
		closes[key] = b.Close
		tsSet[key.ts] = struct{}{}
	}

	stamps := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	// Pivot with forward-fill; rows before a symbol's first bar stay NaN.
	cols := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		col := make([]float64, len(stamps))
		last := math.NaN()
		for i, ts := range stamps {
			if v, ok := closes[cell{symbol: sym, ts: ts}]; ok {
				last = v
			}
			col[i] = last
		}
		cols[sym] = col
	}

	// Drop rows still containing a gap.
	frame := &CloseFrame{Closes: make(map[string][]float64, len(symbols))}
	for _, sym := range symbols {
		frame.Closes[sym] = nil
	}
	for i, ts := range stamps {
		complete := true
		for _, sym := range symbols {
			if math.IsNaN(cols[sym][i]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		frame.Timestamps = append(frame.Timestamps, time.UnixMilli(ts).UTC())
		for _, sym := range symbols {
			frame.Closes[sym] = append(frame.Closes[sym], cols[sym][i])
		}
	}

	return frame, nil
}
