package analytics

import (
	"math"

	"github.com/alphatrawler/statarb/pkg/models"
)

// ZScore normalizes a series by its rolling mean and rolling sample
// standard deviation over window observations (current index inclusive).
// Indices without a full window, windows containing undefined values, and
// windows with zero deviation all yield NaN; a flat spread produces missing
// z-scores, never infinities.
func ZScore(series []float64, window int) []float64 {
	n := len(series)
	z := make([]float64, n)

	for i := 0; i < n; i++ {
		if i < window-1 {
			z[i] = math.NaN()
			continue
		}

		var sum float64
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(series[j]) {
				valid = false
				break
			}
			sum += series[j]
		}
		if !valid {
			z[i] = math.NaN()
			continue
		}

		mean := sum / float64(window)
		var ss float64
		for j := i - window + 1; j <= i; j++ {
			d := series[j] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(window-1))
		if std == 0 {
			z[i] = math.NaN()
			continue
		}
		z[i] = (series[i] - mean) / std
	}

	return z
}

// Thresholds parameterizes signal classification. CustomUpper/CustomLower
// are optional alert bounds that take precedence over the entry bands when
// breached.
type Thresholds struct {
	Entry       float64
	Exit        float64
	CustomUpper *float64
	CustomLower *float64
}

// Classify maps a z-score to a signal state. An undefined z-score is
// neutral.
func Classify(z float64, th Thresholds) models.SignalState {
	if math.IsNaN(z) {
		return models.SignalNeutral
	}

	if th.CustomUpper != nil && z > *th.CustomUpper {
		return models.SignalCustomUpperAlert
	}
	if th.CustomLower != nil && z < *th.CustomLower {
		return models.SignalCustomLowerAlert
	}

	switch {
	case z > th.Entry:
		return models.SignalShortSpread
	case z < -th.Entry:
		return models.SignalLongSpread
	default:
		return models.SignalNeutral
	}
}
