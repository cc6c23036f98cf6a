// Package analytics computes hedge ratios, spreads, z-scores, trading
// signals, and the stationarity test underpinning them.
//
// Series are float64 slices aligned by index; math.NaN marks an undefined
// value. Consumers drop undefined rows explicitly rather than ever treating
// NaN as a number.
package analytics

import (
	"fmt"
	"math"
)

// Estimator produces a hedge-ratio series and a spread series from two
// aligned close-price series (target y, reference x). Outputs have the same
// length as the inputs, with NaN where the estimate is undefined.
type Estimator interface {
	Estimate(y, x []float64) (beta, spread []float64, err error)
}

// RollingOLS fits an ordinary least-squares regression of y on x (with
// intercept) over the trailing Window observations [i-w, i) and applies the
// fitted slope to the current observation:
//
//	spread[i] = y[i] - beta*x[i]
//
// Beta at index i depends only on strictly past data, so the spread carries
// no look-ahead. Indices below Window are undefined.
type RollingOLS struct {
	Window int
}

func (r *RollingOLS) Estimate(y, x []float64) ([]float64, []float64, error) {
	if r.Window < 2 {
		return nil, nil, fmt.Errorf("rolling OLS window must be >= 2, got %d", r.Window)
	}
	if len(y) != len(x) {
		return nil, nil, fmt.Errorf("series length mismatch: %d vs %d", len(y), len(x))
	}

	n := len(y)
	if n < r.Window {
		return []float64{}, []float64{}, nil
	}

	beta := make([]float64, n)
	spread := make([]float64, n)
	for i := 0; i < r.Window; i++ {
		beta[i] = math.NaN()
		spread[i] = math.NaN()
	}

	w := float64(r.Window)
	for i := r.Window; i < n; i++ {
		var sumX, sumY, sumXX, sumXY float64
		for j := i - r.Window; j < i; j++ {
			sumX += x[j]
			sumY += y[j]
			sumXX += x[j] * x[j]
			sumXY += x[j] * y[j]
		}

		// Slope of y ~ a + b*x over the window.
		den := w*sumXX - sumX*sumX
		if den == 0 {
			beta[i] = math.NaN()
			spread[i] = math.NaN()
			continue
		}
		b := (w*sumXY - sumX*sumY) / den

		beta[i] = b
		spread[i] = y[i] - b*x[i]
	}

	return beta, spread, nil
}

// Kalman estimates a time-varying hedge ratio with a recursive filter over
// the state [beta, alpha] modeling y ~ beta*x + alpha as a random walk.
//
// The recorded spread is the pre-update innovation y_t - H_t*state_pred,
// the filter's de-trended residual. State and covariance start from zero /
// 10*I on every call; nothing persists between invocations.
type Kalman struct {
	// Delta scales the process noise added to the covariance each step.
	Delta float64
	// MeasurementVar is the observation noise variance.
	MeasurementVar float64
}

// DefaultKalman mirrors the conventional parameterization for price pairs.
func DefaultKalman() *Kalman {
	return &Kalman{Delta: 1e-5, MeasurementVar: 1e-3}
}

func (k *Kalman) Estimate(y, x []float64) ([]float64, []float64, error) {
	if k.Delta <= 0 || k.MeasurementVar <= 0 {
		return nil, nil, fmt.Errorf("kalman noise parameters must be positive (delta=%v, v=%v)", k.Delta, k.MeasurementVar)
	}
	if len(y) != len(x) {
		return nil, nil, fmt.Errorf("series length mismatch: %d vs %d", len(y), len(x))
	}

	n := len(y)
	beta := make([]float64, n)
	spread := make([]float64, n)

	// State [beta, alpha] and covariance P.
	var s0, s1 float64
	p00, p01, p10, p11 := 10.0, 0.0, 0.0, 10.0

	for t := 0; t < n; t++ {
		// Predict: random walk, so the state carries over and the
		// covariance inflates by the process noise.
		p00 += k.Delta
		p11 += k.Delta

		xt := x[t]

		// Innovation against H = [x_t, 1].
		e := y[t] - (s0*xt + s1)

		// Innovation covariance S = H*P*H' + v (scalar).
		S := p00*xt*xt + (p01+p10)*xt + p11 + k.MeasurementVar

		beta[t] = s0
		spread[t] = e

		if S == 0 || math.IsNaN(S) || math.IsInf(S, 0) {
			// Singular innovation covariance: zero gain, skip the update
			// for this step rather than failing the run.
			continue
		}

		// Gain K = P*H'/S.
		k0 := (p00*xt + p01) / S
		k1 := (p10*xt + p11) / S

		s0 += k0 * e
		s1 += k1 * e
		beta[t] = s0

		// P = (I - K*H) * P.
		m00 := 1 - k0*xt
		m01 := -k0
		m10 := -k1 * xt
		m11 := 1 - k1

		n00 := m00*p00 + m01*p10
		n01 := m00*p01 + m01*p11
		n10 := m10*p00 + m11*p10
		n11 := m10*p01 + m11*p11
		p00, p01, p10, p11 = n00, n01, n10, n11
	}

	return beta, spread, nil
}
