package analytics

import (
	"math"

	"github.com/alphatrawler/statarb/pkg/models"
)

// adfMinObservations is the minimum sample the unit-root test accepts.
// Below it ADFTest reports a defined "insufficient data" result.
const adfMinObservations = 30

// adfLag is the fixed augmentation order of the Dickey-Fuller regression.
const adfLag = 1

// MacKinnon (1994) response-surface constants for the approximate
// asymptotic p-value of the tau statistic, constant-only regression, one
// series. Same surface statsmodels' adfuller evaluates.
var (
	adfTauStar   = -1.61
	adfTauMin    = -18.83
	adfTauMax    = 2.74
	adfTauSmallP = []float64{2.1659, 1.4412, 0.038269}
	adfTauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADFTest runs an Augmented Dickey-Fuller unit-root test with a constant
// and lag order 1 on the non-missing part of series. The spread is deemed
// stationary iff the approximate p-value is below 0.05.
func ADFTest(series []float64) models.StationarityResult {
	y := dropNaN(series)
	if len(y) < adfMinObservations {
		return models.StationarityResult{Statistic: 0, PValue: 1, IsStationary: false}
	}

	tau, ok := adfStatistic(y)
	if !ok {
		return models.StationarityResult{Statistic: 0, PValue: 1, IsStationary: false}
	}

	p := mackinnonP(tau)
	return models.StationarityResult{
		Statistic:    tau,
		PValue:       p,
		IsStationary: p < 0.05,
	}
}

// adfStatistic fits dy_t = gamma*y_{t-1} + phi*dy_{t-1} + c and returns the
// t-statistic of gamma.
func adfStatistic(y []float64) (float64, bool) {
	n := len(y)
	nobs := n - 1 - adfLag
	if nobs <= 3 {
		return 0, false
	}

	// Design matrix columns: [y_{t-1}, dy_{t-1}, 1].
	xtx := [3][3]float64{}
	xty := [3]float64{}
	rows := make([][3]float64, 0, nobs)
	resp := make([]float64, 0, nobs)

	for t := 1 + adfLag; t < n; t++ {
		row := [3]float64{y[t-1], y[t-1] - y[t-2], 1}
		dy := y[t] - y[t-1]
		rows = append(rows, row)
		resp = append(resp, dy)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				xtx[i][j] += row[i] * row[j]
			}
			xty[i] += row[i] * dy
		}
	}

	inv, ok := invert3(xtx)
	if !ok {
		return 0, false
	}

	var b [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i] += inv[i][j] * xty[j]
		}
	}

	var rss float64
	for k, row := range rows {
		fit := b[0]*row[0] + b[1]*row[1] + b[2]*row[2]
		r := resp[k] - fit
		rss += r * r
	}

	dof := float64(len(rows) - 3)
	if dof <= 0 {
		return 0, false
	}
	s2 := rss / dof

	se := math.Sqrt(s2 * inv[0][0])
	if se == 0 || math.IsNaN(se) {
		return 0, false
	}

	return b[0] / se, true
}

// mackinnonP maps the tau statistic to an approximate asymptotic p-value.
func mackinnonP(tau float64) float64 {
	switch {
	case tau > adfTauMax:
		return 1.0
	case tau < adfTauMin:
		return 0.0
	}

	coefs := adfTauLargeP
	if tau <= adfTauStar {
		coefs = adfTauSmallP
	}

	// Polynomial in tau, ascending order.
	var v, pow float64
	pow = 1
	for _, c := range coefs {
		v += c * pow
		pow *= tau
	}

	return normCDF(v)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// invert3 inverts a symmetric 3x3 matrix via the adjugate.
func invert3(m [3][3]float64) ([3][3]float64, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return [3][3]float64{}, false
	}

	var inv [3][3]float64
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	return inv, true
}

func dropNaN(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
