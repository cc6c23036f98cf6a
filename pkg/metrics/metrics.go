package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "statarb_ticks_total", Help: "Count of trade ticks ingested"},
		[]string{"symbol"},
	)
	MessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "statarb_messages_dropped_total", Help: "Malformed bridge messages dropped"},
	)
	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "statarb_flushes_total", Help: "Tick buffer flushes"},
		[]string{"result"},
	)
	BarsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "statarb_bars_total", Help: "OHLCV bars written"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "statarb_cycles_total", Help: "Refresh cycles run"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, MessagesDropped, FlushesTotal, BarsTotal, CyclesTotal)
}

// Handler returns the prometheus scrape handler for mounting on the API
// server.
func Handler() http.Handler {
	return promhttp.Handler()
}
