package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alphatrawler/statarb/pkg/metrics"
	"github.com/alphatrawler/statarb/pkg/pipeline"
	"github.com/alphatrawler/statarb/pkg/store"
)

// Server exposes the pipeline's output to the presentation layer as plain
// JSON. It renders nothing; clients own the display.
type Server struct {
	runner *pipeline.Runner
	store  store.Store
	logger *logrus.Logger
	port   string
	srv    *http.Server
}

func NewServer(runner *pipeline.Runner, st store.Store, logger *logrus.Logger, port string) *Server {
	return &Server{
		runner: runner,
		store:  st,
		logger: logger,
		port:   port,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/backtest", s.handleBacktest)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", metrics.Handler())

	// Enable CORS for the dashboard
	return corsMiddleware(mux)
}

func (s *Server) Start() error {
	s.srv = &http.Server{Addr: ":" + s.port, Handler: s.routes()}
	s.logger.Infof("Starting API server on port %s", s.port)
	return s.srv.ListenAndServe()
}

func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.runner.Latest()
	if snap == nil {
		http.Error(w, "no snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.runner.Latest()
	if snap == nil {
		http.Error(w, "no snapshot available yet", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, snap.Backtest)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.runner.Alerts())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ticks, bars, err := s.store.Counts()
	if err != nil {
		s.logger.WithError(err).Error("Failed to read store counts")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int64{
		"ticks": ticks,
		"bars":  bars,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
