// Package ingest runs the browser-bridge listener: a websocket endpoint
// receiving raw trade messages, batching them, and flushing batches to the
// tick store.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/alphatrawler/statarb/pkg/metrics"
	"github.com/alphatrawler/statarb/pkg/models"
	"github.com/alphatrawler/statarb/pkg/store"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 500 * time.Millisecond
)

// Bridge accepts a single active websocket connection and persists the
// trades it delivers. A second connection is refused while one is live.
type Bridge struct {
	store         store.Store
	logger        *logrus.Logger
	batchSize     int
	flushInterval time.Duration
	upgrader      websocket.Upgrader

	// warnLimiter throttles malformed-message logging; the counter still
	// sees every drop.
	warnLimiter *rate.Limiter

	mu        sync.Mutex
	buffer    []models.TradeTick
	lastFlush time.Time
	active    bool

	stopCh chan struct{}
	srv    *http.Server
}

// NewBridge creates a bridge writing to st.
func NewBridge(st store.Store, logger *logrus.Logger) *Bridge {
	return &Bridge{
		store:         st,
		logger:        logger,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		upgrader: websocket.Upgrader{
			// The bridge page is served from file:// or another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		lastFlush:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start runs the listener on the given port and the background flush loop.
func (b *Bridge) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/", b)

	b.srv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go b.flushLoop(ctx)

	b.logger.WithField("port", port).Info("Bridge listening for trade feed")
	go func() {
		if err := b.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.logger.WithError(err).Error("Bridge server stopped")
		}
	}()

	return nil
}

// Stop shuts the listener down. Any connected feed is closed, which forces
// a final flush through the read loop's defer.
func (b *Bridge) Stop() {
	close(b.stopCh)
	if b.srv != nil {
		b.srv.Close()
	}
}

// ServeHTTP upgrades the request and drives the connection's read loop.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		http.Error(w, "bridge already connected", http.StatusConflict)
		return
	}
	b.active = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
	}()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Error("Failed to upgrade bridge connection")
		return
	}

	b.logger.WithField("remote", conn.RemoteAddr().String()).Info("Bridge connected")
	b.readLoop(conn)
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		// Whatever is buffered must survive the disconnect.
		b.mu.Lock()
		b.flushLocked()
		b.mu.Unlock()
		b.logger.Info("Bridge disconnected")
	}()

	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.WithError(err).Warn("Bridge connection lost")
			}
			return
		}

		tick, err := ParseTradeMessage(raw)
		if err != nil {
			metrics.MessagesDropped.Inc()
			if b.warnLimiter.Allow() {
				b.logger.WithError(err).Warn("Dropping malformed bridge message")
			}
			continue
		}

		metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		b.append(tick)
	}
}

func (b *Bridge) append(tick models.TradeTick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, tick)
	if len(b.buffer) >= b.batchSize || time.Since(b.lastFlush) >= b.flushInterval {
		b.flushLocked()
	}
}

// flushLoop drains the buffer on the flush interval even when the feed has
// gone quiet between messages.
func (b *Bridge) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			if len(b.buffer) > 0 && time.Since(b.lastFlush) >= b.flushInterval {
				b.flushLocked()
			}
			b.mu.Unlock()
		}
	}
}

// flushLocked persists the buffer in one transaction. The buffer is cleared
// even when the write fails: retrying dropped batches is deliberately out of
// scope, the next batch starts clean. Callers must hold b.mu.
func (b *Bridge) flushLocked() {
	if len(b.buffer) == 0 {
		return
	}

	if err := b.store.AppendTicks(b.buffer); err != nil {
		b.logger.WithError(err).WithField("dropped", len(b.buffer)).Error("Tick flush failed")
		metrics.FlushesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.FlushesTotal.WithLabelValues("ok").Inc()
	}

	b.buffer = b.buffer[:0]
	b.lastFlush = time.Now()
}

// buffered returns the current buffer length, for tests.
func (b *Bridge) buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
