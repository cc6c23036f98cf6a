package ingest

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphatrawler/statarb/pkg/models"
)

// captureStore records appended ticks and can fail a configured number of
// flushes.
type captureStore struct {
	mu        sync.Mutex
	ticks     []models.TradeTick
	batches   int
	failCount int
}

func (c *captureStore) AppendTicks(ticks []models.TradeTick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failCount > 0 {
		c.failCount--
		return errors.New("disk full")
	}
	c.ticks = append(c.ticks, ticks...)
	c.batches++
	return nil
}

func (c *captureStore) QueryTicks(string, time.Time) ([]models.TradeTick, error) { return nil, nil }
func (c *captureStore) MaxBarTimestamp() (time.Time, error)                      { return time.Time{}, nil }
func (c *captureStore) AppendBars([]models.OHLCVBar) error                       { return nil }
func (c *captureStore) QueryLatestBars([]string, int) ([]models.OHLCVBar, error) { return nil, nil }
func (c *captureStore) Counts() (int64, int64, error)                            { return 0, 0, nil }
func (c *captureStore) Close() error                                             { return nil }

func (c *captureStore) stored() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func newTestBridge(cs *captureStore) *Bridge {
	b := NewBridge(cs, quietLogger())
	// Only size-based flushes in tests, so batch boundaries are
	// deterministic.
	b.flushInterval = time.Hour
	b.lastFlush = time.Now()
	return b
}

func dialBridge(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func tradeJSON(symbol string, price string) []byte {
	return []byte(`{"type":"trade","symbol":"` + symbol + `","price":"` + price + `","quantity":"1","eventTimeMillis":1700000000000}`)
}

func TestBridgeFlushesOnBatchSize(t *testing.T) {
	cs := &captureStore{}
	b := newTestBridge(cs)
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	for i := 0; i < defaultBatchSize; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("ETHUSDT", "2000")))
	}

	require.Eventually(t, func() bool { return cs.stored() == defaultBatchSize }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, b.buffered())
}

func TestBridgeFinalFlushOnDisconnect(t *testing.T) {
	cs := &captureStore{}
	b := newTestBridge(cs)
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dialBridge(t, srv)
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("ETHUSDT", "2000")))
	}
	conn.Close()

	require.Eventually(t, func() bool { return cs.stored() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeDropsMalformedAndContinues(t *testing.T) {
	cs := &captureStore{}
	b := newTestBridge(cs)
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dialBridge(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{broken`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("ETHUSDT", "2000")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"depth"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("BTCUSDT", "30000")))
	conn.Close()

	require.Eventually(t, func() bool { return cs.stored() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeRefusesSecondConnection(t *testing.T) {
	cs := &captureStore{}
	b := newTestBridge(cs)
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	// The write must have reached the handler before we count the
	// connection as active.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("ETHUSDT", "2000")))
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.active
	}, 2*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 409, resp.StatusCode)
	}
}

func TestBridgeFlushFailureDropsBatch(t *testing.T) {
	cs := &captureStore{failCount: 1}
	b := newTestBridge(cs)
	b.batchSize = 2
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()

	// First batch fails and is dropped; the second lands.
	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, tradeJSON("ETHUSDT", "2000")))
	}

	require.Eventually(t, func() bool { return cs.stored() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, b.buffered())
}
