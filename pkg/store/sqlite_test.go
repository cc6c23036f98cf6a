package store

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphatrawler/statarb/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	st, err := OpenSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func ts(sec int, ms int) time.Time {
	return time.Unix(int64(sec), int64(ms)*int64(time.Millisecond)).UTC()
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("", logrus.New())
	assert.ErrorIs(t, err, ErrNoDatabaseProvided)
}

func TestTickRoundTrip(t *testing.T) {
	st := newTestStore(t)

	ticks := []models.TradeTick{
		{Symbol: "ETHUSDT", Price: 2000.5, Quantity: 0.1, Timestamp: ts(10, 100)},
		{Symbol: "BTCUSDT", Price: 30000, Quantity: 0.01, Timestamp: ts(10, 200)},
		{Symbol: "ETHUSDT", Price: 2001, Quantity: 0.2, Timestamp: ts(11, 0)},
	}
	require.NoError(t, st.AppendTicks(ticks))

	got, err := st.QueryTicks("", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ticks[0], got[0])

	// Symbol filter
	eth, err := st.QueryTicks("ETHUSDT", time.Time{})
	require.NoError(t, err)
	require.Len(t, eth, 2)

	// Strictly-greater-than cutoff
	after, err := st.QueryTicks("", ts(10, 200))
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "ETHUSDT", after[0].Symbol)
}

func TestAppendTicksEmptyIsNoop(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.AppendTicks(nil))

	ticks, bars, err := st.Counts()
	require.NoError(t, err)
	assert.Zero(t, ticks)
	assert.Zero(t, bars)
}

func TestMaxBarTimestamp(t *testing.T) {
	st := newTestStore(t)

	got, err := st.MaxBarTimestamp()
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	bars := []models.OHLCVBar{
		{Symbol: "ETHUSDT", Open: 1, High: 2, Low: 1, Close: 2, Volume: 3, Timestamp: ts(20, 0)},
		{Symbol: "BTCUSDT", Open: 1, High: 2, Low: 1, Close: 2, Volume: 3, Timestamp: ts(30, 0)},
	}
	require.NoError(t, st.AppendBars(bars))

	got, err = st.MaxBarTimestamp()
	require.NoError(t, err)
	assert.Equal(t, ts(30, 0), got)
}

func TestQueryLatestBarsOrderAndLimit(t *testing.T) {
	st := newTestStore(t)

	var bars []models.OHLCVBar
	for i := 0; i < 5; i++ {
		bars = append(bars, models.OHLCVBar{Symbol: "ETHUSDT", Close: float64(i), Timestamp: ts(i, 0)})
	}
	require.NoError(t, st.AppendBars(bars))

	got, err := st.QueryLatestBars([]string{"ETHUSDT"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first
	assert.Equal(t, ts(4, 0), got[0].Timestamp)
	assert.Equal(t, ts(2, 0), got[2].Timestamp)
}

func TestQueryLatestBarsDuplicatesNewestWriteFirst(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.AppendBars([]models.OHLCVBar{
		{Symbol: "ETHUSDT", Close: 10, Timestamp: ts(1, 0)},
	}))
	require.NoError(t, st.AppendBars([]models.OHLCVBar{
		{Symbol: "ETHUSDT", Close: 11, Timestamp: ts(1, 0)},
	}))

	got, err := st.QueryLatestBars([]string{"ETHUSDT"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// The most recently written duplicate comes first.
	assert.Equal(t, 11.0, got[0].Close)
	assert.Equal(t, 10.0, got[1].Close)
}

func TestQueryLatestBarsNoSymbols(t *testing.T) {
	st := newTestStore(t)

	got, err := st.QueryLatestBars(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCounts(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.AppendTicks([]models.TradeTick{
		{Symbol: "ETHUSDT", Price: 1, Quantity: 1, Timestamp: ts(1, 0)},
		{Symbol: "ETHUSDT", Price: 2, Quantity: 1, Timestamp: ts(2, 0)},
	}))
	require.NoError(t, st.AppendBars([]models.OHLCVBar{
		{Symbol: "ETHUSDT", Close: 1, Timestamp: ts(1, 0)},
	}))

	ticks, bars, err := st.Counts()
	require.NoError(t, err)
	assert.EqualValues(t, 2, ticks)
	assert.EqualValues(t, 1, bars)
}
