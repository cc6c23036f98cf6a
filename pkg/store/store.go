// Package store persists raw ticks and resampled bars.
//
// The ingestion bridge is the only tick writer and the aggregator the only
// bar writer; analytics reads concurrently. Writers are serialized at the
// connection level so a reader mid-flush sees a prefix of the data.
package store

import (
	"errors"
	"time"

	"github.com/alphatrawler/statarb/pkg/models"
)

var (
	// ErrNoDatabaseProvided is returned when no database path is configured.
	ErrNoDatabaseProvided = errors.New("no database path provided")
)

// Store is the persistence interface the core consumes.
type Store interface {
	// AppendTicks persists a batch of ticks in one transaction.
	AppendTicks(ticks []models.TradeTick) error

	// QueryTicks returns ticks with timestamp strictly greater than after,
	// in timestamp order. An empty symbol matches all symbols; a zero after
	// matches everything.
	QueryTicks(symbol string, after time.Time) ([]models.TradeTick, error)

	// MaxBarTimestamp returns the timestamp of the most recently stored bar
	// across all symbols, or the zero time when no bars exist.
	MaxBarTimestamp() (time.Time, error)

	// AppendBars persists a batch of bars in one transaction.
	AppendBars(bars []models.OHLCVBar) error

	// QueryLatestBars returns up to limit*len(symbols) of the most recent
	// bars for the given symbols, ordered newest first. Rows sharing a
	// (symbol, timestamp) are returned most-recently-written first so
	// callers can deduplicate keeping the latest.
	QueryLatestBars(symbols []string, limit int) ([]models.OHLCVBar, error)

	// Counts reports the total number of stored ticks and bars.
	Counts() (ticks, bars int64, err error)

	Close() error
}
