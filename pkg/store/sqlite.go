package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/alphatrawler/statarb/pkg/models"
)

// Timestamps are stored as unix milliseconds so range comparisons and
// ordering stay integer operations.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
		id integer NOT NULL PRIMARY KEY AUTOINCREMENT,
		symbol text NOT NULL,
		price real NOT NULL,
		quantity real NOT NULL,
		timestamp integer NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tick_timestamp ON ticks(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_tick_sym_time ON ticks(symbol, timestamp);`,

	`CREATE TABLE IF NOT EXISTS bars (
		id integer NOT NULL PRIMARY KEY AUTOINCREMENT,
		symbol text NOT NULL,
		open real NOT NULL,
		high real NOT NULL,
		low real NOT NULL,
		close real NOT NULL,
		volume real NOT NULL,
		timestamp integer NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_bar_timestamp ON bars(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_bar_sym_time ON bars(symbol, timestamp);`,
}

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenSQLite opens (creating if necessary) the sqlite database at path.
// Use ":memory:" for an ephemeral store in tests.
func OpenSQLite(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrNoDatabaseProvided
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single connection: serializes writers against sqlite's file lock and
	// keeps :memory: databases on one handle.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) AppendTicks(ticks []models.TradeTick) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tick transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO ticks (symbol, price, quantity, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare tick insert: %w", err)
	}
	defer stmt.Close()

	for i := range ticks {
		t := &ticks[i]
		if _, err := stmt.Exec(t.Symbol, t.Price, t.Quantity, t.Timestamp.UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert tick: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) QueryTicks(symbol string, after time.Time) ([]models.TradeTick, error) {
	query := `SELECT symbol, price, quantity, timestamp FROM ticks`
	var conds []string
	var args []interface{}

	if symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, symbol)
	}
	if !after.IsZero() {
		conds = append(conds, "timestamp > ?")
		args = append(args, after.UnixMilli())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []models.TradeTick
	for rows.Next() {
		var t models.TradeTick
		var ms int64
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Quantity, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		t.Timestamp = time.UnixMilli(ms).UTC()
		ticks = append(ticks, t)
	}

	return ticks, rows.Err()
}

func (s *SQLiteStore) MaxBarTimestamp() (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM bars`).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query max bar timestamp: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

func (s *SQLiteStore) AppendBars(bars []models.OHLCVBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin bar transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO bars (symbol, open, high, low, close, volume, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare bar insert: %w", err)
	}
	defer stmt.Close()

	for i := range bars {
		b := &bars[i]
		if _, err := stmt.Exec(b.Symbol, b.Open, b.High, b.Low, b.Close, b.Volume, b.Timestamp.UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) QueryLatestBars(symbols []string, limit int) ([]models.OHLCVBar, error) {
	if len(symbols) == 0 || limit <= 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	query := fmt.Sprintf(
		`SELECT symbol, open, high, low, close, volume, timestamp FROM bars
		 WHERE symbol IN (%s)
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, placeholders)

	args := make([]interface{}, 0, len(symbols)+1)
	for _, sym := range symbols {
		args = append(args, sym)
	}
	args = append(args, limit*len(symbols))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bars: %w", err)
	}
	defer rows.Close()

	var bars []models.OHLCVBar
	for rows.Next() {
		var b models.OHLCVBar
		var ms int64
		if err := rows.Scan(&b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Timestamp = time.UnixMilli(ms).UTC()
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

func (s *SQLiteStore) Counts() (int64, int64, error) {
	var ticks, bars int64
	if err := s.db.QueryRow(`SELECT COUNT(id) FROM ticks`).Scan(&ticks); err != nil {
		return 0, 0, fmt.Errorf("failed to count ticks: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(id) FROM bars`).Scan(&bars); err != nil {
		return 0, 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return ticks, bars, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
