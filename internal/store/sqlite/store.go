// Package sqlite is the durable historical bar store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// Store keeps bars per (symbol, timespan) and the ranges that were loaded
// completely. It implements model.BarStore.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// barRow is one bars table row.
type barRow struct {
	Symbol   string `db:"symbol"`
	Timespan string `db:"timespan"`
	model.Bar
}

// Open opens (or creates) the database at path with WAL mode and the schema.
// ":memory:" gives a private in-memory database.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single connection: one writer, and an in-memory database stays alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "bar_store")
	log.Info("opened bar store", "path", path)
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			timespan TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timespan, ts)
		);

		CREATE TABLE IF NOT EXISTS bar_ranges (
			symbol   TEXT    NOT NULL,
			timespan TEXT    NOT NULL,
			from_ms  INTEGER NOT NULL,
			to_ms    INTEGER NOT NULL,
			PRIMARY KEY (symbol, timespan, from_ms, to_ms)
		);
	`)
	return err
}

var _ model.BarStore = (*Store)(nil)

// Bars returns stored bars for q in ascending order.
func (s *Store) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	bars := []model.Bar{}
	err := s.db.SelectContext(ctx, &bars, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timespan = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		model.NormalizeSymbol(q.Symbol), string(q.Timespan), q.From.UnixMilli(), q.To.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite select bars: %w", err)
	}
	return bars, nil
}

// Covers reports whether one saved range contains q.
func (s *Store) Covers(ctx context.Context, q model.BarQuery) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM bar_ranges
		WHERE symbol = ? AND timespan = ? AND from_ms <= ? AND to_ms >= ?`,
		model.NormalizeSymbol(q.Symbol), string(q.Timespan), q.From.UnixMilli(), q.To.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("sqlite covers: %w", err)
	}
	return n > 0, nil
}

// SaveRange upserts bars and records q as loaded, in one transaction.
func (s *Store) SaveRange(ctx context.Context, q model.BarQuery, bars []model.Bar) error {
	sym := model.NormalizeSymbol(q.Symbol)
	ts := string(q.Timespan)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timespan, ts, open, high, low, close, volume)
		VALUES (:symbol, :timespan, :ts, :open, :high, :low, :close, :volume)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, barRow{Symbol: sym, Timespan: ts, Bar: b}); err != nil {
			return fmt.Errorf("sqlite insert bar %d: %w", b.Timestamp, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO bar_ranges (symbol, timespan, from_ms, to_ms) VALUES (?, ?, ?, ?)`,
		sym, ts, q.From.UnixMilli(), q.To.UnixMilli()); err != nil {
		return fmt.Errorf("sqlite insert range: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.log.Debug("saved bars", "symbol", sym, "timespan", ts, "bars", len(bars))
	return nil
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
