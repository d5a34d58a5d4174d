// Package sqlite archives accepted bars so a restarted engine can rebuild
// its bar histories. Indicator results are never stored; they are always
// recomputed from bars.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"charting-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath     string // path to SQLite database file, e.g. "data/bars.db"
	BatchSize  int
	FlushDelay time.Duration
	Logger     *slog.Logger

	// OnCommit is called after every successful batch commit.
	OnCommit func(n int, took time.Duration)
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db       *sql.DB
	log      *slog.Logger
	batch    int
	delay    time.Duration
	onCommit func(int, time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func openDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	w := &Writer{
		db:       db,
		log:      cfg.Logger,
		batch:    cfg.BatchSize,
		delay:    cfg.FlushDelay,
		onCommit: cfg.OnCommit,
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	if w.batch <= 0 {
		w.batch = defaultBatchSize
	}
	if w.delay <= 0 {
		w.delay = defaultFlushDelay
	}
	w.log.Info("sqlite archive opened", "path", cfg.DBPath)
	return w, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batch size bars OR every flush delay, whichever first.
// A replaced bar overwrites the archived row with the same (symbol, ts).
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.SymbolBar) {
	batch := make([]model.SymbolBar, 0, w.batch)
	timer := time.NewTimer(w.delay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			w.log.Error("sqlite batch insert failed", "bars", len(batch), "error", err)
		} else {
			took := time.Since(start)
			w.log.Debug("sqlite batch committed", "bars", len(batch), "took", took)
			if w.onCommit != nil {
				w.onCommit(len(batch), took)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before the final flush.
		drain:
			for {
				select {
				case b, ok := <-barCh:
					if !ok {
						break drain
					}
					batch = append(batch, b)
				default:
					break drain
				}
			}
			flush()
			return

		case b, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, b)
			if len(batch) >= w.batch {
				flush()
				timer.Reset(w.delay)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.delay)
		}
	}
}

// insertBatch inserts a batch of bars in a single transaction.
func (w *Writer) insertBatch(bars []model.SymbolBar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Prune deletes all but the newest keep bars of every symbol.
func (w *Writer) Prune(keep int) (int64, error) {
	res, err := w.db.Exec(`
		DELETE FROM bars WHERE rowid IN (
			SELECT rowid FROM (
				SELECT rowid, ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY ts DESC) AS rn FROM bars
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
