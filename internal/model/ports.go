package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the engine service from the concrete SQLite and Redis
// adapters.

// BarWriter archives accepted bars.
type BarWriter interface {
	// Run reads bars from barCh and writes them in batches.
	// Blocks until ctx is cancelled or barCh is closed.
	Run(ctx context.Context, barCh <-chan SymbolBar)

	Close() error
}

// BarReader loads archived bars for warm start.
type BarReader interface {
	// Symbols lists every symbol with archived bars.
	Symbols() ([]string, error)

	// ReadBars returns the newest limit bars of symbol in ascending time order.
	ReadBars(symbol string, limit int) ([]Bar, error)

	Close() error
}

// RecordWriter publishes emitted indicator records to downstream consumers.
type RecordWriter interface {
	// WriteRecordBatch publishes all records of one update in a single round-trip.
	WriteRecordBatch(ctx context.Context, records []Record) error

	Close() error
}
