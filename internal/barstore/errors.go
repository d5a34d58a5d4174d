package barstore

import "fmt"

// ValidationError reports a bar rejected before touching the store.
type ValidationError struct {
	Symbol string
	Time   int64
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar %s@%d: %s %s", e.Symbol, e.Time, e.Field, e.Reason)
}

// OutOfOrderError reports a bar older than the newest stored bar. The store
// is left unchanged.
type OutOfOrderError struct {
	Symbol string
	Time   int64
	Last   int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order bar %s@%d: last stored bar is at %d", e.Symbol, e.Time, e.Last)
}
