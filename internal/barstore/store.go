// Package barstore keeps a bounded, time-ordered bar history per symbol.
//
// Appending a bar with the same time as the newest bar replaces it (the
// upstream feed re-sends the forming bar); an older time is rejected. When a
// history is full the oldest bar is evicted.
//
// Store is not safe for concurrent use. The engine service owns it from a
// single goroutine.
package barstore

import (
	"math"

	"charting-systemv1/internal/model"
	"charting-systemv1/internal/ringbuf"
)

// DefaultCapacity is the per-symbol history bound used when none is given.
const DefaultCapacity = 1000

// Action says how an accepted bar changed the history.
type Action int

const (
	Appended Action = iota
	Replaced
)

func (a Action) String() string {
	if a == Replaced {
		return "replaced"
	}
	return "appended"
}

// AppendResult describes the effect of one accepted bar.
type AppendResult struct {
	Symbol  string
	Action  Action
	Evicted int // 0 or 1
	Len     int // history length after the append
}

// Store maps symbol → bounded bar history.
type Store struct {
	capacity int
	hist     map[string]*ringbuf.Ring
	order    []string // symbols in first-seen order
}

// New creates a store bounding every history to capacity bars.
// capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		hist:     make(map[string]*ringbuf.Ring, 16),
	}
}

// Append validates bar and applies it to symbol's history.
func (s *Store) Append(symbol string, bar model.Bar) (AppendResult, error) {
	if err := Validate(symbol, bar); err != nil {
		return AppendResult{}, err
	}

	r, ok := s.hist[symbol]
	if !ok {
		r = ringbuf.New(s.capacity)
		s.hist[symbol] = r
		s.order = append(s.order, symbol)
	}

	res := AppendResult{Symbol: symbol}
	last, has := r.Last()
	switch {
	case !has || bar.Time > last.Time:
		if _, ev := r.Push(bar); ev {
			res.Evicted = 1
		}
		res.Action = Appended
	case bar.Time == last.Time:
		r.ReplaceLast(bar)
		res.Action = Replaced
	default:
		return AppendResult{}, &OutOfOrderError{Symbol: symbol, Time: bar.Time, Last: last.Time}
	}
	res.Len = r.Len()
	return res, nil
}

// History returns an oldest-first copy of symbol's bars. Unknown symbols
// yield an empty, non-nil slice.
func (s *Store) History(symbol string) []model.Bar {
	r, ok := s.hist[symbol]
	if !ok {
		return []model.Bar{}
	}
	return r.Snapshot()
}

// Last returns the newest bar of symbol.
func (s *Store) Last(symbol string) (model.Bar, bool) {
	r, ok := s.hist[symbol]
	if !ok {
		return model.Bar{}, false
	}
	return r.Last()
}

// Len returns the history length of symbol.
func (s *Store) Len(symbol string) int {
	if r, ok := s.hist[symbol]; ok {
		return r.Len()
	}
	return 0
}

// Symbols lists known symbols in first-seen order.
func (s *Store) Symbols() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Capacity returns the per-symbol bound.
func (s *Store) Capacity() int { return s.capacity }

// Seed loads archived bars for warm start using Append semantics. Bars that
// fail validation or ordering are skipped. Returns the number accepted.
func (s *Store) Seed(symbol string, bars []model.Bar) int {
	n := 0
	for _, b := range bars {
		if _, err := s.Append(symbol, b); err == nil {
			n++
		}
	}
	return n
}

// MaxValue bounds every price and the volume. Window sums and squared
// deviations over bars within this bound stay finite.
const MaxValue = 1e15

// Validate checks that every field is finite and within MaxValue, volume is
// non-negative, no price is negative and high >= low.
func Validate(symbol string, b model.Bar) error {
	fields := [...]struct {
		name string
		v    float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{Symbol: symbol, Time: b.Time, Field: f.name, Reason: "is not finite"}
		}
		if f.v < 0 {
			return &ValidationError{Symbol: symbol, Time: b.Time, Field: f.name, Reason: "is negative"}
		}
		if f.v > MaxValue {
			return &ValidationError{Symbol: symbol, Time: b.Time, Field: f.name, Reason: "exceeds 1e15"}
		}
	}
	if b.High < b.Low {
		return &ValidationError{Symbol: symbol, Time: b.Time, Field: "high", Reason: "is below low"}
	}
	return nil
}
