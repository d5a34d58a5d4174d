package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"charting-systemv1/internal/model"
)

// Simulator generates random-walk OHLCV bars for a set of symbols.
type Simulator struct {
	rng      *rand.Rand
	symbols  []string
	price    map[string]float64
	step     int64 // bar duration in seconds
	nextTime int64
	ticks    int // intra-bar price moves
}

// NewSimulator starts every symbol at startPrice with bars of step seconds
// beginning at start.
func NewSimulator(symbols []string, startPrice float64, start time.Time, step time.Duration, seed int64) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		symbols:  symbols,
		price:    make(map[string]float64, len(symbols)),
		step:     int64(step / time.Second),
		nextTime: start.Unix(),
		ticks:    10,
	}
	if s.step < 1 {
		s.step = 1
	}
	for _, sym := range symbols {
		s.price[sym] = startPrice
	}
	return s
}

// walk applies a move of at most ±0.1%.
func (s *Simulator) walk(p float64) float64 {
	pct := (s.rng.Float64()*0.2 - 0.1) / 100
	next := p * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

// Next returns one bar per symbol for the next period.
func (s *Simulator) Next() []model.SymbolBar {
	t := s.nextTime
	s.nextTime += s.step
	out := make([]model.SymbolBar, len(s.symbols))
	for i, sym := range s.symbols {
		open := s.price[sym]
		high, low, p := open, open, open
		for k := 0; k < s.ticks; k++ {
			p = s.walk(p)
			high = math.Max(high, p)
			low = math.Min(low, p)
		}
		s.price[sym] = p
		out[i] = model.SymbolBar{Symbol: sym, Bar: model.Bar{
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  p,
			Volume: float64(s.rng.Intn(1000) + 1),
		}}
	}
	return out
}

// Run emits count periods (unbounded when count <= 0), one every
// interval, until ctx is cancelled. interval 0 emits as fast as out
// accepts. Returns the number of bars sent.
func (s *Simulator) Run(ctx context.Context, count int, interval time.Duration, out chan<- model.SymbolBar) int {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	sent := 0
	for period := 0; count <= 0 || period < count; period++ {
		if tick != nil && period > 0 {
			select {
			case <-ctx.Done():
				return sent
			case <-tick:
			}
		}
		for _, sb := range s.Next() {
			select {
			case out <- sb:
				sent++
			case <-ctx.Done():
				return sent
			}
		}
	}
	return sent
}
