package indicator

import "charting-systemv1/internal/model"

// accumulator is the streaming form of a seed-dependent indicator. update
// feeds the next bar and reports whether it produced a row; clone returns an
// independent copy used as a checkpoint.
type accumulator interface {
	update(b model.Bar, out []float64) bool
	clone() accumulator
}

// ema is an O(1) exponential average seeded with the first sample.
type ema struct {
	multiplier float64
	current    float64
	count      int
}

func newEMA(period int) ema {
	return ema{multiplier: 2.0 / float64(period+1)}
}

func (e *ema) push(price float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = price
		return e.current
	}
	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
	return e.current
}

type emaAcc struct{ ema }

func (a *emaAcc) update(b model.Bar, out []float64) bool {
	out[0] = a.push(b.Close)
	return true
}

func (a *emaAcc) clone() accumulator {
	c := *a
	return &c
}
