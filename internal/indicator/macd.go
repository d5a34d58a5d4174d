package indicator

import "charting-systemv1/internal/model"

// macdAcc pairs the fast EMA at bar i with the slow EMA at bar i-lag, where
// lag = slow-fast, matching the chart's historical alignment. The first MACD
// value therefore lands on bar index lag. The signal line is an EMA of the
// MACD values seeded with the first one.
type macdAcc struct {
	series MACDSeries
	lag    int
	fast   ema
	slow   ema
	signal ema

	// slowHist keeps the last lag+1 slow EMA values, indexed by bar % (lag+1).
	slowHist []float64
	n        int
}

func newMACDAcc(p MACDParams) *macdAcc {
	lag := p.Slow - p.Fast
	return &macdAcc{
		series:   p.Series,
		lag:      lag,
		fast:     newEMA(p.Fast),
		slow:     newEMA(p.Slow),
		signal:   newEMA(p.Signal),
		slowHist: make([]float64, lag+1),
	}
}

func (m *macdAcc) update(b model.Bar, out []float64) bool {
	i := m.n
	m.n++
	f := m.fast.push(b.Close)
	m.slowHist[i%(m.lag+1)] = m.slow.push(b.Close)
	if i < m.lag {
		return false
	}

	macd := f - m.slowHist[(i-m.lag)%(m.lag+1)]
	sig := m.signal.push(macd)
	switch m.series {
	case MACDSignalLine:
		out[0] = sig
	case MACDHistogram:
		out[0] = macd - sig
	default:
		out[0] = macd
	}
	return true
}

func (m *macdAcc) clone() accumulator {
	c := *m
	c.slowHist = make([]float64, len(m.slowHist))
	copy(c.slowHist, m.slowHist)
	return &c
}
