package indicator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"charting-systemv1/internal/model"
)

// windowCalc computes the row at index i purely from bars[i-lookback+1 : i+1].
// Callers guarantee i >= lookback-1. A false return means the indicator is
// undefined at i and no point is emitted.
type windowCalc interface {
	lookback() int
	at(bars []model.Bar, i int, out []float64) bool
}

// closeWindow copies the closes of bars[i-len(dst)+1 : i+1] into dst.
func closeWindow(dst []float64, bars []model.Bar, i int) []float64 {
	n := len(dst)
	for j := range dst {
		dst[j] = bars[i-n+1+j].Close
	}
	return dst
}

// mean is shared by SMA and the Bollinger middle band so both produce the
// same bits for the same window.
func mean(window []float64) float64 {
	return floats.Sum(window) / float64(len(window))
}

// ── SMA ──

type smaCalc struct {
	closes []float64
}

func newSMACalc(period int) *smaCalc {
	return &smaCalc{closes: make([]float64, period)}
}

func (c *smaCalc) lookback() int { return len(c.closes) }

func (c *smaCalc) at(bars []model.Bar, i int, out []float64) bool {
	out[0] = mean(closeWindow(c.closes, bars, i))
	return true
}

// ── Bollinger Bands ──

type bbCalc struct {
	closes []float64
	mult   float64
}

func newBBCalc(period int, mult float64) *bbCalc {
	return &bbCalc{closes: make([]float64, period), mult: mult}
}

func (c *bbCalc) lookback() int { return len(c.closes) }

// at uses the population deviation of the window.
func (c *bbCalc) at(bars []model.Bar, i int, out []float64) bool {
	w := closeWindow(c.closes, bars, i)
	m := mean(w)
	_, sd := stat.PopMeanStdDev(w, nil)
	out[0] = m + sd*c.mult
	out[1] = m
	out[2] = m - sd*c.mult
	return true
}

// ── Stochastic ──

// stochCalc reuses scratch buffers between calls; each Tracker owns its own.
type stochCalc struct {
	k           int
	highs, lows []float64
}

func newStochCalc(k int) *stochCalc {
	return &stochCalc{k: k, highs: make([]float64, k), lows: make([]float64, k)}
}

func (c *stochCalc) lookback() int { return c.k }

func (c *stochCalc) at(bars []model.Bar, i int, out []float64) bool {
	v, ok := c.percentK(bars, i)
	out[0] = v
	return ok
}

// percentK is undefined when the window has no range.
func (c *stochCalc) percentK(bars []model.Bar, i int) (float64, bool) {
	for j := 0; j < c.k; j++ {
		b := bars[i-c.k+1+j]
		c.highs[j] = b.High
		c.lows[j] = b.Low
	}
	hh, ll := floats.Max(c.highs), floats.Min(c.lows)
	if hh == ll {
		return 0, false
	}
	return (bars[i].Close - ll) / (hh - ll) * 100, true
}

type stochDCalc struct {
	k *stochCalc
	d int
}

func (c *stochDCalc) lookback() int { return c.k.k + c.d - 1 }

func (c *stochDCalc) at(bars []model.Bar, i int, out []float64) bool {
	sum := 0.0
	for j := i - c.d + 1; j <= i; j++ {
		v, ok := c.k.percentK(bars, j)
		if !ok {
			return false
		}
		sum += v
	}
	out[0] = sum / float64(c.d)
	return true
}

// ── Volume ──

type volumeCalc struct{}

func (volumeCalc) lookback() int { return 1 }

func (volumeCalc) at(bars []model.Bar, i int, out []float64) bool {
	out[0] = bars[i].Volume
	return true
}

// ── Momentum / ROC ──

type momentumCalc struct{ period int }

func (c momentumCalc) lookback() int { return c.period + 1 }

func (c momentumCalc) at(bars []model.Bar, i int, out []float64) bool {
	out[0] = bars[i].Close - bars[i-c.period].Close
	return true
}

type rocCalc struct{ period int }

func (c rocCalc) lookback() int { return c.period + 1 }

func (c rocCalc) at(bars []model.Bar, i int, out []float64) bool {
	prev := bars[i-c.period].Close
	if prev == 0 {
		return false
	}
	out[0] = (bars[i].Close - prev) / prev * 100
	return true
}

// ── DX ──

// dxCalc averages TR, +DM and −DM over the last period bar pairs, so the
// first value lands on bar index period.
type dxCalc struct{ period int }

func (c dxCalc) lookback() int { return c.period + 1 }

func (c dxCalc) at(bars []model.Bar, i int, out []float64) bool {
	var sumTR, sumPlus, sumMinus float64
	for j := i - c.period + 1; j <= i; j++ {
		tr, plus, minus := directionalMove(bars[j-1], bars[j])
		sumTR += tr
		sumPlus += plus
		sumMinus += minus
	}
	n := float64(c.period)
	avgTR := sumTR / n
	if avgTR == 0 {
		out[0] = 0
		return true
	}
	plusDI := sumPlus / n / avgTR * 100
	minusDI := sumMinus / n / avgTR * 100
	if plusDI+minusDI == 0 {
		out[0] = 0
		return true
	}
	out[0] = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
	return true
}

func directionalMove(prev, cur model.Bar) (tr, plusDM, minusDM float64) {
	tr = math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
	up := cur.High - prev.High
	down := prev.Low - cur.Low
	if up > down {
		plusDM = math.Max(up, 0)
	}
	if down > up {
		minusDM = math.Max(down, 0)
	}
	return tr, plusDM, minusDM
}

// ── CCI ──

const cciConstant = 0.015

type cciCalc struct {
	period int
	tp     []float64
}

func newCCICalc(period int) *cciCalc {
	return &cciCalc{period: period, tp: make([]float64, period)}
}

func (c *cciCalc) lookback() int { return c.period }

func (c *cciCalc) at(bars []model.Bar, i int, out []float64) bool {
	for j := range c.tp {
		b := bars[i-c.period+1+j]
		c.tp[j] = (b.High + b.Low + b.Close) / 3
	}
	last := c.tp[c.period-1]
	m := mean(c.tp)
	floats.AddConst(-m, c.tp)
	dev := floats.Norm(c.tp, 1) / float64(c.period)
	if dev == 0 {
		out[0] = 0
		return true
	}
	out[0] = (last - m) / (cciConstant * dev)
	return true
}

// ── Pivot points ──

type pivotCalc struct{}

func (pivotCalc) lookback() int { return 2 }

// at writes P, R1, S1, R2, S2, R3, S3 computed from the previous bar.
func (pivotCalc) at(bars []model.Bar, i int, out []float64) bool {
	prev := bars[i-1]
	h, l := prev.High, prev.Low
	p := (h + l + prev.Close) / 3
	out[0] = p
	out[1] = 2*p - l
	out[2] = 2*p - h
	out[3] = p + (h - l)
	out[4] = p - (h - l)
	out[5] = h + 2*(p-l)
	out[6] = l - 2*(h-p)
	return true
}

// ── Fibonacci retracement ──

type fibCalc struct {
	period      int
	highs, lows []float64
}

func newFibCalc(period int) *fibCalc {
	return &fibCalc{period: period, highs: make([]float64, period), lows: make([]float64, period)}
}

func (c *fibCalc) lookback() int { return c.period }

func (c *fibCalc) at(bars []model.Bar, i int, out []float64) bool {
	for j := 0; j < c.period; j++ {
		b := bars[i-c.period+1+j]
		c.highs[j] = b.High
		c.lows[j] = b.Low
	}
	hh, ll := floats.Max(c.highs), floats.Min(c.lows)
	diff := hh - ll
	for k, r := range fibRatios {
		out[k] = hh - r*diff
	}
	return true
}
