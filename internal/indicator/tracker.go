package indicator

import (
	"math"

	"charting-systemv1/internal/model"
)

// Change describes how a bar history changed since the previous call to
// Tracker.Apply: either a new bar was appended (possibly evicting the oldest
// bar) or the newest bar was replaced in place.
type Change struct {
	Replaced bool
	Evicted  int
}

// Tracker keeps the series of one indicator up to date with a bar history.
//
// Window-based kinds re-evaluate only the newest index and trim rows whose
// window left the history. Seed-dependent kinds (EMA, MACD, RSI, OBV) feed
// one bar into a streaming accumulator, keeping a checkpoint from before the
// newest bar so a replacement can be replayed; an eviction changes their
// seed and forces a full recompute. In every case Output equals Compute over
// the same history.
//
// Not safe for concurrent use.
type Tracker struct {
	spec  Spec
	calc  calculator
	valid bool
	frame *frame
	row   []float64

	acc        accumulator
	checkpoint accumulator // state before the newest bar
	lastRow    bool        // whether the newest bar produced a row

	// history fingerprint after the last update
	n        int
	lastTime int64
}

// NewTracker creates an empty tracker for spec.
func NewTracker(spec Spec) *Tracker {
	width := len(spec.Columns())
	return &Tracker{
		spec:  spec,
		calc:  calculatorFor(spec),
		valid: spec.Validate() == nil,
		frame: newFrame(width, 64),
		row:   make([]float64, width),
	}
}

// Spec returns the tracked spec.
func (t *Tracker) Spec() Spec { return t.spec }

// Len returns the number of rows currently held.
func (t *Tracker) Len() int { return t.frame.len() }

// Reset recomputes the whole series from bars.
func (t *Tracker) Reset(bars []model.Bar) {
	t.frame.clear()
	t.acc, t.checkpoint, t.lastRow = nil, nil, false
	t.remember(bars)
	if !t.valid {
		return
	}

	if w := t.calc.window; w != nil {
		for i := w.lookback() - 1; i < len(bars); i++ {
			if w.at(bars, i, t.row) && finite(t.row) {
				t.frame.push(bars[i].Time, t.row)
			}
		}
		return
	}

	t.acc = t.calc.newAcc()
	for i, b := range bars {
		if i == len(bars)-1 {
			t.checkpoint = t.acc.clone()
		}
		t.lastRow = t.acc.update(b, t.row) && finite(t.row)
		if t.lastRow {
			t.frame.push(b.Time, t.row)
		}
	}
}

// Apply updates the series after bars changed by ch. bars is the full
// history after the change. If the tracker's view of the history does not
// line up with ch it falls back to Reset.
func (t *Tracker) Apply(bars []model.Bar, ch Change) {
	if !t.consistent(bars, ch) {
		t.Reset(bars)
		return
	}
	if !t.valid {
		t.remember(bars)
		return
	}
	if t.calc.window != nil {
		t.applyWindow(bars, ch)
	} else {
		t.applyRecurrent(bars, ch)
	}
	t.remember(bars)
}

func (t *Tracker) applyWindow(bars []model.Bar, ch Change) {
	w := t.calc.window
	last := bars[len(bars)-1]

	if ch.Replaced {
		if lt, ok := t.frame.lastTime(); ok && lt == last.Time {
			t.frame.pop()
		}
	} else if ch.Evicted > 0 {
		if len(bars) >= w.lookback() {
			t.frame.dropBefore(bars[w.lookback()-1].Time)
		} else {
			t.frame.clear()
		}
	}

	i := len(bars) - 1
	if i >= w.lookback()-1 && w.at(bars, i, t.row) && finite(t.row) {
		t.frame.push(last.Time, t.row)
	}
}

func (t *Tracker) applyRecurrent(bars []model.Bar, ch Change) {
	if ch.Evicted > 0 {
		t.Reset(bars)
		return
	}
	last := bars[len(bars)-1]

	if ch.Replaced {
		if t.checkpoint == nil {
			t.Reset(bars)
			return
		}
		if t.lastRow {
			t.frame.pop()
		}
		t.acc = t.checkpoint.clone()
	} else {
		if t.acc == nil {
			t.acc = t.calc.newAcc()
		}
		t.checkpoint = t.acc.clone()
	}

	t.lastRow = t.acc.update(last, t.row) && finite(t.row)
	if t.lastRow {
		t.frame.push(last.Time, t.row)
	}
}

// consistent reports whether bars is exactly the previously seen history
// transformed by ch.
func (t *Tracker) consistent(bars []model.Bar, ch Change) bool {
	n := len(bars)
	if n == 0 {
		return false
	}
	switch {
	case ch.Replaced:
		return n == t.n && bars[n-1].Time == t.lastTime
	case ch.Evicted > 0:
		return n == t.n && n >= 2 && bars[n-2].Time == t.lastTime
	default:
		if t.n == 0 {
			return n == 1
		}
		return n == t.n+1 && bars[n-2].Time == t.lastTime
	}
}

func (t *Tracker) remember(bars []model.Bar) {
	t.n = len(bars)
	if t.n > 0 {
		t.lastTime = bars[t.n-1].Time
	} else {
		t.lastTime = 0
	}
}

// finite rejects rows that overflowed. Such points are omitted like any
// other undefined value.
func finite(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Output returns a freshly allocated copy of the current series.
func (t *Tracker) Output() model.Output {
	return t.frame.output(t.spec)
}
