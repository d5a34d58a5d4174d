package indicator

import "charting-systemv1/internal/model"

// obvAcc accumulates signed volume; the first bar only sets the reference close.
type obvAcc struct {
	started   bool
	prevClose float64
	obv       float64
}

func (a *obvAcc) update(b model.Bar, out []float64) bool {
	if !a.started {
		a.started = true
		a.prevClose = b.Close
		return false
	}
	switch {
	case b.Close > a.prevClose:
		a.obv += b.Volume
	case b.Close < a.prevClose:
		a.obv -= b.Volume
	}
	a.prevClose = b.Close
	out[0] = a.obv
	return true
}

func (a *obvAcc) clone() accumulator {
	c := *a
	return &c
}
