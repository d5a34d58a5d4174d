package indicator

import "charting-systemv1/internal/model"

// rsiAcc computes RSI with Wilder's smoothing. The first value is emitted on
// the bar at index period, seeded by the plain average of the first period
// gains and losses.
type rsiAcc struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

func (r *rsiAcc) update(b model.Bar, out []float64) bool {
	price := b.Close
	r.count++

	if r.count == 1 {
		// First bar: record the price, no delta yet
		r.prevClose = price
		return false
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss
		if r.count < r.period+1 {
			return false
		}
		r.avgGain /= float64(r.period)
		r.avgLoss /= float64(r.period)
	} else {
		// Wilder's smoothing: avg = (prevAvg * (period-1) + x) / period
		p := float64(r.period)
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	out[0] = rsiValue(r.avgGain, r.avgLoss)
	return true
}

// rsiValue saturates at 100 when there were no losses in the window.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *rsiAcc) clone() accumulator {
	c := *r
	return &c
}
