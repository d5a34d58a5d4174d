package indicator

import (
	"sort"

	"charting-systemv1/internal/model"
)

// calculator is either a windowCalc or a func() accumulator.
type calculator struct {
	window windowCalc
	newAcc func() accumulator
}

// calculatorFor maps a spec to its algorithm. Each Tracker gets its own
// calculator because some keep scratch buffers.
func calculatorFor(spec Spec) calculator {
	if spec.Validate() != nil {
		return calculator{}
	}
	switch p := spec.(type) {
	case SMAParams:
		return calculator{window: newSMACalc(p.Period)}
	case EMAParams:
		return calculator{newAcc: func() accumulator { return &emaAcc{newEMA(p.Period)} }}
	case BBParams:
		return calculator{window: newBBCalc(p.Period, p.Multiplier)}
	case MACDParams:
		return calculator{newAcc: func() accumulator { return newMACDAcc(p) }}
	case RSIParams:
		return calculator{newAcc: func() accumulator { return &rsiAcc{period: p.Period} }}
	case StochParams:
		return calculator{window: newStochCalc(p.KPeriod)}
	case StochDParams:
		return calculator{window: &stochDCalc{k: newStochCalc(p.KPeriod), d: p.DPeriod}}
	case VolumeParams:
		return calculator{window: volumeCalc{}}
	case OBVParams:
		return calculator{newAcc: func() accumulator { return &obvAcc{} }}
	case MomentumParams:
		return calculator{window: momentumCalc{period: p.Period}}
	case ROCParams:
		return calculator{window: rocCalc{period: p.Period}}
	case DXParams:
		return calculator{window: dxCalc{period: p.Period}}
	case CCIParams:
		return calculator{window: newCCICalc(p.Period)}
	case PivotParams:
		return calculator{window: pivotCalc{}}
	case FibonacciParams:
		return calculator{window: newFibCalc(p.Period)}
	}
	return calculator{}
}

// Compute returns the full derived series of spec over bars. It never fails:
// short histories and invalid specs give an empty output of the right shape.
func Compute(spec Spec, bars []model.Bar) model.Output {
	t := NewTracker(spec)
	t.Reset(bars)
	return t.Output()
}

// frame is a column store of rows aligned on time.
type frame struct {
	times []int64
	cols  [][]float64
}

func newFrame(width, capHint int) *frame {
	f := &frame{times: make([]int64, 0, capHint), cols: make([][]float64, width)}
	for i := range f.cols {
		f.cols[i] = make([]float64, 0, capHint)
	}
	return f
}

func (f *frame) len() int { return len(f.times) }

func (f *frame) push(t int64, row []float64) {
	f.times = append(f.times, t)
	for i := range f.cols {
		f.cols[i] = append(f.cols[i], row[i])
	}
}

func (f *frame) lastTime() (int64, bool) {
	if len(f.times) == 0 {
		return 0, false
	}
	return f.times[len(f.times)-1], true
}

func (f *frame) pop() {
	n := len(f.times) - 1
	f.times = f.times[:n]
	for i := range f.cols {
		f.cols[i] = f.cols[i][:n]
	}
}

// dropBefore removes leading rows with time < t.
func (f *frame) dropBefore(t int64) {
	k := sort.Search(len(f.times), func(i int) bool { return f.times[i] >= t })
	if k == 0 {
		return
	}
	n := copy(f.times, f.times[k:])
	f.times = f.times[:n]
	for i := range f.cols {
		copy(f.cols[i], f.cols[i][k:])
		f.cols[i] = f.cols[i][:n]
	}
}

func (f *frame) clear() {
	f.times = f.times[:0]
	for i := range f.cols {
		f.cols[i] = f.cols[i][:0]
	}
}

func (f *frame) points(col int) []model.Point {
	pts := make([]model.Point, len(f.times))
	for i, t := range f.times {
		pts[i] = model.Point{Time: t, Value: f.cols[col][i]}
	}
	return pts
}

// output copies the frame into a freshly allocated Output.
func (f *frame) output(spec Spec) model.Output {
	out := model.Output{Shape: spec.Shape()}
	switch out.Shape {
	case model.ShapeBand:
		out.Band = &model.BandSeries{Upper: f.points(0), Middle: f.points(1), Lower: f.points(2)}
	case model.ShapeLevels:
		names := spec.Columns()
		out.Levels = make([]model.LevelSeries, len(names))
		for i, name := range names {
			out.Levels[i] = model.LevelSeries{Name: name, Points: f.points(i)}
		}
	default:
		out.Points = f.points(0)
	}
	return out
}
