package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/barstore"
	"charting-systemv1/internal/model"
)

func trackedSpecs() []Spec {
	specs := []Spec{
		StochParams{KPeriod: 2, DPeriod: 1},
		StochDParams{KPeriod: 2, DPeriod: 3},
		ROCParams{Period: 1},
		FibonacciParams{Period: 5},
	}
	for _, d := range DefaultDefinitions() {
		specs = append(specs, d.Spec)
	}
	return specs
}

// replay feeds bars into a store and a tracker per spec, randomly
// re-sending the newest bar with a new close, and checks every tracker
// against a full recompute after each step.
func replay(t *testing.T, capacity int, bars []model.Bar, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	store := barstore.New(capacity)
	specs := trackedSpecs()
	trackers := make([]*Tracker, len(specs))
	for i, s := range specs {
		trackers[i] = NewTracker(s)
	}

	step := func(b model.Bar) {
		res, err := store.Append("SYM", b)
		require.NoError(t, err)
		hist := store.History("SYM")
		ch := Change{Replaced: res.Action == barstore.Replaced, Evicted: res.Evicted}
		for i, tr := range trackers {
			tr.Apply(hist, ch)
			want := Compute(specs[i], hist)
			require.Equal(t, want, tr.Output(), "%s after t=%d (%s)", specs[i].Kind(), b.Time, res.Action)
		}
	}

	for _, b := range bars {
		step(b)
		if rng.Intn(3) == 0 {
			r := b
			r.Close = (r.High + r.Low) / 2
			r.Volume += 7
			step(r)
		}
	}
}

func TestTracker_MatchesComputeWithoutEviction(t *testing.T) {
	replay(t, 1000, randomWalk(150, 21), 1)
}

func TestTracker_MatchesComputeWithEviction(t *testing.T) {
	// Capacity below several lookbacks so windows repeatedly fall out.
	replay(t, 30, randomWalk(200, 22), 2)
}

func TestTracker_TinyCapacity(t *testing.T) {
	replay(t, 1, randomWalk(20, 23), 3)
}

func TestTracker_ResyncsOnMismatchedHistory(t *testing.T) {
	bars := randomWalk(40, 24)
	tr := NewTracker(EMAParams{Period: 5})
	tr.Reset(bars[:10])

	// Skip ahead: the tracker never saw bars 10..19.
	tr.Apply(bars[:21], Change{})
	assert.Equal(t, Compute(EMAParams{Period: 5}, bars[:21]), tr.Output())
	assert.Equal(t, 21, tr.Len())
}

func TestTracker_ReplaceBeforeWindowFilled(t *testing.T) {
	bars := closes(1, 2)
	tr := NewTracker(SMAParams{Period: 3})
	tr.Apply(bars[:1], Change{})
	tr.Apply(bars[:2], Change{})

	bars[1].Close = 5
	tr.Apply(bars, Change{Replaced: true})
	assert.Equal(t, 0, tr.Len())

	bars = append(bars, closes(0, 0, 9)[2])
	tr.Apply(bars, Change{})
	out := tr.Output()
	require.Len(t, out.Points, 1)
	assert.InDelta(t, 5.0, out.Points[0].Value, 1e-12)
}

func TestTracker_OutputIsSnapshot(t *testing.T) {
	bars := closes(1, 2, 3)
	tr := NewTracker(SMAParams{Period: 1})
	tr.Reset(bars)
	out := tr.Output()
	out.Points[0].Value = -1

	assert.Equal(t, 1.0, tr.Output().Points[0].Value)
}

func TestTracker_OverflowRowsMatchCompute(t *testing.T) {
	m := math.MaxFloat64 / 1.5
	bars := closes(0, m, 0, m, 0, m, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20)
	for _, spec := range trackedSpecs() {
		tr := NewTracker(spec)
		for i := range bars {
			hist := bars[:i+1]
			tr.Apply(hist, Change{})
			want := Compute(spec, hist)
			require.Equal(t, want, tr.Output(), "%s after t=%d", spec.Kind(), bars[i].Time)

			// replacing the newest bar must drop or rewrite its row
			r := append([]model.Bar(nil), hist...)
			r[i].Close = r[i].Low
			tr.Apply(r, Change{Replaced: true})
			require.Equal(t, Compute(spec, r), tr.Output(), "%s replace t=%d", spec.Kind(), bars[i].Time)
			tr.Apply(hist, Change{Replaced: true})
		}
	}
}
