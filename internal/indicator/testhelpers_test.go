package indicator

import (
	"math"
	"testing"

	"charting-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

// closes builds bars at t=0,1,2,... with the given closes and a ±1 range.
func closes(cs ...float64) []model.Bar {
	bars := make([]model.Bar, len(cs))
	for i, c := range cs {
		bars[i] = model.Bar{Time: int64(i), Open: c, High: c + 1, Low: math.Max(c-1, 0), Close: c, Volume: 100}
	}
	return bars
}

func hlc(t int64, h, l, c float64) model.Bar {
	return model.Bar{Time: t, Open: c, High: h, Low: l, Close: c, Volume: 1}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertSeries(t *testing.T, label string, got []model.Point, wantTimes []int64, wantValues []float64) {
	t.Helper()
	if len(got) != len(wantTimes) {
		t.Fatalf("%s: got %d points, want %d (%v)", label, len(got), len(wantTimes), got)
	}
	for i, p := range got {
		if p.Time != wantTimes[i] {
			t.Errorf("%s[%d]: time=%d, want %d", label, i, p.Time, wantTimes[i])
		}
		assertClose(t, label, p.Value, wantValues[i], 1e-4)
	}
}

func assertFinite(t *testing.T, label string, pts []model.Point) {
	t.Helper()
	for _, p := range pts {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			t.Fatalf("%s: non-finite value at t=%d", label, p.Time)
		}
	}
}
