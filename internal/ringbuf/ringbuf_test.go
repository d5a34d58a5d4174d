package ringbuf

import (
	"testing"

	"charting-systemv1/internal/model"
)

func bar(t int64) model.Bar {
	return model.Bar{Time: t, Open: 1, High: 1, Low: 1, Close: float64(t)}
}

func TestRing_PushAndSnapshot(t *testing.T) {
	r := New(4)

	for i := int64(1); i <= 3; i++ {
		if _, ev := r.Push(bar(i)); ev {
			t.Fatalf("push %d: unexpected eviction", i)
		}
	}

	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	got := r.Snapshot()
	for i, b := range got {
		if b.Time != int64(i+1) {
			t.Fatalf("snapshot[%d].Time=%d, want %d", i, b.Time, i+1)
		}
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New(3)
	for i := int64(1); i <= 3; i++ {
		r.Push(bar(i))
	}

	old, ev := r.Push(bar(4))
	if !ev || old.Time != 1 {
		t.Fatalf("expected eviction of t=1, got ev=%v old=%d", ev, old.Time)
	}
	old, ev = r.Push(bar(5))
	if !ev || old.Time != 2 {
		t.Fatalf("expected eviction of t=2, got ev=%v old=%d", ev, old.Time)
	}

	if r.Len() != 3 || r.Evicted() != 2 {
		t.Fatalf("len=%d evicted=%d, want 3 and 2", r.Len(), r.Evicted())
	}

	want := []int64{3, 4, 5}
	for i, b := range r.Snapshot() {
		if b.Time != want[i] {
			t.Fatalf("snapshot[%d].Time=%d, want %d", i, b.Time, want[i])
		}
	}
	if r.At(0).Time != 3 || r.At(2).Time != 5 {
		t.Fatalf("At mismatch: %d..%d", r.At(0).Time, r.At(2).Time)
	}
}

func TestRing_ReplaceLast(t *testing.T) {
	r := New(2)
	if r.ReplaceLast(bar(1)) {
		t.Fatal("replace on empty ring should fail")
	}
	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty ring should be false")
	}

	r.Push(bar(1))
	r.Push(bar(2))
	r.Push(bar(3)) // wraps

	nb := bar(3)
	nb.Close = 99
	if !r.ReplaceLast(nb) {
		t.Fatal("replace should succeed")
	}
	last, _ := r.Last()
	if last.Close != 99 {
		t.Fatalf("expected replaced close=99, got %v", last.Close)
	}
	if r.Len() != 2 {
		t.Fatalf("replace must not change len, got %d", r.Len())
	}
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := New(2)
	r.Push(bar(1))
	snap := r.Snapshot()
	snap[0].Close = -1

	if r.At(0).Close != 1 {
		t.Fatal("mutating a snapshot must not affect the ring")
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := New(0)
	if r.Cap() != 1 {
		t.Fatalf("expected cap=1, got %d", r.Cap())
	}
	r.Push(bar(1))
	r.Push(bar(2))
	if r.Len() != 1 || r.At(0).Time != 2 {
		t.Fatalf("expected only t=2 retained")
	}
}

func BenchmarkRing_Push(b *testing.B) {
	r := New(1000)
	for i := 0; i < b.N; i++ {
		r.Push(bar(int64(i)))
	}
}
