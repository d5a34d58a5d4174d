package barstore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/model"
)

func mkBar(t int64, close float64) model.Bar {
	return model.Bar{Time: t, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

func TestStore_AppendInOrder(t *testing.T) {
	s := New(0)
	assert.Equal(t, DefaultCapacity, s.Capacity())

	for i := int64(1); i <= 3; i++ {
		res, err := s.Append("AAPL", mkBar(i*60, 100))
		require.NoError(t, err)
		assert.Equal(t, Appended, res.Action)
		assert.Equal(t, 0, res.Evicted)
		assert.Equal(t, int(i), res.Len)
	}

	hist := s.History("AAPL")
	require.Len(t, hist, 3)
	assert.Equal(t, int64(60), hist[0].Time)
	assert.Equal(t, int64(180), hist[2].Time)
}

func TestStore_SameTimeReplacesLast(t *testing.T) {
	s := New(10)
	_, err := s.Append("AAPL", mkBar(60, 100))
	require.NoError(t, err)
	_, err = s.Append("AAPL", mkBar(120, 101))
	require.NoError(t, err)

	res, err := s.Append("AAPL", mkBar(120, 105))
	require.NoError(t, err)
	assert.Equal(t, Replaced, res.Action)
	assert.Equal(t, 2, res.Len)

	last, ok := s.Last("AAPL")
	require.True(t, ok)
	assert.Equal(t, 105.0, last.Close)
}

func TestStore_OutOfOrderLeavesStoreUnchanged(t *testing.T) {
	s := New(10)
	_, _ = s.Append("AAPL", mkBar(60, 100))
	_, _ = s.Append("AAPL", mkBar(120, 101))
	before := s.History("AAPL")

	_, err := s.Append("AAPL", mkBar(90, 500))
	var ooe *OutOfOrderError
	require.True(t, errors.As(err, &ooe))
	assert.Equal(t, int64(90), ooe.Time)
	assert.Equal(t, int64(120), ooe.Last)

	assert.Equal(t, before, s.History("AAPL"))
}

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	s := New(3)
	for i := int64(1); i <= 3; i++ {
		_, _ = s.Append("X", mkBar(i, float64(i)))
	}
	res, err := s.Append("X", mkBar(4, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, 3, res.Len)

	hist := s.History("X")
	require.Len(t, hist, 3)
	assert.Equal(t, int64(2), hist[0].Time)
	assert.Equal(t, int64(4), hist[2].Time)
}

func TestStore_Validation(t *testing.T) {
	cases := []struct {
		name  string
		bar   model.Bar
		field string
	}{
		{"nan close", model.Bar{Time: 1, Open: 1, High: 1, Low: 1, Close: math.NaN()}, "close"},
		{"inf high", model.Bar{Time: 1, Open: 1, High: math.Inf(1), Low: 1, Close: 1}, "high"},
		{"negative volume", model.Bar{Time: 1, Open: 1, High: 1, Low: 1, Close: 1, Volume: -5}, "volume"},
		{"negative price", model.Bar{Time: 1, Open: -1, High: 1, Low: -2, Close: 1}, "open"},
		{"high below low", model.Bar{Time: 1, Open: 1, High: 1, Low: 2, Close: 1}, "high"},
		{"high above bound", model.Bar{Time: 1, Open: 1, High: 2 * MaxValue, Low: 1, Close: 1}, "high"},
		{"volume above bound", model.Bar{Time: 1, Open: 1, High: 1, Low: 1, Close: 1, Volume: math.MaxFloat64 / 1.5}, "volume"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(5)
			_, err := s.Append("X", tc.bar)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, 0, s.Len("X"))
		})
	}
}

func TestStore_AcceptsValuesAtBound(t *testing.T) {
	s := New(5)
	_, err := s.Append("X", model.Bar{Time: 1, Open: MaxValue, High: MaxValue, Low: 0, Close: MaxValue, Volume: MaxValue})
	require.NoError(t, err)
}

func TestStore_HistoryIsCopy(t *testing.T) {
	s := New(5)
	_, _ = s.Append("X", mkBar(1, 10))

	h := s.History("X")
	h[0].Close = 0

	last, _ := s.Last("X")
	assert.Equal(t, 10.0, last.Close)
	assert.NotNil(t, s.History("UNKNOWN"))
	assert.Empty(t, s.History("UNKNOWN"))
}

func TestStore_SymbolsAreIndependent(t *testing.T) {
	s := New(5)
	_, _ = s.Append("A", mkBar(100, 1))
	// Older time is fine for a different symbol.
	_, err := s.Append("B", mkBar(50, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, s.Symbols())
}

func TestStore_SeedSkipsBadBars(t *testing.T) {
	s := New(5)
	n := s.Seed("X", []model.Bar{mkBar(1, 1), mkBar(3, 3), mkBar(2, 2), {Time: 4, Close: math.NaN()}, mkBar(5, 5)})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Len("X"))
}
