package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/model"
)

func sb(symbol string, t int64, c float64) model.SymbolBar {
	return model.SymbolBar{Symbol: symbol, Bar: model.Bar{Time: t, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 3}}
}

func TestArchive_WriteThenReadNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	committed := 0
	w, err := New(WriterConfig{DBPath: path, BatchSize: 2, FlushDelay: 10 * time.Millisecond,
		OnCommit: func(n int, _ time.Duration) { committed += n }})
	require.NoError(t, err)
	defer w.Close()

	ch := make(chan model.SymbolBar, 16)
	for i := int64(1); i <= 5; i++ {
		ch <- sb("AAPL", i*60, float64(100+i))
	}
	ch <- sb("MSFT", 60, 300)
	ch <- sb("AAPL", 300, 999) // replaces t=300
	close(ch)
	w.Run(context.Background(), ch)
	assert.Equal(t, 7, committed)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	syms, err := r.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)

	bars, err := r.ReadBars("AAPL", 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, []int64{180, 240, 300}, []int64{bars[0].Time, bars[1].Time, bars[2].Time})
	assert.Equal(t, 999.0, bars[2].Close)
}

func TestArchive_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()

	ch := make(chan model.SymbolBar, 16)
	for i := int64(1); i <= 6; i++ {
		ch <- sb("X", i, 10)
	}
	close(ch)
	w.Run(context.Background(), ch)

	n, err := w.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	bars, err := r.ReadBars("X", 10)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(5), bars[0].Time)
}
