package redis

import (
	"context"
	"testing"
	"time"

	"charting-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableClient points at a closed port so every command fails fast.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func rec(symbol, id string, v float64) model.Record {
	return model.Record{
		Symbol: symbol,
		ID:     id,
		Output: model.Output{Shape: model.ShapeLine, Points: []model.Point{{Time: 1, Value: v}}},
	}
}

func TestPublisher_Channel(t *testing.T) {
	p := NewPublisher(unreachableClient(t), PublisherConfig{})
	r := rec("AAPL", "RSI", 1)
	assert.Equal(t, "pub:ind:RSI:AAPL", p.Channel(&r))

	p = NewPublisher(unreachableClient(t), PublisherConfig{Prefix: "charts"})
	assert.Equal(t, "charts:RSI:AAPL", p.Channel(&r))
}

func TestPublisher_EmptyBatchIsNoop(t *testing.T) {
	calls := 0
	p := NewPublisher(unreachableClient(t), PublisherConfig{
		OnWrite: func(time.Duration, error) { calls++ },
	})
	require.NoError(t, p.WriteRecordBatch(context.Background(), nil))
	assert.Zero(t, calls)
}

func TestPublisher_HoldsNewestRecordWhileFailing(t *testing.T) {
	var states []State
	var writeErrs int
	p := NewPublisher(unreachableClient(t), PublisherConfig{
		MaxFailures:   2,
		ResetTimeout:  time.Hour,
		OnStateChange: func(_, to State) { states = append(states, to) },
		OnWrite: func(_ time.Duration, err error) {
			if err != nil {
				writeErrs++
			}
		},
	})
	ctx := context.Background()

	err := p.WriteRecordBatch(ctx, []model.Record{rec("A", "SMA_20", 1), rec("A", "RSI", 1)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, p.Pending())

	err = p.WriteRecordBatch(ctx, []model.Record{rec("A", "SMA_20", 2), rec("B", "SMA_20", 1)})
	require.Error(t, err)
	assert.Equal(t, 3, p.Pending())
	assert.Equal(t, []State{StateOpen}, states)
	assert.Equal(t, 2, writeErrs)

	err = p.WriteRecordBatch(ctx, []model.Record{rec("A", "SMA_20", 3)})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, p.Pending())
	assert.Equal(t, 2, writeErrs, "open breaker must not touch the network")

	held := p.takePending(nil)
	require.Len(t, held, 3)
	assert.Equal(t, "A:RSI", held[0].Key())
	assert.Equal(t, "A:SMA_20", held[1].Key())
	assert.Equal(t, 3.0, held[1].Points[0].Value, "newest record per key wins")
	assert.Equal(t, "B:SMA_20", held[2].Key())
}

func TestPublisher_RunStopsOnClosedInput(t *testing.T) {
	p := NewPublisher(unreachableClient(t), PublisherConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	in := make(chan []model.Record, 2)
	in <- []model.Record{rec("A", "RSI", 1)}
	in <- []model.Record{rec("A", "RSI", 2)}
	close(in)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), in)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, StateOpen, p.Breaker().CurrentState())
}
