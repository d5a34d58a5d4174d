package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/model"
)

func batch(id string) []model.Record {
	return []model.Record{{Symbol: "AAPL", ID: id}}
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("redis")
	out2 := fo.Subscribe("ws")

	input := make(chan []model.Record, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- batch("RSI")

	for name, out := range map[string]<-chan []model.Record{"redis": out1, "ws": out2} {
		select {
		case b := <-out:
			require.Len(t, b, 1, name)
			assert.Equal(t, "RSI", b[0].ID, name)
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for batch", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriberOnly(t *testing.T) {
	fo := New(1)
	slow := fo.Subscribe("slow")
	fast := fo.Subscribe("fast")

	var mu sync.Mutex
	drops := map[string]int{}
	fo.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}

	input := make(chan []model.Record)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	var got []string
	for _, id := range []string{"A", "B", "C"} {
		input <- batch(id)
		b := <-fast
		got = append(got, b[0].ID)
	}
	close(input)
	<-done

	assert.Equal(t, []string{"A", "B", "C"}, got)
	mu.Lock()
	assert.Equal(t, 2, drops["slow"])
	assert.Zero(t, drops["fast"])
	mu.Unlock()

	// Slow subscriber kept the first batch, then its channel was closed.
	b, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, "A", b[0].ID)
	_, ok = <-slow
	assert.False(t, ok)
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New(4)
	fo.Subscribe("x")
	stats := fo.ChannelStats()
	require.Len(t, stats, 1)
	assert.Equal(t, ChannelStat{Name: "x", Len: 0, Cap: 4}, stats[0])
}
