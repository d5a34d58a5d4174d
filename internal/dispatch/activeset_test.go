package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveSet_IdempotentAndOrdered(t *testing.T) {
	s := NewActiveSet()
	assert.True(t, s.Activate("RSI"))
	assert.True(t, s.Activate("BB"))
	assert.False(t, s.Activate("RSI"))
	assert.True(t, s.Activate("MACD"))
	assert.Equal(t, []string{"RSI", "BB", "MACD"}, s.List())

	assert.True(t, s.Deactivate("BB"))
	assert.False(t, s.Deactivate("BB"))
	assert.Equal(t, []string{"RSI", "MACD"}, s.List())
	assert.True(t, s.Has("MACD"))
	assert.False(t, s.Has("BB"))

	// Index stays consistent after removal from the middle.
	assert.True(t, s.Deactivate("MACD"))
	assert.Equal(t, []string{"RSI"}, s.List())
	assert.Equal(t, 1, s.Len())
}

func TestActiveSet_ListIsCopy(t *testing.T) {
	s := NewActiveSet()
	s.Activate("A")
	l := s.List()
	l[0] = "Z"
	assert.Equal(t, []string{"A"}, s.List())
}
