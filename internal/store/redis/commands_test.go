package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{
			name:    "activate",
			payload: `{"action":"activate","symbol":"AAPL","id":"RSI"}`,
			want:    Command{Action: ActionActivate, Symbol: "AAPL", ID: "RSI"},
		},
		{
			name:    "action is case-insensitive",
			payload: `{"action":"DEACTIVATE","symbol":"AAPL","id":"RSI"}`,
			want:    Command{Action: ActionDeactivate, Symbol: "AAPL", ID: "RSI"},
		},
		{
			name:    "set",
			payload: `{"action":"set","symbol":"X","ids":["SMA_20","MACD"]}`,
			want:    Command{Action: ActionSet, Symbol: "X", IDs: []string{"SMA_20", "MACD"}},
		},
		{
			name:    "set without ids clears the selection",
			payload: `{"action":"set","symbol":"X"}`,
			want:    Command{Action: ActionSet, Symbol: "X", IDs: []string{}},
		},
		{name: "missing id", payload: `{"action":"activate","symbol":"X"}`, wantErr: true},
		{name: "missing symbol", payload: `{"action":"activate","id":"RSI"}`, wantErr: true},
		{name: "unknown action", payload: `{"action":"explode","symbol":"X"}`, wantErr: true},
		{name: "not json", payload: `activate RSI`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
