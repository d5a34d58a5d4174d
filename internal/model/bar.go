package model

import (
	"encoding/json"
	"time"
)

// Bar is one OHLCV sample for a symbol. Time is the bar's open time in
// Unix seconds; prices and volume are plain floats as delivered by the
// upstream parser.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TS returns the bar time as a UTC time.Time.
func (b *Bar) TS() time.Time {
	return time.Unix(b.Time, 0).UTC()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// SymbolBar pairs a bar with the symbol it belongs to, for channels that
// carry bars of many symbols (archive writer, warm start).
type SymbolBar struct {
	Symbol string `json:"symbol"`
	Bar
}
