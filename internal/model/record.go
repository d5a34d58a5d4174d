package model

import (
	"encoding/json"
	"fmt"
)

// Shape tells the renderer how to draw an indicator.
type Shape int

const (
	ShapeLine Shape = iota
	ShapeBand
	ShapeOscillator
	ShapeHistogram
	ShapeLevels
)

var shapeNames = [...]string{"line", "band", "oscillator", "histogram", "levels"}

func (s Shape) String() string {
	if int(s) < 0 || int(s) >= len(shapeNames) {
		return "unknown"
	}
	return shapeNames[s]
}

// MarshalJSON encodes the shape by name.
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a shape name.
func (s *Shape) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range shapeNames {
		if n == name {
			*s = Shape(i)
			return nil
		}
	}
	return fmt.Errorf("unknown shape %q", name)
}

// Point is one value of a derived series. Value is always finite; times
// where the indicator is undefined are simply absent.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// BandSeries holds three lines aligned on the same times.
type BandSeries struct {
	Upper  []Point `json:"upper"`
	Middle []Point `json:"middle"`
	Lower  []Point `json:"lower"`
}

// LevelSeries is one named horizontal level (pivot, retracement) tracked
// over time.
type LevelSeries struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Output is the derived series of one indicator over one bar history.
// Exactly one of Points, Band or Levels is populated, chosen by Shape.
type Output struct {
	Shape  Shape         `json:"shape"`
	Points []Point       `json:"points,omitempty"`
	Band   *BandSeries   `json:"band,omitempty"`
	Levels []LevelSeries `json:"levels,omitempty"`
}

// Len returns the number of points per line of the output.
func (o Output) Len() int {
	switch {
	case o.Band != nil:
		return len(o.Band.Middle)
	case len(o.Levels) > 0:
		return len(o.Levels[0].Points)
	default:
		return len(o.Points)
	}
}

// Record is one emitted indicator result for (Symbol, ID). Its slices are
// owned by the record and never mutated after emission.
//
// Seq orders records by the engine state they were computed from: a record
// with a higher Seq reflects a later state. Zero means unsequenced.
type Record struct {
	Symbol string `json:"symbol"`
	ID     string `json:"id"`
	Seq    uint64 `json:"seq,omitempty"`
	Output
}

// Key returns "symbol:id".
func (r *Record) Key() string {
	return r.Symbol + ":" + r.ID
}

// Series flattens the record into named lines the way the chart draws them:
// a line keeps its id, a band becomes <id>_upper/_middle/_lower and levels
// become <id>_<level>.
func (r *Record) Series() map[string][]Point {
	out := make(map[string][]Point, 3)
	switch {
	case r.Band != nil:
		out[r.ID+"_upper"] = r.Band.Upper
		out[r.ID+"_middle"] = r.Band.Middle
		out[r.ID+"_lower"] = r.Band.Lower
	case len(r.Levels) > 0:
		for _, l := range r.Levels {
			out[r.ID+"_"+l.Name] = l.Points
		}
	default:
		out[r.ID] = r.Points
	}
	return out
}

// JSON returns the JSON-encoded record.
func (r *Record) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// RecordMessage is the flattened wire form of a Record shared by the
// websocket hub and the redis publisher.
type RecordMessage struct {
	Type   string             `json:"type"`
	Symbol string             `json:"symbol"`
	ID     string             `json:"id"`
	Seq    uint64             `json:"seq,omitempty"`
	Shape  Shape              `json:"shape"`
	Series map[string][]Point `json:"series"`
}

// Message converts the record to its wire form.
func (r *Record) Message() RecordMessage {
	return RecordMessage{
		Type:   "record",
		Symbol: r.Symbol,
		ID:     r.ID,
		Seq:    r.Seq,
		Shape:  r.Shape,
		Series: r.Series(),
	}
}

// MessageJSON returns the JSON-encoded wire form of the record.
func (r *Record) MessageJSON() []byte {
	b, _ := json.Marshal(r.Message())
	return b
}
