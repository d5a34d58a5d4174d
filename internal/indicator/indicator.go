// Package indicator computes technical indicators over OHLCV bar histories.
//
// Every indicator kind is described by a typed parameter struct implementing
// Spec. Compute is the pure batch entry point; Tracker maintains the same
// series incrementally as bars are appended or the newest bar is replaced,
// and always yields exactly what Compute would over the same history.
package indicator

import (
	"fmt"
	"math"
	"strings"

	"charting-systemv1/internal/model"
)

// Kind enumerates the supported indicator algorithms.
type Kind int

const (
	KindSMA Kind = iota
	KindEMA
	KindBB
	KindMACD
	KindMACDSignal
	KindMACDHist
	KindRSI
	KindStoch
	KindStochD
	KindVolume
	KindOBV
	KindMomentum
	KindROC
	KindDX
	KindCCI
	KindPivot
	KindFibonacci
)

var kindNames = [...]string{
	"SMA", "EMA", "BB", "MACD", "MACD_SIGNAL", "MACD_HIST", "RSI", "STOCH", "STOCH_D",
	"VOLUME", "OBV", "MOMENTUM", "ROC", "DX", "CCI", "PIVOT", "FIBONACCI",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name (JSON and YAML).
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind resolves a kind name, case-insensitively. "ADX" is accepted as
// an alias of DX, the unsmoothed directional index this package computes.
func ParseKind(s string) (Kind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "ADX" {
		return KindDX, nil
	}
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown indicator kind %q", s)
}

// Spec is the validated parameter set of one indicator. The set of
// implementations is closed: SMAParams, EMAParams, BBParams, MACDParams,
// RSIParams, StochParams, StochDParams, VolumeParams, OBVParams,
// MomentumParams, ROCParams, DXParams, CCIParams, PivotParams and
// FibonacciParams.
type Spec interface {
	Kind() Kind
	Shape() model.Shape
	// Columns names the output lines, one per value of a row.
	Columns() []string
	Validate() error

	isSpec()
}

var (
	lineColumns  = []string{"value"}
	bandColumns  = []string{"upper", "middle", "lower"}
	pivotColumns = []string{"P", "R1", "S1", "R2", "S2", "R3", "S3"}
	fibColumns   = []string{"0", "23.6", "38.2", "50", "61.8", "78.6", "100"}
	fibRatios    = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}
)

// MaxPeriod bounds every window length. Calculators allocate scratch
// buffers of this size.
const MaxPeriod = 1_000_000

func checkPeriod(name string, p int) error {
	if p < 1 || p > MaxPeriod {
		return fmt.Errorf("%s must be in [1, %d], got %d", name, MaxPeriod, p)
	}
	return nil
}

// SMAParams: arithmetic mean of the last Period closes.
type SMAParams struct{ Period int }

func (SMAParams) Kind() Kind { return KindSMA }
func (SMAParams) Shape() model.Shape { return model.ShapeLine }
func (SMAParams) Columns() []string { return lineColumns }
func (p SMAParams) Validate() error { return checkPeriod("period", p.Period) }
func (SMAParams) isSpec() {}

// EMAParams: exponential average seeded with the first close, α = 2/(Period+1).
type EMAParams struct{ Period int }

func (EMAParams) Kind() Kind { return KindEMA }
func (EMAParams) Shape() model.Shape { return model.ShapeLine }
func (EMAParams) Columns() []string { return lineColumns }
func (p EMAParams) Validate() error { return checkPeriod("period", p.Period) }
func (EMAParams) isSpec() {}

// BBParams: SMA(Period) ± Multiplier·σ, σ the population deviation of the window.
type BBParams struct {
	Period     int
	Multiplier float64
}

func (BBParams) Kind() Kind { return KindBB }
func (BBParams) Shape() model.Shape { return model.ShapeBand }
func (BBParams) Columns() []string { return bandColumns }
func (p BBParams) Validate() error {
	if err := checkPeriod("period", p.Period); err != nil {
		return err
	}
	if p.Multiplier < 0 || math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0) {
		return fmt.Errorf("stdDevMultiplier must be finite and >= 0, got %v", p.Multiplier)
	}
	return nil
}
func (BBParams) isSpec() {}

// MACDSeries selects which MACD line a MACDParams produces.
type MACDSeries int

const (
	MACDLine MACDSeries = iota
	MACDSignalLine
	MACDHistogram
)

// MACDParams: EMA(Fast) − EMA(Slow) with the fast series offset by
// Slow−Fast bars, plus its EMA(Signal) signal line and histogram.
type MACDParams struct {
	Fast, Slow, Signal int
	Series             MACDSeries
}

func (p MACDParams) Kind() Kind {
	switch p.Series {
	case MACDSignalLine:
		return KindMACDSignal
	case MACDHistogram:
		return KindMACDHist
	}
	return KindMACD
}

func (p MACDParams) Shape() model.Shape {
	if p.Series == MACDHistogram {
		return model.ShapeHistogram
	}
	return model.ShapeLine
}

func (MACDParams) Columns() []string { return lineColumns }

func (p MACDParams) Validate() error {
	for _, c := range []struct {
		n string
		v int
	}{{"fastPeriod", p.Fast}, {"slowPeriod", p.Slow}, {"signalPeriod", p.Signal}} {
		if err := checkPeriod(c.n, c.v); err != nil {
			return err
		}
	}
	if p.Slow <= p.Fast {
		return fmt.Errorf("slowPeriod (%d) must be greater than fastPeriod (%d)", p.Slow, p.Fast)
	}
	return nil
}
func (MACDParams) isSpec() {}

// RSIParams: Wilder-smoothed relative strength index.
type RSIParams struct{ Period int }

func (RSIParams) Kind() Kind { return KindRSI }
func (RSIParams) Shape() model.Shape { return model.ShapeLine }
func (RSIParams) Columns() []string { return lineColumns }
func (p RSIParams) Validate() error { return checkPeriod("period", p.Period) }
func (RSIParams) isSpec() {}

// StochParams: stochastic %K over KPeriod bars. DPeriod is carried for the
// catalog entry but only StochDParams uses it.
type StochParams struct{ KPeriod, DPeriod int }

func (StochParams) Kind() Kind { return KindStoch }
func (StochParams) Shape() model.Shape { return model.ShapeLine }
func (StochParams) Columns() []string { return lineColumns }
func (p StochParams) Validate() error {
	if err := checkPeriod("kPeriod", p.KPeriod); err != nil {
		return err
	}
	return checkPeriod("dPeriod", p.DPeriod)
}
func (StochParams) isSpec() {}

// StochDParams: %D, the mean of the last DPeriod %K values.
type StochDParams struct{ KPeriod, DPeriod int }

func (StochDParams) Kind() Kind { return KindStochD }
func (StochDParams) Shape() model.Shape { return model.ShapeOscillator }
func (StochDParams) Columns() []string { return lineColumns }
func (p StochDParams) Validate() error { return StochParams(p).Validate() }
func (StochDParams) isSpec() {}

// VolumeParams: raw bar volume.
type VolumeParams struct{}

func (VolumeParams) Kind() Kind { return KindVolume }
func (VolumeParams) Shape() model.Shape { return model.ShapeHistogram }
func (VolumeParams) Columns() []string { return lineColumns }
func (VolumeParams) Validate() error { return nil }
func (VolumeParams) isSpec() {}

// OBVParams: on-balance volume.
type OBVParams struct{}

func (OBVParams) Kind() Kind { return KindOBV }
func (OBVParams) Shape() model.Shape { return model.ShapeLine }
func (OBVParams) Columns() []string { return lineColumns }
func (OBVParams) Validate() error { return nil }
func (OBVParams) isSpec() {}

// MomentumParams: close − close Period bars earlier.
type MomentumParams struct{ Period int }

func (MomentumParams) Kind() Kind { return KindMomentum }
func (MomentumParams) Shape() model.Shape { return model.ShapeLine }
func (MomentumParams) Columns() []string { return lineColumns }
func (p MomentumParams) Validate() error { return checkPeriod("period", p.Period) }
func (MomentumParams) isSpec() {}

// ROCParams: percent change over Period bars.
type ROCParams struct{ Period int }

func (ROCParams) Kind() Kind { return KindROC }
func (ROCParams) Shape() model.Shape { return model.ShapeLine }
func (ROCParams) Columns() []string { return lineColumns }
func (p ROCParams) Validate() error { return checkPeriod("period", p.Period) }
func (ROCParams) isSpec() {}

// DXParams: directional index from simple averages of TR, +DM and −DM.
// This is the unsmoothed DX, not Wilder's ADX.
type DXParams struct{ Period int }

func (DXParams) Kind() Kind { return KindDX }
func (DXParams) Shape() model.Shape { return model.ShapeLine }
func (DXParams) Columns() []string { return lineColumns }
func (p DXParams) Validate() error { return checkPeriod("period", p.Period) }
func (DXParams) isSpec() {}

// CCIParams: commodity channel index over typical prices.
type CCIParams struct{ Period int }

func (CCIParams) Kind() Kind { return KindCCI }
func (CCIParams) Shape() model.Shape { return model.ShapeLine }
func (CCIParams) Columns() []string { return lineColumns }
func (p CCIParams) Validate() error { return checkPeriod("period", p.Period) }
func (CCIParams) isSpec() {}

// PivotParams: classic floor pivots from the previous bar.
type PivotParams struct{}

func (PivotParams) Kind() Kind { return KindPivot }
func (PivotParams) Shape() model.Shape { return model.ShapeLevels }
func (PivotParams) Columns() []string { return pivotColumns }
func (PivotParams) Validate() error { return nil }
func (PivotParams) isSpec() {}

// FibonacciParams: retracement levels of the trailing Period-bar range.
type FibonacciParams struct{ Period int }

func (FibonacciParams) Kind() Kind { return KindFibonacci }
func (FibonacciParams) Shape() model.Shape { return model.ShapeLevels }
func (FibonacciParams) Columns() []string { return fibColumns }
func (p FibonacciParams) Validate() error { return checkPeriod("period", p.Period) }
func (FibonacciParams) isSpec() {}
