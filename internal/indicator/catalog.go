package indicator

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"charting-systemv1/internal/model"
)

// Definition is one catalog entry. Spec is derived from Kind and Params when
// the definition is built and never changes afterwards.
type Definition struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"name"`
	Kind        Kind               `json:"kind"`
	Shape       model.Shape        `json:"shape"`
	Params      map[string]float64 `json:"params,omitempty"`
	Spec        Spec               `json:"-"`
}

// UnknownIndicatorError is returned for ids absent from the catalog.
type UnknownIndicatorError struct {
	ID string
}

func (e *UnknownIndicatorError) Error() string {
	return fmt.Sprintf("unknown indicator %q", e.ID)
}

// Parameter names accepted in Definition.Params.
const (
	ParamPeriod       = "period"
	ParamStdDevMult   = "stdDevMultiplier"
	ParamFastPeriod   = "fastPeriod"
	ParamSlowPeriod   = "slowPeriod"
	ParamSignalPeriod = "signalPeriod"
	ParamKPeriod      = "kPeriod"
	ParamDPeriod      = "dPeriod"
)

// NewDefinition validates params for kind and builds the definition.
func NewDefinition(id, name string, kind Kind, params map[string]float64) (Definition, error) {
	if id == "" {
		return Definition{}, fmt.Errorf("indicator definition: empty id")
	}
	spec, err := buildSpec(kind, params)
	if err != nil {
		return Definition{}, fmt.Errorf("indicator %s: %w", id, err)
	}
	if err := spec.Validate(); err != nil {
		return Definition{}, fmt.Errorf("indicator %s: %w", id, err)
	}
	if name == "" {
		name = id
	}
	cp := make(map[string]float64, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Definition{ID: id, DisplayName: name, Kind: kind, Shape: spec.Shape(), Params: cp, Spec: spec}, nil
}

func buildSpec(kind Kind, params map[string]float64) (Spec, error) {
	var firstErr error
	intParam := func(key string) int {
		v, ok := params[key]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("missing parameter %q", key)
			}
			return 0
		}
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			if firstErr == nil {
				firstErr = fmt.Errorf("parameter %q must be an integer, got %v", key, v)
			}
			return 0
		}
		if math.Abs(v) > MaxPeriod {
			if firstErr == nil {
				firstErr = fmt.Errorf("parameter %q must not exceed %d, got %v", key, MaxPeriod, v)
			}
			return 0
		}
		return int(v)
	}

	var spec Spec
	switch kind {
	case KindSMA:
		spec = SMAParams{Period: intParam(ParamPeriod)}
	case KindEMA:
		spec = EMAParams{Period: intParam(ParamPeriod)}
	case KindBB:
		mult, ok := params[ParamStdDevMult]
		if !ok {
			mult = 2
		}
		spec = BBParams{Period: intParam(ParamPeriod), Multiplier: mult}
	case KindMACD, KindMACDSignal, KindMACDHist:
		series := MACDLine
		if kind == KindMACDSignal {
			series = MACDSignalLine
		} else if kind == KindMACDHist {
			series = MACDHistogram
		}
		spec = MACDParams{
			Fast:   intParam(ParamFastPeriod),
			Slow:   intParam(ParamSlowPeriod),
			Signal: intParam(ParamSignalPeriod),
			Series: series,
		}
	case KindRSI:
		spec = RSIParams{Period: intParam(ParamPeriod)}
	case KindStoch:
		spec = StochParams{KPeriod: intParam(ParamKPeriod), DPeriod: intParam(ParamDPeriod)}
	case KindStochD:
		spec = StochDParams{KPeriod: intParam(ParamKPeriod), DPeriod: intParam(ParamDPeriod)}
	case KindVolume:
		spec = VolumeParams{}
	case KindOBV:
		spec = OBVParams{}
	case KindMomentum:
		spec = MomentumParams{Period: intParam(ParamPeriod)}
	case KindROC:
		spec = ROCParams{Period: intParam(ParamPeriod)}
	case KindDX:
		spec = DXParams{Period: intParam(ParamPeriod)}
	case KindCCI:
		spec = CCIParams{Period: intParam(ParamPeriod)}
	case KindPivot:
		spec = PivotParams{}
	case KindFibonacci:
		spec = FibonacciParams{Period: intParam(ParamPeriod)}
	default:
		return nil, fmt.Errorf("unsupported kind %d", kind)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return spec, nil
}

// Catalog is the immutable registry of available indicators.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog builds a catalog from defs, preserving their order. Duplicate
// ids are an error.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make([]Definition, 0, len(defs)), byID: make(map[string]int, len(defs))}
	for _, d := range defs {
		if d.Spec == nil {
			return nil, fmt.Errorf("indicator %s: definition has no spec", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate indicator id %q", d.ID)
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, error) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, &UnknownIndicatorError{ID: id}
	}
	return c.defs[i], nil
}

// List returns all definitions in registration order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// DefaultDefinitions is the built-in indicator set of the chart.
func DefaultDefinitions() []Definition {
	type entry struct {
		id, name string
		kind     Kind
		params   map[string]float64
	}
	macd := map[string]float64{ParamFastPeriod: 12, ParamSlowPeriod: 26, ParamSignalPeriod: 9}
	stoch := map[string]float64{ParamKPeriod: 14, ParamDPeriod: 3}
	entries := []entry{
		{"SMA_20", "SMA (20)", KindSMA, map[string]float64{ParamPeriod: 20}},
		{"SMA_50", "SMA (50)", KindSMA, map[string]float64{ParamPeriod: 50}},
		{"EMA_12", "EMA (12)", KindEMA, map[string]float64{ParamPeriod: 12}},
		{"EMA_26", "EMA (26)", KindEMA, map[string]float64{ParamPeriod: 26}},
		{"BB", "Bollinger Bands (20, 2)", KindBB, map[string]float64{ParamPeriod: 20, ParamStdDevMult: 2}},
		{"MACD", "MACD (12, 26, 9)", KindMACD, macd},
		{"MACD_SIGNAL", "MACD Signal (12, 26, 9)", KindMACDSignal, macd},
		{"MACD_HIST", "MACD Histogram (12, 26, 9)", KindMACDHist, macd},
		{"RSI", "RSI (14)", KindRSI, map[string]float64{ParamPeriod: 14}},
		{"STOCH", "Stochastic %K (14)", KindStoch, stoch},
		{"STOCH_D", "Stochastic %D (14, 3)", KindStochD, stoch},
		{"VOLUME", "Volume", KindVolume, nil},
		{"OBV", "On-Balance Volume", KindOBV, nil},
		{"MOMENTUM", "Momentum (10)", KindMomentum, map[string]float64{ParamPeriod: 10}},
		{"ROC", "Rate of Change (12)", KindROC, map[string]float64{ParamPeriod: 12}},
		{"ADX", "DX (14, unsmoothed ADX)", KindDX, map[string]float64{ParamPeriod: 14}},
		{"CCI", "CCI (20)", KindCCI, map[string]float64{ParamPeriod: 20}},
		{"PIVOT", "Pivot Points", KindPivot, nil},
		{"FIBONACCI", "Fibonacci Retracement (100)", KindFibonacci, map[string]float64{ParamPeriod: 100}},
	}

	defs := make([]Definition, 0, len(entries))
	for _, e := range entries {
		d, err := NewDefinition(e.id, e.name, e.kind, e.params)
		if err != nil {
			panic(err) // built-ins are static
		}
		defs = append(defs, d)
	}
	return defs
}

// DefaultCatalog returns a catalog of DefaultDefinitions followed by extra.
func DefaultCatalog(extra ...Definition) (*Catalog, error) {
	return NewCatalog(append(DefaultDefinitions(), extra...)...)
}

// ParseIndicatorSpecs parses "KIND:PERIOD,..." into definitions with ids
// like "SMA_200". Entries that do not parse are logged and skipped.
// Example: "SMA:9,SMA:200,EMA:9,RSI:21"
func ParseIndicatorSpecs(s string) []Definition {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var defs []Definition
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			slog.Warn("skipping invalid indicator spec", "spec", part)
			continue
		}
		kind, err := ParseKind(tokens[0])
		if err != nil {
			slog.Warn("skipping invalid indicator spec", "spec", part, "error", err)
			continue
		}
		period, err := strconv.Atoi(strings.TrimSpace(tokens[1]))
		if err != nil || period <= 0 {
			slog.Warn("skipping invalid indicator spec", "spec", part)
			continue
		}
		id := kind.String() + "_" + strconv.Itoa(period)
		d, err := NewDefinition(id, kind.String()+" ("+strconv.Itoa(period)+")", kind, map[string]float64{ParamPeriod: float64(period)})
		if err != nil {
			slog.Warn("skipping invalid indicator spec", "spec", part, "error", err)
			continue
		}
		defs = append(defs, d)
	}
	return defs
}
