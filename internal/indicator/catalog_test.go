package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-systemv1/internal/model"
)

func TestDefaultCatalog_Contents(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	ids := make([]string, 0, c.Len())
	for _, d := range c.List() {
		ids = append(ids, d.ID)
	}
	for _, want := range []string{"SMA_20", "EMA_12", "BB", "MACD", "RSI", "STOCH", "VOLUME",
		"OBV", "MOMENTUM", "ROC", "ADX", "CCI", "PIVOT", "FIBONACCI"} {
		assert.Contains(t, ids, want)
	}
	assert.Equal(t, "SMA_20", ids[0], "registration order is preserved")

	bb, err := c.Get("BB")
	require.NoError(t, err)
	assert.Equal(t, model.ShapeBand, bb.Shape)
	assert.Equal(t, BBParams{Period: 20, Multiplier: 2}, bb.Spec)

	adx, err := c.Get("ADX")
	require.NoError(t, err)
	assert.Equal(t, KindDX, adx.Kind)
	assert.Equal(t, DXParams{Period: 14}, adx.Spec)

	vol, _ := c.Get("VOLUME")
	assert.Equal(t, model.ShapeHistogram, vol.Shape)
}

func TestCatalog_UnknownID(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = c.Get("NOPE")
	var unk *UnknownIndicatorError
	require.True(t, errors.As(err, &unk))
	assert.Equal(t, "NOPE", unk.ID)
}

func TestCatalog_DuplicateRejected(t *testing.T) {
	d, err := NewDefinition("X", "", KindSMA, map[string]float64{ParamPeriod: 3})
	require.NoError(t, err)
	assert.Equal(t, "X", d.DisplayName)

	_, err = NewCatalog(d, d)
	assert.Error(t, err)
}

func TestCatalog_ListIsCopy(t *testing.T) {
	c, _ := DefaultCatalog()
	l := c.List()
	l[0].ID = "MUTATED"
	d, err := c.Get("SMA_20")
	require.NoError(t, err)
	assert.Equal(t, "SMA_20", d.ID)
}

func TestNewDefinition_Validation(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		params map[string]float64
	}{
		{"missing period", KindSMA, nil},
		{"zero period", KindRSI, map[string]float64{ParamPeriod: 0}},
		{"fractional period", KindEMA, map[string]float64{ParamPeriod: 2.5}},
		{"slow not above fast", KindMACD, map[string]float64{ParamFastPeriod: 26, ParamSlowPeriod: 12, ParamSignalPeriod: 9}},
		{"negative multiplier", KindBB, map[string]float64{ParamPeriod: 20, ParamStdDevMult: -1}},
		{"infinite multiplier", KindBB, map[string]float64{ParamPeriod: 20, ParamStdDevMult: math.Inf(1)}},
		{"huge period", KindCCI, map[string]float64{ParamPeriod: 1e15}},
		{"huge stochastic window", KindStoch, map[string]float64{ParamKPeriod: 1e15, ParamDPeriod: 3}},
		{"period above bound", KindFibonacci, map[string]float64{ParamPeriod: MaxPeriod + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDefinition("T", "", tc.kind, tc.params)
			assert.Error(t, err)
		})
	}
}

func TestNewDefinition_ParamsCopied(t *testing.T) {
	p := map[string]float64{ParamPeriod: 5}
	d, err := NewDefinition("SMA_5", "", KindSMA, p)
	require.NoError(t, err)
	p[ParamPeriod] = 99
	assert.Equal(t, 5.0, d.Params[ParamPeriod])
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("adx")
	require.NoError(t, err)
	assert.Equal(t, KindDX, k)

	k, err = ParseKind(" stoch_d ")
	require.NoError(t, err)
	assert.Equal(t, KindStochD, k)

	_, err = ParseKind("WMA")
	assert.Error(t, err)
}

func TestParseIndicatorSpecs(t *testing.T) {
	defs := ParseIndicatorSpecs("SMA:200, ema:9, bogus, RSI:x, WMA:5, CCI:14")
	require.Len(t, defs, 3)
	assert.Equal(t, "SMA_200", defs[0].ID)
	assert.Equal(t, SMAParams{Period: 200}, defs[0].Spec)
	assert.Equal(t, "EMA_9", defs[1].ID)
	assert.Equal(t, "CCI_14", defs[2].ID)

	assert.Empty(t, ParseIndicatorSpecs(""))

	c, err := DefaultCatalog(defs...)
	require.NoError(t, err)
	_, err = c.Get("SMA_200")
	assert.NoError(t, err)
}
