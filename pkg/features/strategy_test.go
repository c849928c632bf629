package features

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

func buildZone(t *testing.T, n int, closeFn func(i int) float64, withVolume bool) *model.Zone {
	t.Helper()
	ts := make([]time.Time, n)
	open := make([]decimal.Decimal, n)
	high := make([]decimal.Decimal, n)
	low := make([]decimal.Decimal, n)
	closeCol := make([]decimal.Decimal, n)
	var volume []decimal.Decimal
	if withVolume {
		volume = make([]decimal.Decimal, n)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = base.Add(time.Duration(i) * time.Hour)
		c := closeFn(i)
		closeCol[i] = decimal.NewFromFloat(c)
		open[i] = decimal.NewFromFloat(c)
		high[i] = decimal.NewFromFloat(c + 0.5)
		low[i] = decimal.NewFromFloat(c - 0.5)
		if withVolume {
			volume[i] = decimal.NewFromFloat(1000 + float64(i)*10)
		}
	}
	f, err := frame.New(ts, open, high, low, closeCol, volume)
	require.NoError(t, err)

	macd := make([]float64, n)
	signal := make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = math.Sin(float64(i) / 5)
		signal[i] = math.Sin(float64(i)/5) * 0.8
	}
	f, err = f.AppendColumn("macd_hist", macd)
	require.NoError(t, err)
	f, err = f.AppendColumn("macd_signal_line", signal)
	require.NoError(t, err)

	return &model.Zone{
		ZoneID:     0,
		Type:       model.ZoneBull,
		StartIdx:   0,
		EndIdx:     n,
		StartPrice: closeCol[0],
		EndPrice:   closeCol[n-1],
		Duration:   n,
		Data:       f,
		Features:   map[string]model.Scalar{},
		IndicatorContext: model.IndicatorContext{
			DetectionIndicator: "macd_hist",
			DetectionStrategy:  "zero_crossing",
			SignalLine:         "macd_signal_line",
		},
	}
}

func TestShapeStrategy_EmitsMACDAliases(t *testing.T) {
	zone := buildZone(t, 60, func(i int) float64 { return 100 + float64(i)*0.2 }, false)
	s := NewShapeStrategy()
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	assert.Contains(t, out, "hist_amplitude")
	assert.Contains(t, out, "macd_amplitude")
	assert.Contains(t, out, "signal_amplitude")
}

func TestSwingStrategy_PerZoneScope(t *testing.T) {
	zone := buildZone(t, 80, func(i int) float64 { return 100 + 10*math.Sin(float64(i)/8) }, false)
	s := NewSwingStrategy(SwingFindPeaks, DefaultSwingParams())
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	meta, ok := out["metadata"].(map[string]any)
	require.True(t, ok)
	swingMeta, ok := meta["swing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "per_zone", swingMeta["scope"])
}

func TestSwingStrategy_GlobalScopeUsesAttachedPivots(t *testing.T) {
	zone := buildZone(t, 80, func(i int) float64 { return 100 + 10*math.Sin(float64(i)/8) }, false)
	zone.SwingContext = []model.SwingPoint{
		{Index: 5, Price: 90, Type: model.SwingTrough},
		{Index: 20, Price: 120, Type: model.SwingPeak},
	}
	s := NewSwingStrategy(SwingFindPeaks, DefaultSwingParams())
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	meta := out["metadata"].(map[string]any)
	swingMeta := meta["swing"].(map[string]any)
	assert.Equal(t, "global", swingMeta["scope"])
	assert.Equal(t, int64(2), out["num_swings"])
}

func TestDivergenceStrategy_ReportsDivergenceTypeKey(t *testing.T) {
	n := 60
	zone := buildZone(t, n, func(i int) float64 {
		if i < n/2 {
			return 100 + float64(i)*0.5
		}
		return 100 + float64(n/2)*0.5 + float64(i-n/2)*1.0
	}, false)

	macd := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			macd[i] = float64(i) * 0.2
		} else {
			macd[i] = float64(n/2)*0.2 - float64(i-n/2)*0.1
		}
	}
	f, err := zone.Data.AppendColumn("macd_hist", macd)
	require.NoError(t, err)
	zone.Data = f

	s := NewDivergenceStrategy()
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	assert.Contains(t, out, "divergence_type")
}

func TestVolumeStrategy_SkipsWithoutVolume(t *testing.T) {
	zone := buildZone(t, 40, func(i int) float64 { return 100 + float64(i) }, false)
	s := NewVolumeStrategy()
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	meta := out["metadata"].(map[string]any)
	volumeMeta := meta["volume"].(map[string]any)
	assert.Equal(t, true, volumeMeta["skipped"])
}

func TestVolumeStrategy_ComputesWhenPresent(t *testing.T) {
	zone := buildZone(t, 40, func(i int) float64 { return 100 + float64(i) }, true)
	s := NewVolumeStrategy()
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	assert.Contains(t, out, "avg_volume")
	assert.Equal(t, "rising", out["volume_trend"])
}

func TestVolatilityStrategy_ScoresWithinRange(t *testing.T) {
	zone := buildZone(t, 50, func(i int) float64 { return 100 + 5*math.Sin(float64(i)/3) }, false)
	s := NewVolatilityStrategy()
	out, err := s.Compute(zone, zone.Data)
	require.NoError(t, err)
	score := out["volatility_score"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 10.0)
	assert.Contains(t, out, "volatility_regime")
}
