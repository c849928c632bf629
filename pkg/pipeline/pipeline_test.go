package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/internal/config"
	"github.com/bquant-go/bquant/pkg/features"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/indicators"
	"github.com/bquant-go/bquant/pkg/zones"
)

func sineFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	ts := make([]time.Time, n)
	open := make([]decimal.Decimal, n)
	high := make([]decimal.Decimal, n)
	low := make([]decimal.Decimal, n)
	closeCol := make([]decimal.Decimal, n)
	volume := make([]decimal.Decimal, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = base.Add(time.Duration(i) * time.Hour)
		c := 100 + 5*math.Sin(float64(i)/10) + float64(i)*0.05
		closeCol[i] = decimal.NewFromFloat(c)
		open[i] = decimal.NewFromFloat(c)
		high[i] = decimal.NewFromFloat(c + 0.3)
		low[i] = decimal.NewFromFloat(c - 0.3)
		volume[i] = decimal.NewFromFloat(1000 + float64(i))
	}
	f, err := frame.New(ts, open, high, low, closeCol, volume)
	require.NoError(t, err)
	return f
}

func TestBuilder_EndToEnd(t *testing.T) {
	f := sineFrame(t, 300)

	result, err := New(f).
		WithIndicator(indicators.Spec{Source: indicators.SourceLibrary, Name: "macd"}).
		DetectZones(zones.NewZeroCrossing("macd_hist")).
		WithStrategies(
			features.NewSwingStrategy(features.SwingFindPeaks, features.DefaultSwingParams()),
			features.NewShapeStrategy(),
			features.NewVolumeStrategy(),
			features.NewVolatilityStrategy(),
			features.NewDivergenceStrategy(),
		).
		WithSwingScope(ScopeGlobal).
		WithAutoSwingThresholds(true).
		Analyze(true, 2).
		Build()

	require.NoError(t, err)
	require.NotEmpty(t, result.Zones)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "macd_hist", result.IndicatorContext.DetectionIndicator)

	for i, z := range result.Zones {
		assert.Equal(t, i, z.ZoneID)
		assert.Contains(t, z.Features, "duration")
		assert.Contains(t, z.Features, "price_return")
		assert.Contains(t, z.Features, "hist_skewness")
		if i > 0 {
			assert.GreaterOrEqual(t, z.StartIdx, result.Zones[i-1].EndIdx)
		}

		meta, ok := z.Features["metadata"].(map[string]any)
		require.True(t, ok, "zone %d: metadata must survive multi-strategy merge", i)
		_, hasSwingMeta := meta["swing"]
		assert.True(t, hasSwingMeta, "zone %d: swing strategy diagnostics dropped", i)
		_, hasVolumeMeta := meta["volume"]
		assert.True(t, hasVolumeMeta, "zone %d: volume strategy diagnostics dropped", i)
	}

	assert.NotEmpty(t, result.Statistics.CountByType)
	assert.Contains(t, result.Statistics.DurationDistribution, "overall")
}

func TestBuilder_PropagatesIndicatorError(t *testing.T) {
	f := sineFrame(t, 50)
	_, err := New(f).
		WithIndicator(indicators.Spec{Source: indicators.SourceLibrary, Name: "does_not_exist"}).
		DetectZones(zones.NewZeroCrossing("macd_hist")).
		Build()
	require.Error(t, err)
}

func TestBuilder_MissingDetectionStrategyErrors(t *testing.T) {
	f := sineFrame(t, 50)
	_, err := New(f).Build()
	require.Error(t, err)
}

func TestBuilder_WithConfig(t *testing.T) {
	f := sineFrame(t, 300)
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Clustering.Enabled = true
	cfg.Clustering.NClusters = 2
	cfg.Clustering.MinZones = 1
	cfg.Workers.PoolSize = 2

	result, err := New(f).
		WithConfig(cfg).
		WithIndicator(indicators.Spec{Source: indicators.SourceLibrary, Name: "macd"}).
		DetectZones(zones.NewZeroCrossing("macd_hist")).
		WithStrategies(features.NewShapeStrategy()).
		Build()

	require.NoError(t, err)
	require.NotEmpty(t, result.Zones)
	assert.NotNil(t, result.Statistics.ClusterSummary)
}

func TestBuilder_CacheReturnsSameResult(t *testing.T) {
	f := sineFrame(t, 150)
	b := New(f).
		WithIndicator(indicators.Spec{Source: indicators.SourceLibrary, Name: "macd"}).
		DetectZones(zones.NewZeroCrossing("macd_hist")).
		WithCache(true)

	r1, err := b.Build()
	require.NoError(t, err)
	r2, err := b.Build()
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}
