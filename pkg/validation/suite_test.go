package validation

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

func linearZones(n int) []*model.Zone {
	zones := make([]*model.Zone, n)
	for i := 0; i < n; i++ {
		slope := float64(i%7) * 0.1
		duration := 20 + int(slope*50)
		start := 100.0
		end := start * (1 + slope*0.01)
		zones[i] = &model.Zone{
			ZoneID:     i,
			Type:       model.ZoneBull,
			Duration:   duration,
			StartPrice: decimal.NewFromFloat(start),
			EndPrice:   decimal.NewFromFloat(end),
			Features: map[string]model.Scalar{
				"hist_slope":             slope,
				"volatility_score":       float64(i%5) + 1,
				"num_swings":             int64(i % 4),
				"price_range_pct":        0.02 + float64(i%3)*0.01,
				"correlation_price_hist": 0.3,
			},
		}
	}
	return zones
}

func TestSuite_OutOfSampleTest(t *testing.T) {
	s := NewSuite()
	result, err := s.OutOfSampleTest(linearZones(40), "duration", nil, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "out_of_sample", result.ValidationType)
	assert.NotNil(t, result.DegradationPct)
	assert.Contains(t, result.TestMetrics, "r_squared")
}

func TestSuite_OutOfSampleTest_TooFewZones(t *testing.T) {
	s := NewSuite()
	_, err := s.OutOfSampleTest(linearZones(5), "duration", nil, 0.7)
	require.Error(t, err)
}

func TestSuite_WalkForwardTest(t *testing.T) {
	s := NewSuite()
	result, err := s.WalkForwardTest(linearZones(60), "duration", nil, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, "walk_forward", result.ValidationType)
	require.NotNil(t, result.Iterations)
	assert.Greater(t, *result.Iterations, 0)
}

func TestSuite_SensitivityAnalysis(t *testing.T) {
	s := NewSuite()
	grid := []float64{0.01, 0.02, 0.03, 0.04}
	result, err := s.SensitivityAnalysis(grid, func(p float64) ([]*model.Zone, error) {
		return linearZones(10), nil
	}, func(zs []*model.Zone) float64 {
		total := 0
		for _, z := range zs {
			total += z.Duration
		}
		return float64(total) / float64(len(zs))
	})
	require.NoError(t, err)
	assert.Equal(t, "sensitivity_analysis", result.ValidationType)
	assert.True(t, result.Success, "identical zones across the grid should read as stable")
}

func TestSuite_MonteCarloTest_ReturnsShuffle(t *testing.T) {
	s := NewSuite()
	f := sineFrame(t, 200)
	metric := func(fr *frame.Frame) float64 {
		closes := fr.CloseFloats()
		return closes[len(closes)-1] - closes[0]
	}
	result, err := s.MonteCarloTest(f, ShuffleReturns, 30, metric)
	require.NoError(t, err)
	assert.Equal(t, "monte_carlo", result.ValidationType)
	assert.Contains(t, result.TestMetrics, "z_score")
	assert.Contains(t, result.TestMetrics, "percentile")
}

func TestSuite_MonteCarloTest_PricesAndFullShuffles(t *testing.T) {
	s := NewSuite()
	f := sineFrame(t, 120)
	metric := func(fr *frame.Frame) float64 {
		closes := fr.CloseFloats()
		var sum float64
		for _, c := range closes {
			sum += c
		}
		return sum / float64(len(closes))
	}
	for _, method := range []ShuffleMethod{ShufflePrices, ShuffleFull} {
		result, err := s.MonteCarloTest(f, method, 25, metric)
		require.NoError(t, err)
		assert.Equal(t, string(method), result.Metadata["shuffle_method"])
	}
}

func TestSuite_MonteCarloTest_TooShort(t *testing.T) {
	s := NewSuite()
	f := sineFrame(t, 3)
	_, err := s.MonteCarloTest(f, ShuffleReturns, 10, func(fr *frame.Frame) float64 { return 0 })
	require.Error(t, err)
}
