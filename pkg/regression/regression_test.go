package regression

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/pkg/model"
)

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
				"macd_amplitude":         float64(i%5) + 1,
				"hist_amplitude":         0.1 + float64(i%4)*0.05,
				"num_peaks":              int64(i % 4),
				"num_troughs":            int64(i % 3),
				"price_range_pct":        0.02 + float64(i%3)*0.01,
				"correlation_price_hist": 0.3,
				"drawdown_from_peak":     0.01 + float64(i%6)*0.01,
			},
		}
	}
	return zones
}

func TestAnalyzer_PredictZoneDuration(t *testing.T) {
	a := NewAnalyzer()
	result, err := a.PredictZoneDuration(linearZones(40), nil)
	require.NoError(t, err)
	assert.Equal(t, "duration", result.TargetVariable)
	assert.Greater(t, result.NObservations, 0)
	assert.Contains(t, result.Coefficients, "macd_amplitude")
	assert.Contains(t, result.Metadata, "vif")
	assert.Contains(t, result.Metadata, "durbin_watson")
}

func TestAnalyzer_DropsPredictorColumnAbsentFromWholeBatch(t *testing.T) {
	zones := linearZones(40)
	for _, z := range zones {
		delete(z.Features, "macd_amplitude")
		delete(z.Features, "hist_amplitude")
	}

	a := NewAnalyzer()
	result, err := a.PredictZoneDuration(zones, nil)
	require.NoError(t, err)
	assert.Equal(t, len(zones), result.NObservations, "zones should not be dropped just because macd_amplitude/hist_amplitude are unavailable")
	assert.NotContains(t, result.Coefficients, "macd_amplitude")
	assert.NotContains(t, result.Coefficients, "hist_amplitude")
	assert.Contains(t, result.Coefficients, "price_range_pct")
}

func TestAnalyzer_PredictPriceReturn(t *testing.T) {
	a := NewAnalyzer()
	result, err := a.PredictPriceReturn(linearZones(40), nil)
	require.NoError(t, err)
	assert.Equal(t, "price_return", result.TargetVariable)
	assert.Len(t, result.Predictions, result.NObservations)
}

func TestAnalyzer_TooFewObservationsErrors(t *testing.T) {
	a := NewAnalyzer()
	_, err := a.PredictZoneDuration(linearZones(3), nil)
	require.Error(t, err)
}

func TestRegressionResult_GetSignificantPredictors(t *testing.T) {
	a := NewAnalyzer()
	result, err := a.PredictZoneDuration(linearZones(40), nil)
	require.NoError(t, err)
	sig := result.GetSignificantPredictors(0.99)
	assert.NotEmpty(t, sig)
}
