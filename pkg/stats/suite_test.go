package stats

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/pkg/model"
)

func decimalFromFloat(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func syntheticRecords(n int) []model.FeatureRecord {
	out := make([]model.FeatureRecord, n)
	for i := 0; i < n; i++ {
		t := model.ZoneBull
		if i%2 == 1 {
			t = model.ZoneBear
		}
		duration := 10 + i*2
		out[i] = model.FeatureRecord{
			ZoneID:      i,
			Type:        t,
			Duration:    duration,
			PriceReturn: float64(duration) * 0.01,
			StartPrice:  100 + float64(i),
			EndPrice:    100 + float64(i) + float64(duration)*0.01,
			Features: map[string]model.Scalar{
				"hist_slope":              float64(duration) * 0.001,
				"volatility_score":        float64(i%10) + 1,
				"drawdown_from_peak":      float64(i%5) * 0.03,
				"correlation_price_hist":  0.5 - float64(i%3)*0.1,
			},
		}
	}
	return out
}

func TestSuite_RunAll_NoPanicsAndPopulatesEveryTest(t *testing.T) {
	s := NewSuite(0.05)
	zones := recordsToZones(syntheticRecords(30))
	results := s.RunAll(zones)

	for _, name := range testNames {
		res, ok := results[name]
		require.True(t, ok, "missing test %s", name)
		if res.Error != "" {
			t.Logf("test %s reported error: %s", name, res.Error)
			continue
		}
		assert.GreaterOrEqual(t, res.PValue, 0.0)
		assert.LessOrEqual(t, res.PValue, 1.0)
	}
}

func TestSuite_RunAll_ExcludesSupportResistance(t *testing.T) {
	s := NewSuite(0.05)
	zones := recordsToZones(syntheticRecords(30))
	results := s.RunAll(zones)
	_, ok := results["support_resistance"]
	assert.False(t, ok)
}

func TestSupportResistanceTest_RunsIndependently(t *testing.T) {
	s := NewSuite(0.05)
	records := priceLevelRecords()
	res, err := s.SupportResistanceTest(records, nil, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "support_resistance", res.Hypothesis)
	assert.Contains(t, res.Metadata, "price_levels")
	assert.Contains(t, res.Metadata, "is_parametric")
}

// priceLevelRecords builds zones with start prices clustered tightly
// around 100 and 150 (five touches each, well within a 1% tolerance)
// plus durations that differ sharply between near-level and
// far-from-level zones, so both IdentifyPriceLevels and
// SupportResistanceTest have an unambiguous signal to recover.
func priceLevelRecords() []model.FeatureRecord {
	var out []model.FeatureRecord
	id := 0
	addZone := func(start, end float64, duration int) {
		out = append(out, model.FeatureRecord{
			ZoneID:      id,
			Type:        model.ZoneBull,
			Duration:    duration,
			PriceReturn: (end - start) / start,
			StartPrice:  start,
			EndPrice:    end,
		})
		id++
	}
	for i := 0; i < 5; i++ {
		addZone(100+float64(i)*0.1, 100.05, 40+i)
	}
	for i := 0; i < 5; i++ {
		addZone(150+float64(i)*0.1, 150.05, 45+i)
	}
	for i := 0; i < 8; i++ {
		// Widely separated, and each zone's own start/end differ by far
		// more than the clustering tolerance, so none of these touches
		// ever group into a second-level cluster of their own.
		start := 300 + float64(i)*50
		addZone(start, start+15, 5+i)
	}
	return out
}

func TestIdentifyPriceLevels_ClustersWithinTolerance(t *testing.T) {
	levels := IdentifyPriceLevels(priceLevelRecords(), 0, 0)
	require.Len(t, levels, 2)
	assert.InDelta(t, 100, levels[0], 1)
	assert.InDelta(t, 150, levels[1], 1)
}

func TestIdentifyPriceLevels_BelowMinTouchesDropped(t *testing.T) {
	records := []model.FeatureRecord{
		{StartPrice: 100, EndPrice: 100.01},
		{StartPrice: 200, EndPrice: 200.02},
	}
	levels := IdentifyPriceLevels(records, 3, 1)
	assert.Empty(t, levels)
}

func TestSupportResistanceTest_PartitionsByProximityAndDuration(t *testing.T) {
	s := NewSuite(0.05)
	records := priceLevelRecords()
	res, err := s.SupportResistanceTest(records, nil, 0.5)
	require.NoError(t, err)
	assert.Greater(t, res.Metadata["near_level_count"], 0)
	assert.Greater(t, res.Metadata["far_from_level_count"], 0)
	// Zones near the 100/150 levels were built with longer durations
	// than the scattered far-from-level zones.
	assert.Greater(t, res.Metadata["near_level_mean_duration"], res.Metadata["far_from_level_mean_duration"])
}

func TestCorrelationDrawdownTest_FallsBackToMedianSplit(t *testing.T) {
	s := NewSuite(0.05)
	records := make([]model.FeatureRecord, 20)
	for i := range records {
		records[i] = model.FeatureRecord{
			Features: map[string]model.Scalar{
				"drawdown_from_peak":     0.05 + float64(i)*0.001, // clusters mid-range, no zones hit the fixed 10%/2% bands
				"correlation_price_hist": float64(i%2) - 0.5,
			},
		}
	}
	res, err := s.CorrelationDrawdownTest(records)
	require.NoError(t, err)
	assert.Equal(t, true, res.Metadata["used_median_fallback"])
}

func recordsToZones(records []model.FeatureRecord) []*model.Zone {
	zones := make([]*model.Zone, len(records))
	for i, r := range records {
		zones[i] = &model.Zone{
			ZoneID:   r.ZoneID,
			Type:     r.Type,
			Duration: r.Duration,
			Features: r.Features,
		}
		zones[i].StartPrice = decimalFromFloat(r.StartPrice)
		zones[i].EndPrice = decimalFromFloat(r.EndPrice)
	}
	return zones
}
