package features

import (
	"math"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// VolumeStrategy characterizes trading-volume behaviour inside a zone.
// Volume is optional on a Frame; when absent the strategy reports a
// skip marker instead of failing the whole analysis.
type VolumeStrategy struct{}

func NewVolumeStrategy() *VolumeStrategy { return &VolumeStrategy{} }

func (s *VolumeStrategy) Key() string { return "volume" }

func (s *VolumeStrategy) Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error) {
	if !zone.Data.HasVolume() {
		return map[string]model.Scalar{
			"metadata": map[string]any{s.Key(): map[string]any{"skipped": true, "reason": "no volume column"}},
		}, nil
	}

	volume := dropNaN(zone.Data.VolumeFloats())
	if len(volume) == 0 {
		return map[string]model.Scalar{
			"metadata": map[string]any{s.Key(): map[string]any{"skipped": true, "reason": "no volume column"}},
		}, nil
	}

	avgVolume := mean(volume)
	trend := olsSlope(indexSeries(len(volume)), volume)
	trendLabel := "flat"
	if avgVolume != 0 {
		relSlope := trend / avgVolume
		switch {
		case relSlope > 0.02:
			trendLabel = "rising"
		case relSlope < -0.02:
			trendLabel = "falling"
		}
	}

	corr := 0.0
	if primary, ok := zone.Data.Column(zone.IndicatorContext.DetectionIndicator); ok {
		rawVolume := zone.Data.VolumeFloats()
		vs, is := alignPairs(rawVolume, primary)
		corr = pearson(vs, is)
	}

	return map[string]model.Scalar{
		"avg_volume":            avgVolume,
		"volume_trend":          trendLabel,
		"volume_trend_slope":    trend,
		"volume_indicator_corr": corr,
		"metadata":              map[string]any{s.Key(): map[string]any{"skipped": false}},
	}, nil
}

func indexSeries(n int) []float64 {
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i)
	}
	return idx
}

// alignPairs zips two equal-length series, dropping any index where
// either value is NaN.
func alignPairs(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	outA := make([]float64, 0, n)
	outB := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		outA = append(outA, a[i])
		outB = append(outB, b[i])
	}
	return outA, outB
}
