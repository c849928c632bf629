package features

import (
	"math"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// DivergenceType enumerates the classic divergence classification.
type DivergenceType string

const (
	DivergenceRegularBull DivergenceType = "regular_bull"
	DivergenceRegularBear DivergenceType = "regular_bear"
	DivergenceHiddenBull  DivergenceType = "hidden_bull"
	DivergenceHiddenBear  DivergenceType = "hidden_bear"
	DivergenceNone        DivergenceType = "none"
)

// DivergenceStrategy compares price extrema against the primary
// indicator's extrema inside a zone to flag classic divergence.
type DivergenceStrategy struct{}

func NewDivergenceStrategy() *DivergenceStrategy { return &DivergenceStrategy{} }

func (s *DivergenceStrategy) Key() string { return "divergence" }

func (s *DivergenceStrategy) Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error) {
	out := map[string]model.Scalar{
		"has_classic_divergence": false,
		"divergence_count":       int64(0),
		"divergence_type":        string(DivergenceNone),
		"divergence_strength":    0.0,
	}

	primary, ok := zone.Data.Column(zone.IndicatorContext.DetectionIndicator)
	if !ok {
		return out, nil
	}
	price := zone.Data.CloseFloats()

	pivotType := model.SwingPeak
	if zone.Type == model.ZoneBear {
		pivotType = model.SwingTrough
	}
	pricePivots := extremaOfType(price, pivotType)
	indPivots := extremaOfType(primary, pivotType)
	if len(pricePivots) < 2 || len(indPivots) < 2 {
		return out, nil
	}

	p1, p2 := pricePivots[len(pricePivots)-2], pricePivots[len(pricePivots)-1]
	i1, i2 := indPivots[len(indPivots)-2], indPivots[len(indPivots)-1]

	priceUp := p2.Price > p1.Price
	indUp := i2.Price > i1.Price

	var dtype DivergenceType
	switch {
	case zone.Type == model.ZoneBull && priceUp && !indUp:
		dtype = DivergenceRegularBear
	case zone.Type == model.ZoneBull && !priceUp && indUp:
		dtype = DivergenceHiddenBull
	case zone.Type == model.ZoneBear && !priceUp && indUp:
		dtype = DivergenceRegularBull
	case zone.Type == model.ZoneBear && priceUp && !indUp:
		dtype = DivergenceHiddenBear
	default:
		dtype = DivergenceNone
	}

	if dtype != DivergenceNone {
		priceChange := relativeChange(p1.Price, p2.Price)
		indChange := relativeChange(i1.Price, i2.Price)
		strength := math.Abs(indChange - priceChange)
		out["has_classic_divergence"] = true
		out["divergence_count"] = int64(1)
		out["divergence_type"] = string(dtype)
		out["divergence_strength"] = strength
	}

	return out, nil
}

func extremaOfType(values []float64, t model.SwingType) []model.SwingPoint {
	pivots := findPeaks(values, 2, 0)
	out := make([]model.SwingPoint, 0, len(pivots))
	for _, p := range pivots {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func relativeChange(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return (b - a) / math.Abs(a)
}
