package features

import (
	"math"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// VolatilityStrategy scores how turbulent price action was inside a
// zone, independent of which indicator triggered detection.
type VolatilityStrategy struct{}

func NewVolatilityStrategy() *VolatilityStrategy { return &VolatilityStrategy{} }

func (s *VolatilityStrategy) Key() string { return "volatility" }

func (s *VolatilityStrategy) Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error) {
	closePrices := zone.Data.CloseFloats()
	high := zone.Data.HighFloats()
	low := zone.Data.LowFloats()

	returns := pctReturns(closePrices)
	retStd := stddev(returns)

	atr := averageTrueRange(high, low, closePrices)
	avgPrice := mean(dropNaN(closePrices))
	atrPct := 0.0
	if avgPrice != 0 {
		atrPct = atr / avgPrice
	}

	bandWidthPct := bollingerWidthPct(closePrices)

	totalReturn := 0.0
	if len(closePrices) > 1 && closePrices[0] != 0 {
		totalReturn = (closePrices[len(closePrices)-1] - closePrices[0]) / math.Abs(closePrices[0])
	}
	atrNormalizedReturn := 0.0
	if atrPct != 0 {
		atrNormalizedReturn = totalReturn / atrPct
	}

	// Heuristic 0-10 score: realized-volatility percentage mapped onto a
	// scale where 5% per-bar stddev already saturates at 10.
	score := math.Min(10, (retStd/0.05)*10)
	regime := "normal"
	switch {
	case score < 3:
		regime = "low"
	case score > 7:
		regime = "high"
	}

	return map[string]model.Scalar{
		"volatility_score":      score,
		"volatility_regime":     regime,
		"bollinger_width_pct":   bandWidthPct,
		"atr_normalized_return": atrNormalizedReturn,
		"return_stddev":         retStd,
		"atr_pct":               atrPct,
	}, nil
}

func pctReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if math.IsNaN(prices[i]) || math.IsNaN(prices[i-1]) || prices[i-1] == 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/math.Abs(prices[i-1]))
	}
	return out
}

func averageTrueRange(high, low, closePrices []float64) float64 {
	n := len(closePrices)
	if n == 0 {
		return 0
	}
	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		if math.IsNaN(high[i]) || math.IsNaN(low[i]) {
			continue
		}
		tr := high[i] - low[i]
		if i > 0 && !math.IsNaN(closePrices[i-1]) {
			tr = math.Max(tr, math.Max(math.Abs(high[i]-closePrices[i-1]), math.Abs(low[i]-closePrices[i-1])))
		}
		sum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func bollingerWidthPct(closePrices []float64) float64 {
	series := dropNaN(closePrices)
	if len(series) < 2 {
		return 0
	}
	m := mean(series)
	sd := stddev(series)
	if m == 0 {
		return 0
	}
	upper := m + 2*sd
	lower := m - 2*sd
	return (upper - lower) / math.Abs(m)
}
