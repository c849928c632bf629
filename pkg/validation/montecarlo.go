package validation

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"gonum.org/v1/gonum/stat"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// ShuffleMethod selects how MonteCarloTest manufactures a null-world
// OHLCV series from the real one.
type ShuffleMethod string

const (
	ShuffleReturns ShuffleMethod = "returns"
	ShufflePrices  ShuffleMethod = "prices"
	ShuffleFull    ShuffleMethod = "full"
)

// MonteCarloTest runs nSimulations independent trials, each seeded
// 0..n-1, generating a synthetic OHLCV series per method and scoring it
// with metric. It compares the real series' metric against the
// synthetic distribution's z-score and empirical percentile, declaring
// success only if the real value strictly exceeds the 95th percentile.
func (s *Suite) MonteCarloTest(f *frame.Frame, method ShuffleMethod, nSimulations int, metric func(*frame.Frame) float64) (model.ValidationResult, error) {
	if nSimulations < 2 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "monte_carlo", Reason: "need at least 2 simulations"}
	}
	if f.Len() < 5 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "monte_carlo", Reason: "series too short to shuffle"}
	}

	real := metric(f)
	synthetic := make([]float64, 0, nSimulations)
	for seed := 0; seed < nSimulations; seed++ {
		rng := rand.New(rand.NewSource(int64(seed)))
		synth, err := generateSynthetic(f, method, rng)
		if err != nil {
			continue
		}
		synthetic = append(synthetic, metric(synth))
	}
	if len(synthetic) < 2 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "monte_carlo", Reason: "fewer than 2 trials produced a usable series"}
	}

	mean := stat.Mean(synthetic, nil)
	sd := math.Sqrt(stat.Variance(synthetic, nil))
	z := 0.0
	if sd > 0 {
		z = (real - mean) / sd
	}
	below := 0
	for _, v := range synthetic {
		if v <= real {
			below++
		}
	}
	pctile := float64(below) / float64(len(synthetic))
	cutoff95 := percentile95(synthetic)
	success := real > cutoff95

	return model.ValidationResult{
		ValidationType: "monte_carlo",
		Success:        success,
		TrainMetrics:   map[string]any{"real_metric": real},
		TestMetrics: map[string]any{
			"synthetic_mean":   mean,
			"synthetic_stddev": sd,
			"z_score":          z,
			"percentile":       pctile,
			"cutoff_p95":       cutoff95,
		},
		Metadata: map[string]any{
			"shuffle_method": string(method),
			"n_simulations":  len(synthetic),
		},
	}, nil
}

func percentile95(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(0.95, stat.Empirical, sorted, nil)
}

// generateSynthetic builds one null-world OHLCV frame from f, matching
// suite.py's _generate_synthetic_data for the given shuffle method.
func generateSynthetic(f *frame.Frame, method ShuffleMethod, rng *rand.Rand) (*frame.Frame, error) {
	switch method {
	case ShuffleReturns:
		return shuffleReturns(f, rng)
	case ShufflePrices:
		return shufflePrices(f, rng)
	case ShuffleFull:
		return gaussianRandomWalk(f, rng)
	default:
		return shuffleReturns(f, rng)
	}
}

// shuffleReturns permutes the log-returns between consecutive closes
// and reconstructs every OHLC column multiplicatively off the same
// permutation, preserving each bar's internal high/low/open ratios to
// its close.
func shuffleReturns(f *frame.Frame, rng *rand.Rand) (*frame.Frame, error) {
	n := f.Len()
	closes := f.CloseFloats()
	logReturns := make([]float64, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] <= 0 {
			logReturns[i-1] = 0
			continue
		}
		logReturns[i-1] = math.Log(closes[i] / closes[i-1])
	}
	perm := rng.Perm(len(logReturns))

	opens, highs, lows := f.OpenFloats(), f.HighFloats(), f.LowFloats()
	newClose := make([]float64, n)
	newOpen := make([]float64, n)
	newHigh := make([]float64, n)
	newLow := make([]float64, n)
	newClose[0] = closes[0]
	newOpen[0] = opens[0]
	newHigh[0] = highs[0]
	newLow[0] = lows[0]
	for i := 1; i < n; i++ {
		r := logReturns[perm[i-1]]
		newClose[i] = newClose[i-1] * math.Exp(r)
		ratioOpen, ratioHigh, ratioLow := 1.0, 1.0, 1.0
		if closes[i] != 0 {
			ratioOpen = opens[i] / closes[i]
			ratioHigh = highs[i] / closes[i]
			ratioLow = lows[i] / closes[i]
		}
		newOpen[i] = newClose[i] * ratioOpen
		newHigh[i] = newClose[i] * ratioHigh
		newLow[i] = newClose[i] * ratioLow
	}
	return floatsToFrame(f.Timestamps, newOpen, newHigh, newLow, newClose, f.VolumeFloats())
}

// shufflePrices independently permutes each OHLC column, destroying
// both serial structure and any cross-column (OHLC-consistency) link.
func shufflePrices(f *frame.Frame, rng *rand.Rand) (*frame.Frame, error) {
	n := f.Len()
	permute := func(xs []float64) []float64 {
		out := make([]float64, n)
		perm := rng.Perm(n)
		for i, p := range perm {
			out[i] = xs[p]
		}
		return out
	}
	open := permute(f.OpenFloats())
	high := permute(f.HighFloats())
	low := permute(f.LowFloats())
	closeCol := permute(f.CloseFloats())
	return floatsToFrame(f.Timestamps, open, high, low, closeCol, f.VolumeFloats())
}

// gaussianRandomWalk generates a fresh random walk matched to the
// historical return volatility, ignoring the real series' path.
func gaussianRandomWalk(f *frame.Frame, rng *rand.Rand) (*frame.Frame, error) {
	n := f.Len()
	closes := f.CloseFloats()
	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	sigma := 0.01
	if len(returns) > 1 {
		sigma = math.Sqrt(stat.Variance(returns, nil))
		if sigma == 0 {
			sigma = 0.01
		}
	}

	newClose := make([]float64, n)
	newOpen := make([]float64, n)
	newHigh := make([]float64, n)
	newLow := make([]float64, n)
	newClose[0] = closes[0]
	for i := 1; i < n; i++ {
		step := rng.NormFloat64() * sigma
		newClose[i] = newClose[i-1] * (1 + step)
	}
	for i := 0; i < n; i++ {
		newOpen[i] = newClose[i]
		spread := math.Abs(newClose[i]) * sigma * 0.5
		newHigh[i] = newClose[i] + spread
		newLow[i] = newClose[i] - spread
	}
	return floatsToFrame(f.Timestamps, newOpen, newHigh, newLow, newClose, f.VolumeFloats())
}

func floatsToFrame(timestamps []time.Time, open, high, low, close, volume []float64) (*frame.Frame, error) {
	toDecimals := func(xs []float64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(xs))
		for i, v := range xs {
			out[i] = decimal.NewFromFloat(v)
		}
		return out
	}
	var volDec []decimal.Decimal
	if volume != nil {
		volDec = toDecimals(volume)
	}
	return frame.New(timestamps, toDecimals(open), toDecimals(high), toDecimals(low), toDecimals(close), volDec)
}
