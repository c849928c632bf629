package indicators

import (
	"fmt"
	"math"

	"github.com/bquant-go/bquant/pkg/frame"
)

// registerCustomIndicators wires the "custom" source to first-party,
// dependency-free implementations. SMA, EMA, RSI, MACD, Bollinger and
// ATR use the same output column names as their library counterparts;
// VWAP exists only here, and Stochastic and OBV only in the library
// source.
func registerCustomIndicators(r *Registry) {
	r.Register(SourceCustom, "sma", customSMA)
	r.Register(SourceCustom, "ema", customEMA)
	r.Register(SourceCustom, "rsi", customRSI)
	r.Register(SourceCustom, "macd", customMACD)
	r.Register(SourceCustom, "bollinger", customBollinger)
	r.Register(SourceCustom, "atr", customATR)
	r.Register(SourceCustom, "vwap", customVWAP)
}

func sma(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

func ema(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	seed := sma(values, period)
	prev := math.NaN()
	for i := 0; i < n; i++ {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		if i == period-1 {
			prev = seed[i]
			out[i] = prev
			continue
		}
		prev = values[i]*alpha + prev*(1-alpha)
		out[i] = prev
	}
	return out
}

func customSMA(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	if f.Len() < period {
		return nil, nil, fmt.Errorf("insufficient data for sma(%d)", period)
	}
	col := fmt.Sprintf("sma_%d", period)
	out, err := f.AppendColumn(col, sma(f.CloseFloats(), period))
	return out, []string{col}, err
}

func customEMA(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	if f.Len() < period {
		return nil, nil, fmt.Errorf("insufficient data for ema(%d)", period)
	}
	col := fmt.Sprintf("ema_%d", period)
	out, err := f.AppendColumn(col, ema(f.CloseFloats(), period))
	return out, []string{col}, err
}

// rsi computes Wilder's smoothed RSI.
func rsi(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < period+1 {
		return out
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)
	for i := period + 1; i < n; i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func customRSI(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 14)
	if f.Len() < period+1 {
		return nil, nil, fmt.Errorf("insufficient data for rsi(%d)", period)
	}
	col := "rsi"
	out, err := f.AppendColumn(col, rsi(f.CloseFloats(), period))
	return out, []string{col}, err
}

func customMACD(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	fast := getIntParam(params, "fast_period", 12)
	slow := getIntParam(params, "slow_period", 26)
	signalPeriod := getIntParam(params, "signal_period", 9)
	if f.Len() < slow {
		return nil, nil, fmt.Errorf("insufficient data for macd(%d,%d,%d)", fast, slow, signalPeriod)
	}
	close := f.CloseFloats()
	fastEMA := ema(close, fast)
	slowEMA := ema(close, slow)
	macdLine := make([]float64, len(close))
	for i := range macdLine {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			macdLine[i] = math.NaN()
			continue
		}
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := emaIgnoringLeadingNaN(macdLine, signalPeriod)
	hist := make([]float64, len(close))
	for i := range hist {
		if math.IsNaN(macdLine[i]) || math.IsNaN(signalLine[i]) {
			hist[i] = math.NaN()
			continue
		}
		hist[i] = macdLine[i] - signalLine[i]
	}
	out, err := f.AppendColumn("macd", macdLine)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("macd_signal", signalLine)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("macd_hist", hist)
	return out, []string{"macd", "macd_signal", "macd_hist"}, err
}

// emaIgnoringLeadingNaN runs an EMA over the first non-NaN run of
// values, keeping NaN for indices before it starts.
func emaIgnoringLeadingNaN(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	start := 0
	for start < n && math.IsNaN(values[start]) {
		start++
	}
	if n-start < period {
		return out
	}
	sub := ema(values[start:], period)
	copy(out[start:], sub)
	return out
}

func customBollinger(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	stdDevMul := getFloatParam(params, "std_dev", 2.0)
	if f.Len() < period {
		return nil, nil, fmt.Errorf("insufficient data for bollinger(%d)", period)
	}
	close := f.CloseFloats()
	middle := sma(close, period)
	upper := make([]float64, len(close))
	lower := make([]float64, len(close))
	for i := range close {
		if i < period-1 {
			upper[i], lower[i] = math.NaN(), math.NaN()
			continue
		}
		var sumSq float64
		for j := i - period + 1; j <= i; j++ {
			d := close[j] - middle[i]
			sumSq += d * d
		}
		stdDev := math.Sqrt(sumSq / float64(period))
		upper[i] = middle[i] + stdDevMul*stdDev
		lower[i] = middle[i] - stdDevMul*stdDev
	}
	out, err := f.AppendColumn("bb_middle", middle)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("bb_upper", upper)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("bb_lower", lower)
	return out, []string{"bb_middle", "bb_upper", "bb_lower"}, err
}

func customATR(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 14)
	if f.Len() < period+1 {
		return nil, nil, fmt.Errorf("insufficient data for atr(%d)", period)
	}
	high, low, close := f.HighFloats(), f.LowFloats(), f.CloseFloats()
	n := len(close)
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	// Wilder's RMA smoothing.
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	col := "atr"
	outFrame, err := f.AppendColumn(col, out)
	return outFrame, []string{col}, err
}

func customVWAP(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	if !f.HasVolume() {
		return nil, nil, fmt.Errorf("vwap requires a volume column")
	}
	high, low, close, vol := f.HighFloats(), f.LowFloats(), f.CloseFloats(), f.VolumeFloats()
	out := make([]float64, len(close))
	var cumTPV, cumVol float64
	for i := range close {
		tp := (high[i] + low[i] + close[i]) / 3
		cumTPV += tp * vol[i]
		cumVol += vol[i]
		if cumVol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumTPV / cumVol
	}
	col := "vwap"
	outFrame, err := f.AppendColumn(col, out)
	return outFrame, []string{col}, err
}
