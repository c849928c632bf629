package indicators

import (
	"fmt"

	"github.com/bquant-go/bquant/internal/talib"
	"github.com/bquant-go/bquant/pkg/frame"
)

// registerLibraryIndicators wires the "library" source to
// github.com/cinar/indicator/v2 through internal/talib, grounded on
// the dispatch switch the teacher used in its talib adapter.
func registerLibraryIndicators(r *Registry) {
	r.Register(SourceLibrary, "sma", libSMA)
	r.Register(SourceLibrary, "ema", libEMA)
	r.Register(SourceLibrary, "rsi", libRSI)
	r.Register(SourceLibrary, "macd", libMACD)
	r.Register(SourceLibrary, "bollinger", libBollinger)
	r.Register(SourceLibrary, "atr", libATR)
	r.Register(SourceLibrary, "stochastic", libStochastic)
	r.Register(SourceLibrary, "obv", libOBV)
}

func libSMA(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	vals := talib.Sma(f.CloseFloats(), period)
	if vals == nil {
		return nil, nil, fmt.Errorf("insufficient data for sma(%d)", period)
	}
	col := fmt.Sprintf("sma_%d", period)
	out, err := f.AppendColumn(col, vals)
	return out, []string{col}, err
}

func libEMA(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	vals := talib.Ema(f.CloseFloats(), period)
	if vals == nil {
		return nil, nil, fmt.Errorf("insufficient data for ema(%d)", period)
	}
	col := fmt.Sprintf("ema_%d", period)
	out, err := f.AppendColumn(col, vals)
	return out, []string{col}, err
}

func libRSI(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 14)
	vals := talib.Rsi(f.CloseFloats(), period)
	if vals == nil {
		return nil, nil, fmt.Errorf("insufficient data for rsi(%d)", period)
	}
	col := "rsi"
	out, err := f.AppendColumn(col, vals)
	return out, []string{col}, err
}

func libMACD(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	fast := getIntParam(params, "fast_period", 12)
	slow := getIntParam(params, "slow_period", 26)
	signal := getIntParam(params, "signal_period", 9)
	macdLine, signalLine, hist := talib.Macd(f.CloseFloats(), fast, slow, signal)
	if macdLine == nil {
		return nil, nil, fmt.Errorf("insufficient data for macd(%d,%d,%d)", fast, slow, signal)
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

func libBollinger(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 20)
	upper, middle, lower := talib.BBands(f.CloseFloats(), period)
	if upper == nil {
		return nil, nil, fmt.Errorf("insufficient data for bollinger(%d)", period)
	}
	out, err := f.AppendColumn("bb_upper", upper)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("bb_middle", middle)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("bb_lower", lower)
	return out, []string{"bb_middle", "bb_upper", "bb_lower"}, err
}

func libATR(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	period := getIntParam(params, "period", 14)
	vals := talib.Atr(f.HighFloats(), f.LowFloats(), f.CloseFloats(), period)
	if vals == nil {
		return nil, nil, fmt.Errorf("insufficient data for atr(%d)", period)
	}
	col := "atr"
	out, err := f.AppendColumn(col, vals)
	return out, []string{col}, err
}

func libStochastic(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	kPeriod := getIntParam(params, "k_period", 14)
	k, d := talib.StochF(f.HighFloats(), f.LowFloats(), f.CloseFloats(), kPeriod)
	if k == nil {
		return nil, nil, fmt.Errorf("insufficient data for stochastic(%d)", kPeriod)
	}
	out, err := f.AppendColumn("stoch_k", k)
	if err != nil {
		return nil, nil, err
	}
	out, err = out.AppendColumn("stoch_d", d)
	return out, []string{"stoch_k", "stoch_d"}, err
}

func libOBV(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
	if !f.HasVolume() {
		return nil, nil, fmt.Errorf("obv requires a volume column")
	}
	vals := talib.Obv(f.CloseFloats(), f.VolumeFloats())
	col := "obv"
	out, err := f.AppendColumn(col, vals)
	return out, []string{col}, err
}
