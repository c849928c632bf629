// Package talib wraps github.com/cinar/indicator/v2's channel-based
// indicator implementations behind plain slice-in/slice-out functions,
// left-padding short outputs with NaN so every returned series is the
// same length as its input and aligned to the same bar index.
package talib

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"
)

// pad left-pads out with NaN until it is n elements long. cinar's
// indicators drop their warm-up window rather than emit NaN for it.
func pad(out []float64, n int) []float64 {
	if len(out) >= n {
		return out
	}
	padded := make([]float64, n)
	lead := n - len(out)
	for i := 0; i < lead; i++ {
		padded[i] = math.NaN()
	}
	copy(padded[lead:], out)
	return padded
}

func Sma(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	sma := trend.NewSmaWithPeriod[float64](period)
	return pad(helper.ChanToSlice(sma.Compute(c)), len(prices))
}

func Ema(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	c := helper.SliceToChan(prices)
	ema := trend.NewEmaWithPeriod[float64](period)
	return pad(helper.ChanToSlice(ema.Compute(c)), len(prices))
}

func Rsi(prices []float64, period int) []float64 {
	if len(prices) < period+1 {
		return nil
	}
	c := helper.SliceToChan(prices)
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return pad(helper.ChanToSlice(rsi.Compute(c)), len(prices))
}

// Macd returns the MACD line, its signal line, and their difference
// (the histogram), all padded/aligned to len(prices).
func Macd(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (macdLine, signal, histogram []float64) {
	if len(prices) < slowPeriod {
		return nil, nil, nil
	}
	c := helper.SliceToChan(prices)
	m := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod)
	macdCh, signalCh := m.Compute(c)
	macdLine = pad(helper.ChanToSlice(macdCh), len(prices))
	signal = pad(helper.ChanToSlice(signalCh), len(prices))
	histogram = make([]float64, len(prices))
	for i := range histogram {
		if math.IsNaN(macdLine[i]) || math.IsNaN(signal[i]) {
			histogram[i] = math.NaN()
			continue
		}
		histogram[i] = macdLine[i] - signal[i]
	}
	return macdLine, signal, histogram
}

func BBands(prices []float64, period int) (upper, middle, lower []float64) {
	if len(prices) < period {
		return nil, nil, nil
	}
	c := helper.SliceToChan(prices)
	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	u, m, l := bb.Compute(c)
	n := len(prices)
	return pad(helper.ChanToSlice(u), n), pad(helper.ChanToSlice(m), n), pad(helper.ChanToSlice(l), n)
}

func Atr(high, low, close []float64, period int) []float64 {
	if len(high) < period || len(low) < period || len(close) < period {
		return nil
	}
	h := helper.SliceToChan(high)
	l := helper.SliceToChan(low)
	c := helper.SliceToChan(close)
	atr := volatility.NewAtrWithPeriod[float64](period)
	return pad(helper.ChanToSlice(atr.Compute(h, l, c)), len(close))
}

func StochF(high, low, close []float64, kPeriod int) (k, d []float64) {
	if len(high) < kPeriod || len(low) < kPeriod || len(close) < kPeriod {
		return nil, nil
	}
	h := helper.SliceToChan(high)
	l := helper.SliceToChan(low)
	c := helper.SliceToChan(close)
	stoch := momentum.NewStochasticOscillator[float64]()
	kCh, dCh := stoch.Compute(h, l, c)
	n := len(close)
	return pad(helper.ChanToSlice(kCh), n), pad(helper.ChanToSlice(dCh), n)
}

func Obv(prices, volumes []float64) []float64 {
	if len(prices) == 0 || len(volumes) == 0 {
		return nil
	}
	p := helper.SliceToChan(prices)
	v := helper.SliceToChan(volumes)
	obv := volume.NewObv[float64]()
	return pad(helper.ChanToSlice(obv.Compute(p, v)), len(prices))
}
