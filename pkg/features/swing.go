package features

import (
	"math"
	"time"

	"github.com/bquant-go/bquant/pkg/model"
)

// SwingFamily selects which pivot-detection algorithm produces the
// swing series; all three share the same output schema.
type SwingFamily string

const (
	SwingFindPeaks    SwingFamily = "find_peaks"
	SwingPivotPoints  SwingFamily = "pivot_points"
	SwingZigZag       SwingFamily = "zigzag"
)

// SwingParams configures whichever family is selected. Not every
// field applies to every family (documented per field).
type SwingParams struct {
	// find_peaks: window lookback and minimum amplitude (fraction of
	// local price, e.g. 0.01 for 1%).
	Lookback        int
	MinAmplitudePct float64

	// pivot_points: number of bars on each side a bar must dominate.
	PivotWindow int

	// zigzag: minimum reversal deviation (fraction of price) and
	// minimum bars between confirmed pivots.
	DeviationPct float64
	MinLegs      int
}

// DefaultSwingParams returns the "default" preset referenced by
// with_swing_preset("default").
func DefaultSwingParams() SwingParams {
	return SwingParams{
		Lookback:        5,
		MinAmplitudePct: 0.01,
		PivotWindow:     3,
		DeviationPct:    0.03,
		MinLegs:         3,
	}
}

// ComputePivots runs the selected family over prices (typically a
// close series) and returns a strictly alternating peak/trough
// sequence. timestamps may be nil; when provided it must be the same
// length as prices. baseIdx offsets the returned SwingPoint.Index so
// callers that pass a parent-frame slice still get frame-absolute
// indices.
func ComputePivots(family SwingFamily, prices []float64, timestamps []time.Time, baseIdx int, p SwingParams) []model.SwingPoint {
	var raw []model.SwingPoint
	switch family {
	case SwingPivotPoints:
		raw = pivotPoints(prices, p.PivotWindow)
	case SwingZigZag:
		raw = zigzag(prices, p.DeviationPct, p.MinLegs)
	default:
		raw = findPeaks(prices, p.Lookback, p.MinAmplitudePct)
	}
	return finalize(raw, prices, timestamps, baseIdx)
}

func finalize(raw []model.SwingPoint, prices []float64, timestamps []time.Time, baseIdx int) []model.SwingPoint {
	alt := alternate(raw)
	for i := range alt {
		alt[i].PointID = i
		alt[i].Index += baseIdx
		if timestamps != nil && alt[i].Index-baseIdx < len(timestamps) {
			alt[i].Timestamp = timestamps[alt[i].Index-baseIdx]
		}
		if i+1 < len(alt) {
			next := alt[i+1]
			if alt[i].Price != 0 {
				alt[i].AmplitudeToNext = math.Abs(next.Price-alt[i].Price) / math.Abs(alt[i].Price)
			}
		}
	}
	_ = prices
	return alt
}

// alternate keeps pivots strictly alternating peak/trough; when two
// consecutive raw pivots share a type, only the more extreme survives.
func alternate(raw []model.SwingPoint) []model.SwingPoint {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.SwingPoint, 0, len(raw))
	out = append(out, raw[0])
	for _, p := range raw[1:] {
		last := &out[len(out)-1]
		if p.Type == last.Type {
			if (p.Type == model.SwingPeak && p.Price > last.Price) ||
				(p.Type == model.SwingTrough && p.Price < last.Price) {
				*last = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func findPeaks(prices []float64, lookback int, minAmplitudePct float64) []model.SwingPoint {
	if lookback < 1 {
		lookback = 1
	}
	n := len(prices)
	var out []model.SwingPoint
	for i := lookback; i < n-lookback; i++ {
		isPeak, isTrough := true, true
		for w := 1; w <= lookback; w++ {
			if prices[i] <= prices[i-w] || prices[i] <= prices[i+w] {
				isPeak = false
			}
			if prices[i] >= prices[i-w] || prices[i] >= prices[i+w] {
				isTrough = false
			}
		}
		localBase := prices[i-lookback]
		amp := 0.0
		if localBase != 0 {
			amp = math.Abs(prices[i]-localBase) / math.Abs(localBase)
		}
		if amp < minAmplitudePct {
			continue
		}
		if isPeak {
			out = append(out, model.SwingPoint{Index: i, Price: prices[i], Type: model.SwingPeak})
		} else if isTrough {
			out = append(out, model.SwingPoint{Index: i, Price: prices[i], Type: model.SwingTrough})
		}
	}
	return out
}

func pivotPoints(prices []float64, k int) []model.SwingPoint {
	if k < 1 {
		k = 1
	}
	n := len(prices)
	var out []model.SwingPoint
	for i := k; i < n-k; i++ {
		isHigh, isLow := true, true
		for w := 1; w <= k; w++ {
			if prices[i] < prices[i-w] || prices[i] < prices[i+w] {
				isHigh = false
			}
			if prices[i] > prices[i-w] || prices[i] > prices[i+w] {
				isLow = false
			}
		}
		if isHigh {
			out = append(out, model.SwingPoint{Index: i, Price: prices[i], Type: model.SwingPeak})
		} else if isLow {
			out = append(out, model.SwingPoint{Index: i, Price: prices[i], Type: model.SwingTrough})
		}
	}
	return out
}

// zigzag confirms a new pivot only after price reverses by at least
// deviationPct from the last confirmed extreme and at least minLegs
// bars have elapsed since it.
func zigzag(prices []float64, deviationPct float64, minLegs int) []model.SwingPoint {
	n := len(prices)
	if n == 0 {
		return nil
	}
	if deviationPct <= 0 {
		deviationPct = 0.01
	}
	if minLegs < 1 {
		minLegs = 1
	}

	var out []model.SwingPoint
	extremeIdx := 0
	extremePrice := prices[0]
	// direction: 0 unknown, 1 looking for a peak (price has been rising
	// since the last confirmed trough), -1 looking for a trough.
	direction := 0

	for i := 1; i < n; i++ {
		if direction >= 0 && prices[i] > extremePrice {
			extremePrice = prices[i]
			extremeIdx = i
		}
		if direction <= 0 && prices[i] < extremePrice && direction == 0 {
			extremePrice = prices[i]
			extremeIdx = i
		}

		switch {
		case direction <= 0:
			rise := 0.0
			if extremePrice != 0 {
				rise = (prices[i] - extremePrice) / math.Abs(extremePrice)
			}
			if direction == -1 && prices[i] < extremePrice {
				extremePrice = prices[i]
				extremeIdx = i
				continue
			}
			if i-extremeIdx >= minLegs && rise >= deviationPct {
				out = append(out, model.SwingPoint{Index: extremeIdx, Price: extremePrice, Type: model.SwingTrough})
				direction = 1
				extremePrice = prices[i]
				extremeIdx = i
			} else if direction == 0 {
				direction = -1
			}
		case direction == 1:
			rally := 0.0
			if extremePrice != 0 {
				rally = (prices[i] - extremePrice) / math.Abs(extremePrice)
			}
			if prices[i] > extremePrice {
				extremePrice = prices[i]
				extremeIdx = i
				continue
			}
			drawback := (extremePrice - prices[i])
			_ = rally
			revPct := 0.0
			if extremePrice != 0 {
				revPct = drawback / math.Abs(extremePrice)
			}
			if i-extremeIdx >= minLegs && revPct >= deviationPct {
				out = append(out, model.SwingPoint{Index: extremeIdx, Price: extremePrice, Type: model.SwingPeak})
				direction = -1
				extremePrice = prices[i]
				extremeIdx = i
			}
		}
	}
	return out
}

// Metrics derives the universal SwingMetrics schema from a pivot
// sequence, independent of which family produced it.
func Metrics(pivots []model.SwingPoint) model.SwingMetrics {
	var m model.SwingMetrics
	m.NumSwings = len(pivots)
	for _, p := range pivots {
		switch p.Type {
		case model.SwingPeak:
			m.NumPeaks++
		case model.SwingTrough:
			m.NumTroughs++
		}
	}
	if len(pivots) < 2 {
		return m
	}
	var rallyPcts, dropPcts []float64
	var rallyDurations, dropDurations []float64
	for i := 0; i+1 < len(pivots); i++ {
		a, b := pivots[i], pivots[i+1]
		duration := float64(b.Index - a.Index)
		if duration <= 0 {
			continue
		}
		if a.Type == model.SwingTrough && b.Type == model.SwingPeak {
			pct := 0.0
			if a.Price != 0 {
				pct = (b.Price - a.Price) / math.Abs(a.Price)
			}
			rallyPcts = append(rallyPcts, pct)
			rallyDurations = append(rallyDurations, duration)
			m.RallyCount++
			if pct > m.MaxRallyPct {
				m.MaxRallyPct = pct
			}
		} else if a.Type == model.SwingPeak && b.Type == model.SwingTrough {
			pct := 0.0
			if a.Price != 0 {
				pct = (a.Price - b.Price) / math.Abs(a.Price)
			}
			dropPcts = append(dropPcts, pct)
			dropDurations = append(dropDurations, duration)
			m.DropCount++
			if pct > m.MaxDropPct {
				m.MaxDropPct = pct
			}
		}
	}
	m.AvgRallyPct = mean(rallyPcts)
	m.AvgDropPct = mean(dropPcts)
	m.AvgRallyDurationBars = mean(rallyDurations)
	m.AvgDropDurationBars = mean(dropDurations)
	if m.AvgRallyDurationBars > 0 {
		m.AvgRallySpeedPctPerBar = m.AvgRallyPct / m.AvgRallyDurationBars
	}
	if m.AvgDropDurationBars > 0 {
		m.AvgDropSpeedPctPerBar = m.AvgDropPct / m.AvgDropDurationBars
	}
	if m.DropCount > 0 {
		m.RallyToDropRatio = float64(m.RallyCount) / float64(m.DropCount)
	}
	total := m.RallyCount + m.DropCount
	if total > 0 {
		m.DurationSymmetry = 1 - math.Abs(float64(m.RallyCount-m.DropCount))/float64(total)
	}
	return m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
