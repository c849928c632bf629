package zones

import (
	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// Threshold segments the frame into bull/bear/neutral runs by
// comparing a single indicator column against fixed upper/lower
// bands: bull while value >= upper, bear while value <= lower,
// neutral otherwise.
type Threshold struct {
	indicatorCol string
	upper, lower float64
	requireCross bool
	bounded      bool
	minDuration  int
}

// NewThreshold builds a Threshold strategy over indicatorCol with the
// given upper/lower bands.
func NewThreshold(indicatorCol string, upper, lower float64, opts ...ThresholdOption) *Threshold {
	t := &Threshold{indicatorCol: indicatorCol, upper: upper, lower: lower}
	for _, o := range opts {
		o(t)
	}
	return t
}

type ThresholdOption func(*Threshold)

// WithRequireCross restricts zone starts to bars where the series
// actually crosses into the band; without it, a series that opens
// already inside a band starts a zone from bar 0.
func WithRequireCross(enabled bool) ThresholdOption {
	return func(t *Threshold) { t.requireCross = enabled }
}

// WithBounded marks the indicator context as describing a
// fixed-range oscillator (e.g. RSI, Stochastic).
func WithBounded(enabled bool) ThresholdOption {
	return func(t *Threshold) { t.bounded = enabled }
}

// WithThresholdMinDuration filters out zones shorter than n bars,
// merging them into their right neighbor (dropping if there is none),
// matching ZeroCrossing and LineCrossing's shared min_duration filter.
func WithThresholdMinDuration(n int) ThresholdOption {
	return func(t *Threshold) { t.minDuration = n }
}

func (t *Threshold) Name() string { return "threshold" }

func (t *Threshold) classify(v float64) model.ZoneType {
	switch {
	case v >= t.upper:
		return model.ZoneBull
	case v <= t.lower:
		return model.ZoneBear
	default:
		return model.ZoneNeutral
	}
}

func (t *Threshold) Detect(f *frame.Frame) ([]*model.Zone, error) {
	values, ok := f.Column(t.indicatorCol)
	if !ok {
		return nil, &bqerrors.DetectionError{Strategy: t.Name(), Reason: "missing column", Context: map[string]any{"column": t.indicatorCol}}
	}
	start := firstNonNaN(values)
	if start >= len(values) {
		return nil, nil
	}

	var segs []segment
	cur := segment{start: start, ztype: t.classify(values[start])}
	for i := start + 1; i < len(values); i++ {
		zt := t.classify(values[i])
		if zt != cur.ztype {
			cur.end = i
			segs = append(segs, cur)
			cur = segment{start: i, ztype: zt}
		}
	}
	cur.end = len(values)
	segs = append(segs, cur)

	if t.requireCross && len(segs) > 0 && segs[0].start == start && segs[0].ztype != model.ZoneNeutral {
		// The series opened already inside the band with no observed
		// crossing into it; drop that unconfirmed leading segment.
		segs = segs[1:]
	}

	segs = mergeMinDuration(segs, t.minDuration)

	ctx := model.IndicatorContext{
		DetectionIndicator: t.indicatorCol,
		DetectionStrategy:  t.Name(),
		Bounded:            t.bounded,
	}
	return materialize(f, segs, ctx), nil
}
