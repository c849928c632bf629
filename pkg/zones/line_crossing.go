package zones

import (
	"math"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// LineCrossing segments the frame by comparing two indicator columns:
// bull while line1 > line2, bear while line1 < line2. Exact ties are
// absorbed into whichever run is open, matching zero_crossing's
// default tie handling; there is no neutral state for this strategy.
type LineCrossing struct {
	line1, line2 string
	minDuration  int
}

// NewLineCrossing builds a LineCrossing strategy comparing line1 against line2.
func NewLineCrossing(line1, line2 string, opts ...LineCrossingOption) *LineCrossing {
	l := &LineCrossing{line1: line1, line2: line2}
	for _, o := range opts {
		o(l)
	}
	return l
}

type LineCrossingOption func(*LineCrossing)

// WithLineCrossingMinDuration filters out zones shorter than n bars,
// merging them into their right neighbor (dropping if there is none).
func WithLineCrossingMinDuration(n int) LineCrossingOption {
	return func(l *LineCrossing) { l.minDuration = n }
}

func (l *LineCrossing) Name() string { return "line_crossing" }

func (l *LineCrossing) Detect(f *frame.Frame) ([]*model.Zone, error) {
	a, ok := f.Column(l.line1)
	if !ok {
		return nil, &bqerrors.DetectionError{Strategy: l.Name(), Reason: "missing column", Context: map[string]any{"column": l.line1}}
	}
	b, ok := f.Column(l.line2)
	if !ok {
		return nil, &bqerrors.DetectionError{Strategy: l.Name(), Reason: "missing column", Context: map[string]any{"column": l.line2}}
	}
	n := f.Len()
	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			diff[i] = math.NaN()
			continue
		}
		diff[i] = a[i] - b[i]
	}

	start := firstNonNaN(diff)
	if start >= n {
		return nil, nil
	}

	var segs []segment
	cur := segment{start: -1}
	if t := signType(diff[start]); t != model.ZoneNeutral {
		cur = segment{start: start, ztype: t}
	}
	for i := start + 1; i < n; i++ {
		t := signType(diff[i])
		if t == model.ZoneNeutral {
			continue // absorbed into the open run, if any
		}
		if cur.start == -1 {
			cur = segment{start: i, ztype: t}
			continue
		}
		if t != cur.ztype {
			cur.end = i
			segs = append(segs, cur)
			cur = segment{start: i, ztype: t}
		}
	}
	if cur.start != -1 {
		cur.end = n
		segs = append(segs, cur)
	}

	segs = mergeMinDuration(segs, l.minDuration)

	ctx := model.IndicatorContext{
		DetectionIndicator: l.line1,
		DetectionStrategy:  l.Name(),
		SignalLine:         l.line2,
	}
	return materialize(f, segs, ctx), nil
}
