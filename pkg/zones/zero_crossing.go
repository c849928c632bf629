package zones

import (
	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// ZeroCrossing segments the frame by the sign of a single indicator
// column: bull while positive, bear while negative, and (only if
// requested via WithNeutral) a neutral run while exactly zero.
//
// By default exact-zero bars are absorbed into the previous sign's
// run rather than starting their own zone, per SPEC_FULL's resolution
// of the zero_crossing open question.
type ZeroCrossing struct {
	indicatorCol string
	minDuration  int
	neutral      bool
}

// NewZeroCrossing builds a ZeroCrossing strategy over indicatorCol.
func NewZeroCrossing(indicatorCol string, opts ...ZeroCrossingOption) *ZeroCrossing {
	z := &ZeroCrossing{indicatorCol: indicatorCol}
	for _, o := range opts {
		o(z)
	}
	return z
}

type ZeroCrossingOption func(*ZeroCrossing)

// WithMinDuration filters out zones shorter than n bars by merging
// them into their right neighbor (dropping if there is none).
func WithMinDuration(n int) ZeroCrossingOption {
	return func(z *ZeroCrossing) { z.minDuration = n }
}

// WithNeutral opts into emitting neutral zones for exact-zero runs
// instead of absorbing them into the previous sign's zone.
func WithNeutral(enabled bool) ZeroCrossingOption {
	return func(z *ZeroCrossing) { z.neutral = enabled }
}

func (z *ZeroCrossing) Name() string { return "zero_crossing" }

func (z *ZeroCrossing) Detect(f *frame.Frame) ([]*model.Zone, error) {
	values, ok := f.Column(z.indicatorCol)
	if !ok {
		return nil, &bqerrors.DetectionError{Strategy: z.Name(), Reason: "missing column", Context: map[string]any{"column": z.indicatorCol}}
	}

	start := firstNonNaN(values)
	if start >= len(values) {
		return nil, nil
	}

	var segs []segment
	cur := segment{start: start, ztype: signType(values[start])}
	if cur.ztype == model.ZoneNeutral && !z.neutral {
		// No established sign yet; skip leading zeros until one appears.
		cur.start = -1
	}

	crossed := false
	for i := start + 1; i < len(values); i++ {
		t := signType(values[i])
		if t == model.ZoneNeutral && !z.neutral {
			// Absorbed into whichever run is currently open.
			if cur.start == -1 {
				continue
			}
			continue
		}
		if cur.start == -1 {
			cur = segment{start: i, ztype: t}
			continue
		}
		if t != cur.ztype {
			cur.end = i
			segs = append(segs, cur)
			cur = segment{start: i, ztype: t}
			crossed = true
		}
	}
	if cur.start != -1 {
		cur.end = len(values)
		segs = append(segs, cur)
	}

	// A constant (never-crossing) indicator must emit no zones: a
	// single segment never confirmed by any sign change is a boundary
	// artifact, not a detected zone.
	if !crossed && len(segs) <= 1 {
		return nil, nil
	}

	segs = mergeMinDuration(segs, z.minDuration)

	ctx := model.IndicatorContext{
		DetectionIndicator: z.indicatorCol,
		DetectionStrategy:  z.Name(),
	}
	return materialize(f, segs, ctx), nil
}
