// Package zones implements the C2 detection strategies: pluggable
// algorithms that turn one or two already-computed indicator columns
// into an ordered, non-overlapping sequence of typed zone intervals.
package zones

import (
	"math"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// Strategy is the narrow interface every detection family implements.
// There is no inheritance; a builder selects a strategy by
// constructing the concrete type it wants (ZeroCrossing, Threshold,
// LineCrossing) and calling Detect.
type Strategy interface {
	Name() string
	Detect(f *frame.Frame) ([]*model.Zone, error)
}

// segment is the pre-materialization representation of a candidate
// zone: an index range plus the type it was classified as.
type segment struct {
	start, end int
	ztype      model.ZoneType
}

func (s segment) len() int { return s.end - s.start }

// mergeMinDuration merges any segment shorter than minDuration into
// its right neighbor, dropping it instead if it has none. It mutates
// segs in place conceptually but returns the resulting slice.
func mergeMinDuration(segs []segment, minDuration int) []segment {
	if minDuration <= 1 {
		return segs
	}
	i := 0
	for i < len(segs) {
		if segs[i].len() >= minDuration {
			i++
			continue
		}
		if i == len(segs)-1 {
			segs = segs[:i]
			break
		}
		segs[i+1].start = segs[i].start
		segs = append(segs[:i], segs[i+1:]...)
	}
	return segs
}

// materialize turns segments into zones, attaching data slices, price
// endpoints, and the shared indicator context. zone_id is assigned in
// detection order starting at 0.
func materialize(f *frame.Frame, segs []segment, ctx model.IndicatorContext) []*model.Zone {
	zones := make([]*model.Zone, 0, len(segs))
	for i, s := range segs {
		data := f.Slice(s.start, s.end)
		z := &model.Zone{
			ZoneID:           i,
			Type:             s.ztype,
			StartIdx:         s.start,
			EndIdx:           s.end,
			Duration:         s.end - s.start,
			Data:             data,
			Features:         make(map[string]model.Scalar),
			IndicatorContext: ctx,
			StartPrice:       f.Close[s.start],
			EndPrice:         f.Close[s.end-1],
		}
		if len(f.Timestamps) > 0 {
			z.StartTime = f.Timestamps[s.start]
			z.EndTime = f.Timestamps[s.end-1]
		}
		zones = append(zones, z)
	}
	return zones
}

func signType(v float64) model.ZoneType {
	switch {
	case v > 0:
		return model.ZoneBull
	case v < 0:
		return model.ZoneBear
	default:
		return model.ZoneNeutral
	}
}

func firstNonNaN(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(values)
}
