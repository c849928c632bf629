package features

import (
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// SwingStrategy wraps one of the find_peaks/pivot_points/zigzag
// families behind the common Strategy interface. When the pipeline
// has already attached zone.SwingContext (swing_scope=global), those
// pivots are used as-is; otherwise pivots are computed fresh over the
// zone's own close series (swing_scope=per_zone).
type SwingStrategy struct {
	family SwingFamily
	params SwingParams
}

func NewSwingStrategy(family SwingFamily, params SwingParams) *SwingStrategy {
	return &SwingStrategy{family: family, params: params}
}

func (s *SwingStrategy) Key() string { return "swing" }

func (s *SwingStrategy) Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error) {
	var pivots []model.SwingPoint
	scope := "global"
	if zone.SwingContext != nil {
		pivots = zone.SwingContext
	} else {
		scope = "per_zone"
		pivots = ComputePivots(s.family, zone.Data.CloseFloats(), zone.Data.Timestamps, zone.StartIdx, s.params)
	}

	m := Metrics(pivots)
	out := m.ToDict()
	out["metadata"] = map[string]any{
		s.Key(): map[string]any{
			"family": string(s.family),
			"scope":  scope,
		},
	}
	return out, nil
}
