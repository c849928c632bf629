package features

import (
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// ShapeStrategy computes statistical-shape descriptors over the
// primary indicator column inside a zone. It never references a
// specific indicator name: the column(s) it reads come from the
// zone's IndicatorContext, per SPEC_FULL's resolution of the "no
// hard-coded indicator names" open question.
type ShapeStrategy struct{}

func NewShapeStrategy() *ShapeStrategy { return &ShapeStrategy{} }

func (s *ShapeStrategy) Key() string { return "shape" }

func (s *ShapeStrategy) Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error) {
	primaryName := zone.IndicatorContext.DetectionIndicator
	primary, ok := zone.Data.Column(primaryName)
	if !ok {
		return nil, &shapeError{reason: "primary indicator column not in zone data", column: primaryName}
	}
	series := dropNaN(primary)
	idx := make([]float64, len(series))
	for i := range idx {
		idx[i] = float64(i)
	}

	out := map[string]model.Scalar{
		"hist_skewness":     skewness(series),
		"hist_kurtosis":     kurtosis(series),
		"hist_smoothness":   smoothness(series),
		"hist_slope":        olsSlope(idx, series),
		"primary_amplitude": amplitude(primary),
	}

	if signalName := zone.IndicatorContext.SignalLine; signalName != "" {
		if signal, ok := zone.Data.Column(signalName); ok {
			out["signal_amplitude"] = amplitude(signal)
			// Aliases read by C6's default predictor lists: the primary
			// and signal amplitudes of whatever column pair the context
			// names, without the strategy branching on indicator identity.
			out["hist_amplitude"] = amplitude(primary)
			out["macd_amplitude"] = amplitude(signal)
		}
	}

	return out, nil
}

func amplitude(values []float64) float64 {
	values = dropNaN(values)
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

type shapeError struct {
	reason string
	column string
}

func (e *shapeError) Error() string {
	return "shape: " + e.reason + ": " + e.column
}
