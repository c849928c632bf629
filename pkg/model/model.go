// Package model holds the value types shared across every analysis
// component: zones, the indicator context envelope, swing metrics,
// and the result records produced by the statistical, regression, and
// validation suites. Nothing in this package computes anything; it is
// pure data plus ToDict-style serialization helpers.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bquant-go/bquant/pkg/frame"
)

// ZoneType enumerates the classification a detection strategy assigns
// to an interval.
type ZoneType string

const (
	ZoneBull    ZoneType = "bull"
	ZoneBear    ZoneType = "bear"
	ZoneNeutral ZoneType = "neutral"
)

// SwingType enumerates a pivot's role in the zigzag/peak series.
type SwingType string

const (
	SwingPeak   SwingType = "peak"
	SwingTrough SwingType = "trough"
)

// SwingPoint is a single local extremum on the close series.
type SwingPoint struct {
	Timestamp       time.Time
	Index           int
	Price           float64
	Type            SwingType
	PointID         int
	AmplitudeToNext float64 // 0 when this is the last point in its series
}

// IndicatorContext is the envelope attached to every zone and every
// feature computation so that feature strategies never hard-code an
// indicator's identity: they read the driving column name(s) from
// here instead.
type IndicatorContext struct {
	DetectionIndicator string // primary column name driving detection
	DetectionStrategy  string // "zero_crossing" | "threshold" | "line_crossing"
	SignalLine         string // second column, for 2-line strategies; empty otherwise
	Bounded            bool   // true when the indicator has a known fixed range (e.g. RSI)
	ExtraParams        map[string]any
}

// Scalar is the dynamic value type stored in a zone's feature map:
// float64, int64, bool, or string. nil represents an explicit null.
type Scalar = any

// Zone is a half-open interval [StartIdx, EndIdx) over the frame,
// classified by a detection strategy and enriched by feature
// strategies. See spec section 3.2 for the invariants it must satisfy.
type Zone struct {
	ZoneID   int
	Type     ZoneType
	StartIdx int
	EndIdx   int

	StartTime time.Time
	EndTime   time.Time

	StartPrice decimal.Decimal
	EndPrice   decimal.Decimal

	Duration int

	Data *frame.Frame

	Features map[string]Scalar

	IndicatorContext IndicatorContext

	// SwingContext holds the pivot points attributed to this zone, set
	// once by the pipeline when swing_scope requires it, and read-only
	// thereafter.
	SwingContext []SwingPoint
}

// FeatureMetadata returns (creating if absent) the nested diagnostics
// bag under Features["metadata"], keyed by strategy short name.
func (z *Zone) FeatureMetadata() map[string]any {
	if z.Features == nil {
		z.Features = make(map[string]Scalar)
	}
	raw, ok := z.Features["metadata"]
	if !ok {
		bag := make(map[string]any)
		z.Features["metadata"] = bag
		return bag
	}
	bag, ok := raw.(map[string]any)
	if !ok {
		bag = make(map[string]any)
		z.Features["metadata"] = bag
	}
	return bag
}

// RecordFeatureError appends err to Features["metadata"]["errors"][strategy]
// without touching any other key the zone already carries.
func (z *Zone) RecordFeatureError(strategy string, err error) {
	meta := z.FeatureMetadata()
	errs, ok := meta["errors"].(map[string]string)
	if !ok {
		errs = make(map[string]string)
		meta["errors"] = errs
	}
	errs[strategy] = err.Error()
}

// FeatureRecord is the flat projection of a zone's features merged
// with its identity fields — the canonical row shape C5/C6/C7 consume.
type FeatureRecord struct {
	ZoneID      int
	Type        ZoneType
	Duration    int
	PriceReturn float64
	StartPrice  float64
	EndPrice    float64
	Features    map[string]Scalar
}

// Float returns the named feature as a float64, with ok=false if the
// key is absent, null, or not numeric.
func (r FeatureRecord) Float(key string) (float64, bool) {
	switch key {
	case "duration":
		return float64(r.Duration), true
	case "price_return":
		return r.PriceReturn, true
	case "start_price":
		return r.StartPrice, true
	case "end_price":
		return r.EndPrice, true
	}
	v, ok := r.Features[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToRecord projects a zone into its canonical FeatureRecord.
func (z *Zone) ToRecord() FeatureRecord {
	startF, _ := z.StartPrice.Float64()
	endF, _ := z.EndPrice.Float64()
	var ret float64
	if startF != 0 {
		ret = (endF - startF) / startF
	}
	return FeatureRecord{
		ZoneID:      z.ZoneID,
		Type:        z.Type,
		Duration:    z.Duration,
		PriceReturn: ret,
		StartPrice:  startF,
		EndPrice:    endF,
		Features:    z.Features,
	}
}

// SwingMetrics is the output schema every swing-family algorithm
// (find_peaks, pivot_points, zigzag) produces identically.
type SwingMetrics struct {
	NumSwings                int
	NumPeaks                 int
	NumTroughs               int
	RallyCount               int
	DropCount                int
	AvgRallyPct              float64
	AvgDropPct               float64
	MaxRallyPct              float64
	MaxDropPct               float64
	AvgRallyDurationBars     float64
	AvgDropDurationBars      float64
	AvgRallySpeedPctPerBar   float64
	AvgDropSpeedPctPerBar    float64
	RallyToDropRatio         float64
	DurationSymmetry         float64
}

// ToDict flattens the metrics into the feature map keys readers of
// Zone.Features expect.
func (m SwingMetrics) ToDict() map[string]Scalar {
	return map[string]Scalar{
		"num_swings":                  int64(m.NumSwings),
		"num_peaks":                   int64(m.NumPeaks),
		"num_troughs":                 int64(m.NumTroughs),
		"rally_count":                 int64(m.RallyCount),
		"drop_count":                  int64(m.DropCount),
		"avg_rally_pct":               m.AvgRallyPct,
		"avg_drop_pct":                m.AvgDropPct,
		"max_rally_pct":               m.MaxRallyPct,
		"max_drop_pct":                m.MaxDropPct,
		"avg_rally_duration_bars":     m.AvgRallyDurationBars,
		"avg_drop_duration_bars":      m.AvgDropDurationBars,
		"avg_rally_speed_pct_per_bar": m.AvgRallySpeedPctPerBar,
		"avg_drop_speed_pct_per_bar":  m.AvgDropSpeedPctPerBar,
		"rally_to_drop_ratio":         m.RallyToDropRatio,
		"duration_symmetry":           m.DurationSymmetry,
	}
}

// Statistics is the aggregate summary attached to an AnalysisResult.
type Statistics struct {
	CountByType          map[ZoneType]int
	DurationDistribution map[string]map[string]float64 // "overall"/type -> quantile name -> value
	AvgFeaturesByType    map[ZoneType]map[string]float64
	TransitionMatrix     map[ZoneType]map[ZoneType]int
	ClusterSummary       map[int]ClusterSummary // absent (nil) unless clustering ran
}

// ClusterSummary describes one k-means cluster's membership.
type ClusterSummary struct {
	Size    int
	Members []int // zone_ids
}

// AnalysisResult is the terminal value produced by Builder.Build.
type AnalysisResult struct {
	RunID            string
	GeneratedAt      time.Time
	Zones            []*Zone
	Data             *frame.Frame
	Statistics       Statistics
	IndicatorContext IndicatorContext

	HypothesisTests map[string]HypothesisTestResult
	Regression      map[string]RegressionResult
	Validation      map[string]ValidationResult

	Metadata map[string]any
}

// NewRunID returns a fresh provenance identifier for an AnalysisResult,
// matching the teacher's use of uuid.New() for entity identifiers.
func NewRunID() string { return uuid.NewString() }

// HypothesisTestResult is the uniform record every C5 test returns.
type HypothesisTestResult struct {
	Hypothesis          string
	TestType            string
	Statistic           float64
	PValue               float64
	Significant          bool
	Alpha                float64
	EffectSize           *float64
	ConfidenceInterval   *[2]float64
	SampleSize           int
	Metadata             map[string]any
	Error                string // set instead of the above when run_all caught a StatisticalError
}

// RegressionResult is the output of an OLS model fit in C6.
type RegressionResult struct {
	TargetVariable  string
	RSquared        float64
	AdjRSquared     float64
	Coefficients    map[string]float64
	PValues         map[string]float64
	Predictions     []float64
	Residuals       []float64
	NObservations   int
	NPredictors     int
	ModelSummary    string
	Metadata        map[string]any
}

// GetSignificantPredictors filters Coefficients to those whose
// p-value is below alpha, carried from the Python original unchanged.
func (r RegressionResult) GetSignificantPredictors(alpha float64) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range r.Coefficients {
		if p, ok := r.PValues[k]; ok && p < alpha {
			out[k] = v
		}
	}
	return out
}

// ValidationResult is the output of any C7 protocol.
type ValidationResult struct {
	ValidationType  string
	Success         bool
	TrainMetrics    map[string]any
	TestMetrics     map[string]any
	DegradationPct  *float64
	Iterations      *int
	Metadata        map[string]any
}
