// Package pipeline implements the C4 universal zone analyzer: a
// fluent Builder that wires the C1 indicator registry, a C2 detection
// strategy, and the C3 feature strategies into one AnalysisResult,
// mirroring the notebook chain
// analyze_zones(df).with_indicator(...).detect_zones(...).with_strategies(...).build().
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/internal/config"
	zaplogrus "github.com/bquant-go/bquant/internal/logging/zaplogrus"
	"github.com/bquant-go/bquant/internal/services/workerpool"
	"github.com/bquant-go/bquant/pkg/features"
	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/indicators"
	"github.com/bquant-go/bquant/pkg/model"
	"github.com/bquant-go/bquant/pkg/zones"
)

// SwingScope selects whether swing pivots are computed once over the
// whole frame (global) and attributed to zones, or fresh per zone.
type SwingScope string

const (
	ScopeGlobal  SwingScope = "global"
	ScopePerZone SwingScope = "per_zone"
)

// ClusteringOptions configures the optional k-means pass run by Build.
type ClusteringOptions struct {
	Enabled   bool
	NClusters int
	MaxIters  int
	Seed      int64
	MinZones  int // below this many zones, clustering is skipped rather than degenerate
}

// Builder assembles an analysis run. Every With*/Analyze method
// mutates and returns the receiver so calls can be chained; Build
// executes the assembled pipeline exactly once.
type Builder struct {
	registry  *indicators.Registry
	base      *frame.Frame
	detection zones.Strategy
	strategies []features.Strategy

	swingScope  SwingScope
	swingFamily features.SwingFamily
	swingParams features.SwingParams
	autoSwingThresholds bool

	clustering ClusteringOptions

	pool *workerpool.Pool

	cacheEnabled bool
	cached       *model.AnalysisResult

	logger *zaplogrus.Logger
	err    error
}

// New starts a builder over f using a freshly populated indicator registry.
func New(f *frame.Frame) *Builder {
	return &Builder{
		registry:    indicators.NewRegistry(),
		base:        f,
		swingScope:  ScopeGlobal,
		swingFamily: features.SwingFindPeaks,
		swingParams: features.DefaultSwingParams(),
		logger:      zaplogrus.New(),
	}
}

// WithLogger overrides the default logger.
func (b *Builder) WithLogger(l *zaplogrus.Logger) *Builder {
	b.logger = l
	return b
}

// WithRegistry overrides the indicator registry, e.g. with caller-registered custom indicators.
func (b *Builder) WithRegistry(r *indicators.Registry) *Builder {
	b.registry = r
	return b
}

// WithIndicator computes spec against the current frame and appends
// its output columns, so later With*/DetectZones calls can reference them.
func (b *Builder) WithIndicator(spec indicators.Spec) *Builder {
	if b.err != nil {
		return b
	}
	out, _, err := b.registry.Compute(b.base, spec)
	if err != nil {
		b.err = err
		return b
	}
	b.base = out
	return b
}

// DetectZones selects the C2 strategy used to segment the frame.
func (b *Builder) DetectZones(strategy zones.Strategy) *Builder {
	b.detection = strategy
	return b
}

// WithStrategies appends C3 feature strategies to run per zone.
func (b *Builder) WithStrategies(strats ...features.Strategy) *Builder {
	b.strategies = append(b.strategies, strats...)
	return b
}

// WithSwingScope selects whether swing pivots are shared globally or
// recomputed per zone; see features.SwingStrategy.
func (b *Builder) WithSwingScope(scope SwingScope) *Builder {
	b.swingScope = scope
	return b
}

// WithSwingFamily selects which pivot algorithm the swing strategy and
// global pivot pass both use.
func (b *Builder) WithSwingFamily(family features.SwingFamily) *Builder {
	b.swingFamily = family
	return b
}

// WithSwingPreset applies a named SwingParams preset (see internal/config).
func (b *Builder) WithSwingPreset(params features.SwingParams) *Builder {
	b.swingParams = params
	return b
}

// WithAutoSwingThresholds derives MinAmplitudePct/DeviationPct from the
// frame's own realized volatility instead of using the fixed preset,
// so pivots stay meaningful across instruments with very different
// price scales.
func (b *Builder) WithAutoSwingThresholds(enabled bool) *Builder {
	b.autoSwingThresholds = enabled
	return b
}

// WithWorkerPool supplies a pool used to parallelize per-zone feature
// computation; without one, Build runs strategies sequentially.
func (b *Builder) WithWorkerPool(p *workerpool.Pool) *Builder {
	b.pool = p
	return b
}

// WithCache opts into memoizing the result of the first Build call;
// subsequent Build calls on the same builder return it without
// recomputation. It is not safe to mutate the builder between calls
// when enabled.
func (b *Builder) WithCache(enabled bool) *Builder {
	b.cacheEnabled = enabled
	return b
}

// Analyze configures the optional clustering pass. It does not run
// anything itself; Build does.
func (b *Builder) Analyze(clustering bool, nClusters int) *Builder {
	b.clustering = ClusteringOptions{
		Enabled:   clustering,
		NClusters: nClusters,
		MaxIters:  100,
		MinZones:  10,
	}
	return b
}

// WithConfig applies a loaded internal/config.Config wholesale: the
// active swing preset, clustering options, a worker pool sized per
// cfg.Workers (started immediately, owned by the builder from then
// on), and the logger's level.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	if cfg == nil {
		return b
	}
	if preset, ok := cfg.Swing.Presets[cfg.Swing.DefaultPreset]; ok {
		b.swingParams = features.SwingParams{
			Lookback:        preset.Lookback,
			MinAmplitudePct: preset.MinAmplitudePct,
			PivotWindow:     preset.PivotWindow,
			DeviationPct:    preset.DeviationPct,
			MinLegs:         preset.MinLegs,
		}
	}
	b.clustering = ClusteringOptions{
		Enabled:   cfg.Clustering.Enabled,
		NClusters: cfg.Clustering.NClusters,
		MaxIters:  cfg.Clustering.MaxIters,
		Seed:      cfg.Clustering.Seed,
		MinZones:  cfg.Clustering.MinZones,
	}
	if cfg.Workers.PoolSize > 0 {
		pool := workerpool.New(workerpool.Config{
			Workers:   cfg.Workers.PoolSize,
			QueueSize: cfg.Workers.QueueSize,
		})
		if err := pool.Start(); err != nil {
			b.logger.WithError(err).Warn("worker pool failed to start, falling back to sequential feature computation")
		} else {
			b.pool = pool
		}
	}
	b.logger.SetLevel(parseLogLevel(cfg.LogLevel))
	return b
}

func parseLogLevel(level string) zaplogrus.Level {
	switch level {
	case "debug":
		return zaplogrus.DebugLevel
	case "warn", "warning":
		return zaplogrus.WarnLevel
	case "error":
		return zaplogrus.ErrorLevel
	default:
		return zaplogrus.InfoLevel
	}
}

// Build executes indicator resolution (already applied), detection,
// global-swing attribution, per-zone feature computation, optional
// clustering, and aggregate statistics, returning the terminal result.
func (b *Builder) Build() (*model.AnalysisResult, error) {
	if b.cacheEnabled && b.cached != nil {
		return b.cached, nil
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.detection == nil {
		return nil, &bqerrors.DetectionError{Strategy: "", Reason: "no detection strategy configured"}
	}

	zs, err := b.detection.Detect(b.base)
	if err != nil {
		b.logger.WithError(err).Error("zone detection failed")
		return nil, err
	}
	b.logger.Debugf("detected %d zones over %d bars", len(zs), b.base.Len())

	if b.autoSwingThresholds {
		b.swingParams = autoThresholds(b.base, b.swingParams)
	}

	if b.swingScope == ScopeGlobal {
		attachGlobalSwingContext(b.base, zs, b.swingFamily, b.swingParams)
	}

	for _, z := range zs {
		computeUniversalPredicates(z, b.base)
	}

	b.runStrategies(zs)

	var clusterSummary map[int]model.ClusterSummary
	if b.clustering.Enabled && len(zs) >= max(1, b.clustering.MinZones) {
		clusterSummary = runClustering(zs, b.clustering)
		b.logger.Debugf("clustering produced %d clusters", len(clusterSummary))
	} else if b.clustering.Enabled {
		b.logger.Warnf("clustering skipped: %d zones below min_zones=%d", len(zs), b.clustering.MinZones)
	}

	ctx := model.IndicatorContext{}
	if len(zs) > 0 {
		ctx = zs[0].IndicatorContext
	}

	result := &model.AnalysisResult{
		RunID:            model.NewRunID(),
		GeneratedAt:      time.Now().UTC(),
		Zones:            zs,
		Data:             b.base,
		Statistics:       computeStatistics(zs, clusterSummary),
		IndicatorContext: ctx,
		Metadata:         map[string]any{"swing_scope": string(b.swingScope), "n_zones": len(zs)},
	}

	if b.cacheEnabled {
		b.cached = result
	}
	return result, nil
}

// runStrategies computes every configured C3 strategy for every zone,
// merging results into zone.Features. A strategy failing on one zone
// is recorded under that zone's metadata and does not abort the run,
// per spec section 6 (partial-failure tolerance). When a worker pool
// is configured, the (independent, per-zone) work is parallelized.
func (b *Builder) runStrategies(zs []*model.Zone) {
	if len(b.strategies) == 0 {
		return
	}
	if b.pool == nil || !b.pool.IsRunning() {
		for _, z := range zs {
			b.runStrategiesForZone(z)
		}
		return
	}

	done := make(chan struct{}, len(zs))
	for _, z := range zs {
		z := z
		task := workerpool.Task{
			ID: fmt.Sprintf("zone-features-%d", z.ZoneID),
			Execute: func() error {
				b.runStrategiesForZone(z)
				done <- struct{}{}
				return nil
			},
		}
		if err := b.pool.Submit(task); err != nil {
			b.logger.Warnf("worker pool submit failed for zone %d, running inline: %v", z.ZoneID, err)
			b.runStrategiesForZone(z)
			done <- struct{}{}
		}
	}
	for range zs {
		<-done
	}
}

func (b *Builder) runStrategiesForZone(z *model.Zone) {
	for _, strat := range b.strategies {
		out, err := strat.Compute(z, b.base)
		if err != nil {
			b.logger.WithField("zone_id", z.ZoneID).WithError(err).Warn(strat.Key(), " feature strategy failed")
			z.RecordFeatureError(strat.Key(), err)
			continue
		}
		for k, v := range out {
			if k == "metadata" {
				mergeFeatureMetadata(z, v)
				continue
			}
			z.Features[k] = v
		}
	}
}

// mergeFeatureMetadata folds a strategy's "metadata" output into
// zone.Features["metadata"] key by key instead of overwriting the
// whole bag, so one strategy's diagnostics (and any errors already
// recorded by Zone.RecordFeatureError) survive the next strategy's
// own metadata merging in.
func mergeFeatureMetadata(z *model.Zone, v any) {
	sub, ok := v.(map[string]any)
	if !ok {
		return
	}
	bag := z.FeatureMetadata()
	for k, sv := range sub {
		bag[k] = sv
	}
}

// autoThresholds rescales the percentage-based swing thresholds to the
// frame's own realized volatility (mean absolute bar-to-bar return),
// so a 1% default threshold tuned for one instrument does not produce
// either noise-level or unreachable pivots on another.
func autoThresholds(f *frame.Frame, base features.SwingParams) features.SwingParams {
	prices := f.CloseFloats()
	if len(prices) < 2 {
		return base
	}
	var sum float64
	n := 0
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		d := prices[i] - prices[i-1]
		if d < 0 {
			d = -d
		}
		sum += d / prices[i-1]
		n++
	}
	if n == 0 {
		return base
	}
	avgMove := sum / float64(n)
	out := base
	out.MinAmplitudePct = avgMove * 3
	out.DeviationPct = avgMove * 6
	return out
}

// attachGlobalSwingContext computes pivots once over the whole frame
// and assigns the subset falling within each zone's index range to
// zone.SwingContext, per the global swing-scope contract.
func attachGlobalSwingContext(f *frame.Frame, zs []*model.Zone, family features.SwingFamily, params features.SwingParams) {
	pivots := features.ComputePivots(family, f.CloseFloats(), f.Timestamps, 0, params)
	for _, z := range zs {
		var inZone []model.SwingPoint
		for _, p := range pivots {
			if p.Index >= z.StartIdx && p.Index < z.EndIdx {
				inZone = append(inZone, p)
			}
		}
		z.SwingContext = inZone
	}
}

// computeUniversalPredicates fills in the cross-strategy feature keys
// every zone gets regardless of which C3 strategies ran: duration and
// price_return come from the zone itself; the rest are derived from
// its own close series.
func computeUniversalPredicates(z *model.Zone, parent *frame.Frame) {
	rec := z.ToRecord()
	z.Features["duration"] = int64(rec.Duration)
	z.Features["price_return"] = rec.PriceReturn

	closePrices := z.Data.CloseFloats()
	if len(closePrices) == 0 {
		return
	}
	lo, hi := closePrices[0], closePrices[0]
	for _, v := range closePrices {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo != 0 {
		z.Features["price_range_pct"] = (hi - lo) / absf(lo)
	}

	if primary, ok := z.Data.Column(z.IndicatorContext.DetectionIndicator); ok {
		z.Features["correlation_price_hist"] = pearson(closePrices, primary)
	}

	peak := closePrices[0]
	maxDrawdown := 0.0
	trough := closePrices[0]
	maxRally := 0.0
	for _, v := range closePrices {
		if v > peak {
			peak = v
		}
		if peak != 0 {
			dd := (peak - v) / absf(peak)
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
		if v < trough {
			trough = v
		}
		if trough != 0 {
			rl := (v - trough) / absf(trough)
			if rl > maxRally {
				maxRally = rl
			}
		}
	}
	z.Features["drawdown_from_peak"] = maxDrawdown
	z.Features["rally_from_trough"] = maxRally
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func pearson(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 2 {
		return 0
	}
	return stat.Correlation(x[:n], y[:n], nil)
}

// computeStatistics assembles the AnalysisResult.Statistics block:
// per-type counts, duration quantiles, average features, and the
// bull/bear/neutral transition matrix in detection order.
func computeStatistics(zs []*model.Zone, clusters map[int]model.ClusterSummary) model.Statistics {
	stats := model.Statistics{
		CountByType:          make(map[model.ZoneType]int),
		DurationDistribution: make(map[string]map[string]float64),
		AvgFeaturesByType:    make(map[model.ZoneType]map[string]float64),
		TransitionMatrix:     make(map[model.ZoneType]map[model.ZoneType]int),
		ClusterSummary:       clusters,
	}

	durationsByType := make(map[model.ZoneType][]float64)
	var allDurations []float64
	featureSumsByType := make(map[model.ZoneType]map[string]float64)
	featureCountsByType := make(map[model.ZoneType]map[string]int)

	for _, z := range zs {
		stats.CountByType[z.Type]++
		d := float64(z.Duration)
		allDurations = append(allDurations, d)
		durationsByType[z.Type] = append(durationsByType[z.Type], d)

		if featureSumsByType[z.Type] == nil {
			featureSumsByType[z.Type] = make(map[string]float64)
			featureCountsByType[z.Type] = make(map[string]int)
		}
		for k, v := range z.Features {
			if k == "metadata" {
				continue
			}
			f, ok := v.(float64)
			if !ok {
				if i, ok2 := v.(int64); ok2 {
					f, ok = float64(i), true
				}
			}
			if !ok {
				continue
			}
			featureSumsByType[z.Type][k] += f
			featureCountsByType[z.Type][k]++
		}
	}

	stats.DurationDistribution["overall"] = quantiles(allDurations)
	for t, ds := range durationsByType {
		stats.DurationDistribution[string(t)] = quantiles(ds)
	}

	for t, sums := range featureSumsByType {
		avg := make(map[string]float64, len(sums))
		for k, sum := range sums {
			if c := featureCountsByType[t][k]; c > 0 {
				avg[k] = sum / float64(c)
			}
		}
		stats.AvgFeaturesByType[t] = avg
	}

	for i := 0; i+1 < len(zs); i++ {
		from, to := zs[i].Type, zs[i+1].Type
		if stats.TransitionMatrix[from] == nil {
			stats.TransitionMatrix[from] = make(map[model.ZoneType]int)
		}
		stats.TransitionMatrix[from][to]++
	}

	return stats
}

func quantiles(xs []float64) map[string]float64 {
	if len(xs) == 0 {
		return map[string]float64{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	out := map[string]float64{
		"p10":    stat.Quantile(0.10, stat.Empirical, sorted, nil),
		"p25":    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		"median": stat.Quantile(0.50, stat.Empirical, sorted, nil),
		"p75":    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		"p90":    stat.Quantile(0.90, stat.Empirical, sorted, nil),
		"mean":   stat.Mean(sorted, nil),
	}
	return out
}
