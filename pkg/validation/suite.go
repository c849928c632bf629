// Package validation implements the C7 validation suite: protocols
// that check whether a fitted regression model, or the zone-detection
// pipeline itself, generalizes beyond the sample it was built on.
package validation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/model"
	"github.com/bquant-go/bquant/pkg/regression"
)

// Suite runs the validation protocols.
type Suite struct {
	Analyzer *regression.Analyzer
}

func NewSuite() *Suite {
	return &Suite{Analyzer: regression.NewAnalyzer()}
}

// fitted is a regression model reduced to what's needed to score new
// zones: an intercept plus per-predictor coefficients.
type fitted struct {
	intercept    float64
	coefficients map[string]float64
}

func extractFitted(r model.RegressionResult) fitted {
	intercept, _ := r.Metadata["intercept"].(float64)
	return fitted{intercept: intercept, coefficients: r.Coefficients}
}

func (f fitted) predict(rec model.FeatureRecord) (float64, bool) {
	pred := f.intercept
	for key, coef := range f.coefficients {
		v, ok := rec.Float(key)
		if !ok {
			return 0, false
		}
		pred += coef * v
	}
	return pred, true
}

func scoreMetrics(actual, predicted []float64) map[string]any {
	n := len(actual)
	if n == 0 {
		return map[string]any{"r_squared": 0.0, "mae": 0.0, "n": 0}
	}
	meanY := stat.Mean(actual, nil)
	var ssRes, ssTot, sumAbs float64
	for i := 0; i < n; i++ {
		resid := actual[i] - predicted[i]
		ssRes += resid * resid
		ssTot += (actual[i] - meanY) * (actual[i] - meanY)
		sumAbs += math.Abs(resid)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return map[string]any{"r_squared": r2, "mae": sumAbs / float64(n), "n": n}
}

func targetValue(target string, rec model.FeatureRecord) float64 {
	if target == "duration" {
		return float64(rec.Duration)
	}
	return rec.PriceReturn
}

// OutOfSampleTest fits on the first trainFrac of zones (in their given
// order) and scores the model on the remainder.
func (s *Suite) OutOfSampleTest(zones []*model.Zone, target string, predictors []string, trainFrac float64) (model.ValidationResult, error) {
	n := len(zones)
	if n < 10 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "out_of_sample", Reason: "fewer than 10 zones"}
	}
	if trainFrac <= 0 || trainFrac >= 1 {
		trainFrac = 0.7
	}
	split := int(float64(n) * trainFrac)
	if split < 3 || n-split < 2 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "out_of_sample", Reason: "split leaves too few observations on one side"}
	}
	train, test := zones[:split], zones[split:]

	result, err := s.fitTarget(train, target, predictors)
	if err != nil {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "out_of_sample", Reason: "training fit failed", Cause: err}
	}
	model_ := extractFitted(result)

	trainMetrics := scoreMetrics(addResiduals(result.Predictions, result.Residuals), result.Predictions)
	testActual, testPred := applyModel(model_, test, target)
	testMetrics := scoreMetrics(testActual, testPred)

	trainR2, _ := trainMetrics["r_squared"].(float64)
	testR2, _ := testMetrics["r_squared"].(float64)
	degradation := 0.0
	if trainR2 != 0 {
		degradation = (trainR2 - testR2) / math.Abs(trainR2) * 100
	}

	return model.ValidationResult{
		ValidationType: "out_of_sample",
		Success:        testR2 > 0,
		TrainMetrics:   trainMetrics,
		TestMetrics:    testMetrics,
		DegradationPct: &degradation,
		Metadata:       map[string]any{"train_n": len(train), "test_n": len(test), "train_frac": trainFrac},
	}, nil
}

// WalkForwardTest repeats the out-of-sample protocol over rolling
// windows, reporting the average test R2 and its degradation relative
// to the average train R2 across folds.
func (s *Suite) WalkForwardTest(zones []*model.Zone, target string, predictors []string, windowSize, stepSize int) (model.ValidationResult, error) {
	n := len(zones)
	if windowSize <= 0 {
		windowSize = n / 2
	}
	if stepSize <= 0 {
		stepSize = windowSize / 4
		if stepSize < 1 {
			stepSize = 1
		}
	}
	var trainR2s, testR2s []float64
	iterations := 0
	for start := 0; start+windowSize+stepSize <= n; start += stepSize {
		train := zones[start : start+windowSize]
		test := zones[start+windowSize : start+windowSize+stepSize]
		result, err := s.fitTarget(train, target, predictors)
		if err != nil {
			continue
		}
		model_ := extractFitted(result)
		trainMetrics := scoreMetrics(addResiduals(result.Predictions, result.Residuals), result.Predictions)
		testActual, testPred := applyModel(model_, test, target)
		testMetrics := scoreMetrics(testActual, testPred)
		tr, _ := trainMetrics["r_squared"].(float64)
		te, _ := testMetrics["r_squared"].(float64)
		trainR2s = append(trainR2s, tr)
		testR2s = append(testR2s, te)
		iterations++
	}
	if iterations == 0 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "walk_forward", Reason: "no fold fit successfully; window/step too large for the batch"}
	}
	avgTrain, avgTest := stat.Mean(trainR2s, nil), stat.Mean(testR2s, nil)
	degradation := 0.0
	if avgTrain != 0 {
		degradation = (avgTrain - avgTest) / math.Abs(avgTrain) * 100
	}
	return model.ValidationResult{
		ValidationType: "walk_forward",
		Success:        avgTest > 0,
		TrainMetrics:   map[string]any{"avg_r_squared": avgTrain},
		TestMetrics:    map[string]any{"avg_r_squared": avgTest, "fold_r_squared": testR2s},
		DegradationPct: &degradation,
		Iterations:     &iterations,
		Metadata:       map[string]any{"window_size": windowSize, "step_size": stepSize},
	}, nil
}

// SensitivityAnalysis measures how stable a downstream statistic is
// under perturbation of one upstream parameter. rerun is supplied by
// the caller (typically a closure over a pipeline.Builder) so this
// package stays decoupled from C4; it is called once per paramGrid
// value and must return the zones produced at that setting.
func (s *Suite) SensitivityAnalysis(paramGrid []float64, rerun func(param float64) ([]*model.Zone, error), statistic func([]*model.Zone) float64) (model.ValidationResult, error) {
	if len(paramGrid) < 2 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "sensitivity_analysis", Reason: "need at least 2 grid points"}
	}
	values := make([]float64, 0, len(paramGrid))
	perParam := make(map[string]any, len(paramGrid))
	for _, p := range paramGrid {
		zones, err := rerun(p)
		if err != nil {
			continue
		}
		v := statistic(zones)
		values = append(values, v)
		perParam[formatParam(p)] = v
	}
	if len(values) < 2 {
		return model.ValidationResult{}, &bqerrors.ValidationError{Protocol: "sensitivity_analysis", Reason: "fewer than 2 grid points produced a result"}
	}
	mean := stat.Mean(values, nil)
	sd := math.Sqrt(stat.Variance(values, nil))
	cv := 0.0
	if mean != 0 {
		cv = sd / math.Abs(mean)
	}
	// A coefficient of variation under 0.15 across the grid is treated
	// as "stable"; above it the statistic is sensitive to the parameter.
	stable := cv < 0.15
	return model.ValidationResult{
		ValidationType: "sensitivity_analysis",
		Success:        stable,
		TrainMetrics:   map[string]any{"mean": mean, "stddev": sd},
		TestMetrics:    perParam,
		Metadata:       map[string]any{"coefficient_of_variation": cv, "grid_size": len(values)},
	}, nil
}

func (s *Suite) fitTarget(zones []*model.Zone, target string, predictors []string) (model.RegressionResult, error) {
	if target == "duration" {
		return s.Analyzer.PredictZoneDuration(zones, predictors)
	}
	return s.Analyzer.PredictPriceReturn(zones, predictors)
}

func applyModel(m fitted, zones []*model.Zone, target string) (actual, predicted []float64) {
	for _, z := range zones {
		rec := z.ToRecord()
		pred, ok := m.predict(rec)
		if !ok {
			continue
		}
		actual = append(actual, targetValue(target, rec))
		predicted = append(predicted, pred)
	}
	return actual, predicted
}

func addResiduals(predictions, residuals []float64) []float64 {
	out := make([]float64, len(predictions))
	for i := range predictions {
		out[i] = predictions[i] + residuals[i]
	}
	return out
}

func formatParam(p float64) string {
	return fmt.Sprintf("%.6g", p)
}
