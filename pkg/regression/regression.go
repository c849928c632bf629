// Package regression implements the C6 regression analyzer: OLS
// models relating zone features to duration or price_return, with the
// diagnostic battery (VIF, AIC, BIC, F-statistic, Durbin-Watson) every
// model result carries.
package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/model"
)

// DefaultDurationPredictors are the feature keys PredictZoneDuration
// uses when the caller does not supply its own list.
var DefaultDurationPredictors = []string{"macd_amplitude", "hist_amplitude", "correlation_price_hist", "price_range_pct", "num_peaks", "num_troughs"}

// DefaultReturnPredictors are the feature keys PredictPriceReturn uses
// when the caller does not supply its own list.
var DefaultReturnPredictors = []string{"duration", "macd_amplitude", "correlation_price_hist", "drawdown_from_peak", "hist_slope", "num_peaks"}

// Analyzer fits OLS models over a batch of zones.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// PredictZoneDuration fits duration ~ predictors. An empty predictors
// slice uses DefaultDurationPredictors.
func (a *Analyzer) PredictZoneDuration(zones []*model.Zone, predictors []string) (model.RegressionResult, error) {
	if len(predictors) == 0 {
		predictors = DefaultDurationPredictors
	}
	y := make([]float64, len(zones))
	for i, z := range zones {
		y[i] = float64(z.Duration)
	}
	return fit("duration", zones, predictors, y)
}

// PredictPriceReturn fits price_return ~ predictors. An empty
// predictors slice uses DefaultReturnPredictors.
func (a *Analyzer) PredictPriceReturn(zones []*model.Zone, predictors []string) (model.RegressionResult, error) {
	if len(predictors) == 0 {
		predictors = DefaultReturnPredictors
	}
	y := make([]float64, len(zones))
	for i, z := range zones {
		y[i] = z.ToRecord().PriceReturn
	}
	return fit("price_return", zones, predictors, y)
}

// fit builds the design matrix from predictors (dropping any zone
// missing one of them), solves OLS by QR decomposition, and computes
// the full diagnostic battery.
func fit(target string, zones []*model.Zone, predictors []string, y []float64) (model.RegressionResult, error) {
	rows, yy, predictors := buildRows(zones, predictors, y)
	n := len(rows)
	p := len(predictors)
	if n <= p+1 {
		return model.RegressionResult{}, &bqerrors.RegressionError{Target: target, Reason: fmt.Sprintf("need more than %d observations for %d predictors, have %d", p+1, p, n)}
	}

	xData := make([]float64, n*(p+1))
	for i, row := range rows {
		xData[i*(p+1)] = 1 // intercept
		for j, v := range row {
			xData[i*(p+1)+1+j] = v
		}
	}
	X := mat.NewDense(n, p+1, xData)
	Y := mat.NewVecDense(n, yy)

	var qr mat.QR
	qr.Factorize(X)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, Y); err != nil {
		return model.RegressionResult{}, &bqerrors.RegressionError{Target: target, Reason: "singular design matrix", Cause: err}
	}

	predictions := make([]float64, n)
	residuals := make([]float64, n)
	var ssRes, ssTot float64
	meanY := stat.Mean(yy, nil)
	for i := 0; i < n; i++ {
		var pred float64
		for j := 0; j <= p; j++ {
			pred += X.At(i, j) * beta.AtVec(j)
		}
		predictions[i] = pred
		residuals[i] = yy[i] - pred
		ssRes += residuals[i] * residuals[i]
		ssTot += (yy[i] - meanY) * (yy[i] - meanY)
	}

	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}
	dofResidual := float64(n - p - 1)
	adjRSquared := 1 - (1-rSquared)*float64(n-1)/dofResidual

	sigma2 := ssRes / dofResidual
	coefVar := coefficientVariances(X, sigma2)
	coefficients := make(map[string]float64, p)
	pValues := make(map[string]float64, p)
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dofResidual}
	for j, name := range predictors {
		b := beta.AtVec(j + 1)
		coefficients[name] = b
		se := math.Sqrt(coefVar[j+1])
		if se == 0 {
			pValues[name] = 1
			continue
		}
		t := b / se
		pValues[name] = 2 * (1 - tDist.CDF(math.Abs(t)))
	}

	fStat := 0.0
	if p > 0 && ssRes > 0 {
		fStat = ((ssTot - ssRes) / float64(p)) / (ssRes / dofResidual)
	}
	aic := float64(n)*math.Log(ssRes/float64(n)) + 2*float64(p+1)
	bic := float64(n)*math.Log(ssRes/float64(n)) + float64(p+1)*math.Log(float64(n))
	dw := durbinWatson(residuals)
	vif := varianceInflationFactors(rows, predictors)

	summary := fmt.Sprintf("%s ~ %v (n=%d, R2=%.4f, adjR2=%.4f)", target, predictors, n, rSquared, adjRSquared)

	return model.RegressionResult{
		TargetVariable: target,
		RSquared:       rSquared,
		AdjRSquared:    adjRSquared,
		Coefficients:   coefficients,
		PValues:        pValues,
		Predictions:    predictions,
		Residuals:      residuals,
		NObservations:  n,
		NPredictors:    p,
		ModelSummary:   summary,
		Metadata: map[string]any{
			"f_statistic":    fStat,
			"aic":            aic,
			"bic":            bic,
			"durbin_watson":  dw,
			"vif":            vif,
			"intercept":      beta.AtVec(0),
		},
	}, nil
}

// buildRows drops any predictor that is absent for every zone in the
// batch (e.g. macd_amplitude when the pipeline never ran MACD) rather
// than discarding every zone that lacks it, so a run missing one
// predictor family still fits on whichever predictors it does have.
// A zone still missing one of the surviving predictors is excluded
// from the design matrix.
func buildRows(zones []*model.Zone, predictors []string, y []float64) ([][]float64, []float64, []string) {
	records := make([]model.FeatureRecord, len(zones))
	for i, z := range zones {
		records[i] = z.ToRecord()
	}

	usable := make([]string, 0, len(predictors))
	for _, key := range predictors {
		for _, rec := range records {
			if v, present := rec.Float(key); present && !math.IsNaN(v) {
				usable = append(usable, key)
				break
			}
		}
	}

	var rows [][]float64
	var yy []float64
	for i, rec := range records {
		row := make([]float64, len(usable))
		ok := true
		for j, key := range usable {
			v, present := rec.Float(key)
			if !present || math.IsNaN(v) {
				ok = false
				break
			}
			row[j] = v
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
		yy = append(yy, y[i])
	}
	return rows, yy, usable
}

// coefficientVariances returns the diagonal of sigma2*(X^T X)^-1, the
// variance of each OLS coefficient estimate (intercept first).
func coefficientVariances(X *mat.Dense, sigma2 float64) []float64 {
	_, p := X.Dims()
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return make([]float64, p)
	}
	out := make([]float64, p)
	for i := 0; i < p; i++ {
		out[i] = sigma2 * inv.At(i, i)
	}
	return out
}

// varianceInflationFactors regresses each predictor on every other
// predictor and reports 1/(1-R2) for each, flagging multicollinearity.
func varianceInflationFactors(rows [][]float64, predictors []string) map[string]float64 {
	p := len(predictors)
	out := make(map[string]float64, p)
	n := len(rows)
	if n <= p || p < 2 {
		for _, name := range predictors {
			out[name] = 1
		}
		return out
	}
	for target := 0; target < p; target++ {
		others := make([]int, 0, p-1)
		for j := 0; j < p; j++ {
			if j != target {
				others = append(others, j)
			}
		}
		xData := make([]float64, n*(len(others)+1))
		yy := make([]float64, n)
		for i, row := range rows {
			xData[i*(len(others)+1)] = 1
			for k, j := range others {
				xData[i*(len(others)+1)+1+k] = row[j]
			}
			yy[i] = row[target]
		}
		X := mat.NewDense(n, len(others)+1, xData)
		Y := mat.NewVecDense(n, yy)
		var qr mat.QR
		qr.Factorize(X)
		var beta mat.VecDense
		if err := qr.SolveVecTo(&beta, false, Y); err != nil {
			out[predictors[target]] = 1
			continue
		}
		meanY := stat.Mean(yy, nil)
		var ssRes, ssTot float64
		for i := 0; i < n; i++ {
			var pred float64
			for j := 0; j < len(others)+1; j++ {
				pred += X.At(i, j) * beta.AtVec(j)
			}
			ssRes += (yy[i] - pred) * (yy[i] - pred)
			ssTot += (yy[i] - meanY) * (yy[i] - meanY)
		}
		r2 := 0.0
		if ssTot > 0 {
			r2 = 1 - ssRes/ssTot
		}
		if r2 >= 0.999 {
			out[predictors[target]] = math.Inf(1)
			continue
		}
		out[predictors[target]] = 1 / (1 - r2)
	}
	return out
}

// durbinWatson tests residual autocorrelation; values near 2 indicate
// no first-order autocorrelation, near 0 positive, near 4 negative.
func durbinWatson(residuals []float64) float64 {
	if len(residuals) < 2 {
		return 2
	}
	var num, den float64
	for i := 1; i < len(residuals); i++ {
		d := residuals[i] - residuals[i-1]
		num += d * d
	}
	for _, r := range residuals {
		den += r * r
	}
	if den == 0 {
		return 2
	}
	return num / den
}
