package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bquant-go/bquant/pkg/model"
)

// pairedFloats reads two numeric feature keys off records, keeping
// only the indices where both are present.
func pairedFloats(records []model.FeatureRecord, keyA, keyB string) ([]float64, []float64) {
	var a, b []float64
	for _, r := range records {
		va, oka := r.Float(keyA)
		vb, okb := r.Float(keyB)
		if !oka || !okb {
			continue
		}
		a = append(a, va)
		b = append(b, vb)
	}
	return a, b
}

// pairedFloatsAbs is pairedFloats with keyB's values taken in absolute
// value, used where only the magnitude of a signed feature matters.
func pairedFloatsAbs(records []model.FeatureRecord, keyA, keyB string) ([]float64, []float64) {
	a, b := pairedFloats(records, keyA, keyB)
	for i := range b {
		b[i] = math.Abs(b[i])
	}
	return a, b
}

// correlationTTest returns the t-statistic and two-tailed p-value for
// the null hypothesis that Pearson r is 0, with n-2 degrees of freedom.
func correlationTTest(r float64, n int) (tStat, p float64) {
	dof := float64(n - 2)
	if dof <= 0 || math.Abs(r) >= 1 {
		return 0, 1
	}
	tStat = r * math.Sqrt(dof/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	p = 2 * (1 - dist.CDF(math.Abs(tStat)))
	return tStat, p
}

// fisherZCI returns the alpha-level confidence interval for a Pearson
// correlation via the Fisher z-transform.
func fisherZCI(r float64, n int, alpha float64) [2]float64 {
	if n < 4 || math.Abs(r) >= 1 {
		return [2]float64{r, r}
	}
	z := 0.5 * math.Log((1+r)/(1-r))
	se := 1 / math.Sqrt(float64(n-3))
	crit := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - alpha/2)
	lo := math.Tanh(z - crit*se)
	hi := math.Tanh(z + crit*se)
	return [2]float64{lo, hi}
}

// welchTTest returns the t-statistic and two-tailed p-value for
// Welch's unequal-variance t-test between two independent samples.
func welchTTest(a, b []float64) (tStat, p float64) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0, 1
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	se := math.Sqrt(va/na + vb/nb)
	if se == 0 {
		return 0, 1
	}
	tStat = (ma - mb) / se
	dof := math.Pow(va/na+vb/nb, 2) / (math.Pow(va/na, 2)/(na-1) + math.Pow(vb/nb, 2)/(nb-1))
	if dof <= 0 {
		dof = na + nb - 2
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	p = 2 * (1 - dist.CDF(math.Abs(tStat)))
	return tStat, p
}

// cohensD is the standardized mean difference between two samples
// using the pooled standard deviation.
func cohensD(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	pooled := math.Sqrt(((na-1)*va + (nb-1)*vb) / (na + nb - 2))
	if pooled == 0 {
		return 0
	}
	return (ma - mb) / pooled
}

// runsTest computes the Wald-Wolfowitz runs z-statistic for a
// sequence's bull/bear/neutral labels collapsed to a binary above/below
// the sequence's own modal type, and its two-tailed p-value.
func runsTest(seq []model.ZoneType) (z, p float64) {
	n := len(seq)
	if n < 2 {
		return 0, 1
	}
	counts := map[model.ZoneType]int{}
	for _, t := range seq {
		counts[t]++
	}
	var mode model.ZoneType
	best := -1
	for t, c := range counts {
		if c > best {
			best, mode = c, t
		}
	}
	n1 := counts[mode]
	n2 := n - n1
	if n1 == 0 || n2 == 0 {
		return 0, 1
	}
	runs := 1
	for i := 1; i < n; i++ {
		if (seq[i] == mode) != (seq[i-1] == mode) {
			runs++
		}
	}
	nf1, nf2 := float64(n1), float64(n2)
	expectedRuns := 2*nf1*nf2/(nf1+nf2) + 1
	variance := (2 * nf1 * nf2 * (2*nf1*nf2 - nf1 - nf2)) / (math.Pow(nf1+nf2, 2) * (nf1 + nf2 - 1))
	if variance <= 0 {
		return 0, 1
	}
	z = (float64(runs) - expectedRuns) / math.Sqrt(variance)
	p = 2 * (1 - distuv.Normal{Mu: 0, Sigma: 1}.CDF(math.Abs(z)))
	return z, p
}

// chiSquareUniformity tests whether the type-label frequencies in seq
// match a uniform distribution across the observed types.
func chiSquareUniformity(seq []model.ZoneType) (chi2 float64, dof int) {
	counts := map[model.ZoneType]int{}
	for _, t := range seq {
		counts[t]++
	}
	k := len(counts)
	if k < 2 {
		return 0, 0
	}
	expected := float64(len(seq)) / float64(k)
	for _, c := range counts {
		diff := float64(c) - expected
		chi2 += diff * diff / expected
	}
	return chi2, k - 1
}

// holmBonferroni applies the Holm step-down procedure to a set of
// p-values at family-wise level alpha, returning per-hypothesis
// significance in the original order.
func holmBonferroni(pValues []float64, alpha float64) []bool {
	n := len(pValues)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return pValues[idx[i]] < pValues[idx[j]] })

	sig := make([]bool, n)
	for rank, i := range idx {
		threshold := alpha / float64(n-rank)
		if pValues[i] >= threshold {
			break // Holm stops at the first failure to reject
		}
		sig[i] = true
	}
	return sig
}

// percentile returns the p-th (0..1) empirical percentile of xs,
// sorting xs itself in place (callers pass a copy to keep theirs).
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	return stat.Quantile(p, stat.Empirical, xs, nil)
}

// pooledTTest returns the t-statistic and two-tailed p-value for an
// equal-variance (pooled) independent t-test between two samples.
func pooledTTest(a, b []float64) (tStat, p float64) {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0, 1
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	pooledVar := ((na-1)*va + (nb-1)*vb) / (na + nb - 2)
	se := math.Sqrt(pooledVar * (1/na + 1/nb))
	if se == 0 {
		return 0, 1
	}
	tStat = (ma - mb) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: na + nb - 2}
	p = 2 * (1 - dist.CDF(math.Abs(tStat)))
	return tStat, p
}

// normalityPValue gates the parametric/nonparametric choice in
// SupportResistanceTest. It reports the Jarque-Bera statistic's
// p-value (skewness and excess kurtosis jointly, chi-squared with 2
// degrees of freedom) rather than a full Shapiro-Wilk implementation,
// which needs no coefficient table and is a standard substitute for
// the same normality gate. Samples under 8 points are assumed normal;
// JB has little power there anyway.
func normalityPValue(xs []float64) float64 {
	if len(xs) < 8 {
		return 1
	}
	skew := stat.Skew(xs, nil)
	kurt := stat.ExKurtosis(xs, nil)
	jb := float64(len(xs)) / 6 * (skew*skew + kurt*kurt/4)
	return 1 - distuv.ChiSquared{K: 2}.CDF(jb)
}

// mannWhitneyU returns the U statistic (for sample a) and its
// two-tailed p-value via the normal approximation, with average ranks
// for ties and no continuity correction.
func mannWhitneyU(a, b []float64) (u, p float64) {
	na, nb := len(a), len(b)
	if na == 0 || nb == 0 {
		return 0, 1
	}
	type sample struct {
		val     float64
		inA     bool
		rankSum float64
	}
	all := make([]sample, 0, na+nb)
	for _, v := range a {
		all = append(all, sample{val: v, inA: true})
	}
	for _, v := range b {
		all = append(all, sample{val: v, inA: false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].val < all[j].val })

	ranks := make([]float64, len(all))
	for i := 0; i < len(all); {
		j := i
		for j+1 < len(all) && all[j+1].val == all[i].val {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[k] = avgRank
		}
		i = j + 1
	}

	var rankSumA float64
	for i, s := range all {
		if s.inA {
			rankSumA += ranks[i]
		}
	}
	nf, mf := float64(na), float64(nb)
	u = rankSumA - nf*(nf+1)/2
	meanU := nf * mf / 2
	sdU := math.Sqrt(nf * mf * (nf + mf + 1) / 12)
	if sdU == 0 {
		return u, 1
	}
	z := (u - meanU) / sdU
	p = 2 * (1 - distuv.Normal{Mu: 0, Sigma: 1}.CDF(math.Abs(z)))
	return u, p
}

// adfRegression regresses delta[t] = beta*lagged[t] + c and returns
// beta plus its t-statistic, the core of the simplified ADF check.
func adfRegression(lagged, delta []float64) (beta, tStat float64) {
	n := len(lagged)
	if n < 3 {
		return 0, 0
	}
	mx, my := stat.Mean(lagged, nil), stat.Mean(delta, nil)
	var num, den float64
	for i := 0; i < n; i++ {
		dx := lagged[i] - mx
		num += dx * (delta[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0, 0
	}
	beta = num / den
	c := my - beta*mx

	var sse float64
	for i := 0; i < n; i++ {
		pred := c + beta*lagged[i]
		resid := delta[i] - pred
		sse += resid * resid
	}
	dof := float64(n - 2)
	if dof <= 0 || den == 0 {
		return beta, 0
	}
	variance := sse / dof
	seBeta := math.Sqrt(variance / den)
	if seBeta == 0 {
		return beta, 0
	}
	tStat = beta / seBeta
	return beta, tStat
}
