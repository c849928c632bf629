// Package features implements the C3 feature strategies: pure
// functions over a zone's data and indicator context that return a
// flat scalar map. None of them mutate the zone or the parent frame;
// the pipeline (C4) merges their output into zone.Features.
package features

import (
	"math"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

// Strategy is the narrow interface every feature family implements.
// Parent is the full input frame, needed only by strategies that read
// global context (Swing in global scope reads zone.SwingContext
// instead, so Parent is unused there; it is reserved for strategies
// that may need it in the future, e.g. cross-zone normalization).
type Strategy interface {
	// Key is the short name features are namespaced under in
	// zone.Features["metadata"][Key].
	Key() string
	Compute(zone *model.Zone, parent *frame.Frame) (map[string]model.Scalar, error)
}

func pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	mx, my := mean(x), mean(y)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// olsSlope fits y = a + b*x by OLS and returns b.
func olsSlope(x, y []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	mx, my := mean(x), mean(y)
	var num, den float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		num += dx * (y[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func stddev(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func skewness(x []float64) float64 {
	n := len(x)
	if n < 3 {
		return 0
	}
	m, sd := mean(x), stddev(x)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += math.Pow((v-m)/sd, 3)
	}
	return (float64(n) / float64((n-1)*(n-2))) * sum
}

func kurtosis(x []float64) float64 {
	n := len(x)
	if n < 4 {
		return 0
	}
	m, sd := mean(x), stddev(x)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += math.Pow((v-m)/sd, 4)
	}
	nf := float64(n)
	g2 := (nf*(nf+1))/((nf-1)*(nf-2)*(nf-3))*sum - 3*math.Pow(nf-1, 2)/((nf-2)*(nf-3))
	return g2
}

// smoothness is 1/(1+m), where m is the mean absolute second
// difference: a jagged series has a large second difference and low
// smoothness, and a straight line scores 1.
func smoothness(x []float64) float64 {
	if len(x) < 3 {
		return 0
	}
	var sum float64
	count := 0
	for i := 1; i < len(x)-1; i++ {
		sum += math.Abs(x[i+1] - 2*x[i] + x[i-1])
		count++
	}
	if count == 0 {
		return 0
	}
	madd := sum / float64(count)
	return 1 / (1 + madd)
}

func dropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
