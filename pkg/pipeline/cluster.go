package pipeline

import (
	"math"
	"math/rand"
	"sort"

	"github.com/bquant-go/bquant/pkg/model"
)

// runClustering groups zones by their numeric feature vectors with a
// seeded k-means pass. gonum ships no clustering package, so this is
// hand-rolled, restricted to the feature keys every zone in the batch
// carries so the vectors are comparable.
func runClustering(zs []*model.Zone, opts ClusteringOptions) map[int]model.ClusterSummary {
	keys := commonNumericFeatureKeys(zs)
	if len(keys) == 0 || len(zs) == 0 {
		return nil
	}
	vectors := make([][]float64, len(zs))
	for i, z := range zs {
		vectors[i] = featureVector(z, keys)
	}
	normalize(vectors)

	k := opts.NClusters
	if k < 1 {
		k = 1
	}
	if k > len(zs) {
		k = len(zs)
	}
	maxIters := opts.MaxIters
	if maxIters <= 0 {
		maxIters = 100
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := initCentroids(vectors, k, rng)
	assignments := make([]int, len(vectors))

	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := sqDist(v, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		recomputeCentroids(vectors, assignments, centroids)
		if !changed {
			break
		}
	}

	summary := make(map[int]model.ClusterSummary)
	for i, z := range zs {
		c := assignments[i]
		z.Features["cluster"] = int64(c)
		cs := summary[c]
		cs.Size++
		cs.Members = append(cs.Members, z.ZoneID)
		summary[c] = cs
	}
	return summary
}

func commonNumericFeatureKeys(zs []*model.Zone) []string {
	if len(zs) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, z := range zs {
		for k, v := range z.Features {
			if k == "metadata" || k == "cluster" {
				continue
			}
			if _, ok := asFloat(v); ok {
				counts[k]++
			}
		}
	}
	var keys []string
	for k, c := range counts {
		if c == len(zs) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func asFloat(v model.Scalar) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func featureVector(z *model.Zone, keys []string) []float64 {
	out := make([]float64, len(keys))
	for i, k := range keys {
		f, _ := asFloat(z.Features[k])
		out[i] = f
	}
	return out
}

// normalize z-scores each dimension in place so no single
// large-magnitude feature (e.g. duration in bars) dominates distance.
func normalize(vectors [][]float64) {
	if len(vectors) == 0 {
		return
	}
	dims := len(vectors[0])
	for d := 0; d < dims; d++ {
		var sum float64
		for _, v := range vectors {
			sum += v[d]
		}
		mean := sum / float64(len(vectors))
		var ss float64
		for _, v := range vectors {
			diff := v[d] - mean
			ss += diff * diff
		}
		sd := math.Sqrt(ss / float64(len(vectors)))
		if sd == 0 {
			sd = 1
		}
		for i := range vectors {
			vectors[i][d] = (vectors[i][d] - mean) / sd
		}
	}
}

func initCentroids(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(vectors))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		src := vectors[perm[i%len(perm)]]
		centroids[i] = append([]float64(nil), src...)
	}
	return centroids
}

func recomputeCentroids(vectors [][]float64, assignments []int, centroids [][]float64) {
	dims := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i := range sums {
		sums[i] = make([]float64, dims)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for d := 0; d < dims; d++ {
			sums[c][d] += v[d]
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := 0; d < dims; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
