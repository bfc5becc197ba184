package risk

import "math"

// Pearson computes the Pearson correlation coefficient over the overlapping
// prefix of the two series. Degenerate input (fewer than 2 overlapping
// samples, or zero variance in either series) yields 0 rather than NaN, so
// an undefined correlation never blocks (or admits) a trade by accident.
func Pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// CorrelatedCount counts how many open-symbol return series have an absolute
// Pearson correlation with the candidate above threshold.
func CorrelatedCount(candidate []float64, open map[string][]float64, threshold float64) int {
	count := 0
	for _, series := range open {
		if math.Abs(Pearson(candidate, series)) > threshold {
			count++
		}
	}
	return count
}
