package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Statistic names reported in TestResult rows.
const (
	StatSpreadT    = "spread_t"
	StatSpearmanIC = "spearman_ic"
	StatGrangerF   = "granger_f"
	StatAlphaT     = "alpha_t"
)

// TestResult is one hypothesis-test outcome. SampleSize is always recorded;
// results below the minimum sample size carry Valid=false and a reason
// instead of a silently misleading number.
type TestResult struct {
	GroupKey   string  `json:"group_key"`
	Statistic  string  `json:"statistic_name"`
	Value      float64 `json:"value"`
	PValue     float64 `json:"p_value"`
	SampleSize int     `json:"sample_size"`
	N1         int     `json:"n1,omitempty"` // per-group sizes for two-sample tests
	N2         int     `json:"n2,omitempty"`
	Valid      bool    `json:"valid"`
	Reason     string  `json:"reason,omitempty"`
}

// Significant reports whether the result is valid and below the threshold.
func (t TestResult) Significant(level float64) bool {
	return t.Valid && !math.IsNaN(t.PValue) && t.PValue < level
}

func invalidResult(groupKey, statistic, reason string, sampleSize int) TestResult {
	return TestResult{
		GroupKey:   groupKey,
		Statistic:  statistic,
		Value:      math.NaN(),
		PValue:     math.NaN(),
		SampleSize: sampleSize,
		Valid:      false,
		Reason:     reason,
	}
}

// SpreadTest runs a Welch two-sample t-test for equal means between the
// lowest-bucket and highest-bucket return samples. A positive statistic means
// the high bucket outperformed. Groups below minN observations yield an
// invalid result with the actual sizes preserved.
func SpreadTest(groupKey string, low, high []float64, minN int) TestResult {
	lowClean := dropNaN(low)
	highClean := dropNaN(high)
	n1, n2 := len(lowClean), len(highClean)

	res := TestResult{
		GroupKey:   groupKey,
		Statistic:  StatSpreadT,
		SampleSize: n1 + n2,
		N1:         n1,
		N2:         n2,
	}

	if n1 < minN || n2 < minN {
		res.Value = math.NaN()
		res.PValue = math.NaN()
		res.Reason = fmt.Sprintf("insufficient data: group sizes %d/%d, need %d each", n1, n2, minN)
		return res
	}

	mean1, var1 := meanVariance(lowClean)
	mean2, var2 := meanVariance(highClean)

	se := math.Sqrt(var1/float64(n1) + var2/float64(n2))
	if se < epsStd {
		res.Value = math.NaN()
		res.PValue = math.NaN()
		res.Reason = "degenerate samples: zero pooled variance"
		return res
	}

	t := (mean2 - mean1) / se

	// Welch-Satterthwaite degrees of freedom
	a, b := var1/float64(n1), var2/float64(n2)
	df := (a + b) * (a + b) / (a*a/float64(n1-1) + b*b/float64(n2-1))

	res.Value = t
	res.PValue = twoSidedT(t, df)
	res.Valid = true
	return res
}

// InformationCoefficient computes the Spearman rank correlation between a
// signal and same-aligned forward returns, with a t-approximation p-value.
// Pairs where either side is NaN are dropped; overlap below minN yields an
// invalid result reporting the overlap.
func InformationCoefficient(groupKey string, signal, forward []float64, minN int) TestResult {
	if len(signal) != len(forward) {
		return invalidResult(groupKey, StatSpearmanIC,
			fmt.Sprintf("length mismatch: %d vs %d", len(signal), len(forward)), 0)
	}

	xs := make([]float64, 0, len(signal))
	ys := make([]float64, 0, len(signal))
	for i := range signal {
		if math.IsNaN(signal[i]) || math.IsNaN(forward[i]) {
			continue
		}
		xs = append(xs, signal[i])
		ys = append(ys, forward[i])
	}
	n := len(xs)

	if n < minN {
		return invalidResult(groupKey, StatSpearmanIC,
			fmt.Sprintf("insufficient data: overlap %d, need %d", n, minN), n)
	}

	rho := spearman(xs, ys)

	res := TestResult{
		GroupKey:   groupKey,
		Statistic:  StatSpearmanIC,
		Value:      rho,
		SampleSize: n,
		Valid:      true,
	}

	if math.Abs(rho) >= 1 {
		res.PValue = 0
		return res
	}
	t := rho * math.Sqrt(float64(n-2)/(1-rho*rho))
	res.PValue = twoSidedT(t, float64(n-2))
	return res
}

// spearman computes rank correlation with average ranks on ties.
func spearman(xs, ys []float64) float64 {
	rx := averageRanks(xs)
	ry := averageRanks(ys)
	return pearson(rx, ry)
}

// averageRanks returns 1-based ranks with ties resolved by average rank.
func averageRanks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return math.NaN()
	}
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx < epsStd || vy < epsStd {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// twoSidedT returns the two-sided p-value for a t statistic with df degrees
// of freedom.
func twoSidedT(t, df float64) float64 {
	if math.IsNaN(t) || df <= 0 {
		return math.NaN()
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// fTestPValue returns the upper-tail p-value for an F statistic.
func fTestPValue(f, d1, d2 float64) float64 {
	if math.IsNaN(f) || f < 0 || d1 <= 0 || d2 <= 0 {
		return math.NaN()
	}
	dist := distuv.F{D1: d1, D2: d2}
	return 1 - dist.CDF(f)
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// meanVariance returns the mean and sample variance.
func meanVariance(values []float64) (mean, variance float64) {
	n := float64(len(values))
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n
	if n < 2 {
		return mean, math.NaN()
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	variance = ss / (n - 1)
	return mean, variance
}
