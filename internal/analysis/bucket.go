package analysis

import (
	"math"
	"sort"
	"time"
)

// rankedTicker pairs a ticker with its signal value for partitioning.
type rankedTicker struct {
	Ticker string
	Value  float64
}

// partition splits n ranked observations into k ordered groups. Sizes are
// floor(n/k) or ceil(n/k); the remainder goes to the lowest-numbered buckets
// in rank order. Returns the bucket id (1-based) per sorted position.
func partition(n, k int) []int {
	base, rem := n/k, n%k
	out := make([]int, 0, n)
	for b := 1; b <= k; b++ {
		size := base
		if b <= rem {
			size++
		}
		for i := 0; i < size; i++ {
			out = append(out, b)
		}
	}
	return out
}

// AssignBuckets partitions one date's cross-section of signal values into k
// ordered quantile groups. Bucket 1 holds the lowest values, bucket k the
// highest; ties are broken by ticker symbol for determinism. Tickers with NaN
// signal are excluded; fewer remaining tickers than k is InsufficientData.
func AssignBuckets(date time.Time, values map[string]float64, k int) ([]BucketAssignment, error) {
	if k <= 1 {
		return nil, &ConfigurationError{Msg: "bucket count must exceed 1"}
	}

	ranked := make([]rankedTicker, 0, len(values))
	for ticker, v := range values {
		if math.IsNaN(v) {
			continue
		}
		ranked = append(ranked, rankedTicker{Ticker: ticker, Value: v})
	}
	if len(ranked) < k {
		return nil, &InsufficientDataError{Op: "bucket", Got: len(ranked), Want: k}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Value != ranked[j].Value {
			return ranked[i].Value < ranked[j].Value
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	ids := partition(len(ranked), k)
	out := make([]BucketAssignment, len(ranked))
	for i, r := range ranked {
		out[i] = BucketAssignment{Date: date, Ticker: r.Ticker, Bucket: ids[i], BucketCount: k}
	}
	return out, nil
}

// bucketPanel assigns buckets for every date of a panel-aligned signal map.
// Dates whose cross-section cannot form k non-empty buckets are skipped and
// counted; the skip always surfaces in the caller's result. The returned map
// is keyed by date index, then ticker.
func bucketPanel(dates []time.Time, signal map[string][]float64, tickers []string, k int) (map[int]map[string]int, int, error) {
	if k <= 1 {
		return nil, 0, &ConfigurationError{Msg: "bucket count must exceed 1"}
	}

	assignments := make(map[int]map[string]int, len(dates))
	skipped := 0

	for di, date := range dates {
		cross := make(map[string]float64, len(tickers))
		for _, ticker := range tickers {
			series := signal[ticker]
			if series == nil || di >= len(series) {
				continue
			}
			cross[ticker] = series[di]
		}

		assigned, err := AssignBuckets(date, cross, k)
		if err != nil {
			if IsInsufficientData(err) {
				skipped++
				continue
			}
			return nil, 0, err
		}

		byTicker := make(map[string]int, len(assigned))
		for _, a := range assigned {
			byTicker[a.Ticker] = a.Bucket
		}
		assignments[di] = byTicker
	}
	return assignments, skipped, nil
}
