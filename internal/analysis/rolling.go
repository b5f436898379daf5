package analysis

import "math"

// epsStd is the threshold below which a rolling standard deviation is treated
// as zero; z-scores over such windows emit the NaN sentinel instead of
// propagating a division blow-up.
const epsStd = 1e-12

// rollingStats is a fixed-capacity ring buffer with running sum and
// sum-of-squares, giving O(1) amortized mean/std per new observation. NaN
// inputs are never pushed; callers skip them and emit NaN for that position.
type rollingStats struct {
	buf   []float64
	head  int
	count int
	sum   float64
	sumsq float64
}

func newRollingStats(window int) *rollingStats {
	return &rollingStats{buf: make([]float64, window)}
}

// push adds a finite observation, evicting the oldest once the window is full.
func (r *rollingStats) push(v float64) {
	if r.count == len(r.buf) {
		old := r.buf[r.head]
		r.sum -= old
		r.sumsq -= old * old
	} else {
		r.count++
	}
	r.buf[r.head] = v
	r.sum += v
	r.sumsq += v * v
	r.head = (r.head + 1) % len(r.buf)
}

// full reports whether window observations have accumulated.
func (r *rollingStats) full() bool {
	return r.count == len(r.buf)
}

func (r *rollingStats) mean() float64 {
	if r.count == 0 {
		return math.NaN()
	}
	return r.sum / float64(r.count)
}

// std returns the sample standard deviation of the window contents.
func (r *rollingStats) std() float64 {
	if r.count < 2 {
		return math.NaN()
	}
	n := float64(r.count)
	variance := (r.sumsq - r.sum*r.sum/n) / (n - 1)
	if variance < 0 {
		variance = 0 // floating-point cancellation on near-constant windows
	}
	return math.Sqrt(variance)
}

// percentile returns the empirical percentile rank of v among the window
// contents (v included), 0-100 inclusive, ties resolved by average rank.
func (r *rollingStats) percentile(v float64) float64 {
	if r.count < 2 {
		return math.NaN()
	}
	// ring order is irrelevant for ranking; the first count slots always hold
	// exactly the live window
	less, equal := 0, 0
	for i := 0; i < r.count; i++ {
		switch x := r.buf[i]; {
		case x < v:
			less++
		case x == v:
			equal++
		}
	}
	// average rank of the tie group, 1-based
	rank := float64(less) + (float64(equal)+1)/2
	return 100 * (rank - 1) / float64(r.count-1)
}
