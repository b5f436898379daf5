package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"vnflow/internal/dataset"
)

// LeadLagEngine measures whether a normalized signal predicts forward excess
// returns: per-bucket mean returns at each horizon, a significance test on
// the extreme-bucket spread, and the information coefficient over the full
// sample.
type LeadLagEngine struct {
	params Params
	logger *slog.Logger
}

// NewLeadLagEngine creates the engine. Params are validated immediately.
func NewLeadLagEngine(params Params, logger *slog.Logger) (*LeadLagEngine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadLagEngine{params: params, logger: logger}, nil
}

// ForwardReturnSeries computes raw and excess forward returns at the given
// horizon for every ticker, aligned to the panel calendar. Alignment is
// position-based on the trading calendar, never calendar-day arithmetic.
// Missing prices at d or d+h leave NaN; nothing is imputed here. Horizon 0 is
// identically zero wherever a price exists.
func ForwardReturnSeries(p *dataset.Panel, horizon int) (raw, excess map[string][]float64, err error) {
	if horizon < 0 {
		return nil, nil, &ConfigurationError{Msg: fmt.Sprintf("horizon must be non-negative, got %d", horizon)}
	}

	n := p.Len()
	raw = make(map[string][]float64, len(p.Tickers))
	excess = make(map[string][]float64, len(p.Tickers))

	market := nanSlice(n)
	for i := 0; i+horizon < n; i++ {
		if horizon == 0 {
			market[i] = 0
			continue
		}
		a, b := p.Index[i], p.Index[i+horizon]
		if math.IsNaN(a) || math.IsNaN(b) || a == 0 {
			continue
		}
		market[i] = b/a - 1
	}

	for _, ticker := range p.Tickers {
		closes := p.Close[ticker]
		r := nanSlice(n)
		e := nanSlice(n)
		for i := 0; i+horizon < n; i++ {
			if horizon == 0 {
				if !math.IsNaN(closes[i]) {
					r[i], e[i] = 0, 0
				}
				continue
			}
			a, b := closes[i], closes[i+horizon]
			if math.IsNaN(a) || math.IsNaN(b) || a == 0 {
				continue
			}
			r[i] = b/a - 1
			if !math.IsNaN(market[i]) {
				e[i] = r[i] - market[i]
			}
		}
		raw[ticker] = r
		excess[ticker] = e
	}
	return raw, excess, nil
}

// Run executes the lead-lag analysis for one signal over the panel: buckets
// each date's cross-section into k groups, pools each bucket's forward excess
// returns across dates, tests the top-vs-bottom spread, and computes the IC
// between the continuous signal and the excess return at every configured
// horizon. Horizons run concurrently; the output is deterministic.
func (e *LeadLagEngine) Run(ctx context.Context, p *dataset.Panel, signalName string, signal map[string][]float64, k int) (*LeadLagResult, error) {
	if k <= 1 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("bucket count must exceed 1, got %d", k)}
	}

	assignments, skipped, err := bucketPanel(p.Dates, signal, p.Tickers, k)
	if err != nil {
		return nil, err
	}

	result := &LeadLagResult{
		Signal:       signalName,
		BucketCount:  k,
		Horizons:     make([]HorizonResult, len(e.params.Horizons)),
		SkippedDates: skipped,
	}

	g, ctx := errgroup.WithContext(ctx)
	for hi, horizon := range e.params.Horizons {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			hr, err := e.runHorizon(p, signal, assignments, horizon, k)
			if err != nil {
				return fmt.Errorf("horizon %d: %w", horizon, err)
			}
			result.Horizons[hi] = *hr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "lead-lag analysis complete",
		"signal", signalName,
		"buckets", k,
		"skipped_dates", skipped,
	)
	return result, nil
}

func (e *LeadLagEngine) runHorizon(p *dataset.Panel, signal map[string][]float64, assignments map[int]map[string]int, horizon, k int) (*HorizonResult, error) {
	_, excess, err := ForwardReturnSeries(p, horizon)
	if err != nil {
		return nil, err
	}

	bucketSamples := make([][]float64, k+1) // 1-based
	var icSignal, icReturn []float64
	dropped := 0

	// the last horizon dates have no forward window at all and are not
	// counted as drops
	for di := 0; di+horizon < p.Len(); di++ {
		byTicker := assignments[di]
		for _, ticker := range p.Tickers {
			series := signal[ticker]
			if series == nil || math.IsNaN(series[di]) {
				continue
			}
			ret := excess[ticker][di]
			if math.IsNaN(ret) {
				dropped++ // price missing at d+h: observation dropped, not imputed
				continue
			}
			icSignal = append(icSignal, series[di])
			icReturn = append(icReturn, ret)
			if b, ok := byTicker[ticker]; ok {
				bucketSamples[b] = append(bucketSamples[b], ret)
			}
		}
	}

	hr := &HorizonResult{
		Horizon:    horizon,
		Buckets:    make([]BucketStat, 0, k),
		DroppedObs: dropped,
	}
	for b := 1; b <= k; b++ {
		mean, variance := meanVariance(bucketSamples[b])
		hr.Buckets = append(hr.Buckets, BucketStat{
			Bucket:     b,
			MeanReturn: mean,
			StdDev:     math.Sqrt(variance),
			Count:      len(bucketSamples[b]),
		})
	}
	sort.Slice(hr.Buckets, func(i, j int) bool { return hr.Buckets[i].Bucket < hr.Buckets[j].Bucket })

	groupKey := fmt.Sprintf("h%d", horizon)
	hr.Spread = SpreadTest(groupKey, bucketSamples[1], bucketSamples[k], e.params.MinSampleSize)
	hr.IC = InformationCoefficient(groupKey, icSignal, icReturn, e.params.MinSampleSize)
	return hr, nil
}
