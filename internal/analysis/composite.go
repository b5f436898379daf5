package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

const tradingDaysPerYear = 252

// CompositeScorer combines flow and valuation signals into a single ranking
// score per ticker-day and backtests the quantile portfolios it implies.
//
// score = z(foreign) + z(self) - valuation_percentile/100
//
// High flow z-scores raise the score, rich valuations lower it. A ticker-day
// missing any of the three inputs is excluded from that date's cross-section
// rather than filled with a neutral value.
type CompositeScorer struct {
	params  Params
	leadlag *LeadLagEngine
	logger  *slog.Logger
}

// NewCompositeScorer creates the scorer. Params are validated immediately.
func NewCompositeScorer(params Params, logger *slog.Logger) (*CompositeScorer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	ll, err := NewLeadLagEngine(params, logger)
	if err != nil {
		return nil, err
	}
	return &CompositeScorer{params: params, leadlag: ll, logger: logger}, nil
}

// Score computes the composite series per ticker from an already-normalized
// signal set, plus the exclusion tally for ticker-days where some but not all
// inputs were available.
func (s *CompositeScorer) Score(p *dataset.Panel, signals *SignalSet) (map[string][]float64, map[string]int, int) {
	composite := make(map[string][]float64, len(p.Tickers))
	excludedByDate := make(map[string]int)
	excludedTotal := 0

	for _, ticker := range p.Tickers {
		fz := signals.Get(config.SignalForeignZScore, ticker)
		sz := signals.Get(config.SignalSelfZScore, ticker)
		vp := signals.Get(config.SignalValuationPctl, ticker)

		series := nanSlice(p.Len())
		for i := range series {
			f, sv, v := indexOrNaN(fz, i), indexOrNaN(sz, i), indexOrNaN(vp, i)
			missing := math.IsNaN(f) || math.IsNaN(sv) || math.IsNaN(v)
			if !missing {
				series[i] = f + sv - v/100
				continue
			}
			// Count only partial gaps. Warm-up rows where no input exists
			// yet are not an exclusion event.
			if !math.IsNaN(f) || !math.IsNaN(sv) || !math.IsNaN(v) {
				excludedByDate[p.Dates[i].Format("2006-01-02")]++
				excludedTotal++
			}
		}
		composite[ticker] = series
	}
	return composite, excludedByDate, excludedTotal
}

// Run scores the panel, buckets the composite cross-sections, runs the
// lead-lag table on the composite signal, and fits the market model per
// bucket at the 1-day horizon.
func (s *CompositeScorer) Run(ctx context.Context, p *dataset.Panel, signals *SignalSet) (*CompositeResult, error) {
	composite, excludedByDate, excludedTotal := s.Score(p, signals)
	k := s.params.BucketCount

	assignments, skipped, err := bucketPanel(p.Dates, composite, p.Tickers, k)
	if err != nil {
		return nil, err
	}

	leadlag, err := s.leadlag.Run(ctx, p, config.SignalCompositeScore, composite, k)
	if err != nil {
		return nil, err
	}

	result := &CompositeResult{
		ExcludedByDate: excludedByDate,
		ExcludedTotal:  excludedTotal,
		SkippedDates:   skipped,
		LeadLag:        leadlag,
	}

	for di, date := range p.Dates {
		byTicker := assignments[di]
		for _, ticker := range p.Tickers {
			b, ok := byTicker[ticker]
			if !ok {
				continue
			}
			result.Scores = append(result.Scores, CompositeScore{
				Date:   date,
				Ticker: ticker,
				Score:  composite[ticker][di],
				Bucket: b,
			})
		}
	}

	bucketReturns, market, when := s.dailyBucketReturns(p, assignments, k)
	for b := 1; b <= k; b++ {
		result.Alphas = append(result.Alphas, s.fitMarketModel(b, bucketReturns[b], market[b]))
	}
	result.LongShort = s.longShort(bucketReturns, when, k)

	s.logger.DebugContext(ctx, "composite backtest complete",
		"buckets", k,
		"scores", len(result.Scores),
		"excluded", excludedTotal,
		"skipped_dates", skipped,
	)
	return result, nil
}

// dailyBucketReturns builds, per bucket, the equal-weighted 1-day raw return
// series, the matching market return series, and the date index of each
// entry. Entries exist only for dates where the bucket held members with
// observable next-day prices.
func (s *CompositeScorer) dailyBucketReturns(p *dataset.Panel, assignments map[int]map[string]int, k int) (returns, market map[int][]float64, when map[int][]int) {
	raw, _, err := ForwardReturnSeries(p, 1)
	if err != nil {
		// horizon 1 is always valid
		panic(err)
	}

	mret := nanSlice(p.Len())
	for i := 0; i+1 < p.Len(); i++ {
		a, b := p.Index[i], p.Index[i+1]
		if !math.IsNaN(a) && !math.IsNaN(b) && a != 0 {
			mret[i] = b/a - 1
		}
	}

	returns = make(map[int][]float64, k)
	market = make(map[int][]float64, k)
	when = make(map[int][]int, k)
	for di := range p.Dates {
		if math.IsNaN(mret[di]) {
			continue
		}
		byTicker := assignments[di]
		if byTicker == nil {
			continue
		}
		sums := make(map[int]float64, k)
		counts := make(map[int]int, k)
		for _, ticker := range p.Tickers {
			b, ok := byTicker[ticker]
			if !ok {
				continue
			}
			r := raw[ticker][di]
			if math.IsNaN(r) {
				continue
			}
			sums[b] += r
			counts[b]++
		}
		for b := 1; b <= k; b++ {
			if counts[b] == 0 {
				continue
			}
			returns[b] = append(returns[b], sums[b]/float64(counts[b]))
			market[b] = append(market[b], mret[di])
			when[b] = append(when[b], di)
		}
	}
	return returns, market, when
}

// fitMarketModel regresses a bucket's daily return on the market return:
// r_b = alpha + beta * r_m. The risk-free rate is treated as zero, so raw
// returns stand in for excess returns.
func (s *CompositeScorer) fitMarketModel(bucket int, returns, market []float64) AlphaResult {
	key := fmt.Sprintf("bucket_%d", bucket)
	n := len(returns)
	out := AlphaResult{
		Bucket:      bucket,
		Alpha:       math.NaN(),
		AlphaAnnual: math.NaN(),
		Beta:        math.NaN(),
	}

	if n < s.params.MinSampleSize {
		out.AlphaTest = invalidResult(key, StatAlphaT,
			fmt.Sprintf("insufficient data: %d observations, need %d", n, s.params.MinSampleSize), n)
		return out
	}

	coef, stderr, _, err := olsFit(returns, [][]float64{onesColumn(n), market})
	if err != nil {
		out.AlphaTest = invalidResult(key, StatAlphaT, err.Error(), n)
		return out
	}

	out.Alpha = coef[0]
	out.AlphaAnnual = coef[0] * tradingDaysPerYear
	out.Beta = coef[1]

	tStat := math.NaN()
	pValue := math.NaN()
	if stderr[0] > 0 {
		tStat = coef[0] / stderr[0]
		pValue = twoSidedT(tStat, float64(n-2))
	}
	out.AlphaTest = TestResult{
		GroupKey:   key,
		Statistic:  StatAlphaT,
		Value:      tStat,
		PValue:     pValue,
		SampleSize: n,
		Valid:      true,
	}
	return out
}

// longShort summarizes the daily top-minus-bottom bucket strategy. Only dates
// where both extreme buckets produced a return contribute; the join is on the
// date index each entry was emitted for.
func (s *CompositeScorer) longShort(returns map[int][]float64, when map[int][]int, k int) LongShortStats {
	low, high := returns[1], returns[k]
	lowDays, highDays := when[1], when[k]

	var diffs []float64
	i, j := 0, 0
	for i < len(low) && j < len(high) {
		switch {
		case lowDays[i] == highDays[j]:
			diffs = append(diffs, high[j]-low[i])
			i++
			j++
		case lowDays[i] < highDays[j]:
			i++
		default:
			j++
		}
	}

	stats := LongShortStats{Horizon: 1, SampleSize: len(diffs)}
	if len(diffs) == 0 {
		stats.MeanReturn, stats.StdDev, stats.Sharpe = math.NaN(), math.NaN(), math.NaN()
		return stats
	}
	mean, variance := meanVariance(diffs)
	stats.MeanReturn = mean
	stats.StdDev = math.Sqrt(variance)
	if stats.StdDev > 0 {
		stats.Sharpe = mean / stats.StdDev * math.Sqrt(tradingDaysPerYear)
	} else {
		stats.Sharpe = math.NaN()
	}
	return stats
}

func indexOrNaN(series []float64, i int) float64 {
	if series == nil || i >= len(series) {
		return math.NaN()
	}
	return series[i]
}
