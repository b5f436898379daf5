package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"vnflow/internal/dataset"
)

// ClassifyRegime maps one day's foreign and self net flows onto the 2x2
// conflict grid. A zero flow counts as selling pressure, matching how the
// flow feeds report flat days.
func ClassifyRegime(foreign, self float64) Regime {
	switch {
	case foreign > 0 && self > 0:
		return RegimeBothBuy
	case foreign > 0 && self <= 0:
		return RegimeForeignBuySelfSell
	case foreign <= 0 && self > 0:
		return RegimeForeignSellSelfBuy
	default:
		return RegimeBothSell
	}
}

// CausalityEngine tests, per ticker, whether foreign net flow Granger-causes
// self net flow or vice versa, overall and within each conflict regime.
type CausalityEngine struct {
	params Params
	logger *slog.Logger
}

// NewCausalityEngine creates the engine. Params are validated immediately.
func NewCausalityEngine(params Params, logger *slog.Logger) (*CausalityEngine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CausalityEngine{params: params, logger: logger}, nil
}

// grangerRow is one usable regression observation: the day index t with all
// lags of both series present.
type grangerRow struct {
	idx    int
	regime Regime
}

// Run produces one CausalityResult per panel ticker. Tickers run
// concurrently; output order follows p.Tickers.
func (e *CausalityEngine) Run(ctx context.Context, p *dataset.Panel) ([]CausalityResult, error) {
	results := make([]CausalityResult, len(p.Tickers))

	g, ctx := errgroup.WithContext(ctx)
	for i, ticker := range p.Tickers {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r := e.runTicker(p, ticker)
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "causality analysis complete",
		"tickers", len(p.Tickers),
		"lag", e.params.GrangerLag,
	)
	return results, nil
}

func (e *CausalityEngine) runTicker(p *dataset.Panel, ticker string) CausalityResult {
	foreign := p.ForeignNetBuy[ticker]
	self := p.SelfNetBuy[ticker]
	lag := e.params.GrangerLag

	// A row is usable when both series are observed at t and at every lag.
	var rows []grangerRow
	for t := lag; t < p.Len(); t++ {
		ok := true
		for d := 0; d <= lag; d++ {
			if math.IsNaN(foreign[t-d]) || math.IsNaN(self[t-d]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		rows = append(rows, grangerRow{idx: t, regime: ClassifyRegime(foreign[t], self[t])})
	}

	result := CausalityResult{Ticker: ticker, Lag: lag}
	for _, regime := range append([]Regime{RegimeAll}, ConflictRegimes...) {
		subset := rows
		if regime != RegimeAll {
			subset = nil
			for _, r := range rows {
				if r.regime == regime {
					subset = append(subset, r)
				}
			}
		}
		result.Regimes = append(result.Regimes, e.testRegime(ticker, regime, foreign, self, subset))
	}
	return result
}

func (e *CausalityEngine) testRegime(ticker string, regime Regime, foreign, self []float64, rows []grangerRow) RegimeResult {
	keyFS := fmt.Sprintf("%s/%s/foreign_to_self", ticker, regime)
	keySF := fmt.Sprintf("%s/%s/self_to_foreign", ticker, regime)

	rr := RegimeResult{Regime: regime, Days: len(rows), Leader: LeaderNone}

	// The unrestricted model spends 2*lag+1 parameters.
	minRows := e.params.MinSampleSize
	if floor := 2*e.params.GrangerLag + 2; floor > minRows {
		minRows = floor
	}
	if len(rows) < minRows {
		reason := fmt.Sprintf("insufficient data: %d observations, need %d", len(rows), minRows)
		rr.ForeignToSelf = invalidResult(keyFS, StatGrangerF, reason, len(rows))
		rr.SelfToForeign = invalidResult(keySF, StatGrangerF, reason, len(rows))
		return rr
	}

	rr.ForeignToSelf = e.grangerTest(keyFS, self, foreign, rows)
	rr.SelfToForeign = e.grangerTest(keySF, foreign, self, rows)

	level := e.params.SignificanceLevel
	fs := rr.ForeignToSelf.Significant(level)
	sf := rr.SelfToForeign.Significant(level)
	switch {
	case fs && !sf:
		rr.Leader = LeaderForeign
	case sf && !fs:
		rr.Leader = LeaderSelf
	}
	return rr
}

// grangerTest fits the restricted model (effect on its own lags) and the
// unrestricted model (adding the cause's lags) over the given rows and
// returns the F-test on the cause-lag block.
func (e *CausalityEngine) grangerTest(groupKey string, effect, cause []float64, rows []grangerRow) TestResult {
	lag := e.params.GrangerLag
	n := len(rows)

	y := make([]float64, n)
	restricted := make([][]float64, 0, lag+1)
	restricted = append(restricted, onesColumn(n))
	for d := 1; d <= lag; d++ {
		col := make([]float64, n)
		for i, r := range rows {
			col[i] = effect[r.idx-d]
		}
		restricted = append(restricted, col)
	}
	unrestricted := append([][]float64(nil), restricted...)
	for d := 1; d <= lag; d++ {
		col := make([]float64, n)
		for i, r := range rows {
			col[i] = cause[r.idx-d]
		}
		unrestricted = append(unrestricted, col)
	}
	for i, r := range rows {
		y[i] = effect[r.idx]
	}

	_, _, rssR, err := olsFit(y, restricted)
	if err != nil {
		return invalidResult(groupKey, StatGrangerF, err.Error(), n)
	}
	_, _, rssU, err := olsFit(y, unrestricted)
	if err != nil {
		return invalidResult(groupKey, StatGrangerF, err.Error(), n)
	}

	dfDenom := float64(n - 2*lag - 1)
	if rssU <= 0 || dfDenom <= 0 {
		return invalidResult(groupKey, StatGrangerF, "degenerate regression residuals", n)
	}
	f := ((rssR - rssU) / float64(lag)) / (rssU / dfDenom)
	if f < 0 {
		f = 0 // numerical noise when the cause lags add nothing
	}

	return TestResult{
		GroupKey:   groupKey,
		Statistic:  StatGrangerF,
		Value:      f,
		PValue:     fTestPValue(f, float64(lag), dfDenom),
		SampleSize: n,
		Valid:      true,
	}
}
