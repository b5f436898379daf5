package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

// Mode selects a normalization method.
type Mode string

const (
	// ModeADVRatio divides the value by the trailing average of a reference
	// volume series.
	ModeADVRatio Mode = "adv_ratio"
	// ModeZScore standardizes against a rolling mean and standard deviation.
	ModeZScore Mode = "zscore"
	// ModePercentile maps the value to its rolling empirical percentile rank.
	ModePercentile Mode = "percentile"
)

// Normalizer converts raw flow and valuation series into comparable signals.
// All methods are pure functions of their input slices; per-ticker series are
// independent, so panel-level work fans out across a worker group.
type Normalizer struct {
	params Params
	logger *slog.Logger
}

// NewNormalizer creates a normalizer. Params are validated immediately.
func NewNormalizer(params Params, logger *slog.Logger) (*Normalizer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{params: params, logger: logger}, nil
}

// ZScoreSeries standardizes values against their rolling mean and sample
// standard deviation. The output is aligned 1:1 with the input: NaN until
// window observations have accumulated, and NaN wherever the rolling standard
// deviation vanishes (constant window) instead of a division blow-up.
func ZScoreSeries(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	roll := newRollingStats(window)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		roll.push(v)
		if !roll.full() {
			continue
		}
		if sd := roll.std(); sd > epsStd {
			out[i] = (v - roll.mean()) / sd
		}
	}
	return out
}

// PercentileSeries maps each value to its empirical percentile rank (0-100,
// average rank on ties) within the trailing window, NaN until the window is
// full.
func PercentileSeries(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	roll := newRollingStats(window)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		roll.push(v)
		if roll.full() {
			out[i] = roll.percentile(v)
		}
	}
	return out
}

// ADVRatioSeries divides each value by the trailing average of the absolute
// reference series (ADV-style volume normalization). Positions where either
// input is missing, the window is not yet full, or the trailing average
// vanishes emit NaN.
func ADVRatioSeries(values, reference []float64, window int) []float64 {
	out := nanSlice(len(values))
	roll := newRollingStats(window)
	for i := range values {
		ref := reference[i]
		if math.IsNaN(ref) {
			continue
		}
		roll.push(math.Abs(ref))
		if !roll.full() || math.IsNaN(values[i]) {
			continue
		}
		if adv := roll.mean(); adv > epsStd {
			out[i] = values[i] / adv
		}
	}
	return out
}

// Series applies one normalization mode to a single series. ModeADVRatio
// needs a reference series and is served by ADVRatioSeries instead.
func (n *Normalizer) Series(values []float64, window int, mode Mode) ([]float64, error) {
	if window <= 1 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("window must exceed 1, got %d", window)}
	}
	switch mode {
	case ModeZScore:
		return ZScoreSeries(values, window), nil
	case ModePercentile:
		return PercentileSeries(values, window), nil
	case ModeADVRatio:
		return nil, &ConfigurationError{Msg: "adv_ratio requires a reference series"}
	default:
		return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown normalization mode %q", mode)}
	}
}

// SignalSet holds every normalized signal for a panel, keyed by signal name
// then ticker, each slice aligned to the panel's calendar.
type SignalSet struct {
	Signals map[string]map[string][]float64
}

// Get returns one ticker's series for a named signal.
func (s *SignalSet) Get(name, ticker string) []float64 {
	if m, ok := s.Signals[name]; ok {
		return m[ticker]
	}
	return nil
}

// PanelSignals computes the full signal set for a panel: ADV-ratio and
// z-score of both flow series, rolling valuation percentiles, and the
// combined valuation percentile used by the composite score. Tickers run
// concurrently; output depends only on the panel and the parameters.
func (n *Normalizer) PanelSignals(ctx context.Context, p *dataset.Panel) (*SignalSet, error) {
	set := &SignalSet{Signals: map[string]map[string][]float64{
		config.SignalForeignADV:    {},
		config.SignalForeignZScore: {},
		config.SignalSelfADV:       {},
		config.SignalSelfZScore:    {},
		config.SignalPEPercentile:  {},
		config.SignalPBPercentile:  {},
		config.SignalValuationPctl: {},
	}}

	type tickerSignals struct {
		ticker string
		series map[string][]float64
	}
	results := make([]tickerSignals, len(p.Tickers))

	g, ctx := errgroup.WithContext(ctx)
	for i, ticker := range p.Tickers {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			peP := PercentileSeries(p.PE[ticker], n.params.PercentileWindow)
			pbP := PercentileSeries(p.PB[ticker], n.params.PercentileWindow)

			results[i] = tickerSignals{ticker: ticker, series: map[string][]float64{
				config.SignalForeignADV:    ADVRatioSeries(p.ForeignNetBuy[ticker], p.TotalVolume[ticker], n.params.ADVWindow),
				config.SignalForeignZScore: ZScoreSeries(p.ForeignNetBuy[ticker], n.params.ZScoreWindow),
				config.SignalSelfADV:       ADVRatioSeries(p.SelfNetBuy[ticker], p.TotalVolume[ticker], n.params.ADVWindow),
				config.SignalSelfZScore:    ZScoreSeries(p.SelfNetBuy[ticker], n.params.ZScoreWindow),
				config.SignalPEPercentile:  peP,
				config.SignalPBPercentile:  pbP,
				config.SignalValuationPctl: combinePercentiles(peP, pbP),
			}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		for name, series := range r.series {
			set.Signals[name][r.ticker] = series
		}
	}

	n.logger.DebugContext(ctx, "panel signals computed",
		"sector", p.Sector,
		"tickers", len(p.Tickers),
		"days", p.Len(),
	)
	return set, nil
}

// combinePercentiles averages the PE and PB percentiles. Both must be present
// on a date; a half-formed valuation view is excluded, not half-filled.
func combinePercentiles(pe, pb []float64) []float64 {
	out := nanSlice(len(pe))
	for i := range pe {
		if math.IsNaN(pe[i]) || math.IsNaN(pb[i]) {
			continue
		}
		out[i] = (pe[i] + pb[i]) / 2
	}
	return out
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
