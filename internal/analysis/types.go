package analysis

import (
	"fmt"
	"time"

	"vnflow/internal/config"
)

// Params carries every knob the analyses accept. Invalid combinations are
// caller programming errors and surface immediately from Validate, before any
// data is touched.
type Params struct {
	ADVWindow         int
	ZScoreWindow      int
	PercentileWindow  int
	Horizons          []int
	BucketCount       int
	GrangerLag        int
	SignificanceLevel float64
	MinSampleSize     int
}

// DefaultParams returns the research defaults: ADV20, 1-year z-score window,
// 3-year percentile window, quintiles, 5-day Granger lag.
func DefaultParams() Params {
	return Params{
		ADVWindow:         20,
		ZScoreWindow:      252,
		PercentileWindow:  756,
		Horizons:          []int{1, 3, 5, 10},
		BucketCount:       5,
		GrangerLag:        5,
		SignificanceLevel: 0.05,
		MinSampleSize:     30,
	}
}

// ParamsFromConfig converts the loaded configuration into analysis parameters.
func ParamsFromConfig(cfg config.AnalysisConfig) Params {
	return Params{
		ADVWindow:         cfg.ADVWindow,
		ZScoreWindow:      cfg.ZScoreWindow,
		PercentileWindow:  cfg.PercentileWindow,
		Horizons:          append([]int(nil), cfg.Horizons...),
		BucketCount:       cfg.BucketCount,
		GrangerLag:        cfg.GrangerLag,
		SignificanceLevel: cfg.SignificanceLevel,
		MinSampleSize:     cfg.MinSampleSize,
	}
}

// Validate checks the parameter combination.
func (p Params) Validate() error {
	if p.ADVWindow <= 1 || p.ZScoreWindow <= 1 || p.PercentileWindow <= 1 {
		return &ConfigurationError{Msg: fmt.Sprintf("rolling windows must exceed 1 (adv=%d, zscore=%d, percentile=%d)",
			p.ADVWindow, p.ZScoreWindow, p.PercentileWindow)}
	}
	if len(p.Horizons) == 0 {
		return &ConfigurationError{Msg: "at least one forward-return horizon required"}
	}
	for _, h := range p.Horizons {
		if h <= 0 {
			return &ConfigurationError{Msg: fmt.Sprintf("horizon must be positive, got %d", h)}
		}
	}
	if p.BucketCount <= 1 {
		return &ConfigurationError{Msg: fmt.Sprintf("bucket count must exceed 1, got %d", p.BucketCount)}
	}
	if p.GrangerLag <= 0 {
		return &ConfigurationError{Msg: fmt.Sprintf("granger lag must be positive, got %d", p.GrangerLag)}
	}
	if p.SignificanceLevel <= 0 || p.SignificanceLevel >= 1 {
		return &ConfigurationError{Msg: fmt.Sprintf("significance level must be in (0,1), got %g", p.SignificanceLevel)}
	}
	if p.MinSampleSize <= 1 {
		return &ConfigurationError{Msg: fmt.Sprintf("min sample size must exceed 1, got %d", p.MinSampleSize)}
	}
	return nil
}

// NormalizedSignal is one normalized observation. Value is NaN until the
// rolling window behind it is full.
type NormalizedSignal struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Name   string    `json:"signal_name"`
	Value  float64   `json:"value"`
}

// BucketAssignment places a ticker into an ordered quantile group for one
// date. Bucket 1 holds the lowest signal values, BucketCount the highest.
type BucketAssignment struct {
	Date        time.Time `json:"date"`
	Ticker      string    `json:"ticker"`
	Bucket      int       `json:"bucket_id"`
	BucketCount int       `json:"bucket_count"`
}

// ForwardReturn is the return from a date to horizon trading days later.
type ForwardReturn struct {
	Date    time.Time `json:"date"`
	Ticker  string    `json:"ticker"`
	Horizon int       `json:"horizon"`
	Raw     float64   `json:"raw_return"`
	Excess  float64   `json:"excess_return"`
}

// CompositeScore is one date/ticker composite observation with its quintile.
type CompositeScore struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Score  float64   `json:"score"`
	Bucket int       `json:"bucket_id"`
}

// BucketStat aggregates forward returns for one bucket at one horizon.
type BucketStat struct {
	Bucket     int     `json:"bucket_id"`
	MeanReturn float64 `json:"mean_return"`
	StdDev     float64 `json:"std_dev"`
	Count      int     `json:"count"`
}

// HorizonResult is the lead-lag table row set for one horizon.
type HorizonResult struct {
	Horizon    int          `json:"horizon"`
	Buckets    []BucketStat `json:"buckets"`
	Spread     TestResult   `json:"spread"`
	IC         TestResult   `json:"ic"`
	DroppedObs int          `json:"dropped_obs"` // signal present, price missing at d+h
}

// LeadLagResult is the full lead-lag table for one signal.
type LeadLagResult struct {
	Signal       string          `json:"signal"`
	BucketCount  int             `json:"bucket_count"`
	Horizons     []HorizonResult `json:"horizons"`
	SkippedDates int             `json:"skipped_dates"` // cross-sections too small to bucket
}

// Regime is the 2x2 conflict state of foreign vs self flow on one date.
type Regime int

const (
	RegimeAll Regime = iota // full sample, no conflict filter
	RegimeBothBuy
	RegimeBothSell
	RegimeForeignBuySelfSell
	RegimeForeignSellSelfBuy
)

// String returns the display name of the regime.
func (r Regime) String() string {
	switch r {
	case RegimeAll:
		return "all"
	case RegimeBothBuy:
		return "both_buy"
	case RegimeBothSell:
		return "both_sell"
	case RegimeForeignBuySelfSell:
		return "foreign_buy_self_sell"
	case RegimeForeignSellSelfBuy:
		return "foreign_sell_self_buy"
	default:
		return "unknown"
	}
}

// ConflictRegimes lists the four conflict states, excluding RegimeAll.
var ConflictRegimes = []Regime{RegimeBothBuy, RegimeBothSell, RegimeForeignBuySelfSell, RegimeForeignSellSelfBuy}

// Leader identifies which flow series Granger-leads the other.
type Leader int

const (
	LeaderNone Leader = iota // neither direction significant
	LeaderForeign
	LeaderSelf
)

// String returns the display name of the leader classification.
func (l Leader) String() string {
	switch l {
	case LeaderForeign:
		return "foreign"
	case LeaderSelf:
		return "self"
	case LeaderNone:
		return "no_clear_leader"
	default:
		return "unknown"
	}
}

// RegimeResult is the causality verdict for one regime.
type RegimeResult struct {
	Regime        Regime     `json:"regime"`
	Days          int        `json:"days"`
	ForeignToSelf TestResult `json:"foreign_to_self"`
	SelfToForeign TestResult `json:"self_to_foreign"`
	Leader        Leader     `json:"leader"`
}

// CausalityResult is the per-ticker conflict and causality table.
type CausalityResult struct {
	Ticker  string         `json:"ticker"`
	Lag     int            `json:"lag"`
	Regimes []RegimeResult `json:"regimes"`
}

// AlphaResult is a single-factor market model fit for one bucket.
type AlphaResult struct {
	Bucket      int        `json:"bucket_id"`
	Alpha       float64    `json:"alpha"`        // per-period intercept
	AlphaAnnual float64    `json:"alpha_annual"` // alpha scaled to 252 trading days
	Beta        float64    `json:"beta"`
	AlphaTest   TestResult `json:"alpha_test"`
}

// CompositeResult is the composite scoring and backtest output.
type CompositeResult struct {
	Scores         []CompositeScore `json:"scores"`
	ExcludedByDate map[string]int   `json:"excluded_by_date"` // tickers missing an input, keyed by date
	ExcludedTotal  int              `json:"excluded_total"`
	SkippedDates   int              `json:"skipped_dates"` // cross-sections too small to bucket
	LeadLag        *LeadLagResult   `json:"lead_lag"`
	Alphas         []AlphaResult    `json:"alphas"`
	LongShort      LongShortStats   `json:"long_short"`
}

// LongShortStats summarizes the top-minus-bottom bucket strategy.
type LongShortStats struct {
	Horizon    int     `json:"horizon"`
	MeanReturn float64 `json:"mean_return"`
	StdDev     float64 `json:"std_dev"`
	Sharpe     float64 `json:"sharpe"` // annualized
	SampleSize int     `json:"sample_size"`
}
