package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vnflow/internal/analysis"
	"vnflow/internal/config"
	"vnflow/internal/dataset"
	"vnflow/internal/fetch"
)

// selfTercileBuckets fixes the self-flow research question to terciles: the
// proprietary desks trade few names, and finer cuts starve the buckets.
const selfTercileBuckets = 3

// FetchStage refreshes the sector snapshot from the upstream sources when it
// is stale, or unconditionally when the request asks for it.
type FetchStage struct {
	fetcher *fetch.Fetcher
	store   *fetch.SnapshotStore
	logger  *slog.Logger
}

func NewFetchStage(fetcher *fetch.Fetcher, store *fetch.SnapshotStore, logger *slog.Logger) *FetchStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchStage{fetcher: fetcher, store: store, logger: logger}
}

func (s *FetchStage) ID() string   { return StageIDFetch }
func (s *FetchStage) Name() string { return StageNameFetch }

func (s *FetchStage) Run(ctx context.Context, state *State) error {
	if s.fetcher == nil {
		s.logger.InfoContext(ctx, "no fetcher configured, using stored snapshot", "sector", state.Sector.Name)
		return nil
	}
	if state.Refresh {
		snap, err := s.fetcher.Refresh(ctx, state.Sector)
		if err != nil {
			return err
		}
		return s.store.Write(snap)
	}
	refreshed, err := s.fetcher.Ensure(ctx, state.Sector)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "snapshot ensured", "sector", state.Sector.Name, "refreshed", refreshed)
	return nil
}

// LoadStage reads the stored snapshot, validates the rows, and aligns the
// tables onto the shared trading calendar. It also seeds the report with the
// data-quality numbers.
type LoadStage struct {
	loader *dataset.Loader
	logger *slog.Logger
}

func NewLoadStage(loader *dataset.Loader, logger *slog.Logger) *LoadStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadStage{loader: loader, logger: logger}
}

func (s *LoadStage) ID() string   { return StageIDLoad }
func (s *LoadStage) Name() string { return StageNameLoad }

func (s *LoadStage) Run(ctx context.Context, state *State) error {
	snap, err := s.loader.Load(state.Sector)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	cleaned, report := dataset.Validate(snap)
	state.Snapshot = cleaned

	panel, err := dataset.Align(cleaned)
	if err != nil {
		return fmt.Errorf("align calendar: %w", err)
	}
	state.Panel = panel

	state.Report = &Report{
		Sector:       state.Sector.Name,
		GeneratedAt:  time.Now(),
		Params:       state.Params,
		Tickers:      append([]string(nil), panel.Tickers...),
		TradingDays:  panel.Len(),
		DroppedDates: panel.DroppedDates,
		Validation:   report,
	}

	s.logger.InfoContext(ctx, "panel built",
		"sector", state.Sector.Name,
		"days", panel.Len(),
		"dropped_dates", panel.DroppedDates,
		"rejected_rows", report.Count(),
	)
	return nil
}

// NormalizeStage computes every normalized signal over the panel.
type NormalizeStage struct {
	logger *slog.Logger
}

func NewNormalizeStage(logger *slog.Logger) *NormalizeStage {
	return &NormalizeStage{logger: logger}
}

func (s *NormalizeStage) ID() string   { return StageIDNormalize }
func (s *NormalizeStage) Name() string { return StageNameNormalize }

func (s *NormalizeStage) Run(ctx context.Context, state *State) error {
	normalizer, err := analysis.NewNormalizer(state.Params, s.logger)
	if err != nil {
		return err
	}
	signals, err := normalizer.PanelSignals(ctx, state.Panel)
	if err != nil {
		return err
	}
	state.Signals = signals
	return nil
}

// leadLagStage runs one signal's lead-lag table; the three question stages
// that differ only in signal and bucket count share it.
type leadLagStage struct {
	id, name string
	signal   string
	buckets  func(p analysis.Params) int
	assign   func(r *Report, res *analysis.LeadLagResult)
	logger   *slog.Logger
}

func (s *leadLagStage) ID() string   { return s.id }
func (s *leadLagStage) Name() string { return s.name }

func (s *leadLagStage) Run(ctx context.Context, state *State) error {
	engine, err := analysis.NewLeadLagEngine(state.Params, s.logger)
	if err != nil {
		return err
	}
	signal := state.Signals.Signals[s.signal]
	if signal == nil {
		return fmt.Errorf("signal %q not computed", s.signal)
	}
	res, err := engine.Run(ctx, state.Panel, s.signal, signal, s.buckets(state.Params))
	if err != nil {
		return err
	}
	s.assign(state.Report, res)
	return nil
}

// NewForeignStage answers whether foreign net flow predicts forward excess
// returns, bucketed at the configured quantile count.
func NewForeignStage(logger *slog.Logger) Stage {
	return &leadLagStage{
		id:      StageIDForeign,
		name:    StageNameForeign,
		signal:  config.SignalForeignZScore,
		buckets: func(p analysis.Params) int { return p.BucketCount },
		assign:  func(r *Report, res *analysis.LeadLagResult) { r.ForeignLeadLag = res },
		logger:  logger,
	}
}

// NewSelfStage answers the same question for proprietary flow, in terciles.
func NewSelfStage(logger *slog.Logger) Stage {
	return &leadLagStage{
		id:      StageIDSelf,
		name:    StageNameSelf,
		signal:  config.SignalSelfZScore,
		buckets: func(analysis.Params) int { return selfTercileBuckets },
		assign:  func(r *Report, res *analysis.LeadLagResult) { r.SelfLeadLag = res },
		logger:  logger,
	}
}

// NewValuationStage relates the rolling valuation percentile to forward
// returns.
func NewValuationStage(logger *slog.Logger) Stage {
	return &leadLagStage{
		id:      StageIDValuation,
		name:    StageNameValuation,
		signal:  config.SignalValuationPctl,
		buckets: func(p analysis.Params) int { return p.BucketCount },
		assign:  func(r *Report, res *analysis.LeadLagResult) { r.ValuationLeadLag = res },
		logger:  logger,
	}
}

// ConflictStage classifies the daily foreign-vs-self conflict regimes and
// tests flow causality per ticker.
type ConflictStage struct {
	logger *slog.Logger
}

func NewConflictStage(logger *slog.Logger) *ConflictStage {
	return &ConflictStage{logger: logger}
}

func (s *ConflictStage) ID() string   { return StageIDConflict }
func (s *ConflictStage) Name() string { return StageNameConflict }

func (s *ConflictStage) Run(ctx context.Context, state *State) error {
	engine, err := analysis.NewCausalityEngine(state.Params, s.logger)
	if err != nil {
		return err
	}
	results, err := engine.Run(ctx, state.Panel)
	if err != nil {
		return err
	}
	state.Report.Causality = results
	return nil
}

// CompositeStage scores the composite signal and backtests its quintiles.
type CompositeStage struct {
	logger *slog.Logger
}

func NewCompositeStage(logger *slog.Logger) *CompositeStage {
	return &CompositeStage{logger: logger}
}

func (s *CompositeStage) ID() string   { return StageIDComposite }
func (s *CompositeStage) Name() string { return StageNameComposite }

func (s *CompositeStage) Run(ctx context.Context, state *State) error {
	scorer, err := analysis.NewCompositeScorer(state.Params, s.logger)
	if err != nil {
		return err
	}
	res, err := scorer.Run(ctx, state.Panel, state.Signals)
	if err != nil {
		return err
	}
	state.Report.Composite = res
	return nil
}

// DefaultStages returns the full research pipeline in execution order.
func DefaultStages(fetcher *fetch.Fetcher, store *fetch.SnapshotStore, loader *dataset.Loader, logger *slog.Logger) []Stage {
	return []Stage{
		NewFetchStage(fetcher, store, logger),
		NewLoadStage(loader, logger),
		NewNormalizeStage(logger),
		NewForeignStage(logger),
		NewSelfStage(logger),
		NewConflictStage(logger),
		NewValuationStage(logger),
		NewCompositeStage(logger),
	}
}
