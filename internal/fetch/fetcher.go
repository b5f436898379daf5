package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

// Fetcher pulls a full sector snapshot from the upstream sources and
// persists it for the loader. Snapshots within the staleness window are
// reused; the feeds only publish end-of-day data, so hammering them buys
// nothing.
type Fetcher struct {
	cafef  *CafefClient
	smoney *SmoneyClient
	store  *SnapshotStore
	maxAge time.Duration
	index  string
	logger *slog.Logger
}

// NewFetcher wires the source clients behind one shared rate limiter.
func NewFetcher(cfg config.FetchConfig, store *SnapshotStore, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	client := NewClient(cfg, cfg.CafefBaseURL+"/", logger)
	return &Fetcher{
		cafef:  NewCafefClient(cfg, client, logger),
		smoney: NewSmoneyClient(cfg, client, logger),
		store:  store,
		maxAge: cfg.SnapshotMaxAge,
		index:  "VNINDEX",
		logger: logger,
	}
}

// Refresh downloads every table for the sector and returns the assembled raw
// snapshot. Tickers are fetched sequentially; the rate limiter paces the
// requests, and the sources tolerate that far better than bursts.
func (f *Fetcher) Refresh(ctx context.Context, sector config.SectorConfig) (*dataset.Snapshot, error) {
	s := &dataset.Snapshot{
		Sector:    sector.Name,
		Tickers:   append([]string(nil), sector.Tickers...),
		Foreign:   make(map[string][]dataset.TradingRecord, len(sector.Tickers)),
		Self:      make(map[string][]dataset.TradingRecord, len(sector.Tickers)),
		Valuation: make(map[string][]dataset.ValuationRecord, len(sector.Tickers)),
		Prices:    make(map[string][]dataset.PriceRecord, len(sector.Tickers)),
		FetchedAt: time.Now(),
	}

	for _, ticker := range sector.Tickers {
		foreign, prices, err := f.cafef.ForeignTrades(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("foreign trades %s: %w", ticker, err)
		}
		s.Foreign[ticker] = foreign
		s.Prices[ticker] = prices

		self, err := f.cafef.SelfTrades(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("self trades %s: %w", ticker, err)
		}
		s.Self[ticker] = self

		valuation, err := f.smoney.ValuationHistory(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("valuation %s: %w", ticker, err)
		}
		s.Valuation[ticker] = valuation
	}

	index, err := f.cafef.IndexHistory(ctx, f.index)
	if err != nil {
		return nil, fmt.Errorf("index history: %w", err)
	}
	s.Index = index

	f.logger.Info("sector refreshed",
		"sector", sector.Name,
		"tickers", len(sector.Tickers),
		"index_days", len(index),
	)
	return s, nil
}

// Ensure refreshes and stores the sector snapshot when the stored one is
// missing or older than the staleness window. It reports whether a refresh
// happened.
func (f *Fetcher) Ensure(ctx context.Context, sector config.SectorConfig) (bool, error) {
	if !f.store.IsStale(sector.Name, f.maxAge) {
		age, _ := f.store.Age(sector.Name)
		f.logger.Debug("snapshot still fresh", "sector", sector.Name, "age", age)
		return false, nil
	}

	s, err := f.Refresh(ctx, sector)
	if err != nil {
		return false, err
	}
	if err := f.store.Write(s); err != nil {
		return false, err
	}
	return true, nil
}
