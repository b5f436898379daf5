package operations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vnflow/internal/analysis"
	"vnflow/internal/config"
	"vnflow/internal/dataset"
	"vnflow/internal/fetch"
)

// recordingBroadcaster captures events in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *recordingBroadcaster) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// pipelineConfig shrinks the research windows so an 80-day fixture produces
// observations past warm-up.
func pipelineConfig(dataDir string, tickers []string) *config.Config {
	cfg := config.Default()
	cfg.Paths.DataDir = dataDir
	cfg.Analysis = config.AnalysisConfig{
		ADVWindow:         5,
		ZScoreWindow:      10,
		PercentileWindow:  15,
		Horizons:          []int{1, 3},
		BucketCount:       3,
		GrangerLag:        2,
		SignificanceLevel: 0.05,
		MinSampleSize:     5,
	}
	cfg.Sectors = []config.SectorConfig{{Name: "steel", Tickers: tickers}}
	return &cfg
}

// writePipelineSnapshot stores a synthetic but well-formed sector snapshot.
func writePipelineSnapshot(t *testing.T, dataDir string, tickers []string, days int) {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	s := &dataset.Snapshot{
		Sector:    "steel",
		Tickers:   tickers,
		Foreign:   map[string][]dataset.TradingRecord{},
		Self:      map[string][]dataset.TradingRecord{},
		Valuation: map[string][]dataset.ValuationRecord{},
		Prices:    map[string][]dataset.PriceRecord{},
	}
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		s.Index = append(s.Index, dataset.IndexRecord{Date: date, Level: 1000 + float64(d%9)})
	}
	for ti, ticker := range tickers {
		px := 20.0 + float64(ti)
		for d := 0; d < days; d++ {
			date := start.AddDate(0, 0, d)
			flow := float64((d+ti*3)%11-5) * 1e9
			selfFlow := float64((d*5+ti*7)%13-6) * 1e8
			s.Foreign[ticker] = append(s.Foreign[ticker], dataset.TradingRecord{
				Date: date, Ticker: ticker,
				NetBuyValue: flow, NetBuyVolume: flow / 2e4, TotalVolume: 1e6 + float64(d)*1e3,
			})
			s.Self[ticker] = append(s.Self[ticker], dataset.TradingRecord{
				Date: date, Ticker: ticker,
				NetBuyValue: selfFlow, NetBuyVolume: selfFlow / 2e4,
			})
			s.Valuation[ticker] = append(s.Valuation[ticker], dataset.ValuationRecord{
				Date: date, Ticker: ticker,
				PE: 10 + float64((d+ti)%7), PB: 1 + float64(d%4)*0.2,
			})
			px *= 1 + 0.0005*float64(ti) + 0.002*float64(d%3-1)
			s.Prices[ticker] = append(s.Prices[ticker], dataset.PriceRecord{Date: date, Ticker: ticker, Close: px})
		}
	}
	require.NoError(t, fetch.NewSnapshotStore(dataDir, nil).Write(s))
}

func TestManager_ExecuteFullPipeline(t *testing.T) {
	dataDir := t.TempDir()
	tickers := []string{"HPG", "HSG", "NKG", "SMC"}
	writePipelineSnapshot(t, dataDir, tickers, 80)

	cfg := pipelineConfig(dataDir, tickers)
	loader := dataset.NewLoader(dataDir, nil)
	broadcaster := &recordingBroadcaster{}

	mgr := NewManager(cfg, DefaultStages(nil, nil, loader, nil), broadcaster, nil)

	state, err := mgr.Execute(context.Background(), OperationRequest{Sector: "steel"})
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, StatusCompleted, state.Status)
	require.Len(t, state.Steps, 8)
	for _, step := range state.Steps {
		assert.Equal(t, StatusCompleted, step.Status, "step %s", step.ID)
		assert.False(t, step.EndedAt.Before(step.StartedAt), "step %s timing", step.ID)
	}

	report := state.Report
	require.NotNil(t, report)
	assert.Equal(t, "steel", report.Sector)
	assert.Equal(t, tickers, report.Tickers)
	assert.Equal(t, 80, report.TradingDays)

	require.NotNil(t, report.ForeignLeadLag)
	assert.Equal(t, 3, report.ForeignLeadLag.BucketCount)
	require.Len(t, report.ForeignLeadLag.Horizons, 2)

	require.NotNil(t, report.SelfLeadLag)
	assert.Equal(t, selfTercileBuckets, report.SelfLeadLag.BucketCount)

	require.Len(t, report.Causality, 4)
	for _, c := range report.Causality {
		assert.Equal(t, 2, c.Lag)
		assert.Len(t, c.Regimes, 5)
	}

	require.NotNil(t, report.ValuationLeadLag)
	require.NotNil(t, report.Composite)
	assert.NotEmpty(t, report.Composite.Scores)

	// events: initial status, per-stage progress pairs, final complete
	events := broadcaster.seen()
	assert.Equal(t, EventTypeOperationStatus, events[0])
	assert.Equal(t, EventTypeOperationComplete, events[len(events)-1])

	// the state is retrievable and listed
	got, ok := mgr.Get(state.ID)
	require.True(t, ok)
	assert.Equal(t, state.ID, got.ID)
	require.Len(t, mgr.List(), 1)
}

func TestManager_StartRunsInBackground(t *testing.T) {
	dataDir := t.TempDir()
	tickers := []string{"HPG", "HSG", "NKG", "SMC"}
	writePipelineSnapshot(t, dataDir, tickers, 80)

	cfg := pipelineConfig(dataDir, tickers)
	loader := dataset.NewLoader(dataDir, nil)
	mgr := NewManager(cfg, DefaultStages(nil, nil, loader, nil), nil, nil)

	state, err := mgr.Start(context.Background(), OperationRequest{Sector: "steel"})
	require.NoError(t, err)
	require.NotEmpty(t, state.ID)

	deadline := time.Now().Add(30 * time.Second)
	for {
		got, ok := mgr.Get(state.ID)
		require.True(t, ok)
		if got.Status == StatusCompleted || got.Status == StatusFailed {
			assert.Equal(t, StatusCompleted, got.Status)
			require.NotNil(t, got.Report)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("operation still %s after deadline", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_UnknownSector(t *testing.T) {
	cfg := pipelineConfig(t.TempDir(), []string{"HPG"})
	mgr := NewManager(cfg, nil, nil, nil)

	_, err := mgr.Execute(context.Background(), OperationRequest{Sector: "energy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sector")
}

func TestManager_InvalidAnalysisParams(t *testing.T) {
	cfg := pipelineConfig(t.TempDir(), []string{"HPG"})
	cfg.Analysis.GrangerLag = 0
	mgr := NewManager(cfg, nil, nil, nil)

	_, err := mgr.Execute(context.Background(), OperationRequest{Sector: "steel"})
	require.Error(t, err)

	var cfgErr *analysis.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	// nothing was registered for the rejected request
	assert.Empty(t, mgr.List())
}

func TestManager_StageFailureStopsPipeline(t *testing.T) {
	dataDir := t.TempDir() // empty: the load stage cannot find workbooks
	tickers := []string{"HPG", "HSG", "NKG"}
	cfg := pipelineConfig(dataDir, tickers)
	loader := dataset.NewLoader(dataDir, nil)
	broadcaster := &recordingBroadcaster{}

	mgr := NewManager(cfg, DefaultStages(nil, nil, loader, nil), broadcaster, nil)

	state, err := mgr.Execute(context.Background(), OperationRequest{Sector: "steel"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, state.Status)
	assert.NotEmpty(t, state.Error)

	// fetch stage is a no-op without a fetcher and completes; load fails;
	// everything after never starts
	assert.Equal(t, StatusCompleted, state.Steps[0].Status)
	assert.Equal(t, StatusFailed, state.Steps[1].Status)
	for _, step := range state.Steps[2:] {
		assert.Equal(t, StatusPending, step.Status, "step %s", step.ID)
	}

	events := broadcaster.seen()
	assert.Equal(t, EventTypeOperationError, events[len(events)-1])
}

func TestManager_CancelNotRunning(t *testing.T) {
	cfg := pipelineConfig(t.TempDir(), []string{"HPG"})
	mgr := NewManager(cfg, nil, nil, nil)

	err := mgr.Cancel("no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
