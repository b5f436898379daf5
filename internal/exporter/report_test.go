package exporter

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"vnflow/internal/analysis"
	"vnflow/internal/config"
	"vnflow/internal/operations"
)

func exportTestReport() *operations.Report {
	leadlag := func(signal string) *analysis.LeadLagResult {
		return &analysis.LeadLagResult{
			Signal:      signal,
			BucketCount: 2,
			Horizons: []analysis.HorizonResult{
				{
					Horizon: 5,
					Buckets: []analysis.BucketStat{
						{Bucket: 1, MeanReturn: -0.001, StdDev: 0.01, Count: 40},
						{Bucket: 2, MeanReturn: 0.002, StdDev: 0.012, Count: 40},
					},
					Spread: analysis.TestResult{Statistic: "welch_t", Value: 2.1, PValue: 0.04, Valid: true, N1: 40, N2: 40},
					IC:     analysis.TestResult{Statistic: "spearman_ic", Value: 0.15, PValue: 0.02, Valid: true, SampleSize: 80},
				},
			},
		}
	}

	return &operations.Report{
		Sector:      "steel",
		GeneratedAt: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
		Params:      analysis.DefaultParams(),
		Tickers:     []string{"HPG", "HSG"},
		TradingDays: 120,

		ForeignLeadLag:   leadlag(config.SignalForeignZScore),
		SelfLeadLag:      leadlag(config.SignalSelfZScore),
		ValuationLeadLag: leadlag(config.SignalValuationPctl),
		Causality: []analysis.CausalityResult{
			{
				Ticker: "HPG",
				Lag:    5,
				Regimes: []analysis.RegimeResult{
					{
						Regime:        analysis.RegimeAll,
						Days:          115,
						ForeignToSelf: analysis.TestResult{Statistic: "granger_f", Value: 3.4, PValue: 0.01, Valid: true},
						SelfToForeign: analysis.TestResult{Statistic: "granger_f", Value: 0.8, PValue: 0.55, Valid: true},
						Leader:        analysis.LeaderForeign,
					},
					{
						Regime:        analysis.RegimeBothBuy,
						Days:          4,
						ForeignToSelf: analysis.TestResult{Statistic: "granger_f", Value: math.NaN(), PValue: math.NaN(), Reason: "insufficient sample"},
						SelfToForeign: analysis.TestResult{Statistic: "granger_f", Value: math.NaN(), PValue: math.NaN(), Reason: "insufficient sample"},
						Leader:        analysis.LeaderNone,
					},
				},
			},
		},
		Composite: &analysis.CompositeResult{
			Scores: []analysis.CompositeScore{
				{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Ticker: "HPG", Score: 1.25, Bucket: 2},
				{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Ticker: "HSG", Score: -0.5, Bucket: 1},
			},
			ExcludedTotal: 3,
			LeadLag:       leadlag(config.SignalCompositeScore),
			Alphas: []analysis.AlphaResult{
				{Bucket: 1, Alpha: -0.0002, AlphaAnnual: -0.0504, Beta: 1.1, AlphaTest: analysis.TestResult{Statistic: "alpha_t", Value: -1.2, PValue: 0.23, Valid: true}},
				{Bucket: 2, Alpha: 0.0004, AlphaAnnual: 0.1008, Beta: 0.9, AlphaTest: analysis.TestResult{Statistic: "alpha_t", Value: 2.5, PValue: 0.01, Valid: true}},
			},
			LongShort: analysis.LongShortStats{Horizon: 1, MeanReturn: 0.0006, StdDev: 0.008, Sharpe: 1.19, SampleSize: 119},
		},
	}
}

func TestReportExporter_Export(t *testing.T) {
	dir := t.TempDir()
	e := NewReportExporter(dir, nil)

	runDir, err := e.Export(exportTestReport())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(runDir, filepath.Join(dir, "steel")))

	for _, name := range []string{leadLagHeadersFile, causalityFile, alphasFile, scoresFile, workbookFile} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}
}

func TestReportExporter_NilReport(t *testing.T) {
	e := NewReportExporter(t.TempDir(), nil)
	_, err := e.Export(nil)
	require.Error(t, err)
}

func TestReportExporter_CausalityCSV(t *testing.T) {
	dir := t.TempDir()
	e := NewReportExporter(dir, nil)
	require.NoError(t, e.ExportCSV(exportTestReport(), dir))

	raw, err := os.ReadFile(filepath.Join(dir, causalityFile))
	require.NoError(t, err)
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\xEF\xBB\xBF")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, causalityHeaders(), rows[0])
	assert.Equal(t, []string{"HPG", "all", "115", "5", "3.4000", "0.0100", "0.8000", "0.5500", "foreign", "true"}, rows[1])

	// failed tests export blank statistics, not NaN text
	assert.Equal(t, "both_buy", rows[2][1])
	assert.Equal(t, "", rows[2][4])
	assert.Equal(t, "", rows[2][5])
	assert.Equal(t, "false", rows[2][9])
}

func TestReportExporter_LeadLagCSV(t *testing.T) {
	dir := t.TempDir()
	e := NewReportExporter(dir, nil)
	require.NoError(t, e.ExportCSV(exportTestReport(), dir))

	raw, err := os.ReadFile(filepath.Join(dir, leadLagHeadersFile))
	require.NoError(t, err)
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\xEF\xBB\xBF")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)

	// four lead-lag tables, one horizon with two buckets each
	require.Len(t, rows, 1+4*2)
	assert.Equal(t, config.SignalForeignZScore, rows[1][0])
	assert.Equal(t, []string{config.SignalForeignZScore, "5", "2", "0.002000", "0.012000", "40",
		"2.1000", "0.0400", "true", "0.1500", "0.0200", "0", "0"}, rows[2])
	assert.Equal(t, config.SignalCompositeScore, rows[7][0])
}

func TestReportExporter_ScoresCSV(t *testing.T) {
	dir := t.TempDir()
	e := NewReportExporter(dir, nil)
	require.NoError(t, e.ExportCSV(exportTestReport(), dir))

	raw, err := os.ReadFile(filepath.Join(dir, scoresFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,ticker,score,bucket", lines[0])
	assert.Equal(t, "2024-01-02,HPG,1.2500,2", lines[1])
	assert.Equal(t, "2024-01-02,HSG,-0.5000,1", lines[2])
}

func TestReportExporter_Workbook(t *testing.T) {
	dir := t.TempDir()
	e := NewReportExporter(dir, nil)
	path := filepath.Join(dir, "report.xlsx")
	require.NoError(t, e.ExportWorkbook(exportTestReport(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, []string{"Summary", "Foreign Flow", "Self Flow", "Causality", "Valuation", "Composite"}, sheets)

	sector, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "steel", sector)

	leader, err := f.GetCellValue("Causality", "I2")
	require.NoError(t, err)
	assert.Equal(t, "foreign", leader)

	blank, err := f.GetCellValue("Causality", "E3")
	require.NoError(t, err)
	assert.Equal(t, "", blank)
}
