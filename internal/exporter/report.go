package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"vnflow/internal/analysis"
	"vnflow/internal/operations"
)

const (
	leadLagHeadersFile  = "leadlag.csv"
	causalityFile       = "causality.csv"
	alphasFile          = "composite_alphas.csv"
	scoresFile          = "composite_scores.csv"
	workbookFile        = "report.xlsx"
	exportDateLayout    = "2006-01-02"
	exportRunDirLayout  = "2006-01-02_150405"
	defaultSummarySheet = "Summary"
)

// ReportExporter writes a finished research report to disk, one directory
// per run holding a workbook and flat CSVs for downstream tooling.
type ReportExporter struct {
	csvWriter *CSVWriter
	reportDir string
	logger    *slog.Logger
}

// NewReportExporter creates an exporter rooted at reportDir.
func NewReportExporter(reportDir string, logger *slog.Logger) *ReportExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportExporter{
		csvWriter: NewCSVWriter(reportDir),
		reportDir: reportDir,
		logger:    logger,
	}
}

// Export writes the full report under reportDir/<sector>/<timestamp>/ and
// returns the run directory.
func (e *ReportExporter) Export(report *operations.Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("nil report")
	}
	runDir := filepath.Join(e.reportDir, report.Sector, report.GeneratedAt.Format(exportRunDirLayout))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	if err := e.ExportCSV(report, runDir); err != nil {
		return "", err
	}
	if err := e.ExportWorkbook(report, filepath.Join(runDir, workbookFile)); err != nil {
		return "", err
	}

	e.logger.Info("report exported", "sector", report.Sector, "dir", runDir)
	return runDir, nil
}

// ExportCSV writes the flat CSV files into dir.
func (e *ReportExporter) ExportCSV(report *operations.Report, dir string) error {
	var leadLagRows [][]string
	for _, res := range []*analysis.LeadLagResult{report.ForeignLeadLag, report.SelfLeadLag, report.ValuationLeadLag} {
		leadLagRows = append(leadLagRows, leadLagCSVRows(res)...)
	}
	if report.Composite != nil {
		leadLagRows = append(leadLagRows, leadLagCSVRows(report.Composite.LeadLag)...)
	}
	if err := e.csvWriter.WriteSimpleCSV(filepath.Join(dir, leadLagHeadersFile), leadLagHeaders(), leadLagRows); err != nil {
		return fmt.Errorf("export lead-lag csv: %w", err)
	}

	if err := e.csvWriter.WriteSimpleCSV(filepath.Join(dir, causalityFile), causalityHeaders(), causalityCSVRows(report.Causality)); err != nil {
		return fmt.Errorf("export causality csv: %w", err)
	}

	if report.Composite != nil {
		if err := e.csvWriter.WriteSimpleCSV(filepath.Join(dir, alphasFile), alphaHeaders(), alphaCSVRows(report.Composite)); err != nil {
			return fmt.Errorf("export alphas csv: %w", err)
		}
		if err := e.exportScores(report.Composite, filepath.Join(dir, scoresFile)); err != nil {
			return fmt.Errorf("export scores csv: %w", err)
		}
	}
	return nil
}

// exportScores streams the per-day composite scores, which dominate the
// report size for long histories.
func (e *ReportExporter) exportScores(res *analysis.CompositeResult, path string) error {
	sw, err := e.csvWriter.CreateStreamWriter(path, []string{"date", "ticker", "score", "bucket"})
	if err != nil {
		return err
	}
	for _, s := range res.Scores {
		row := []string{s.Date.Format(exportDateLayout), s.Ticker, formatFloat(s.Score), formatInt(s.Bucket)}
		if err := sw.WriteRecord(row); err != nil {
			sw.Close()
			return err
		}
	}
	return sw.Close()
}

// ExportWorkbook writes the single-file workbook: a summary sheet plus one
// sheet per research question.
func (e *ReportExporter) ExportWorkbook(report *operations.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummarySheet(f, report); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeLeadLagSheet(f, "Foreign Flow", report.ForeignLeadLag); err != nil {
		return fmt.Errorf("foreign sheet: %w", err)
	}
	if err := writeLeadLagSheet(f, "Self Flow", report.SelfLeadLag); err != nil {
		return fmt.Errorf("self sheet: %w", err)
	}
	if err := writeCausalitySheet(f, report.Causality); err != nil {
		return fmt.Errorf("causality sheet: %w", err)
	}
	if err := writeLeadLagSheet(f, "Valuation", report.ValuationLeadLag); err != nil {
		return fmt.Errorf("valuation sheet: %w", err)
	}
	if err := writeCompositeSheet(f, report.Composite); err != nil {
		return fmt.Errorf("composite sheet: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	return f.SaveAs(path)
}

func writeSummarySheet(f *excelize.File, report *operations.Report) error {
	def := f.GetSheetName(0)
	if err := f.SetSheetName(def, defaultSummarySheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Sector", report.Sector},
		{"Generated", report.GeneratedAt.Format(exportDateLayout + " 15:04:05")},
		{"Tickers", fmt.Sprintf("%d", len(report.Tickers))},
		{"Trading days", report.TradingDays},
		{"Dropped dates", report.DroppedDates},
		{"Bucket count", report.Params.BucketCount},
		{"Granger lag", report.Params.GrangerLag},
		{"Significance level", report.Params.SignificanceLevel},
	}
	if report.Validation != nil {
		rows = append(rows, []any{"Rejected input rows", report.Validation.Count()})
	}
	for i, row := range rows {
		if err := f.SetSheetRow(defaultSummarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	return nil
}

func writeLeadLagSheet(f *excelize.File, name string, res *analysis.LeadLagResult) error {
	if res == nil {
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	header := []any{"Signal", "Horizon", "Bucket", "Mean Return", "Std Dev", "Count",
		"Spread t", "Spread p", "IC rho", "IC p", "Dropped Obs"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	r := 2
	for _, h := range res.Horizons {
		for _, b := range h.Buckets {
			row := []any{res.Signal, h.Horizon, b.Bucket, b.MeanReturn, b.StdDev, b.Count,
				testCell(h.Spread.Value), testCell(h.Spread.PValue),
				testCell(h.IC.Value), testCell(h.IC.PValue), h.DroppedObs}
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", r), &row); err != nil {
				return err
			}
			r++
		}
	}
	return nil
}

func writeCausalitySheet(f *excelize.File, results []analysis.CausalityResult) error {
	const name = "Causality"
	if len(results) == 0 {
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	header := []any{"Ticker", "Regime", "Days", "Lag",
		"F->S F", "F->S p", "S->F F", "S->F p", "Leader", "Valid"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	r := 2
	for _, res := range results {
		for _, reg := range res.Regimes {
			row := []any{res.Ticker, reg.Regime.String(), reg.Days, res.Lag,
				testCell(reg.ForeignToSelf.Value), testCell(reg.ForeignToSelf.PValue),
				testCell(reg.SelfToForeign.Value), testCell(reg.SelfToForeign.PValue),
				reg.Leader.String(), reg.ForeignToSelf.Valid && reg.SelfToForeign.Valid}
			if err := f.SetSheetRow(name, fmt.Sprintf("A%d", r), &row); err != nil {
				return err
			}
			r++
		}
	}
	return nil
}

func writeCompositeSheet(f *excelize.File, res *analysis.CompositeResult) error {
	const name = "Composite"
	if res == nil {
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	header := []any{"Bucket", "Alpha", "Alpha Annual", "Beta", "Alpha t", "Alpha p", "Valid"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	r := 2
	for _, a := range res.Alphas {
		row := []any{a.Bucket, testCell(a.Alpha), testCell(a.AlphaAnnual), testCell(a.Beta),
			testCell(a.AlphaTest.Value), testCell(a.AlphaTest.PValue), a.AlphaTest.Valid}
		if err := f.SetSheetRow(name, fmt.Sprintf("A%d", r), &row); err != nil {
			return err
		}
		r++
	}
	r++
	ls := res.LongShort
	footer := [][]any{
		{"Long-short mean", testCell(ls.MeanReturn)},
		{"Long-short std", testCell(ls.StdDev)},
		{"Long-short Sharpe", testCell(ls.Sharpe)},
		{"Long-short days", ls.SampleSize},
		{"Excluded observations", res.ExcludedTotal},
	}
	for _, row := range footer {
		if err := f.SetSheetRow(name, fmt.Sprintf("A%d", r), &row); err != nil {
			return err
		}
		r++
	}
	return nil
}

func leadLagHeaders() []string {
	return []string{"signal", "horizon", "bucket", "mean_return", "std_dev", "count",
		"spread_t", "spread_p", "spread_valid", "ic_rho", "ic_p", "dropped_obs", "skipped_dates"}
}

func leadLagCSVRows(res *analysis.LeadLagResult) [][]string {
	if res == nil {
		return nil
	}
	var rows [][]string
	for _, h := range res.Horizons {
		for _, b := range h.Buckets {
			rows = append(rows, []string{
				res.Signal,
				formatInt(h.Horizon),
				formatInt(b.Bucket),
				formatReturn(b.MeanReturn),
				formatReturn(b.StdDev),
				formatInt(b.Count),
				formatFloat(h.Spread.Value),
				formatFloat(h.Spread.PValue),
				formatBool(h.Spread.Valid),
				formatFloat(h.IC.Value),
				formatFloat(h.IC.PValue),
				formatInt(h.DroppedObs),
				formatInt(res.SkippedDates),
			})
		}
	}
	return rows
}

func causalityHeaders() []string {
	return []string{"ticker", "regime", "days", "lag",
		"foreign_to_self_f", "foreign_to_self_p", "self_to_foreign_f", "self_to_foreign_p",
		"leader", "valid"}
}

func causalityCSVRows(results []analysis.CausalityResult) [][]string {
	var rows [][]string
	for _, res := range results {
		for _, reg := range res.Regimes {
			rows = append(rows, []string{
				res.Ticker,
				reg.Regime.String(),
				formatInt(reg.Days),
				formatInt(res.Lag),
				formatFloat(reg.ForeignToSelf.Value),
				formatFloat(reg.ForeignToSelf.PValue),
				formatFloat(reg.SelfToForeign.Value),
				formatFloat(reg.SelfToForeign.PValue),
				reg.Leader.String(),
				formatBool(reg.ForeignToSelf.Valid && reg.SelfToForeign.Valid),
			})
		}
	}
	return rows
}

func alphaHeaders() []string {
	return []string{"bucket", "alpha", "alpha_annual", "beta", "alpha_t", "alpha_p", "valid"}
}

func alphaCSVRows(res *analysis.CompositeResult) [][]string {
	var rows [][]string
	for _, a := range res.Alphas {
		rows = append(rows, []string{
			formatInt(a.Bucket),
			formatReturn(a.Alpha),
			formatReturn(a.AlphaAnnual),
			formatFloat(a.Beta),
			formatFloat(a.AlphaTest.Value),
			formatFloat(a.AlphaTest.PValue),
			formatBool(a.AlphaTest.Valid),
		})
	}
	return rows
}

// testCell renders a statistic for the workbook, blanking NaN so Excel does
// not display the literal string.
func testCell(f float64) any {
	s := formatFloat(f)
	if s == "" {
		return ""
	}
	return f
}
