package dataset

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"vnflow/internal/config"
)

// Snapshot file names inside the sector data directory.
const (
	ForeignWorkbook   = "foreign_trading.xlsx"
	SelfWorkbook      = "self_trading.xlsx"
	ValuationWorkbook = "valuation.xlsx"
	IndexWorkbook     = "vnindex.xlsx"
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "1/2/06 15:04", "2006-01-02T15:04:05Z07:00"}

// Loader reads snapshot workbooks produced by the fetch clients. Column-name
// translation from source labels happens here, once, against the static
// config.SourceColumnMap; the analysis core only ever sees canonical fields.
type Loader struct {
	dataDir string
	logger  *slog.Logger
}

// NewLoader creates a snapshot loader rooted at dataDir.
func NewLoader(dataDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dataDir: dataDir, logger: logger}
}

// Load reads the four workbooks for a sector and assembles a raw Snapshot.
// The result is unvalidated; callers pass it through Validate before Align.
func (l *Loader) Load(sector config.SectorConfig) (*Snapshot, error) {
	dir := filepath.Join(l.dataDir, sector.Name)

	s := &Snapshot{
		Sector:    sector.Name,
		Tickers:   append([]string(nil), sector.Tickers...),
		Foreign:   make(map[string][]TradingRecord, len(sector.Tickers)),
		Self:      make(map[string][]TradingRecord, len(sector.Tickers)),
		Valuation: make(map[string][]ValuationRecord, len(sector.Tickers)),
		Prices:    make(map[string][]PriceRecord, len(sector.Tickers)),
	}

	if err := l.loadTradingWorkbook(filepath.Join(dir, ForeignWorkbook), sector.Tickers, s.Foreign, s.Prices); err != nil {
		return nil, fmt.Errorf("load foreign trading: %w", err)
	}
	if err := l.loadTradingWorkbook(filepath.Join(dir, SelfWorkbook), sector.Tickers, s.Self, nil); err != nil {
		return nil, fmt.Errorf("load self trading: %w", err)
	}
	if err := l.loadValuationWorkbook(filepath.Join(dir, ValuationWorkbook), sector.Tickers, s.Valuation); err != nil {
		return nil, fmt.Errorf("load valuation: %w", err)
	}
	index, err := l.loadIndexWorkbook(filepath.Join(dir, IndexWorkbook))
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	s.Index = index

	if info, err := os.Stat(filepath.Join(dir, ForeignWorkbook)); err == nil {
		s.FetchedAt = info.ModTime()
	}

	l.logger.Info("snapshot loaded",
		"sector", sector.Name,
		"tickers", len(sector.Tickers),
		"index_days", len(s.Index),
	)
	return s, nil
}

// loadTradingWorkbook reads one sheet per ticker. When prices is non-nil the
// Close column also feeds the price table (the foreign workbook carries the
// authoritative close).
func (l *Loader) loadTradingWorkbook(path string, tickers []string, out map[string][]TradingRecord, prices map[string][]PriceRecord) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, ticker := range tickers {
		rows, err := f.GetRows(ticker)
		if err != nil {
			l.logger.Warn("sheet missing, ticker skipped", "workbook", filepath.Base(path), "ticker", ticker)
			continue
		}
		if len(rows) < 2 {
			continue
		}

		cols, err := translateHeader(rows[0])
		if err != nil {
			return fmt.Errorf("sheet %s: %w", ticker, err)
		}
		dateCol, ok := cols[config.FieldDate]
		if !ok {
			return fmt.Errorf("sheet %s: no date column", ticker)
		}

		for _, row := range rows[1:] {
			date, err := parseDate(cell(row, dateCol))
			if err != nil {
				continue // blank trailing rows
			}
			rec := TradingRecord{
				Date:         date,
				Ticker:       ticker,
				NetBuyValue:  cellFloat(row, cols, config.FieldNetBuyValue),
				NetBuyVolume: cellFloat(row, cols, config.FieldNetBuyVolume),
				TotalVolume:  cellFloat(row, cols, config.FieldTotalVolume),
			}
			out[ticker] = append(out[ticker], rec)

			if prices != nil {
				if px := cellFloat(row, cols, config.FieldClose); !math.IsNaN(px) {
					prices[ticker] = append(prices[ticker], PriceRecord{Date: date, Ticker: ticker, Close: px})
				}
			}
		}
	}
	return nil
}

func (l *Loader) loadValuationWorkbook(path string, tickers []string, out map[string][]ValuationRecord) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	for _, ticker := range tickers {
		rows, err := f.GetRows(ticker)
		if err != nil || len(rows) < 2 {
			continue
		}
		cols, err := translateHeader(rows[0])
		if err != nil {
			return fmt.Errorf("sheet %s: %w", ticker, err)
		}
		dateCol, ok := cols[config.FieldDate]
		if !ok {
			return fmt.Errorf("sheet %s: no date column", ticker)
		}
		for _, row := range rows[1:] {
			date, err := parseDate(cell(row, dateCol))
			if err != nil {
				continue
			}
			out[ticker] = append(out[ticker], ValuationRecord{
				Date:   date,
				Ticker: ticker,
				PE:     cellFloat(row, cols, config.FieldPE),
				PB:     cellFloat(row, cols, config.FieldPB),
			})
		}
	}
	return nil
}

func (l *Loader) loadIndexWorkbook(path string) ([]IndexRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("index workbook %s is empty", path)
	}

	cols, err := translateHeader(rows[0])
	if err != nil {
		return nil, err
	}
	dateCol, ok := cols[config.FieldDate]
	if !ok {
		return nil, fmt.Errorf("index workbook: no date column")
	}
	levelCol, ok := cols[config.FieldIndexLevel]
	if !ok {
		// the index workbook may label the level "Close"
		levelCol, ok = cols[config.FieldClose]
		if !ok {
			return nil, fmt.Errorf("index workbook: no level column")
		}
	}

	var records []IndexRecord
	for _, row := range rows[1:] {
		date, err := parseDate(cell(row, dateCol))
		if err != nil {
			continue
		}
		level, err := parseFloat(cell(row, levelCol))
		if err != nil {
			continue
		}
		records = append(records, IndexRecord{Date: date, Level: level})
	}
	return records, nil
}

// translateHeader maps header labels to column indexes via the static source
// column table. Unknown labels are ignored; duplicate canonical fields are an
// error because the translation would be ambiguous.
func translateHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, label := range header {
		canonical, ok := config.SourceColumnMap[strings.TrimSpace(label)]
		if !ok {
			continue
		}
		if prev, dup := cols[canonical]; dup {
			return nil, fmt.Errorf("columns %d and %d both translate to %q", prev, i, canonical)
		}
		cols[canonical] = i
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func cellFloat(row []string, cols map[string]int, field string) float64 {
	i, ok := cols[field]
	if !ok {
		return math.NaN()
	}
	v, err := parseFloat(cell(row, i))
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty cell")
	}
	// source spreadsheets use thousands separators
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date cell")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
