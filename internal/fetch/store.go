package fetch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"vnflow/internal/dataset"
)

// SnapshotStore persists a fetched snapshot as the four workbooks the loader
// reads back: one sheet per ticker, source-native headers, so a stored
// snapshot is indistinguishable from a hand-exported one.
type SnapshotStore struct {
	dataDir string
	logger  *slog.Logger
}

// NewSnapshotStore creates a store rooted at dataDir.
func NewSnapshotStore(dataDir string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{dataDir: dataDir, logger: logger}
}

// Write saves the snapshot under dataDir/<sector>/.
func (st *SnapshotStore) Write(s *dataset.Snapshot) error {
	dir := filepath.Join(st.dataDir, s.Sector)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := st.writeTradingWorkbook(filepath.Join(dir, dataset.ForeignWorkbook), s, s.Foreign, true); err != nil {
		return fmt.Errorf("write foreign workbook: %w", err)
	}
	if err := st.writeTradingWorkbook(filepath.Join(dir, dataset.SelfWorkbook), s, s.Self, false); err != nil {
		return fmt.Errorf("write self workbook: %w", err)
	}
	if err := st.writeValuationWorkbook(filepath.Join(dir, dataset.ValuationWorkbook), s); err != nil {
		return fmt.Errorf("write valuation workbook: %w", err)
	}
	if err := st.writeIndexWorkbook(filepath.Join(dir, dataset.IndexWorkbook), s.Index); err != nil {
		return fmt.Errorf("write index workbook: %w", err)
	}

	st.logger.Info("snapshot written", "sector", s.Sector, "dir", dir)
	return nil
}

// Age returns how old the sector's stored snapshot is. A missing snapshot
// reports ok=false.
func (st *SnapshotStore) Age(sector string) (time.Duration, bool) {
	info, err := os.Stat(filepath.Join(st.dataDir, sector, dataset.ForeignWorkbook))
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// IsStale reports whether the stored snapshot is older than maxAge or absent.
func (st *SnapshotStore) IsStale(sector string, maxAge time.Duration) bool {
	age, ok := st.Age(sector)
	return !ok || age > maxAge
}

func (st *SnapshotStore) writeTradingWorkbook(path string, s *dataset.Snapshot, records map[string][]dataset.TradingRecord, withClose bool) error {
	f := excelize.NewFile()
	defer f.Close()

	header := []any{"Ngay", "KLGDRong", "GTGDRong", "KLGD"}
	if withClose {
		header = append(header, "Close")
	}

	for i, ticker := range s.Tickers {
		sheet, err := ensureSheet(f, ticker, i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}

		closes := closeByDate(s.Prices[ticker])
		for r, rec := range records[ticker] {
			row := []any{
				rec.Date.Format(sourceDateLayout),
				rec.NetBuyVolume,
				rec.NetBuyValue,
				rec.TotalVolume,
			}
			if withClose {
				if px, ok := closes[rec.Date]; ok {
					row = append(row, px)
				} else {
					row = append(row, "")
				}
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", r+2), &row); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}

func (st *SnapshotStore) writeValuationWorkbook(path string, s *dataset.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	header := []any{"date", "pe", "pb"}
	for i, ticker := range s.Tickers {
		sheet, err := ensureSheet(f, ticker, i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		for r, rec := range s.Valuation[ticker] {
			row := []any{rec.Date.Format("2006-01-02"), rec.PE, rec.PB}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", r+2), &row); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(path)
}

func (st *SnapshotStore) writeIndexWorkbook(path string, index []dataset.IndexRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{"Date", "VNIndex"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for r, rec := range index {
		row := []any{rec.Date.Format("2006-01-02"), rec.Level}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", r+2), &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// ensureSheet renames the default sheet for the first ticker and creates new
// sheets for the rest.
func ensureSheet(f *excelize.File, name string, i int) (string, error) {
	if i == 0 {
		def := f.GetSheetName(0)
		if err := f.SetSheetName(def, name); err != nil {
			return "", err
		}
		return name, nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return "", err
	}
	return name, nil
}

func closeByDate(prices []dataset.PriceRecord) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(prices))
	for _, p := range prices {
		out[p.Date] = p.Close
	}
	return out
}
