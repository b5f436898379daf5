package dataset

import (
	"fmt"
	"math"
	"time"
)

// RejectedRow identifies one input row dropped by validation, with the
// reason. Offending rows are rejected and enumerated, never coerced.
type RejectedRow struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Field  string    `json:"field"`
	Reason string    `json:"reason"`
}

// ValidationReport summarizes what validation removed from a snapshot.
type ValidationReport struct {
	Rejected []RejectedRow `json:"rejected"`
}

// Count returns the number of rejected rows.
func (r *ValidationReport) Count() int {
	return len(r.Rejected)
}

func (r *ValidationReport) reject(ticker string, date time.Time, field, reason string) {
	r.Rejected = append(r.Rejected, RejectedRow{Ticker: ticker, Date: date, Field: field, Reason: reason})
}

// Validate screens a snapshot for invalid rows and returns a cleaned copy
// plus the report. Valuation rows with non-positive PE or PB are invalid
// (negative earnings make the ratio meaningless), prices must be positive,
// flow values must be finite or absent (NaN is a legal "did not trade").
func Validate(s *Snapshot) (*Snapshot, *ValidationReport) {
	report := &ValidationReport{}

	clean := &Snapshot{
		Sector:    s.Sector,
		Tickers:   append([]string(nil), s.Tickers...),
		Foreign:   make(map[string][]TradingRecord, len(s.Foreign)),
		Self:      make(map[string][]TradingRecord, len(s.Self)),
		Valuation: make(map[string][]ValuationRecord, len(s.Valuation)),
		Prices:    make(map[string][]PriceRecord, len(s.Prices)),
		Index:     make([]IndexRecord, 0, len(s.Index)),
		FetchedAt: s.FetchedAt,
	}

	for ticker, recs := range s.Foreign {
		clean.Foreign[ticker] = screenTrading(ticker, recs, report)
	}
	for ticker, recs := range s.Self {
		clean.Self[ticker] = screenTrading(ticker, recs, report)
	}

	for ticker, recs := range s.Valuation {
		kept := make([]ValuationRecord, 0, len(recs))
		for _, r := range recs {
			switch {
			case math.IsNaN(r.PE) && math.IsNaN(r.PB):
				// no valuation published that day; nothing to reject
				kept = append(kept, r)
			case !r.IsValid():
				report.reject(ticker, r.Date, "pe/pb",
					fmt.Sprintf("non-positive valuation ratio (pe=%.2f, pb=%.2f)", r.PE, r.PB))
			default:
				kept = append(kept, r)
			}
		}
		clean.Valuation[ticker] = kept
	}

	for ticker, recs := range s.Prices {
		kept := make([]PriceRecord, 0, len(recs))
		for _, r := range recs {
			if !r.IsValid() {
				report.reject(ticker, r.Date, "close", fmt.Sprintf("non-positive close %.2f", r.Close))
				continue
			}
			kept = append(kept, r)
		}
		clean.Prices[ticker] = kept
	}

	for _, r := range s.Index {
		if r.Level <= 0 || math.IsInf(r.Level, 0) || math.IsNaN(r.Level) {
			report.reject("", r.Date, "index_level", fmt.Sprintf("invalid index level %.2f", r.Level))
			continue
		}
		clean.Index = append(clean.Index, r)
	}

	return clean, report
}

func screenTrading(ticker string, recs []TradingRecord, report *ValidationReport) []TradingRecord {
	kept := make([]TradingRecord, 0, len(recs))
	for _, r := range recs {
		if math.IsInf(r.NetBuyValue, 0) || math.IsInf(r.NetBuyVolume, 0) {
			report.reject(ticker, r.Date, "net_buy", "non-finite flow value")
			continue
		}
		if !math.IsNaN(r.TotalVolume) && r.TotalVolume < 0 {
			report.reject(ticker, r.Date, "total_volume", fmt.Sprintf("negative volume %.0f", r.TotalVolume))
			continue
		}
		kept = append(kept, r)
	}
	return kept
}
