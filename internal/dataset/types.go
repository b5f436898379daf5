package dataset

import (
	"math"
	"time"
)

// TradingRecord is one day of institutional flow for a ticker. NetBuyValue
// and NetBuyVolume are NaN on days the ticker had no flow data.
type TradingRecord struct {
	Date         time.Time `json:"date"`
	Ticker       string    `json:"ticker"`
	NetBuyValue  float64   `json:"net_buy_value"`
	NetBuyVolume float64   `json:"net_buy_volume"`
	TotalVolume  float64   `json:"total_volume"`
}

// HasFlow reports whether the record carries usable flow data.
func (r TradingRecord) HasFlow() bool {
	return !math.IsNaN(r.NetBuyValue)
}

// ValuationRecord is one day of valuation ratios for a ticker. PE and PB
// require positive earnings/book value; non-positive values are invalid.
type ValuationRecord struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	PE     float64   `json:"pe"`
	PB     float64   `json:"pb"`
}

// IsValid reports whether the valuation ratios are usable.
func (r ValuationRecord) IsValid() bool {
	return r.PE > 0 && r.PB > 0 && !math.IsInf(r.PE, 0) && !math.IsInf(r.PB, 0)
}

// IndexRecord is one day of the market index. One global series, no ticker
// dimension.
type IndexRecord struct {
	Date  time.Time `json:"date"`
	Level float64   `json:"index_level"`
}

// PriceRecord is one day's closing price for a ticker.
type PriceRecord struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Close  float64   `json:"close"`
}

// IsValid reports whether the price is usable.
func (r PriceRecord) IsValid() bool {
	return r.Close > 0 && !math.IsInf(r.Close, 0)
}

// Snapshot is an immutable bundle of raw input tables for one sector, as
// produced by the loader or the fetch clients. All downstream analyses are a
// pure function of a snapshot plus configuration.
type Snapshot struct {
	Sector    string                       `json:"sector"`
	Tickers   []string                     `json:"tickers"`
	Foreign   map[string][]TradingRecord   `json:"foreign"`
	Self      map[string][]TradingRecord   `json:"self"`
	Valuation map[string][]ValuationRecord `json:"valuation"`
	Prices    map[string][]PriceRecord     `json:"prices"`
	Index     []IndexRecord                `json:"index"`
	FetchedAt time.Time                    `json:"fetched_at"`
}

// Panel is a snapshot inner-joined onto a single trading calendar. Every
// per-ticker slice has len(Dates) entries with NaN marking missing values.
// A Panel is never mutated after Align builds it.
type Panel struct {
	Sector  string
	Dates   []time.Time
	Tickers []string

	Close         map[string][]float64
	ForeignNetBuy map[string][]float64
	SelfNetBuy    map[string][]float64
	TotalVolume   map[string][]float64
	PE            map[string][]float64
	PB            map[string][]float64
	Index         []float64

	// Degradation bookkeeping, reported rather than silently applied.
	DroppedDates  int            // dates lost to the calendar inner join
	ForwardFilled map[string]int // price observations carried from the last close
}

// Len returns the number of trading days in the panel.
func (p *Panel) Len() int {
	return len(p.Dates)
}

// DateIndex returns the position of the given date, or -1.
func (p *Panel) DateIndex(date time.Time) int {
	for i, d := range p.Dates {
		if d.Equal(date) {
			return i
		}
	}
	return -1
}
