package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// day collapses a timestamp to its trading date.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// buildCalendar returns the common trading calendar for a snapshot: dates
// carried by the market index that also appear in at least one ticker's price
// series. Weekends never enter a calendar because the sources only publish
// trading days; the join guards against source disagreement, not gap filling.
func buildCalendar(s *Snapshot) (dates []time.Time, dropped int) {
	indexDates := make(map[time.Time]bool, len(s.Index))
	for _, r := range s.Index {
		indexDates[day(r.Date)] = true
	}

	priceDates := make(map[time.Time]bool)
	for _, records := range s.Prices {
		for _, r := range records {
			priceDates[day(r.Date)] = true
		}
	}

	seen := make(map[time.Time]bool)
	for d := range indexDates {
		if priceDates[d] {
			seen[d] = true
		} else {
			dropped++
		}
	}
	for d := range priceDates {
		if !indexDates[d] {
			dropped++
		}
	}

	dates = make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, dropped
}

// checkMonotonic verifies a ticker's records are strictly increasing in date.
func checkMonotonic[T any](ticker string, records []T, dateOf func(T) time.Time) error {
	for i := 1; i < len(records); i++ {
		prev, cur := day(dateOf(records[i-1])), day(dateOf(records[i]))
		if !prev.Before(cur) {
			return fmt.Errorf("ticker %s: dates not strictly increasing at %s", ticker, cur.Format("2006-01-02"))
		}
	}
	return nil
}

// Align inner-joins a snapshot onto the common trading calendar, producing an
// immutable Panel. Prices missing on a calendar date are forward-filled from
// the last known close and counted per ticker; flow and valuation values are
// never filled. Records must be sorted and duplicate-free per ticker.
func Align(s *Snapshot) (*Panel, error) {
	for ticker, recs := range s.Prices {
		if err := checkMonotonic(ticker, recs, func(r PriceRecord) time.Time { return r.Date }); err != nil {
			return nil, err
		}
	}
	for ticker, recs := range s.Foreign {
		if err := checkMonotonic(ticker, recs, func(r TradingRecord) time.Time { return r.Date }); err != nil {
			return nil, err
		}
	}
	for ticker, recs := range s.Self {
		if err := checkMonotonic(ticker, recs, func(r TradingRecord) time.Time { return r.Date }); err != nil {
			return nil, err
		}
	}

	dates, dropped := buildCalendar(s)
	if len(dates) == 0 {
		return nil, fmt.Errorf("sector %s: no overlapping trading dates between index and prices", s.Sector)
	}

	pos := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		pos[d] = i
	}

	p := &Panel{
		Sector:        s.Sector,
		Dates:         dates,
		Tickers:       append([]string(nil), s.Tickers...),
		Close:         make(map[string][]float64, len(s.Tickers)),
		ForeignNetBuy: make(map[string][]float64, len(s.Tickers)),
		SelfNetBuy:    make(map[string][]float64, len(s.Tickers)),
		TotalVolume:   make(map[string][]float64, len(s.Tickers)),
		PE:            make(map[string][]float64, len(s.Tickers)),
		PB:            make(map[string][]float64, len(s.Tickers)),
		Index:         nanSlice(len(dates)),
		DroppedDates:  dropped,
		ForwardFilled: make(map[string]int, len(s.Tickers)),
	}

	for _, r := range s.Index {
		if i, ok := pos[day(r.Date)]; ok {
			p.Index[i] = r.Level
		}
	}

	for _, ticker := range s.Tickers {
		closes := nanSlice(len(dates))
		for _, r := range s.Prices[ticker] {
			if i, ok := pos[day(r.Date)]; ok && r.IsValid() {
				closes[i] = r.Close
			}
		}
		// Forward-fill price gaps after the first observation. Explicit,
		// recorded degradation: the count lands in ForwardFilled.
		filled := 0
		last := math.NaN()
		for i := range closes {
			if !math.IsNaN(closes[i]) {
				last = closes[i]
				continue
			}
			if !math.IsNaN(last) {
				closes[i] = last
				filled++
			}
		}
		p.Close[ticker] = closes
		p.ForwardFilled[ticker] = filled

		foreign := nanSlice(len(dates))
		volume := nanSlice(len(dates))
		for _, r := range s.Foreign[ticker] {
			if i, ok := pos[day(r.Date)]; ok {
				foreign[i] = r.NetBuyValue
				volume[i] = r.TotalVolume
			}
		}
		p.ForeignNetBuy[ticker] = foreign
		p.TotalVolume[ticker] = volume

		self := nanSlice(len(dates))
		for _, r := range s.Self[ticker] {
			if i, ok := pos[day(r.Date)]; ok {
				self[i] = r.NetBuyValue
			}
		}
		p.SelfNetBuy[ticker] = self

		pe := nanSlice(len(dates))
		pb := nanSlice(len(dates))
		for _, r := range s.Valuation[ticker] {
			if i, ok := pos[day(r.Date)]; ok && r.IsValid() {
				pe[i] = r.PE
				pb[i] = r.PB
			}
		}
		p.PE[ticker] = pe
		p.PB[ticker] = pb
	}

	return p, nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
