package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

// CaféF history endpoints, relative to the configured base URL.
const (
	foreignHistoryPath = "/du-lieu/Ajax/PageNew/DataHistory/GDKhoiNgoai.ashx"
	selfHistoryPath    = "/du-lieu/Ajax/PageNew/DataHistory/GDTuDoanh.ashx"
	priceHistoryPath   = "/du-lieu/Ajax/PageNew/DataHistory/PriceHistory.ashx"
)

const sourceDateLayout = "02/01/2006"

// CafefClient pulls foreign and proprietary trading history from the CaféF
// paginated JSON API.
type CafefClient struct {
	base     string
	pageSize int
	client   *Client
	logger   *slog.Logger
}

// NewCafefClient builds the client. The shared Client carries the rate limit,
// so interleaving foreign and self requests stays within one budget.
func NewCafefClient(cfg config.FetchConfig, client *Client, logger *slog.Logger) *CafefClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CafefClient{
		base:     cfg.CafefBaseURL,
		pageSize: cfg.PageSize,
		client:   client,
		logger:   logger,
	}
}

// envelope is the outer response shape. The record list nests differently per
// endpoint: the foreign feed puts it directly under Data.Data, the self feed
// one level deeper under Data.Data.ListDataTudoanh.
type envelope struct {
	Data struct {
		TotalCount int             `json:"TotalCount"`
		Data       json.RawMessage `json:"Data"`
	} `json:"Data"`
}

type foreignRow struct {
	Date         string  `json:"Ngay"`
	NetBuyVolume float64 `json:"KLGDRong"`
	NetBuyValue  float64 `json:"GTGDRong"`
	TotalVolume  float64 `json:"KLGD"`
	Close        float64 `json:"Close"`
}

type selfListEnvelope struct {
	List []selfRow `json:"ListDataTudoanh"`
}

type selfRow struct {
	Date       string  `json:"Date"`
	BuyVolume  float64 `json:"KLCPMua"`
	SellVolume float64 `json:"KLCPBan"`
	BuyValue   float64 `json:"GTMua"`
	SellValue  float64 `json:"GTBan"`
}

// ForeignTrades downloads the full foreign trading history for one ticker.
// The close column rides along as the authoritative price series.
func (c *CafefClient) ForeignTrades(ctx context.Context, symbol string) ([]dataset.TradingRecord, []dataset.PriceRecord, error) {
	var trades []dataset.TradingRecord
	var prices []dataset.PriceRecord

	err := c.paginate(ctx, c.base+foreignHistoryPath, symbol, func(raw json.RawMessage) (int, error) {
		var rows []foreignRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return 0, fmt.Errorf("decode foreign rows: %w", err)
		}
		for _, row := range rows {
			date, err := time.Parse(sourceDateLayout, row.Date)
			if err != nil {
				return 0, fmt.Errorf("bad date %q: %w", row.Date, err)
			}
			trades = append(trades, dataset.TradingRecord{
				Date:         date,
				Ticker:       symbol,
				NetBuyValue:  row.NetBuyValue,
				NetBuyVolume: row.NetBuyVolume,
				TotalVolume:  row.TotalVolume,
			})
			if row.Close > 0 {
				prices = append(prices, dataset.PriceRecord{Date: date, Ticker: symbol, Close: row.Close})
			}
		}
		return len(rows), nil
	})
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info("foreign trades fetched", "symbol", symbol, "rows", len(trades))
	return trades, prices, nil
}

// SelfTrades downloads the proprietary trading history for one ticker. The
// feed reports gross buy and sell legs; the net position is computed here so
// downstream code sees the same shape as the foreign series.
func (c *CafefClient) SelfTrades(ctx context.Context, symbol string) ([]dataset.TradingRecord, error) {
	var trades []dataset.TradingRecord

	err := c.paginate(ctx, c.base+selfHistoryPath, symbol, func(raw json.RawMessage) (int, error) {
		var inner selfListEnvelope
		if err := json.Unmarshal(raw, &inner); err != nil {
			return 0, fmt.Errorf("decode self rows: %w", err)
		}
		for _, row := range inner.List {
			date, err := time.Parse(sourceDateLayout, row.Date)
			if err != nil {
				return 0, fmt.Errorf("bad date %q: %w", row.Date, err)
			}
			trades = append(trades, dataset.TradingRecord{
				Date:         date,
				Ticker:       symbol,
				NetBuyValue:  row.BuyValue - row.SellValue,
				NetBuyVolume: row.BuyVolume - row.SellVolume,
			})
		}
		return len(inner.List), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("self trades fetched", "symbol", symbol, "rows", len(trades))
	return trades, nil
}

type priceRow struct {
	Date  string  `json:"Ngay"`
	Close float64 `json:"GiaDongCua"`
}

// IndexHistory downloads the closing-level history of a market index from
// the price history endpoint.
func (c *CafefClient) IndexHistory(ctx context.Context, symbol string) ([]dataset.IndexRecord, error) {
	var records []dataset.IndexRecord

	err := c.paginate(ctx, c.base+priceHistoryPath, symbol, func(raw json.RawMessage) (int, error) {
		var rows []priceRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return 0, fmt.Errorf("decode price rows: %w", err)
		}
		for _, row := range rows {
			date, err := time.Parse(sourceDateLayout, row.Date)
			if err != nil {
				return 0, fmt.Errorf("bad date %q: %w", row.Date, err)
			}
			records = append(records, dataset.IndexRecord{Date: date, Level: row.Close})
		}
		return len(rows), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("index history fetched", "symbol", symbol, "rows", len(records))
	return records, nil
}

// paginate walks PageIndex upward until a page comes back empty or the
// accumulated rows reach the reported TotalCount.
func (c *CafefClient) paginate(ctx context.Context, endpoint, symbol string, consume func(json.RawMessage) (int, error)) error {
	total := -1
	seen := 0
	for page := 1; ; page++ {
		params := url.Values{
			"Symbol":    {symbol},
			"PageIndex": {strconv.Itoa(page)},
			"PageSize":  {strconv.Itoa(c.pageSize)},
		}
		body, err := c.client.get(ctx, endpoint, params)
		if err != nil {
			return fmt.Errorf("page %d for %s: %w", page, symbol, err)
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode page %d for %s: %w", page, symbol, err)
		}
		if total < 0 {
			total = env.Data.TotalCount
		}
		if len(env.Data.Data) == 0 || string(env.Data.Data) == "null" {
			return nil
		}

		n, err := consume(env.Data.Data)
		if err != nil {
			return fmt.Errorf("page %d for %s: %w", page, symbol, err)
		}
		if n == 0 {
			return nil
		}
		seen += n
		if total > 0 && seen >= total {
			return nil
		}
	}
}
