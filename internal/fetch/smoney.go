package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

// valuationPattern locates the embedded valuation series in the stock page.
// The payload is a JS single-quoted string passed to JSON.parse.
var valuationPattern = regexp.MustCompile(`valuationHistory\s*=\s*JSON\.parse\('(.+?)'\)`)

var valuationDateLayouts = []string{"2006-01-02", "02/01/2006"}

// SmoneyClient extracts PE/PB history from the smoney stock pages. There is
// no JSON API for this series; the page inlines it for its own chart.
type SmoneyClient struct {
	base   string
	client *Client
	logger *slog.Logger
}

// NewSmoneyClient builds the client.
func NewSmoneyClient(cfg config.FetchConfig, client *Client, logger *slog.Logger) *SmoneyClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SmoneyClient{base: cfg.SmoneyBaseURL, client: client, logger: logger}
}

// valuationPayload mirrors the inlined structure: parallel columns keyed by
// row number as a string ("0", "1", ...).
type valuationPayload struct {
	Date map[string]string      `json:"date"`
	PE   map[string]json.Number `json:"pe"`
	PB   map[string]json.Number `json:"pb"`
}

// ValuationHistory fetches one ticker's page and returns the PE/PB series in
// date order.
func (c *SmoneyClient) ValuationHistory(ctx context.Context, symbol string) ([]dataset.ValuationRecord, error) {
	body, err := c.client.get(ctx, c.base+"/co-phieu/"+symbol, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch valuation page for %s: %w", symbol, err)
	}

	m := valuationPattern.FindSubmatch(body)
	if m == nil {
		return nil, fmt.Errorf("no valuation history found for %s", symbol)
	}

	decoded, err := decodeJSString(string(m[1]))
	if err != nil {
		return nil, fmt.Errorf("decode valuation payload for %s: %w", symbol, err)
	}

	var payload valuationPayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, fmt.Errorf("parse valuation payload for %s: %w", symbol, err)
	}

	records, err := payload.records(symbol)
	if err != nil {
		return nil, fmt.Errorf("valuation rows for %s: %w", symbol, err)
	}
	c.logger.Info("valuation history fetched", "symbol", symbol, "rows", len(records))
	return records, nil
}

func (p *valuationPayload) records(symbol string) ([]dataset.ValuationRecord, error) {
	// row keys are stringified integers; sort numerically, not lexically
	keys := make([]int, 0, len(p.Date))
	for k := range p.Date {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("non-numeric row key %q", k)
		}
		keys = append(keys, i)
	}
	sort.Ints(keys)

	var records []dataset.ValuationRecord
	for _, i := range keys {
		k := strconv.Itoa(i)
		date, err := parseValuationDate(p.Date[k])
		if err != nil {
			continue
		}
		records = append(records, dataset.ValuationRecord{
			Date:   date,
			Ticker: symbol,
			PE:     numberOrNaN(p.PE[k]),
			PB:     numberOrNaN(p.PB[k]),
		})
	}
	sort.Slice(records, func(a, b int) bool { return records[a].Date.Before(records[b].Date) })
	return records, nil
}

// numberOrNaN parses a JSON number, mapping absent or malformed entries to
// NaN so the dataset validator can reject them explicitly.
func numberOrNaN(n json.Number) float64 {
	if n == "" {
		return math.NaN()
	}
	v, err := n.Float64()
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseValuationDate(s string) (time.Time, error) {
	for _, layout := range valuationDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// decodeJSString undoes the escaping of a single-quoted JS string literal so
// the payload becomes plain JSON. Escaped single quotes are literal in JSON,
// and bare double quotes must be re-escaped before strconv.Unquote can apply
// the standard escape rules (\uXXXX, \n, \\).
func decodeJSString(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw) + 2)
	b.WriteByte('"')
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '\\':
			if i+1 < len(raw) && raw[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			b.WriteByte(c)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return strconv.Unquote(b.String())
}
