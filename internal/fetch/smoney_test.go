package fetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const valuationPage = `<html><head></head><body>
<script>
var something = 1;
var valuationHistory = JSON.parse('{"date":{"0":"2024-01-02","1":"2024-01-03","2":"2024-01-04"},"pe":{"0":12.5,"1":12.8,"2":13.1},"pb":{"0":1.4,"1":1.45}}');
renderChart(valuationHistory);
</script>
</body></html>`

func TestSmoneyClient_ValuationHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/co-phieu/HPG", r.URL.Path)
		fmt.Fprint(w, valuationPage)
	}))
	t.Cleanup(srv.Close)

	cfg := testFetchConfig(srv.URL)
	client := NewSmoneyClient(cfg, NewClient(cfg, "", nil), nil)

	records, err := client.ValuationHistory(context.Background(), "HPG")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), records[0].Date)
	assert.Equal(t, 12.5, records[0].PE)
	assert.Equal(t, 1.4, records[0].PB)
	// PB missing on row 2: NaN, not zero
	assert.True(t, math.IsNaN(records[2].PB))
	assert.Equal(t, 13.1, records[2].PE)
}

func TestSmoneyClient_MissingPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no charts today</body></html>")
	}))
	t.Cleanup(srv.Close)

	cfg := testFetchConfig(srv.URL)
	client := NewSmoneyClient(cfg, NewClient(cfg, "", nil), nil)

	_, err := client.ValuationHistory(context.Background(), "HPG")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valuation history")
}

func TestDecodeJSString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"escaped single quote", `it\'s fine`, `it's fine`},
		{"unicode escape", `giá`, "giá"},
		{"embedded double quote", `{"s":"x"}`, `{"s":"x"}`},
		{"backslash escape", `a\\b`, `a\b`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeJSString(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
