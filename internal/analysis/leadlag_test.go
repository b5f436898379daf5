package analysis

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vnflow/internal/dataset"
)

// driftPanel builds a panel of tickers with deterministic per-ticker daily
// drift rates and a flat index, so forward excess returns are known exactly.
func driftPanel(t *testing.T, tickers int, days int, drift func(ticker int) float64) *dataset.Panel {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	p := &dataset.Panel{
		Sector:        "steel",
		Close:         map[string][]float64{},
		ForeignNetBuy: map[string][]float64{},
		SelfNetBuy:    map[string][]float64{},
		TotalVolume:   map[string][]float64{},
		PE:            map[string][]float64{},
		PB:            map[string][]float64{},
		ForwardFilled: map[string]int{},
	}
	for d := 0; d < days; d++ {
		p.Dates = append(p.Dates, start.AddDate(0, 0, d))
		p.Index = append(p.Index, 1000)
	}
	for i := 0; i < tickers; i++ {
		name := fmt.Sprintf("T%02d", i)
		p.Tickers = append(p.Tickers, name)
		r := drift(i)
		px := 100.0
		for d := 0; d < days; d++ {
			p.Close[name] = append(p.Close[name], px)
			px *= 1 + r
		}
	}
	return p
}

// constantSignal gives every date the same per-ticker value.
func constantSignal(p *dataset.Panel, value func(ticker int) float64) map[string][]float64 {
	out := make(map[string][]float64, len(p.Tickers))
	for i, ticker := range p.Tickers {
		s := make([]float64, p.Len())
		for d := range s {
			s[d] = value(i)
		}
		out[ticker] = s
	}
	return out
}

func TestForwardReturnSeries(t *testing.T) {
	p := driftPanel(t, 2, 6, func(i int) float64 { return 0.01 * float64(i+1) })

	t.Run("horizon zero is identically zero", func(t *testing.T) {
		raw, excess, err := ForwardReturnSeries(p, 0)
		require.NoError(t, err)
		for _, ticker := range p.Tickers {
			for d := 0; d < p.Len(); d++ {
				assert.Zero(t, raw[ticker][d])
				assert.Zero(t, excess[ticker][d])
			}
		}
	})

	t.Run("known compounded returns", func(t *testing.T) {
		raw, excess, err := ForwardReturnSeries(p, 3)
		require.NoError(t, err)
		want := math.Pow(1.01, 3) - 1
		assert.InDelta(t, want, raw["T00"][0], 1e-12)
		// flat index: excess equals raw
		assert.InDelta(t, want, excess["T00"][0], 1e-12)
		// tail has no forward price
		assert.True(t, math.IsNaN(raw["T00"][4]))
	})

	t.Run("missing price drops the observation", func(t *testing.T) {
		p2 := driftPanel(t, 1, 6, func(int) float64 { return 0.01 })
		p2.Close["T00"][3] = math.NaN()
		raw, _, err := ForwardReturnSeries(p2, 1)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(raw["T00"][2]), "return into the gap")
		assert.True(t, math.IsNaN(raw["T00"][3]), "return out of the gap")
		assert.False(t, math.IsNaN(raw["T00"][4]))
	})

	t.Run("missing index leaves raw but kills excess", func(t *testing.T) {
		p2 := driftPanel(t, 1, 6, func(int) float64 { return 0.01 })
		p2.Index[1] = math.NaN()
		raw, excess, err := ForwardReturnSeries(p2, 1)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(raw["T00"][1]))
		assert.True(t, math.IsNaN(excess["T00"][1]))
	})

	t.Run("negative horizon rejected", func(t *testing.T) {
		_, _, err := ForwardReturnSeries(p, -1)
		require.Error(t, err)
	})
}

func TestLeadLagEngine_PredictiveSignal(t *testing.T) {
	// Ten tickers with strictly increasing drift; the signal is the drift
	// rank itself, so it orders future returns perfectly on every date.
	p := driftPanel(t, 10, 45, func(i int) float64 { return 0.001 * float64(i) })
	signal := constantSignal(p, func(i int) float64 { return float64(i) })

	params := DefaultParams()
	params.Horizons = []int{1, 5}
	engine, err := NewLeadLagEngine(params, nil)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), p, "drift_rank", signal, 3)
	require.NoError(t, err)
	require.Len(t, res.Horizons, 2)
	assert.Zero(t, res.SkippedDates)

	for _, hr := range res.Horizons {
		require.Len(t, hr.Buckets, 3, "horizon %d", hr.Horizon)

		// bucket sizes: 10 tickers split 4/3/3, pooled over usable dates
		usable := 45 - hr.Horizon
		assert.Equal(t, 4*usable, hr.Buckets[0].Count)
		assert.Equal(t, 3*usable, hr.Buckets[1].Count)
		assert.Equal(t, 3*usable, hr.Buckets[2].Count)

		// mean returns rise monotonically with the bucket
		assert.Less(t, hr.Buckets[0].MeanReturn, hr.Buckets[1].MeanReturn)
		assert.Less(t, hr.Buckets[1].MeanReturn, hr.Buckets[2].MeanReturn)

		require.True(t, hr.Spread.Valid, "horizon %d", hr.Horizon)
		assert.Positive(t, hr.Spread.Value)
		assert.Less(t, hr.Spread.PValue, 0.05)

		require.True(t, hr.IC.Valid)
		assert.InDelta(t, 1.0, hr.IC.Value, 1e-12)
		assert.Less(t, hr.IC.PValue, 0.05)

		assert.Zero(t, hr.DroppedObs)
	}
}

func TestLeadLagEngine_DroppedAndSkipped(t *testing.T) {
	p := driftPanel(t, 6, 40, func(i int) float64 { return 0.001 * float64(i) })
	signal := constantSignal(p, func(i int) float64 { return float64(i) })

	// one ticker loses its price tail: its day-35 observation has no
	// day-36 close, so horizon-1 drops it on top of the usual boundary
	for d := 36; d < 40; d++ {
		p.Close["T03"][d] = math.NaN()
	}
	// two dates lose the whole signal cross-section
	for _, ticker := range p.Tickers {
		signal[ticker][10] = math.NaN()
		signal[ticker][11] = math.NaN()
	}

	params := DefaultParams()
	params.Horizons = []int{1}
	engine, err := NewLeadLagEngine(params, nil)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), p, "drift_rank", signal, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedDates)

	hr := res.Horizons[0]
	// T03 signal exists on days 35-38 but the forward price is gone
	assert.Equal(t, 4, hr.DroppedObs)
}

func TestLeadLagEngine_InsufficientSample(t *testing.T) {
	// 4 tickers over 8 days cannot reach 30 observations per bucket
	p := driftPanel(t, 4, 8, func(i int) float64 { return 0.002 * float64(i) })
	signal := constantSignal(p, func(i int) float64 { return float64(i) })

	params := DefaultParams()
	params.Horizons = []int{1}
	engine, err := NewLeadLagEngine(params, nil)
	require.NoError(t, err)

	res, err := engine.Run(context.Background(), p, "drift_rank", signal, 3)
	require.NoError(t, err)

	hr := res.Horizons[0]
	assert.False(t, hr.Spread.Valid)
	assert.True(t, math.IsNaN(hr.Spread.Value))
	assert.Positive(t, hr.Spread.N1, "group sizes preserved on invalid results")
	assert.Contains(t, hr.Spread.Reason, "insufficient data")
	assert.False(t, hr.IC.Valid)
}
