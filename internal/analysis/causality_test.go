package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vnflow/internal/dataset"
)

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name          string
		foreign, self float64
		want          Regime
	}{
		{"both buying", 5e9, 2e9, RegimeBothBuy},
		{"both selling", -5e9, -2e9, RegimeBothSell},
		{"foreign buys into self selling", 5e9, -2e9, RegimeForeignBuySelfSell},
		{"foreign sells into self buying", -5e9, 2e9, RegimeForeignSellSelfBuy},
		{"flat day counts as selling", 0, 0, RegimeBothSell},
		{"foreign buys against flat self", 5e9, 0, RegimeForeignBuySelfSell},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyRegime(tc.foreign, tc.self))
		})
	}
}

func TestRegimeString(t *testing.T) {
	assert.Equal(t, "all", RegimeAll.String())
	assert.Equal(t, "both_buy", RegimeBothBuy.String())
	assert.Equal(t, "foreign_buy_self_sell", RegimeForeignBuySelfSell.String())
	assert.Equal(t, "no_clear_leader", LeaderNone.String())
	assert.Equal(t, "foreign", LeaderForeign.String())
}

// lcg is a tiny deterministic noise source so the Granger fixtures are
// reproducible without pulling in math/rand seeding details.
type lcg struct{ state uint64 }

func (g *lcg) next() float64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return float64(g.state>>32)/float64(1<<31) - 1 // roughly uniform in [-1,1)
}

// causalityPanel builds one ticker where self flow follows foreign flow with
// a one-day lag, while foreign flow itself is serially unpredictable noise.
func causalityPanel(t *testing.T, days int) *dataset.Panel {
	t.Helper()
	g := &lcg{state: 42}

	foreign := make([]float64, days)
	self := make([]float64, days)
	for d := 0; d < days; d++ {
		foreign[d] = g.next() * 1e9
		if d == 0 {
			self[d] = g.next() * 1e8
		} else {
			self[d] = 0.8*foreign[d-1] + 0.1e9*g.next()
		}
	}

	p := driftPanel(t, 1, days, func(int) float64 { return 0.001 })
	p.Tickers = []string{"HPG"}
	p.Close["HPG"] = p.Close["T00"]
	delete(p.Close, "T00")
	p.ForeignNetBuy = map[string][]float64{"HPG": foreign}
	p.SelfNetBuy = map[string][]float64{"HPG": self}
	return p
}

func TestCausalityEngine_ForeignLeads(t *testing.T) {
	p := causalityPanel(t, 400)

	engine, err := NewCausalityEngine(DefaultParams(), nil)
	require.NoError(t, err)

	results, err := engine.Run(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "HPG", res.Ticker)
	assert.Equal(t, 5, res.Lag)
	require.Len(t, res.Regimes, 5, "full sample plus four conflict regimes")

	all := res.Regimes[0]
	require.Equal(t, RegimeAll, all.Regime)
	assert.Equal(t, 400-5, all.Days)

	require.True(t, all.ForeignToSelf.Valid)
	require.True(t, all.SelfToForeign.Valid)
	assert.Less(t, all.ForeignToSelf.PValue, 0.05, "foreign lags explain self flow")
	assert.GreaterOrEqual(t, all.SelfToForeign.PValue, 0.05, "self lags carry no information about noise")
	assert.Equal(t, LeaderForeign, all.Leader)

	// regime day counts partition the usable sample
	daySum := 0
	for _, rr := range res.Regimes[1:] {
		daySum += rr.Days
	}
	assert.Equal(t, all.Days, daySum)

	// every regime keeps enough days here, and the lead direction holds
	// within each of them
	for _, rr := range res.Regimes[1:] {
		require.GreaterOrEqual(t, rr.Days, 30, "regime %s", rr.Regime)
		assert.True(t, rr.ForeignToSelf.Valid, "regime %s", rr.Regime)
		assert.Equal(t, LeaderForeign, rr.Leader, "regime %s", rr.Regime)
	}
}

func TestCausalityEngine_InsufficientRegime(t *testing.T) {
	p := causalityPanel(t, 400)
	// force every day into both-buy so the other regimes starve
	for d := range p.ForeignNetBuy["HPG"] {
		p.ForeignNetBuy["HPG"][d] = math.Abs(p.ForeignNetBuy["HPG"][d]) + 1
		p.SelfNetBuy["HPG"][d] = math.Abs(p.SelfNetBuy["HPG"][d]) + 1
	}

	engine, err := NewCausalityEngine(DefaultParams(), nil)
	require.NoError(t, err)

	results, err := engine.Run(context.Background(), p)
	require.NoError(t, err)
	res := results[0]

	for _, rr := range res.Regimes {
		switch rr.Regime {
		case RegimeAll, RegimeBothBuy:
			assert.True(t, rr.ForeignToSelf.Valid, "regime %s", rr.Regime)
		default:
			assert.Zero(t, rr.Days)
			assert.False(t, rr.ForeignToSelf.Valid)
			assert.Contains(t, rr.ForeignToSelf.Reason, "insufficient data")
			assert.Equal(t, LeaderNone, rr.Leader)
		}
	}
}

func TestCausalityEngine_GapsShrinkSample(t *testing.T) {
	p := causalityPanel(t, 400)
	// a NaN at day 100 invalidates days 100..105 as regression rows
	p.ForeignNetBuy["HPG"][100] = math.NaN()

	engine, err := NewCausalityEngine(DefaultParams(), nil)
	require.NoError(t, err)

	results, err := engine.Run(context.Background(), p)
	require.NoError(t, err)

	all := results[0].Regimes[0]
	assert.Equal(t, 400-5-6, all.Days)
}
