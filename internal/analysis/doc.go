// Package analysis implements the research engine: rolling normalization of
// institutional flow and valuation series, cross-sectional bucketing,
// lead-lag tables with significance tests, flow causality by conflict
// regime, and the composite score backtest.
//
// Every engine takes a calendar-aligned dataset.Panel as input and reports
// thin, JSON-ready result structs. Observations that cannot be computed are
// dropped and counted, never imputed; statistics below the minimum sample
// size come back with Valid=false and the sample size preserved.
package analysis
