// Package exporter writes finished research reports to disk. Each run
// produces one directory holding a multi-sheet workbook for reading and flat
// CSV files for downstream tooling. Statistics that could not be computed
// export as empty cells rather than NaN text.
package exporter
