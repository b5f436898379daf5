// Package fetch pulls the raw research tables from their upstream sources:
// foreign and proprietary trading history from the CaféF JSON API and PE/PB
// valuation history scraped out of the smoney stock pages. Fetched snapshots
// are persisted as xlsx workbooks the dataset loader reads back, with a
// staleness window so the end-of-day feeds are not re-fetched pointlessly.
package fetch
