package exporter

import (
	"fmt"
	"math"
)

// formatFloat formats a statistic with 4 decimal places. NaN and infinities
// become empty cells so spreadsheet readers do not choke on "NaN".
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return fmt.Sprintf("%.4f", f)
}

// formatReturn formats a per-period return with 6 decimal places, enough to
// keep daily basis points distinguishable.
func formatReturn(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return fmt.Sprintf("%.6f", f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return fmt.Sprintf("%d", i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
