package analysis

import "fmt"

// ConfigurationError reports an invalid parameter combination. It is the only
// error class treated as caller programming error: surfaced immediately, never
// folded into a partial result.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

// InsufficientDataError reports that an operation had fewer observations than
// it needs. The observed count always travels with the error so a skipped
// computation shows up in output with its reason, never silently.
type InsufficientDataError struct {
	Op   string
	Got  int
	Want int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data (%d observations, need %d)", e.Op, e.Got, e.Want)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	_, ok := err.(*InsufficientDataError)
	return ok
}
