package operations

import (
	"time"

	"vnflow/internal/analysis"
	"vnflow/internal/dataset"
)

// Stage identifiers.
const (
	StageIDFetch     = "fetch"
	StageIDLoad      = "load"
	StageIDNormalize = "normalize"
	StageIDForeign   = "foreign_leadlag"
	StageIDSelf      = "self_terciles"
	StageIDConflict  = "conflict_causality"
	StageIDValuation = "valuation_leadlag"
	StageIDComposite = "composite_backtest"
)

// Stage display names.
const (
	StageNameFetch     = "Source Refresh"
	StageNameLoad      = "Snapshot Load & Alignment"
	StageNameNormalize = "Signal Normalization"
	StageNameForeign   = "Foreign Flow Lead-Lag"
	StageNameSelf      = "Self Flow Terciles"
	StageNameConflict  = "Conflict Regimes & Causality"
	StageNameValuation = "Valuation Lead-Lag"
	StageNameComposite = "Composite Backtest"
)

// WebSocket event types.
const (
	EventTypeOperationStatus   = "operation:status"
	EventTypeOperationProgress = "operation:progress"
	EventTypeOperationComplete = "operation:complete"
	EventTypeOperationError    = "operation:error"
)

// Status values for operations and their steps.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepState is the live status of one stage within an operation.
type StepState struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// OperationRequest asks for one sector's research run.
type OperationRequest struct {
	Sector      string `json:"sector"`
	RefreshData bool   `json:"refresh_data,omitempty"`
}

// OperationState is the full record of a run: identity, step statuses, and
// the report once the run completes.
type OperationState struct {
	ID        string       `json:"id"`
	Sector    string       `json:"sector"`
	Status    Status       `json:"status"`
	Steps     []*StepState `json:"steps"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at,omitempty"`
	Error     string       `json:"error,omitempty"`
	Report    *Report      `json:"report,omitempty"`
}

// clone returns a copy safe to hand to readers while the run mutates the
// original. The report is immutable once set, so sharing the pointer is
// fine.
func (s *OperationState) clone() *OperationState {
	out := *s
	out.Steps = make([]*StepState, len(s.Steps))
	for i, step := range s.Steps {
		copied := *step
		out.Steps[i] = &copied
	}
	return &out
}

// Report is the complete output of a research run over one sector: one
// result per research question plus the data-quality account.
type Report struct {
	Sector      string          `json:"sector"`
	GeneratedAt time.Time       `json:"generated_at"`
	Params      analysis.Params `json:"params"`

	Tickers      []string `json:"tickers"`
	TradingDays  int      `json:"trading_days"`
	DroppedDates int      `json:"dropped_dates"`

	Validation *dataset.ValidationReport `json:"validation,omitempty"`

	ForeignLeadLag   *analysis.LeadLagResult    `json:"foreign_leadlag,omitempty"`
	SelfLeadLag      *analysis.LeadLagResult    `json:"self_terciles,omitempty"`
	Causality        []analysis.CausalityResult `json:"causality,omitempty"`
	ValuationLeadLag *analysis.LeadLagResult    `json:"valuation_leadlag,omitempty"`
	Composite        *analysis.CompositeResult  `json:"composite,omitempty"`
}
