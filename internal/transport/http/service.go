package http

import (
	"context"
	"time"

	"vnflow/internal/operations"
)

// ResearchService is the slice of the operations manager the handlers use.
type ResearchService interface {
	Start(ctx context.Context, req operations.OperationRequest) (*operations.OperationState, error)
	Get(id string) (*operations.OperationState, bool)
	List() []*operations.OperationState
	Cancel(id string) error
}

// ReportExporter writes a completed report to disk and returns the run
// directory.
type ReportExporter interface {
	Export(report *operations.Report) (string, error)
}

// SnapshotStore reports the freshness of a sector's stored data.
type SnapshotStore interface {
	Age(sector string) (time.Duration, bool)
	IsStale(sector string, maxAge time.Duration) bool
}
