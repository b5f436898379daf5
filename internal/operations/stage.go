package operations

import (
	"context"

	"vnflow/internal/analysis"
	"vnflow/internal/config"
	"vnflow/internal/dataset"
)

// State is the shared pipeline state threaded through the stages. Stages run
// sequentially, each filling in what the next ones need; no locking is
// required.
type State struct {
	Sector  config.SectorConfig
	Params  analysis.Params
	Refresh bool

	Snapshot *dataset.Snapshot
	Panel    *dataset.Panel
	Signals  *analysis.SignalSet

	Report *Report
}

// Stage is one step of the research pipeline.
type Stage interface {
	ID() string
	Name() string
	Run(ctx context.Context, state *State) error
}

// Broadcaster pushes operation events to listeners. The websocket hub
// implements it; a nil broadcaster is replaced by a no-op.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, any) {}
