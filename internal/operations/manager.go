package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vnflow/internal/analysis"
	"vnflow/internal/config"
	"vnflow/internal/infrastructure"
)

// Manager executes research pipelines and keeps their states in memory.
// Stages run strictly in order; a failed stage fails the operation and the
// remaining stages never start.
type Manager struct {
	cfg         *config.Config
	stages      []Stage
	broadcaster Broadcaster
	logger      *slog.Logger

	mu         sync.RWMutex
	operations map[string]*OperationState
	cancels    map[string]context.CancelFunc
}

// NewManager creates a manager over the given stage list.
func NewManager(cfg *config.Config, stages []Stage, broadcaster Broadcaster, logger *slog.Logger) *Manager {
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:         cfg,
		stages:      stages,
		broadcaster: broadcaster,
		logger:      logger,
		operations:  make(map[string]*OperationState),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Execute runs the pipeline for one sector synchronously and returns the
// final state. The context carries the caller's trace ID into every stage.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationState, error) {
	state, run, err := m.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return state, run()
}

// Start launches the pipeline in the background and returns the freshly
// created state. The run outlives the caller's context; only its trace ID
// is carried over.
func (m *Manager) Start(ctx context.Context, req OperationRequest) (*OperationState, error) {
	state, run, err := m.prepare(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	snapshot := state.clone()
	go run()
	return snapshot, nil
}

func (m *Manager) prepare(ctx context.Context, req OperationRequest) (*OperationState, func() error, error) {
	sector, ok := m.cfg.Sector(req.Sector)
	if !ok {
		return nil, nil, fmt.Errorf("unknown sector %q", req.Sector)
	}
	params := analysis.ParamsFromConfig(m.cfg.Analysis)
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, cancel := context.WithCancel(ctx)

	state := &OperationState{
		ID:        uuid.NewString(),
		Sector:    sector.Name,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	for _, stage := range m.stages {
		state.Steps = append(state.Steps, &StepState{
			ID:     stage.ID(),
			Name:   stage.Name(),
			Status: StatusPending,
		})
	}
	m.store(state, cancel)

	run := func() error {
		defer cancel()
		defer m.dropCancel(state.ID)

		m.broadcast(EventTypeOperationStatus, state)

		pipeline := &State{
			Sector:  sector,
			Params:  params,
			Refresh: req.RefreshData,
		}

		logger := m.logger.With("trace_id", infrastructure.GetTraceID(ctx))
		logger.Info("operation started", "operation_id", state.ID, "sector", sector.Name)

		for i, stage := range m.stages {
			if err := m.runStage(ctx, state, state.Steps[i], stage, pipeline); err != nil {
				status := StatusFailed
				if ctx.Err() != nil {
					status = StatusCancelled
				}
				m.finish(state, status, err, nil)
				m.broadcast(EventTypeOperationError, state)
				logger.Error("operation failed",
					"operation_id", state.ID,
					"stage", stage.ID(),
					"error", err,
				)
				return err
			}
		}

		m.finish(state, StatusCompleted, nil, pipeline.Report)
		m.broadcast(EventTypeOperationComplete, state)
		logger.Info("operation completed",
			"operation_id", state.ID,
			"duration", state.EndedAt.Sub(state.StartedAt).String(),
		)
		return nil
	}
	return state, run, nil
}

// runStage mutates step state under the manager lock so concurrent readers
// always see a consistent view.
func (m *Manager) runStage(ctx context.Context, op *OperationState, step *StepState, stage Stage, pipeline *State) error {
	if err := ctx.Err(); err != nil {
		m.setStep(step, StatusCancelled, "")
		return err
	}

	m.mu.Lock()
	step.Status = StatusRunning
	step.StartedAt = time.Now()
	m.mu.Unlock()
	m.broadcast(EventTypeOperationProgress, op)

	err := stage.Run(ctx, pipeline)
	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil {
			status = StatusCancelled
		}
		m.setStep(step, status, err.Error())
		return fmt.Errorf("stage %s: %w", stage.ID(), err)
	}

	m.setStep(step, StatusCompleted, "")
	m.broadcast(EventTypeOperationProgress, op)
	return nil
}

func (m *Manager) setStep(step *StepState, status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step.Status = status
	step.EndedAt = time.Now()
	step.Error = errMsg
}

func (m *Manager) finish(state *OperationState, status Status, err error, report *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Status = status
	state.EndedAt = time.Now()
	state.Report = report
	if err != nil {
		state.Error = err.Error()
	}
}

// Get returns a copy of one operation state by ID.
func (m *Manager) Get(id string) (*OperationState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operations[id]
	if !ok {
		return nil, false
	}
	return op.clone(), true
}

// List returns copies of all known operations, newest first.
func (m *Manager) List() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*OperationState, 0, len(m.operations))
	for _, op := range m.operations {
		out = append(out, op.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel stops a running operation. Completed operations cannot be
// cancelled.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operations[id]
	if !ok {
		return fmt.Errorf("operation %s not found", id)
	}
	cancel, running := m.cancels[id]
	if !running || op.Status != StatusRunning {
		return fmt.Errorf("operation %s is not running", id)
	}
	cancel()
	return nil
}

func (m *Manager) store(state *OperationState, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
	m.cancels[state.ID] = cancel
}

func (m *Manager) dropCancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, id)
}

func (m *Manager) broadcast(eventType string, state *OperationState) {
	m.broadcaster.Broadcast(eventType, state)
}
