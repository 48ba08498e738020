package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RunState represents the current state of a pipeline run
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// StageState represents the state of an individual stage
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
)

// RunID uniquely identifies a pipeline run
type RunID string

// Stage is one blocking step of a pipeline. Stages share data through closures.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Execution records the outcome of one run
type Execution struct {
	ID          RunID            `json:"id"`
	Name        string           `json:"name"`
	State       RunState         `json:"state"`
	Stages      []StageExecution `json:"stages"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// StageExecution represents the execution state of a stage
type StageExecution struct {
	Name        string     `json:"name"`
	State       StageState `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration is zero until the stage has finished
func (s StageExecution) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// Event represents a change in the run lifecycle
type Event struct {
	RunID     RunID     `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Event types
const (
	EventRunStarted     = "run_started"
	EventRunCompleted   = "run_completed"
	EventRunFailed      = "run_failed"
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
)

// Observer receives events synchronously, on the goroutine running the pipeline
type Observer func(Event)

// StageError identifies which stage stopped the run
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
