package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner executes stages in order and stops at the first failure
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a new pipeline runner
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes the stages sequentially on the calling goroutine.
// The returned Execution is complete even when err is non-nil; err is a *StageError.
func (r *Runner) Run(ctx context.Context, name string, stages []Stage, observer Observer) (*Execution, error) {
	if observer == nil {
		observer = func(Event) {}
	}

	exec := &Execution{
		ID:        RunID(fmt.Sprintf("%s_%d", name, time.Now().UnixNano())),
		Name:      name,
		State:     RunStateRunning,
		Stages:    make([]StageExecution, len(stages)),
		StartedAt: time.Now(),
	}
	for i, stage := range stages {
		exec.Stages[i] = StageExecution{Name: stage.Name, State: StageStatePending}
	}

	observer(Event{
		RunID:     exec.ID,
		Type:      EventRunStarted,
		Total:     len(stages),
		Timestamp: exec.StartedAt,
	})

	for i, stage := range stages {
		if err := r.runStage(ctx, exec, i, stage, observer); err != nil {
			r.logger.Error("Stage failed",
				zap.String("runID", string(exec.ID)),
				zap.String("stage", stage.Name),
				zap.Error(err))

			r.finish(exec, RunStateFailed, err, observer)
			return exec, &StageError{Stage: stage.Name, Err: err}
		}
	}

	r.finish(exec, RunStateCompleted, nil, observer)
	r.logger.Info("Pipeline completed",
		zap.String("runID", string(exec.ID)),
		zap.Duration("elapsed", exec.CompletedAt.Sub(exec.StartedAt)))
	return exec, nil
}

func (r *Runner) runStage(ctx context.Context, exec *Execution, index int, stage Stage, observer Observer) error {
	stageExec := &exec.Stages[index]

	started := time.Now()
	stageExec.State = StageStateRunning
	stageExec.StartedAt = &started

	observer(Event{
		RunID:     exec.ID,
		Stage:     stage.Name,
		Index:     index,
		Total:     len(exec.Stages),
		Type:      EventStageStarted,
		Timestamp: started,
	})

	err := ctx.Err()
	if err == nil {
		err = stage.Run(ctx)
	}

	completed := time.Now()
	stageExec.CompletedAt = &completed

	event := Event{
		RunID:     exec.ID,
		Stage:     stage.Name,
		Index:     index,
		Total:     len(exec.Stages),
		Timestamp: completed,
	}

	if err != nil {
		stageExec.State = StageStateFailed
		stageExec.Error = err.Error()
		event.Type = EventStageFailed
		event.Error = err.Error()
		observer(event)
		return err
	}

	stageExec.State = StageStateCompleted
	event.Type = EventStageCompleted
	observer(event)

	r.logger.Info("Stage completed",
		zap.String("runID", string(exec.ID)),
		zap.String("stage", stage.Name),
		zap.Duration("elapsed", stageExec.Duration()))
	return nil
}

func (r *Runner) finish(exec *Execution, state RunState, err error, observer Observer) {
	now := time.Now()
	exec.State = state
	exec.CompletedAt = &now

	event := Event{
		RunID:     exec.ID,
		Total:     len(exec.Stages),
		Type:      EventRunCompleted,
		Timestamp: now,
	}
	if err != nil {
		exec.Error = err.Error()
		event.Type = EventRunFailed
		event.Error = err.Error()
	}
	observer(event)
}
