package executor

import (
	"time"

	"github.com/hyvedata/stacker/internal/resolve"
)

// Status is a StageRun's position in the execution state machine.
//
// Pending -> Ready -> Running -> {Succeeded | Failed}, with
// SkippedByCondition reachable directly from Pending. The scheduler
// goroutine is the only writer of stage status.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkippedByCondition

	// StatusNotApplied appears only in destroy reports: the stage has no
	// applied state, so there is nothing to tear down. Distinct from
	// SkippedByCondition, which means the activation predicate excluded
	// the stage for this tenant.
	StatusNotApplied
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkippedByCondition:
		return "skipped"
	case StatusNotApplied:
		return "not applied"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkippedByCondition, StatusNotApplied:
		return true
	}
	return false
}

// StageResult is one stage's outcome within a run report.
type StageResult struct {
	Stage    string
	Status   Status
	Attempts int
	Duration time.Duration
	Err      error

	// PropagatedFrom names the immediate upstream failure that felled
	// this stage without it ever running. Empty for a stage that failed
	// on its own.
	PropagatedFrom string

	// Outputs are the produced outputs (apply) or persisted outputs
	// (reused stages). Nil when skipped or failed.
	Outputs resolve.Outputs

	// Inputs are the resolved inputs, captured by plan for display.
	Inputs map[string]any

	// Reused marks a prerequisite satisfied from persisted state without
	// re-applying.
	Reused bool
}
