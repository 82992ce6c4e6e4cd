package statesync

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Step names one stage of a sync pass.
type Step string

// Sync stages in execution order.
const (
	StepLoadSession   Step = "load_session"
	StepExtractInfo   Step = "extract_student_info"
	StepScanRetrieval Step = "scan_retrieval"
	StepMergeState    Step = "merge_state"
	StepPersistState  Step = "persist_state"
	StepMirrorMemory  Step = "mirror_memory"
	StepSync          Step = "sync"
)

// StepStatus is the outcome of a step.
type StepStatus int

const (
	// StepSucceeded means the step did its work.
	StepSucceeded StepStatus = iota
	// StepSkipped means there was nothing to do; Reason says why.
	StepSkipped
	// StepFailed means the step errored; Err holds the cause.
	StepFailed
)

// String returns the lower-case status name.
func (s StepStatus) String() string {
	switch s {
	case StepSucceeded:
		return "succeeded"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepResult records the outcome of one step.
type StepResult struct {
	Step   Step
	Status StepStatus
	Reason string
	Err    error
}

func succeeded(step Step, reason string) StepResult {
	return StepResult{Step: step, Status: StepSucceeded, Reason: reason}
}

func skipped(step Step, reason string) StepResult {
	return StepResult{Step: step, Status: StepSkipped, Reason: reason}
}

func failed(step Step, err error) StepResult {
	return StepResult{Step: step, Status: StepFailed, Reason: err.Error(), Err: err}
}

// Report aggregates the steps of one sync pass for a session.
type Report struct {
	SessionID string
	RunID     string
	Steps     []StepResult
	// Delta holds the keys added to session state by this pass.
	Delta    map[string]any
	Duration time.Duration
}

// Step returns the result recorded for step.
func (r Report) Step(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Changed reports whether the pass added state keys.
func (r Report) Changed() bool { return len(r.Delta) > 0 }

// ChangedKeys returns the added keys in sorted order.
func (r Report) ChangedKeys() []string {
	return slices.Sorted(maps.Keys(r.Delta))
}

// Err joins the errors of all failed steps, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Status != StepFailed {
			continue
		}
		err := s.Err
		if err == nil {
			err = errors.New(s.Reason)
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Step, err))
	}
	return errors.Join(errs...)
}
