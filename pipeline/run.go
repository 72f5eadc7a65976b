/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"chainguard.dev/backlogaf/runtrace"
	"chainguard.dev/backlogaf/stage"
	"chainguard.dev/backlogaf/workitem"
)

// Run is the record of one pipeline execution. Results holds the
// completed stage results in execution order; it is always a prefix of
// stage.Order() regardless of how the run ended.
type Run struct {
	Key     string             `json:"key"`
	Item    *workitem.Item     `json:"item,omitempty"`
	Similar []workitem.Similar `json:"similar,omitempty"`
	Results []stage.Result     `json:"results,omitempty"`
	State   State              `json:"state"`
	Status  Status             `json:"status"`

	// GateNote explains a gating decision: an early partial stop, or an
	// estimation flagged for review.
	GateNote string `json:"gate_note,omitempty"`

	// Err is set when Status is failed, or when publishing failed on an
	// otherwise successful run.
	Err *StageError `json:"error,omitempty"`

	// Trace is the audit trail of the run's tool calls and stages.
	Trace *runtrace.Trace `json:"trace,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Result returns the completed result of the given stage kind, or nil
// when the run never produced one.
func (r *Run) Result(kind stage.Kind) *stage.Result {
	for i := range r.Results {
		if r.Results[i].Kind == kind {
			return &r.Results[i]
		}
	}
	return nil
}

// Fields maps each completed stage to its parsed fields, the shape
// handed to downstream formatters and publishers.
func (r *Run) Fields() map[string]any {
	out := make(map[string]any, len(r.Results))
	for _, res := range r.Results {
		switch res.Kind {
		case stage.KindAnalysis:
			out[res.Kind.String()] = res.Analysis
		case stage.KindEstimation:
			out[res.Kind.String()] = res.Estimation
		case stage.KindTestSuite:
			out[res.Kind.String()] = res.TestSuite
		case stage.KindSummary:
			out[res.Kind.String()] = res.Summary
		}
	}
	return out
}

func (r *Run) fail(at State, err error) *Run {
	r.State = StateFailed
	r.Status = StatusFailed
	r.Err = &StageError{Stage: at, Err: err}
	return r
}

func (r *Run) cancel() *Run {
	r.Status = StatusCancelled
	return r
}

func (r *Run) finish(status Status) *Run {
	r.State = StateDone
	r.Status = status
	return r
}

// StageError records the stage at which a run stopped and why.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// MarshalJSON flattens the wrapped error to its message.
func (e *StageError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Stage   State  `json:"stage"`
		Message string `json:"message"`
	}{Stage: e.Stage, Message: e.Err.Error()})
}
