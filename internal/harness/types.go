package harness

import "github.com/roach88/codex/internal/ir"

// TraceEvent records one executed step. Outcome is "ok" or the boundary
// error code the step returned.
type TraceEvent struct {
	Step    int         `json:"step"`
	Op      string      `json:"op"`
	Target  string      `json:"target,omitempty"`
	Outcome string      `json:"outcome"`
	Detail  ir.IRObject `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// OutcomeOK is the outcome of a step that returned no error.
const OutcomeOK = "ok"

func (r *Result) record(ev TraceEvent) {
	ev.Step = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
