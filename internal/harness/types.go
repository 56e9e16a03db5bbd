package harness

// TraceEvent is one statement issued while running a scenario.
type TraceEvent struct {
	Step int    `json:"step"`
	Seq  int64  `json:"seq"`
	Path string `json:"path"` // empty for the primary statement
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
	Rows int    `json:"rows"`
}

// StepResult is the outcome of one scenario step.
type StepResult struct {
	ExecutionID string `json:"execution_id"`

	// Beans are snapshots of the roots after the step's touches.
	Beans []map[string]any `json:"beans"`

	HasMore bool `json:"has_more"`

	// Err is the execution error, empty on success.
	Err string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every statement in execution order, lazy loads
	// included.
	Trace []TraceEvent `json:"trace"`

	// Steps holds one entry per scenario step.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StepTrace returns the statements issued by one step.
func (r *Result) StepTrace(step int) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Step == step {
			out = append(out, ev)
		}
	}
	return out
}
