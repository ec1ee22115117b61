package harness

import (
	"github.com/roach88/powsim/internal/engine"
)

// Status is the outcome of one case.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name        string            `json:"name"`
	Status      Status            `json:"status"`
	Action      *string           `json:"action"`
	Description *string           `json:"description"`
	Reasons     []engine.Decision `json:"reasons"`

	// Errors holds the fault text, failed expectations and failed
	// assertions, in that order.
	Errors []string `json:"errors,omitempty"`

	// Run details, kept for recording and assertions.
	Input    map[string]any  `json:"-"`
	Expect   *Expect         `json:"-"`
	Result   *engine.Result  `json:"-"`
	Context  *engine.Context `json:"-"`
	Output   string          `json:"-"`
	Duration int64           `json:"-"` // milliseconds
}

// AddError records a problem with the case and marks it failed, unless it
// already errored.
func (c *CaseResult) AddError(msg string) {
	c.Errors = append(c.Errors, msg)
	if c.Status != StatusError {
		c.Status = StatusFail
	}
}

// Counts tallies case statuses.
type Counts struct {
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Error   int `json:"error"`
	Pending int `json:"pending"`
	Total   int `json:"total"`
}

// Add counts one status.
func (c *Counts) Add(s Status) {
	c.Total++
	switch s {
	case StatusPass:
		c.Pass++
	case StatusFail:
		c.Fail++
	case StatusError:
		c.Error++
	case StatusPending:
		c.Pending++
	}
}

// SuiteResult is the outcome of one suite.
type SuiteResult struct {
	Suite        string       `json:"suite"`
	Path         string       `json:"path"`
	TemplateHash string       `json:"template_hash"`
	Counts       Counts       `json:"counts"`
	Cases        []CaseResult `json:"cases"`

	// Template is the source every case ran.
	Template string `json:"-"`
}

// Passed reports whether no case failed or errored. Pending cases do not
// fail a suite.
func (r *SuiteResult) Passed() bool {
	return r.Counts.Fail == 0 && r.Counts.Error == 0
}

// Snapshot returns the deterministic part of the result, for golden
// comparison: names, statuses, actions, descriptions and decisions.
func (r *SuiteResult) Snapshot() map[string]any {
	cases := make([]any, len(r.Cases))
	for i, c := range r.Cases {
		reasons := make([]any, len(c.Reasons))
		for j, d := range c.Reasons {
			reasons[j] = d.Fields()
		}
		cases[i] = map[string]any{
			"name":        c.Name,
			"status":      string(c.Status),
			"action":      deref(c.Action),
			"description": deref(c.Description),
			"reasons":     reasons,
		}
	}
	return map[string]any{
		"suite": r.Suite,
		"counts": map[string]any{
			"pass":    r.Counts.Pass,
			"fail":    r.Counts.Fail,
			"error":   r.Counts.Error,
			"pending": r.Counts.Pending,
			"total":   r.Counts.Total,
		},
		"cases": cases,
	}
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
