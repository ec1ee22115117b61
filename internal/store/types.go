package store

import (
	"time"

	"github.com/roach88/powsim/internal/engine"
)

// SuiteRun is one recorded suite execution.
type SuiteRun struct {
	ID           string    `json:"id"`
	Suite        string    `json:"suite"`
	Path         string    `json:"path"`
	TemplateHash string    `json:"template_hash"`
	Pass         int       `json:"pass"`
	Fail         int       `json:"fail"`
	Error        int       `json:"error"`
	Pending      int       `json:"pending"`
	Total        int       `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

// Run is one recorded template run.
type Run struct {
	ID string `json:"id"`

	// SuiteRunID and Case are empty for a standalone run.
	SuiteRunID string `json:"suite_run_id,omitempty"`
	Case       string `json:"case,omitempty"`

	TemplateHash string `json:"template_hash"`
	InputHash    string `json:"input_hash"`
	// Input is the canonical JSON of the input description.
	Input string `json:"input"`

	Success     bool    `json:"success"`
	Action      *string `json:"action"`
	Description *string `json:"description"`
	Error       *string `json:"error"`

	// Status and the expectations are set for suite cases only.
	Status              string  `json:"status,omitempty"`
	ExpectedAction      *string `json:"expected_action,omitempty"`
	ExpectedDescription *string `json:"expected_description,omitempty"`

	// Output is what the template printed.
	Output string `json:"output,omitempty"`

	Decisions []engine.Decision `json:"decisions"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewRun describes a finished run of template against input.
func NewRun(template string, input map[string]any, res *engine.Result) (Run, error) {
	canonical, err := marshalInput(input)
	if err != nil {
		return Run{}, err
	}
	inputHash, err := inputHash(input)
	if err != nil {
		return Run{}, err
	}

	run := Run{
		TemplateHash: templateHash(template),
		InputHash:    inputHash,
		Input:        canonical,
		Decisions:    []engine.Decision{},
	}
	if res != nil {
		run.Success = res.Success
		run.Action = res.Action
		run.Description = res.Description
		run.Error = res.Error
		if res.Decisions.Reasons != nil {
			run.Decisions = res.Decisions.Reasons
		}
	}
	return run, nil
}

// RunFilter selects runs for ListRuns.
type RunFilter struct {
	// SuiteRunID restricts the list to one suite run.
	SuiteRunID string
	// TemplateHash restricts the list to runs of one template.
	TemplateHash string
	// Limit caps the number of runs. Zero means no limit.
	Limit int
}
