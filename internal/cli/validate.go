package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/input"
	"github.com/roach88/powsim/internal/ir"
)

// ValidationIssue is one problem found by validate.
type ValidationIssue struct {
	Kind    string `json:"kind"` // "input" | "template"
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool              `json:"valid"`
	TemplateHash string            `json:"template_hash"`
	Errors       []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var sections func() sectionFlags

	cmd := &cobra.Command{
		Use:   "validate <template> [input]",
		Short: "Check a template and input without running",
		Long: `Validate a template and, optionally, an input description.

The input is checked against the input schema. The template is compiled
against the context built from the input (or from the defaults) without
running any of it, so syntax errors, type errors and unknown names are
reported before a run would hit them.

Exit codes:
  0 - Template and input are valid
  1 - Template or input is invalid
  2 - Command error (unreadable files)`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := ""
			if len(args) == 2 {
				inputPath = args[1]
			}
			return runValidate(rootOpts, sections(), args[0], inputPath, cmd)
		},
	}
	sections = bindSectionFlags(cmd)

	return cmd
}

func runValidate(opts *RootOptions, overrides sectionFlags, templatePath, inputPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	source, err := loadTemplate(templatePath, overrides)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	in, err := loadInput(inputPath, cmd.InOrStdin(), nil)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}
	formatter.VerboseLog("Validating %s (%d input key(s))", templatePath, len(in))

	result := ValidationResult{TemplateHash: ir.TemplateHash(source)}

	var schemaErr *input.SchemaError
	if err := input.Validate(in); errors.As(err, &schemaErr) {
		for _, v := range schemaErr.Violations {
			result.Errors = append(result.Errors, ValidationIssue{Kind: "input", Field: v.Field, Message: v.Message})
		}
	} else if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	eng := engine.New(
		engine.WithLocation(opts.location()),
		engine.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)
	if err := eng.Check(source, in); err != nil {
		var ie *engine.InputError
		if errors.As(err, &ie) {
			result.Errors = append(result.Errors, ValidationIssue{Kind: "input", Field: ie.Field, Message: ie.Error()})
		} else {
			result.Errors = append(result.Errors, ValidationIssue{Kind: "template", Message: err.Error()})
		}
	}

	result.Valid = len(result.Errors) == 0
	return outputValidateResult(formatter, result)
}

func outputValidateResult(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		_ = writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    issueCode(result.Errors[0]),
				Message: fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)),
			},
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	if result.Valid {
		fmt.Fprintln(formatter.Writer, "✓ Template and input are valid")
		return nil
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s: %s\n", issueCode(issue), issue.Kind, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", issueCode(issue), issue.Kind, issue.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

func issueCode(issue ValidationIssue) string {
	if issue.Kind == "template" {
		return ErrCodeTemplate
	}
	return ErrCodeInvalidInput
}
