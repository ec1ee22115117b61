package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/compiler"
	"github.com/roach88/powsim/internal/ir"
)

// ComposeResult is the JSON payload of the compose command.
type ComposeResult struct {
	Source       string `json:"source"`
	TemplateHash string `json:"template_hash"`
}

// composeErrorDetails locates a sections error for JSON output.
type composeErrorDetails struct {
	Field  string `json:"field"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// NewComposeCommand creates the compose command.
func NewComposeCommand(rootOpts *RootOptions) *cobra.Command {
	var sections func() sectionFlags

	cmd := &cobra.Command{
		Use:   "compose <sections>",
		Short: "Compose a sections file into template source",
		Long: `Compose a sections file (.yaml, .yml or .cue) into one template, in the
order USER PARAMS, AI TUNABLES, HELPERS, MAIN, each under its header.

Text output is the template source; JSON output adds its hash.

Examples:
  powsim compose peak.yaml > peak.go
  powsim compose peak.cue --ai-tunables 'const spikeMargin = 1.5'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(rootOpts, sections(), args[0], cmd)
		},
	}
	sections = bindSectionFlags(cmd)

	return cmd
}

func runCompose(opts *RootOptions, overrides sectionFlags, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if !isSectionsFile(path) {
		return formatter.fail(ExitCommandError, ErrCodeSections,
			fmt.Sprintf("%s is not a sections file (.yaml, .yml or .cue)", path), nil)
	}

	sections, err := compiler.LoadSections(path)
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			details := composeErrorDetails{Field: ce.Field}
			if ce.Pos.IsValid() {
				details.File = ce.Pos.Filename()
				details.Line = ce.Pos.Line()
				details.Column = ce.Pos.Column()
			}
			return formatter.fail(ExitCommandError, ErrCodeSections, ce.Error(), details)
		}
		return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	source := compiler.Compose(overrides.apply(sections))
	formatter.VerboseLog("Composed %s (%d bytes)", path, len(source))

	if formatter.Format == "json" {
		return formatter.Success(ComposeResult{
			Source:       source,
			TemplateHash: ir.TemplateHash(source),
		})
	}
	fmt.Fprint(formatter.Writer, source)
	return nil
}
