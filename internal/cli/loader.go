package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/compiler"
	"github.com/roach88/powsim/internal/input"
)

// isSectionsFile reports whether path names a sections file rather than
// template source.
func isSectionsFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// loadTemplate reads template source. Sections files are composed, with
// overrides applied first.
func loadTemplate(path string, overrides sectionFlags) (string, error) {
	if isSectionsFile(path) {
		sections, err := compiler.LoadSections(path)
		if err != nil {
			return "", err
		}
		return compiler.Compose(overrides.apply(sections)), nil
	}

	if overrides.set() {
		return "", fmt.Errorf("section overrides need a sections file, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}

// loadInput reads an input description and applies --set assignments on
// top. A path of "-" reads JSON from stdin; an empty path starts from an
// empty input.
func loadInput(path string, stdin io.Reader, sets []string) (map[string]any, error) {
	var (
		in  map[string]any
		err error
	)
	switch path {
	case "":
		in = map[string]any{}
	case "-":
		data, readErr := io.ReadAll(stdin)
		if readErr != nil {
			return nil, fmt.Errorf("read stdin: %w", readErr)
		}
		in, err = input.Parse(data, input.FormatJSON, "<stdin>")
	default:
		in, err = input.Load(path)
	}
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, err := input.ParseAssignment(s)
		if err != nil {
			return nil, err
		}
		overrides[key] = value
	}
	return input.Merge(in, overrides), nil
}

// sectionFlags are the --user-params and --ai-tunables overrides.
type sectionFlags struct {
	UserParams *string
	AITunables *string
}

func (f sectionFlags) set() bool {
	return f.UserParams != nil || f.AITunables != nil
}

func (f sectionFlags) apply(s compiler.Sections) compiler.Sections {
	return s.WithOverrides(f.UserParams, f.AITunables)
}

// bindSectionFlags registers --user-params and --ai-tunables on cmd and
// returns a function reading the flags that were actually given.
func bindSectionFlags(cmd *cobra.Command) func() sectionFlags {
	var userParams, aiTunables string
	cmd.Flags().StringVar(&userParams, "user-params", "", "replace the USER PARAMS section of a sectioned template")
	cmd.Flags().StringVar(&aiTunables, "ai-tunables", "", "replace the AI TUNABLES section of a sectioned template")

	return func() sectionFlags {
		var f sectionFlags
		if cmd.Flags().Changed("user-params") {
			f.UserParams = &userParams
		}
		if cmd.Flags().Changed("ai-tunables") {
			f.AITunables = &aiTunables
		}
		return f
	}
}
