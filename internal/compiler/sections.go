package compiler

import (
	"regexp"
	"strings"
)

// Section headers, in output order.
const (
	HeaderUserParams = "// === USER PARAMS ==="
	HeaderAITunables = "// === AI TUNABLES ==="
	HeaderHelpers    = "// === HELPERS ==="
	HeaderMain       = "// === MAIN ==="
)

// Sections are the editable parts of a template.
type Sections struct {
	UserParams     string   `yaml:"user_params" json:"user_params"`
	AITunables     string   `yaml:"ai_tunables" json:"ai_tunables"`
	Helpers        string   `yaml:"helpers" json:"helpers"`
	HelperSnippets []string `yaml:"helper_snippets" json:"helper_snippets"`
	Main           string   `yaml:"main" json:"main"`
}

// WithOverrides returns a copy of s with each non-nil override replacing its
// section. Callers resolve precedence (request, then suite, then stored
// version) before calling.
func (s Sections) WithOverrides(userParams, aiTunables *string) Sections {
	out := s
	out.HelperSnippets = append([]string(nil), s.HelperSnippets...)
	if userParams != nil {
		out.UserParams = *userParams
	}
	if aiTunables != nil {
		out.AITunables = *aiTunables
	}
	return out
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// normalize trims a section and collapses runs of blank lines to one.
func normalize(s string) string {
	return blankRuns.ReplaceAllString(strings.TrimSpace(s), "\n\n")
}

// Compose returns the template source for s.
//
// Every header is always present, even over an empty section. Helper
// snippets follow the helpers section, each separated by a blank line, and
// empty snippets are dropped. The result has no trailing whitespace.
func Compose(s Sections) string {
	var helpers []string
	if h := normalize(s.Helpers); h != "" {
		helpers = append(helpers, h)
	}
	for _, snippet := range s.HelperSnippets {
		if n := normalize(snippet); n != "" {
			helpers = append(helpers, n)
		}
	}

	lines := []string{
		HeaderUserParams,
		normalize(s.UserParams),
		"",
		HeaderAITunables,
		normalize(s.AITunables),
		"",
		HeaderHelpers,
		strings.Join(helpers, "\n\n"),
		"",
		HeaderMain,
		normalize(s.Main),
		"",
	}

	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimRight(out, " \t\r\n")
}
