package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/powsim/internal/compiler"
	"github.com/roach88/powsim/internal/input"
	"github.com/roach88/powsim/internal/ir"
)

// Suite is a set of cases run against one template.
type Suite struct {
	// Name identifies the suite and names its golden directory.
	Name string `yaml:"name"`

	// Description explains what the suite covers.
	Description string `yaml:"description,omitempty"`

	// Exactly one of Template, Sections and SectionsFile selects the
	// template. Paths are relative to the suite file.
	Template     string             `yaml:"template,omitempty"`
	Sections     *compiler.Sections `yaml:"sections,omitempty"`
	SectionsFile string             `yaml:"sections_file,omitempty"`

	// Now pins the clock for every case, making interval_time reproducible.
	Now string `yaml:"now,omitempty"`

	// Overrides replace sections before composition. Only valid with
	// Sections or SectionsFile.
	Overrides *SectionOverrides `yaml:"overrides,omitempty"`

	// Defaults are merged under every case's input.
	Defaults map[string]interface{} `yaml:"defaults,omitempty"`

	Cases []Case `yaml:"cases"`

	// Path is the file the suite was loaded from; Dir its directory.
	Path string `yaml:"-"`
	Dir  string `yaml:"-"`
}

// SectionOverrides replace template sections for one suite.
type SectionOverrides struct {
	UserParams *string `yaml:"user_params,omitempty"`
	AITunables *string `yaml:"ai_tunables,omitempty"`
}

// Case is one template run with its expectations.
type Case struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Input is the input description. InputFile loads it from a JSON, YAML
	// or CUE file instead.
	Input     map[string]interface{} `yaml:"input,omitempty"`
	InputFile string                 `yaml:"input_file,omitempty"`

	Expect     *Expect     `yaml:"expect,omitempty"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Expect is the expected outcome of a case. Nil fields are not checked.
type Expect struct {
	Action      *string `yaml:"action,omitempty"`
	Description *string `yaml:"description,omitempty"`

	// Success false declares that the template is expected to fault.
	Success *bool `yaml:"success,omitempty"`
}

// ExpectsFault reports whether the case declares an expected fault.
func (e *Expect) ExpectsFault() bool {
	return e != nil && e.Success != nil && !*e.Success
}

// Assertion validates the decision log, final context or fault of a run.
type Assertion struct {
	// Type is one of decision_contains, decision_order, decision_count,
	// final_context, error_contains.
	Type string `yaml:"type"`

	// Action filters decisions (decision_contains, decision_count).
	Action string `yaml:"action,omitempty"`

	// Description must match exactly (decision_contains).
	Description string `yaml:"description,omitempty"`

	// Fields are extra decision fields, subset match (decision_contains).
	Fields map[string]interface{} `yaml:"fields,omitempty"`

	// Actions is the expected order (decision_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of decisions (decision_count).
	Count int `yaml:"count,omitempty"`

	// Variables are expected final values, subset match (final_context).
	Variables map[string]interface{} `yaml:"variables,omitempty"`

	// Contains is a substring of the fault text (error_contains).
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertDecisionContains = "decision_contains"
	AssertDecisionOrder    = "decision_order"
	AssertDecisionCount    = "decision_count"
	AssertFinalContext     = "final_context"
	AssertErrorContains    = "error_contains"
)

// LoadSuite reads and parses a suite YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or references missing files.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve suite path: %w", err)
	}
	suite.Path = abs
	suite.Dir = filepath.Dir(abs)

	if err := validateSuite(&suite); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}
	return &suite, nil
}

// FindSuites returns the suite files at path: path itself when it is a
// file, otherwise every .yaml or .yml file below it outside golden
// directories, sorted.
func FindSuites(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("suite path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && d.Name() == goldenDirName {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan suites: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// validateSuite checks that required fields are present and valid.
func validateSuite(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := checkPathName(s.Name); err != nil {
		return fmt.Errorf("name %w", err)
	}

	sources := 0
	for _, set := range []bool{s.Template != "", s.Sections != nil, s.SectionsFile != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of template, sections, sections_file is required")
	}
	if s.Overrides != nil && s.Template != "" {
		return fmt.Errorf("overrides require sections or sections_file")
	}

	for _, ref := range []string{s.Template, s.SectionsFile} {
		if ref == "" {
			continue
		}
		if _, err := s.resolve(ref); err != nil {
			return err
		}
	}

	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if err := checkPathName(c.Name); err != nil {
			return fmt.Errorf("cases[%d]: name %w", i, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true

		if c.Input != nil && c.InputFile != "" {
			return fmt.Errorf("cases[%d]: input and input_file are mutually exclusive", i)
		}
		if c.InputFile != "" {
			if _, err := s.resolve(c.InputFile); err != nil {
				return fmt.Errorf("cases[%d]: %w", i, err)
			}
		}

		for j, a := range c.Assertions {
			if err := validateAssertion(j, &a); err != nil {
				return fmt.Errorf("cases[%d]: %w", i, err)
			}
		}
	}
	return nil
}

// checkPathName rejects names that cannot be used as one element of a
// golden file path.
func checkPathName(name string) error {
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q must not contain path separators", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%q is not a valid name", name)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDecisionContains:
		if a.Action == "" && a.Description == "" && len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: action, description or fields is required for decision_contains", index)
		}
	case AssertDecisionOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for decision_order", index)
		}
	case AssertDecisionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for decision_count", index)
		}
	case AssertFinalContext:
		if len(a.Variables) == 0 {
			return fmt.Errorf("assertions[%d]: variables is required for final_context", index)
		}
	case AssertErrorContains:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for error_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// resolve returns the absolute path of a file the suite references and
// checks that it exists.
func (s *Suite) resolve(ref string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Dir, path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", &ReferenceNotFoundError{Suite: s.Name, Ref: ref, ResolvedPath: path}
	}
	return path, nil
}

// Source returns the template source the suite's cases run.
//
// For sectioned templates, request overrides take precedence over the
// suite's overrides, which take precedence over the sections themselves.
func (s *Suite) Source(request SectionOverrides) (string, error) {
	if s.Template != "" {
		path, err := s.resolve(s.Template)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read template: %w", err)
		}
		return string(data), nil
	}

	var sections compiler.Sections
	if s.Sections != nil {
		sections = *s.Sections
	} else {
		path, err := s.resolve(s.SectionsFile)
		if err != nil {
			return "", err
		}
		if sections, err = compiler.LoadSections(path); err != nil {
			return "", err
		}
	}

	if s.Overrides != nil {
		sections = sections.WithOverrides(s.Overrides.UserParams, s.Overrides.AITunables)
	}
	sections = sections.WithOverrides(request.UserParams, request.AITunables)
	return compiler.Compose(sections), nil
}

// CaseInput returns the input description for c: the suite defaults with
// the case input (inline or from its file) merged on top.
func (s *Suite) CaseInput(c Case) (map[string]any, error) {
	defaults, err := ir.NormalizeMap(s.Defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	var own map[string]any
	if c.InputFile != "" {
		path, err := s.resolve(c.InputFile)
		if err != nil {
			return nil, err
		}
		if own, err = input.Load(path); err != nil {
			return nil, err
		}
	} else if own, err = ir.NormalizeMap(c.Input); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	return input.Merge(defaults, own), nil
}

// ReferenceNotFoundError is returned when a file a suite references doesn't
// exist.
type ReferenceNotFoundError struct {
	Suite        string
	Ref          string
	ResolvedPath string
}

// Error implements the error interface.
func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf(
		"suite %q references file %q which does not exist (resolved to: %s)",
		e.Suite,
		e.Ref,
		e.ResolvedPath,
	)
}
