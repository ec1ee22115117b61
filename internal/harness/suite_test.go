package harness

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/powsim/internal/compiler"
)

func TestLoadSuite_Peak(t *testing.T) {
	suite, err := LoadSuite("testdata/suites/peak.yaml")
	require.NoError(t, err)

	assert.Equal(t, "peak", suite.Name)
	assert.Equal(t, "templates/peak.tmpl", suite.Template)
	assert.Equal(t, "2024-06-01T12:00:00Z", suite.Now)
	require.Len(t, suite.Cases, 3)
	assert.Equal(t, "spike", suite.Cases[1].Name)
	assert.Equal(t, "inputs/spike.json", suite.Cases[1].InputFile)
	assert.True(t, filepath.IsAbs(suite.Path))
	assert.Equal(t, filepath.Dir(suite.Path), suite.Dir)

	require.NotNil(t, suite.Cases[0].Expect)
	assert.Equal(t, "charge", *suite.Cases[0].Expect.Action)
	require.Len(t, suite.Cases[0].Assertions, 2)
	assert.Equal(t, AssertDecisionContains, suite.Cases[0].Assertions[0].Type)
}

func TestLoadSuite_UnknownField(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t.go", `decisions.Reason("hold", "x")`)
	path := writeFile(t, dir, "suite.yaml", `
name: typo
template: t.go
cases:
  - name: one
    expct: { action: hold }
`)

	_, err := LoadSuite(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expct")
}

func TestLoadSuite_MissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read suite file")
}

func TestLoadSuite_MissingTemplate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "suite.yaml", `
name: lost
template: missing.go
cases:
  - name: one
`)

	_, err := LoadSuite(path)
	require.Error(t, err)

	var notFound *ReferenceNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "lost", notFound.Suite)
	assert.Equal(t, "missing.go", notFound.Ref)
	assert.Equal(t, filepath.Join(dir, "missing.go"), notFound.ResolvedPath)
}

func TestValidateSuite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t.go", "")

	base := func() *Suite {
		return &Suite{
			Name:     "s",
			Template: "t.go",
			Dir:      dir,
			Cases:    []Case{{Name: "a"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Suite)
		wantErr string
	}{
		{"valid", func(s *Suite) {}, ""},
		{"no name", func(s *Suite) { s.Name = "" }, "name is required"},
		{"name with slash", func(s *Suite) { s.Name = "a/b" }, "path separators"},
		{"dot-dot name", func(s *Suite) { s.Name = ".." }, "not a valid name"},
		{"case escaping golden dir", func(s *Suite) { s.Cases[0].Name = "../../x" }, "cases[0]: name \"../../x\" must not contain path separators"},
		{"case with backslash", func(s *Suite) { s.Cases[0].Name = `..\\x` }, "path separators"},
		{"dot case", func(s *Suite) { s.Cases[0].Name = "." }, "not a valid name"},
		{"no source", func(s *Suite) { s.Template = "" }, "exactly one of"},
		{"two sources", func(s *Suite) { s.Sections = &compiler.Sections{} }, "exactly one of"},
		{"overrides with template", func(s *Suite) { s.Overrides = &SectionOverrides{} }, "overrides require"},
		{"no cases", func(s *Suite) { s.Cases = nil }, "cases list is required"},
		{"unnamed case", func(s *Suite) { s.Cases = []Case{{}} }, "cases[0]: name is required"},
		{"duplicate case", func(s *Suite) { s.Cases = []Case{{Name: "a"}, {Name: "a"}} }, `duplicate name "a"`},
		{"input and input_file", func(s *Suite) {
			s.Cases[0].Input = map[string]interface{}{}
			s.Cases[0].InputFile = "t.go"
		}, "mutually exclusive"},
		{"missing input_file", func(s *Suite) { s.Cases[0].InputFile = "none.json" }, "does not exist"},
		{"assertion without type", func(s *Suite) { s.Cases[0].Assertions = []Assertion{{}} }, "type is required"},
		{"unknown assertion", func(s *Suite) { s.Cases[0].Assertions = []Assertion{{Type: "trace_contains"}} }, "unknown assertion type"},
		{"empty decision_contains", func(s *Suite) {
			s.Cases[0].Assertions = []Assertion{{Type: AssertDecisionContains}}
		}, "action, description or fields"},
		{"empty decision_order", func(s *Suite) {
			s.Cases[0].Assertions = []Assertion{{Type: AssertDecisionOrder}}
		}, "actions list is required"},
		{"negative count", func(s *Suite) {
			s.Cases[0].Assertions = []Assertion{{Type: AssertDecisionCount, Count: -1}}
		}, "non-negative"},
		{"empty final_context", func(s *Suite) {
			s.Cases[0].Assertions = []Assertion{{Type: AssertFinalContext}}
		}, "variables is required"},
		{"empty error_contains", func(s *Suite) {
			s.Cases[0].Assertions = []Assertion{{Type: AssertErrorContains}}
		}, "contains is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := validateSuite(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindSuites(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "")
	writeFile(t, dir, "nested/a.yml", "")
	writeFile(t, dir, "golden/peak/case.golden", "")
	writeFile(t, dir, "golden/stray.yaml", "")
	writeFile(t, dir, "inputs/x.json", "")

	files, err := FindSuites(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested/a.yml"),
	}, files)

	single, err := FindSuites(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, single)

	_, err = FindSuites(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSuite_Source_Template(t *testing.T) {
	suite, err := LoadSuite("testdata/suites/peak.yaml")
	require.NoError(t, err)

	src, err := suite.Source(SectionOverrides{})
	require.NoError(t, err)
	assert.Contains(t, src, "const cheapThreshold = 10.0")
}

func TestSuite_Source_OverridePrecedence(t *testing.T) {
	suite := loadInline(t, `
name: sectioned
sections_file: sections.yaml
overrides:
  user_params: "const reserve = 30.0"
  ai_tunables: "const spread = 4.0"
cases:
  - name: one
`, map[string]string{
		"sections.yaml": `
user_params: "const reserve = 10.0"
ai_tunables: "const spread = 2.0"
main: 'decisions.Reason("hold", "x")'
`,
	})

	src, err := suite.Source(SectionOverrides{})
	require.NoError(t, err)
	assert.Contains(t, src, "const reserve = 30.0")
	assert.Contains(t, src, "const spread = 4.0")
	assert.Contains(t, src, compiler.HeaderMain+"\n"+`decisions.Reason("hold", "x")`)

	src, err = suite.Source(SectionOverrides{UserParams: strPtr("const reserve = 50.0")})
	require.NoError(t, err)
	assert.Contains(t, src, "const reserve = 50.0")
	assert.Contains(t, src, "const spread = 4.0")
}

func TestSuite_Source_InlineSections(t *testing.T) {
	suite := loadInline(t, `
name: inline
sections:
  main: 'decisions.Reason("hold", "inline")'
cases:
  - name: one
`, nil)

	src, err := suite.Source(SectionOverrides{})
	require.NoError(t, err)
	assert.Equal(t, compiler.Compose(compiler.Sections{Main: `decisions.Reason("hold", "inline")`}), src)
}

func TestSuite_CaseInput(t *testing.T) {
	suite, err := LoadSuite("testdata/suites/peak.yaml")
	require.NoError(t, err)

	in, err := suite.CaseInput(suite.Cases[0])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"buy_price": 5.0, "sell_price": 12.0}, in)

	in, err = suite.CaseInput(suite.Cases[1])
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"buy_price": 25.0, "sell_price": 45.0}, in, "case input overrides defaults")
}

func TestExpect_ExpectsFault(t *testing.T) {
	var none *Expect
	assert.False(t, none.ExpectsFault())
	assert.False(t, (&Expect{}).ExpectsFault())
	assert.False(t, (&Expect{Success: boolPtr(true)}).ExpectsFault())
	assert.True(t, (&Expect{Success: boolPtr(false)}).ExpectsFault())
}
