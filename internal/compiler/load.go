package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// CompileError reports a sections file that cannot be decoded.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadSections reads a sections file. YAML (.yaml, .yml) and CUE (.cue)
// are accepted; unknown fields are an error in both.
func LoadSections(path string) (Sections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sections{}, fmt.Errorf("read sections: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseSectionsYAML(data)
	case ".cue":
		return ParseSectionsCUE(data, path)
	default:
		return Sections{}, fmt.Errorf("sections file %s: unsupported extension %q", path, filepath.Ext(path))
	}
}

// ParseSectionsYAML decodes sections from YAML.
func ParseSectionsYAML(data []byte) (Sections, error) {
	var s Sections
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Sections{}, &CompileError{Field: "sections", Message: err.Error()}
	}
	return s, nil
}

// ParseSectionsCUE decodes sections from a CUE document. The document is
// closed against the sections shape, so a misspelled field is reported with
// its position.
func ParseSectionsCUE(data []byte, filename string) (Sections, error) {
	ctx := cuecontext.New()
	shape := ctx.CompileString(`close({
	user_params?:     string
	ai_tunables?:     string
	helpers?:         string
	helper_snippets?: [...string]
	main?:            string
})`)

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Sections{}, formatCUEError(err)
	}
	v = shape.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Sections{}, formatCUEError(err)
	}

	var s Sections
	if err := v.Decode(&s); err != nil {
		return Sections{}, formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "sections", Message: err.Error()}
	}

	first := errs[0]
	field := strings.Join(first.Path(), ".")
	if field == "" {
		field = "sections"
	}
	format, args := first.Msg()
	ce := &CompileError{Field: field, Message: fmt.Sprintf(format, args...)}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
