package input

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/powsim/internal/ir"
)

// Format is the encoding of an input description file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// ErrUnsupportedFormat is returned for files whose extension is not one of
// .json, .yaml, .yml or .cue.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and decodes an input description file.
func Load(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	m, err := Parse(data, format, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes an input description. filename is used in CUE diagnostics
// and may be empty.
//
// The top level must be a mapping. An empty document is an empty mapping.
func Parse(data []byte, format Format, filename string) (map[string]any, error) {
	var raw any
	switch format {
	case FormatJSON:
		if len(bytes.TrimSpace(data)) == 0 {
			return map[string]any{}, nil
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatCUE:
		v, err := decodeCUE(data, filename)
		if err != nil {
			return nil, err
		}
		raw = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if raw == nil {
		return map[string]any{}, nil
	}

	normalized, err := ir.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize input: %w", err)
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input must be a mapping, got %T", raw)
	}
	return m, nil
}

// decodeCUE evaluates a CUE document, which must be fully concrete, and
// returns its JSON data model.
func decodeCUE(data []byte, filename string) (any, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("cue input must be concrete: %w", err)
	}

	js, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export cue: %w", err)
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode cue export: %w", err)
	}
	return raw, nil
}

// ParseAssignment parses a KEY=VALUE override. VALUE is decoded as JSON when
// it is valid JSON and kept as a plain string otherwise, so
// "buy_price=4.5", "buy_forecast=[1,2]" and "action=charge" all work.
func ParseAssignment(s string) (string, any, error) {
	key, value, found := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", nil, fmt.Errorf("invalid assignment %q: want KEY=VALUE", s)
	}

	var decoded any
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return key, value, nil
	}

	normalized, err := ir.Normalize(decoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid assignment %q: %w", s, err)
	}
	return key, normalized, nil
}

// Merge returns a new mapping holding base with overrides applied on top.
// The merge is shallow: an override replaces the whole value of its key.
func Merge(base map[string]any, overrides ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}
