package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/ir"
)

func templateHash(source string) string {
	return ir.TemplateHash(source)
}

func inputHash(input map[string]any) (string, error) {
	h, err := ir.InputHash(orEmpty(input))
	if err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	return h, nil
}

// marshalInput converts an input description to canonical JSON TEXT for
// storage. Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalInput(input map[string]any) (string, error) {
	data, err := ir.MarshalCanonical(orEmpty(input))
	if err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}
	return string(data), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// marshalDecision converts a decision to its flat JSON object, extra fields
// in recording order.
func marshalDecision(d engine.Decision) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal decision: %w", err)
	}
	return string(data), nil
}

// unmarshalDecision parses a stored decision, keeping extra field order.
func unmarshalDecision(data string) (engine.Decision, error) {
	var d engine.Decision
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return engine.Decision{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	return d, nil
}
