package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// Normalize converts a decoded JSON, YAML, or CUE value into the value
// model used by template contexts.
//
// Conversions:
//   - integers, unsigned integers, float32 and json.Number become float64
//   - a sequence whose elements are all numbers (including an empty one)
//     becomes []float64, any other sequence []interface{}
//   - mappings become map[string]interface{}; YAML mappings with
//     non-string keys have their keys formatted with fmt.Sprint
//   - nil, bool, string, float64 and time.Time pass through unchanged
//
// Returns an error for types that have no JSON representation.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, float64, time.Time:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val.String(), err)
		}
		return f, nil
	case []float64:
		return slices.Clone(val), nil
	case []any:
		return normalizeSlice(val)
	case map[string]any:
		return NormalizeMap(val)
	case map[any]any:
		obj := make(map[string]any, len(val))
		for k, elem := range val {
			obj[fmt.Sprint(k)] = elem
		}
		return NormalizeMap(obj)
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// NormalizeMap normalizes every value of m into a new map.
// A nil map yields an empty, non-nil map.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		n, err := Normalize(elem)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func normalizeSlice(in []any) (any, error) {
	out := make([]any, len(in))
	numeric := true
	for i, elem := range in {
		n, err := Normalize(elem)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if _, ok := n.(float64); !ok {
			numeric = false
		}
		out[i] = n
	}

	if !numeric {
		return out, nil
	}
	nums := make([]float64, len(out))
	for i, n := range out {
		nums[i] = n.(float64)
	}
	return nums, nil
}

// SortedKeys returns the keys of m in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for supplementary-plane runes.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// All compared units equal: shorter string first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
