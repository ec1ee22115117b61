package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// badKey is the key recorded for a field without a usable string key,
// matching log/slog.
const badKey = "!BADKEY"

// Field is one caller-supplied extra field of a Decision.
type Field struct {
	Key   string
	Value any
}

// Decision is one entry of the decision log.
//
// The JSON form is a flat object: action, description, then the extra
// fields in the order the template supplied them.
type Decision struct {
	Action      string
	Description string
	Extra       []Field
}

// Lookup returns the value of an extra field.
func (d Decision) Lookup(key string) (any, bool) {
	for i := len(d.Extra) - 1; i >= 0; i-- {
		if d.Extra[i].Key == key {
			return d.Extra[i].Value, true
		}
	}
	return nil, false
}

// Fields returns the decision as a map, extra fields included.
func (d Decision) Fields() map[string]any {
	m := make(map[string]any, len(d.Extra)+2)
	for _, f := range d.Extra {
		m[f.Key] = f.Value
	}
	m["action"] = d.Action
	m["description"] = d.Description
	return m
}

// MarshalJSON writes the flat, ordered JSON form.
// Extra values that encoding/json cannot represent are written as their
// fmt.Sprint text so a result always serializes.
func (d Decision) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeMember(&buf, "action", d.Action)
	buf.WriteByte(',')
	writeMember(&buf, "description", d.Description)
	for _, f := range d.Extra {
		buf.WriteByte(',')
		writeMember(&buf, f.Key, f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(jsonValue(value))
}

// jsonValue encodes v, falling back to its fmt.Sprint text.
func jsonValue(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	return data
}

// UnmarshalJSON reads the flat JSON form, keeping extra field order.
func (d *Decision) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decision: expected object, got %v", tok)
	}

	var out Decision
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decision field %q: %w", key, err)
		}

		switch key {
		case "action":
			out.Action, _ = value.(string)
		case "description":
			out.Description, _ = value.(string)
		default:
			out.Extra = append(out.Extra, Field{Key: key, Value: value})
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}

// Structured is the recorder's log in result form.
type Structured struct {
	Reasons []Decision `json:"reasons"`
}

// Recorder is the decision log a template writes through its "decisions"
// variable.
//
// Entries are appended in call order and never reordered, deduplicated, or
// capped; the last entry determines the reported description.
//
// Recorder is not safe for concurrent use. A run is single-threaded.
type Recorder struct {
	reasons    []Decision
	lastAction string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{reasons: []Decision{}}
}

// Reason records a decision and returns action unchanged, so a template can
// write `action = decisions.Reason("charge", "cheap power")`.
//
// fields are alternating key/value pairs, as with log/slog:
//
//	decisions.Reason("export", "price spike", "sell_price", sell_price, "soc", battery_soc)
//
// A non-string key or a trailing value without a key is recorded under
// "!BADKEY". A key of "action" or "description" panics, which fails the run.
func (r *Recorder) Reason(action, description string, fields ...interface{}) string {
	var extra []Field
	for len(fields) > 0 {
		var f Field
		f, fields = nextField(fields)
		extra = append(extra, f)
	}
	r.record(action, description, extra)
	return action
}

// ReasonWith records a decision whose extra fields come from a map. Fields
// are stored in key order.
func (r *Recorder) ReasonWith(action, description string, fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	extra := make([]Field, 0, len(keys))
	for _, k := range keys {
		extra = append(extra, Field{Key: k, Value: fields[k]})
	}
	r.record(action, description, extra)
	return action
}

func (r *Recorder) record(action, description string, extra []Field) {
	for _, f := range extra {
		if f.Key == "action" || f.Key == "description" {
			panic(fmt.Sprintf("decisions.Reason: extra field %q collides with a reserved field", f.Key))
		}
	}

	r.reasons = append(r.reasons, Decision{
		Action:      action,
		Description: description,
		Extra:       extra,
	})
	r.lastAction = action
}

// nextField consumes one key/value pair from args.
func nextField(args []interface{}) (Field, []interface{}) {
	key, ok := args[0].(string)
	if !ok {
		return Field{Key: badKey, Value: args[0]}, args[1:]
	}
	if len(args) == 1 {
		return Field{Key: badKey, Value: key}, nil
	}
	return Field{Key: key, Value: args[1]}, args[2:]
}

// LastAction returns the most recently recorded action, or "" if nothing
// has been recorded.
func (r *Recorder) LastAction() string {
	return r.lastAction
}

// Len returns the number of recorded decisions.
func (r *Recorder) Len() int {
	return len(r.reasons)
}

// Reasons returns a copy of the decision log.
func (r *Recorder) Reasons() []Decision {
	out := make([]Decision, len(r.reasons))
	for i, d := range r.reasons {
		d.Extra = slices.Clone(d.Extra)
		out[i] = d
	}
	return out
}

// ToStructured returns the log in result form. An empty log yields an empty,
// non-nil slice so it serializes as [].
func (r *Recorder) ToStructured() Structured {
	return Structured{Reasons: r.Reasons()}
}
