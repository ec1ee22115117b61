package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/roach88/powsim/internal/ir"
)

// Recognized variable names. Every Context carries all of them.
const (
	VarIntervalTime          = "interval_time"
	VarBatterySOC            = "battery_soc"
	VarSOC                   = "soc" // alias input key for battery_soc
	VarBuyPrice              = "buy_price"
	VarSellPrice             = "sell_price"
	VarSolarPower            = "solar_power"
	VarBuyForecast           = "buy_forecast"
	VarSellForecast          = "sell_forecast"
	VarHourlyGTIForecast     = "hourly_gti_forecast"
	VarHistorySellPrices     = "history_sell_prices"
	VarRuntimeParams         = "runtime_params"
	VarAction                = "action"
	VarFeedInPowerLimitation = "feed_in_power_limitation"
	VarOptimalCharging       = "optimal_charging"
	VarOptimalDischarging    = "optimal_discharging"
	VarImportSOC             = "import_soc"
	VarAlwaysExportRRP       = "always_export_rrp"
	VarMQTTPushMining1       = "mqtt_topic_push_mining_1"
	VarCheapPowerAvailable   = "cheap_power_available"
	VarDecisions             = "decisions"
)

// DefaultAction is reported when a context has no action variable.
const DefaultAction = "auto"

// Defaults returns the default value of every recognized variable for a run
// whose base time is now and whose recorder is rec.
//
// Sequences default to empty []float64 and runtime_params to an empty map, so
// templates can range over them and index them without type assertions.
func Defaults(now time.Time, rec *Recorder) map[string]any {
	return map[string]any{
		// Core
		VarIntervalTime:      now,
		VarBatterySOC:        50.0,
		VarBuyPrice:          20.0,
		VarSellPrice:         10.0,
		VarSolarPower:        0.0,
		VarBuyForecast:       []float64{},
		VarSellForecast:      []float64{},
		VarHourlyGTIForecast: []float64{},
		VarHistorySellPrices: []float64{},
		VarRuntimeParams:     map[string]any{},

		// Outputs
		VarAction:                DefaultAction,
		VarFeedInPowerLimitation: nil,
		VarOptimalCharging:       5000.0,
		VarOptimalDischarging:    5000.0,
		VarImportSOC:             nil,
		VarAlwaysExportRRP:       nil,
		VarMQTTPushMining1:       "Off",
		VarCheapPowerAvailable:   false,

		// Decision logger
		VarDecisions: rec,
	}
}

// RecognizedVariables lists the recognized variable names in table order.
func RecognizedVariables() []string {
	return []string{
		VarIntervalTime, VarBatterySOC, VarBuyPrice, VarSellPrice, VarSolarPower,
		VarBuyForecast, VarSellForecast, VarHourlyGTIForecast, VarHistorySellPrices,
		VarRuntimeParams, VarAction, VarFeedInPowerLimitation, VarOptimalCharging,
		VarOptimalDischarging, VarImportSOC, VarAlwaysExportRRP, VarMQTTPushMining1,
		VarCheapPowerAvailable, VarDecisions,
	}
}

var (
	anyType      = reflect.TypeFor[any]()
	float64Type  = reflect.TypeFor[float64]()
	stringType   = reflect.TypeFor[string]()
	sequenceType = reflect.TypeFor[[]float64]()
)

// variableTypes are the Go types recognized variables have in a template.
var variableTypes = map[string]reflect.Type{
	VarIntervalTime:          reflect.TypeFor[time.Time](),
	VarBatterySOC:            float64Type,
	VarBuyPrice:              float64Type,
	VarSellPrice:             float64Type,
	VarSolarPower:            float64Type,
	VarBuyForecast:           sequenceType,
	VarSellForecast:          sequenceType,
	VarHourlyGTIForecast:     sequenceType,
	VarHistorySellPrices:     sequenceType,
	VarRuntimeParams:         reflect.TypeFor[map[string]any](),
	VarAction:                stringType,
	VarFeedInPowerLimitation: anyType,
	VarOptimalCharging:       float64Type,
	VarOptimalDischarging:    float64Type,
	VarImportSOC:             anyType,
	VarAlwaysExportRRP:       anyType,
	VarMQTTPushMining1:       stringType,
	VarCheapPowerAvailable:   reflect.TypeFor[bool](),
	VarDecisions:             reflect.TypeFor[*Recorder](),
}

// VariableType returns the Go type of a recognized variable.
func VariableType(name string) (reflect.Type, bool) {
	t, ok := variableTypes[name]
	return t, ok
}

// Context is the variable scope of one template execution.
//
// It is created by Builder.Build, mutated by Executor.Run, and read by
// Assemble. A Context belongs to exactly one run and is never reused.
type Context struct {
	vars     map[string]any
	recorder *Recorder
}

// Get returns the value of a variable and whether it exists.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Set creates or replaces a variable.
func (c *Context) Set(name string, value any) {
	c.vars[name] = value
}

// Names returns all variable names in sorted order.
func (c *Context) Names() []string {
	return slices.Sorted(maps.Keys(c.vars))
}

// Len returns the number of variables.
func (c *Context) Len() int {
	return len(c.vars)
}

// Snapshot returns a shallow copy of the variables.
func (c *Context) Snapshot() map[string]any {
	return maps.Clone(c.vars)
}

// Recorder returns the recorder a Result is assembled from.
//
// This is the "decisions" variable when it still holds a *Recorder. A
// template that rebinds decisions to something else does not lose the
// entries it already recorded: the recorder installed by the Builder is
// returned instead.
func (c *Context) Recorder() *Recorder {
	if rec, ok := c.vars[VarDecisions].(*Recorder); ok && rec != nil {
		return rec
	}
	return c.recorder
}

// IntervalTime returns the resolved interval_time, or the zero time if the
// template replaced it with a non-time value.
func (c *Context) IntervalTime() time.Time {
	t, _ := c.vars[VarIntervalTime].(time.Time)
	return t
}

// Builder turns input descriptions into Contexts.
type Builder struct {
	clock  Clock
	loc    *time.Location
	logger *slog.Logger
}

// NewBuilder creates a Builder.
//
// A nil clock reads the system clock; a nil location means time.Local.
// The location is used for "now" and for ISO timestamps without an offset.
func NewBuilder(clock Clock, loc *time.Location) *Builder {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Builder{
		clock:  clock,
		loc:    loc,
		logger: discardLogger(),
	}
}

// WithLogger returns a copy of b that logs to logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	cp := *b
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// Build resolves input into a complete Context.
//
// Order of operations:
//  1. Normalize input values (numbers to float64, numeric lists to []float64)
//  2. Resolve interval_time against the clock
//  3. Install a fresh Recorder and the defaults
//  4. Merge every input key except interval_time and decisions
//  5. Copy soc into battery_soc when only soc was supplied
//
// Returns an *InputError if input cannot be normalized, interval_time
// cannot be resolved, or a recognized variable has a value of the wrong type.
func (b *Builder) Build(input map[string]any) (*Context, error) {
	normalized, err := ir.NormalizeMap(input)
	if err != nil {
		return nil, &InputError{Message: "cannot normalize input", Err: err}
	}

	now, err := b.resolveIntervalTime(normalized)
	if err != nil {
		return nil, err
	}

	rec := NewRecorder()
	vars := Defaults(now, rec)

	for key, value := range normalized {
		if key == VarIntervalTime || key == VarDecisions {
			continue
		}
		if err := checkType(key, key, value); err != nil {
			return nil, err
		}
		vars[key] = value
	}

	if soc, ok := normalized[VarSOC]; ok {
		if _, explicit := normalized[VarBatterySOC]; !explicit {
			if err := checkType(VarSOC, VarBatterySOC, soc); err != nil {
				return nil, err
			}
			vars[VarBatterySOC] = soc
		}
	}

	b.logger.Debug("context built",
		"variables", len(vars),
		"overrides", len(normalized),
		"interval_time", now.Format(time.RFC3339),
	)

	return &Context{vars: vars, recorder: rec}, nil
}

// checkType rejects a value a recognized variable cannot hold. field names
// the input key, name the variable it is stored under.
func checkType(field, name string, value any) error {
	want, ok := VariableType(name)
	if !ok || want == anyType {
		return nil
	}
	if value != nil && reflect.TypeOf(value).AssignableTo(want) {
		return nil
	}
	return &InputError{
		Field:   field,
		Message: fmt.Sprintf("must be %s, got %s", describeType(want), describeValue(value)),
	}
}

func describeType(t reflect.Type) string {
	switch t {
	case float64Type:
		return "a number"
	case stringType:
		return "a string"
	case sequenceType:
		return "a list of numbers"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "a boolean"
	case reflect.Map:
		return "a mapping"
	}
	return t.String()
}

func describeValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v (%T)", v, v)
}

// resolveIntervalTime computes the run's base time.
//
// A string or time.Time replaces now entirely; a {hour, minute} mapping
// replaces only those fields and zeroes seconds; anything else keeps now.
func (b *Builder) resolveIntervalTime(input map[string]any) (time.Time, error) {
	now := b.clock.Now().In(b.loc)

	raw, ok := input[VarIntervalTime]
	if !ok {
		return now, nil
	}

	switch it := raw.(type) {
	case string:
		t, err := ParseTimestamp(it, b.loc)
		if err != nil {
			return time.Time{}, &InputError{Field: VarIntervalTime, Message: "not an ISO-8601 timestamp", Err: err}
		}
		return t, nil
	case time.Time:
		return it, nil
	case map[string]any:
		hour, err := clockField(it, "hour", now.Hour(), 23)
		if err != nil {
			return time.Time{}, err
		}
		minute, err := clockField(it, "minute", now.Minute(), 59)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
	default:
		return now, nil
	}
}

// clockField reads an integral hour or minute from a structured
// interval_time, falling back to current when the key is absent.
func clockField(it map[string]any, key string, current, maxValue int) (int, error) {
	raw, ok := it[key]
	if !ok {
		return current, nil
	}

	f, isNum := raw.(float64)
	if !isNum || f != math.Trunc(f) {
		return 0, &InputError{
			Field:   VarIntervalTime + "." + key,
			Message: fmt.Sprintf("must be an integer, got %v", raw),
		}
	}
	if f < 0 || f > float64(maxValue) {
		return 0, &InputError{
			Field:   VarIntervalTime + "." + key,
			Message: fmt.Sprintf("must be in 0..%d, got %v", maxValue, f),
		}
	}
	return int(f), nil
}

// timestampLayouts are the ISO-8601 forms ParseTimestamp accepts, longest
// first. Fractional seconds are accepted after any layout with seconds.
var timestampLayouts = []struct {
	layout string
	zoned  bool
}{
	{"2006-01-02T15:04:05Z07:00", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04", false},
	{"2006-01-02T15Z07:00", true},
	{"2006-01-02T15", false},
	{"2006-01-02", false},
}

// ParseTimestamp parses an ISO-8601 date or date-time.
//
// The date and time may be separated by "T" or a single space. Timestamps
// with a "Z" or ±HH:MM offset keep that offset; naive ones are interpreted
// in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	value := strings.TrimSpace(s)
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}

	for _, l := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, value)
		} else {
			t, err = time.ParseInLocation(l.layout, value, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", s)
}

// discardLogger suppresses logs unless a caller installs one.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
