package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	opts.Location = time.UTC
	r, err := NewRunner(opts)
	require.NoError(t, err)
	return r
}

func TestRunner_PeakSuite(t *testing.T) {
	result, err := newTestRunner(t, Options{}).RunFile("testdata/suites/peak.yaml")
	require.NoError(t, err)

	assert.Equal(t, Counts{Pass: 2, Pending: 1, Total: 3}, result.Counts)
	assert.True(t, result.Passed())
	assert.Len(t, result.TemplateHash, 64)
	assert.Contains(t, result.Template, "cheapThreshold")

	cheap := result.Cases[0]
	assert.Empty(t, cheap.Errors)
	assert.Equal(t, map[string]any{"buy_price": 5.0, "sell_price": 12.0}, cheap.Input)
	require.NotNil(t, cheap.Context)
	v, _ := cheap.Context.Get("optimal_charging")
	assert.Equal(t, 8000.0, v)

	require.NoError(t, AssertGolden(t, "peak", result))
}

func TestRunner_Filter(t *testing.T) {
	result, err := newTestRunner(t, Options{Filter: "s*"}).RunFile("testdata/suites/peak.yaml")
	require.NoError(t, err)

	require.Len(t, result.Cases, 1)
	assert.Equal(t, "spike", result.Cases[0].Name)
	assert.Equal(t, 1, result.Counts.Total)
}

func TestNewRunner_InvalidFilter(t *testing.T) {
	_, err := NewRunner(Options{Filter: "["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter")
}

func TestRunner_Faults(t *testing.T) {
	suite := loadInline(t, `
name: faults
template: boom.go
cases:
  - name: expected
    expect: { success: false }
    assertions:
      - type: error_contains
        contains: boom
  - name: unexpected
    expect: { action: charge }
  - name: wrong-text
    expect: { success: false }
    assertions:
      - type: error_contains
        contains: bang
`, map[string]string{"boom.go": `panic("boom")`})

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)
	require.Len(t, result.Cases, 3)

	expected := result.Cases[0]
	assert.Equal(t, StatusPass, expected.Status)
	assert.Empty(t, expected.Errors)
	assert.Nil(t, expected.Action)
	assert.Nil(t, expected.Description)
	assert.Empty(t, expected.Reasons)

	unexpected := result.Cases[1]
	assert.Equal(t, StatusError, unexpected.Status)
	require.NotEmpty(t, unexpected.Errors)
	assert.Contains(t, unexpected.Errors[0], "boom")

	wrongText := result.Cases[2]
	assert.Equal(t, StatusFail, wrongText.Status)

	assert.Equal(t, Counts{Pass: 1, Fail: 1, Error: 1, Total: 3}, result.Counts)
	assert.False(t, result.Passed())
}

func TestRunner_ExpectedFaultButCompleted(t *testing.T) {
	suite := loadInline(t, `
name: calm
template: calm.go
cases:
  - name: one
    expect: { success: false }
`, map[string]string{"calm.go": `decisions.Reason("hold", "fine")`})

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)

	c := result.Cases[0]
	assert.Equal(t, StatusFail, c.Status)
	assert.Contains(t, c.Errors[0], "expected the template to fault")
}

func TestRunner_ExpectationMismatch(t *testing.T) {
	suite := loadInline(t, `
name: mismatch
template: t.go
cases:
  - name: one
    expect: { action: export }
    assertions:
      - type: decision_count
        count: 2
`, map[string]string{"t.go": `action = decisions.Reason("charge", "cheap")`})

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)

	c := result.Cases[0]
	assert.Equal(t, StatusFail, c.Status)
	require.Len(t, c.Errors, 2)
	assert.Equal(t, `action: expected "export", got "charge"`, c.Errors[0])
	assert.Contains(t, c.Errors[1], "decision_count")
}

func TestRunner_PinnedNow(t *testing.T) {
	suite := loadInline(t, `
name: clock
template: t.go
now: "2024-06-01T17:45:00Z"
cases:
  - name: pinned
    expect: { description: "17:45" }
  - name: hour-override
    input: { interval_time: { hour: 6 } }
    expect: { description: "06:45" }
`, map[string]string{"t.go": `decisions.Reason("hold", interval_time.Format("15:04"))`})

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)

	for _, c := range result.Cases {
		assert.Equal(t, StatusPass, c.Status, "case %s: %v", c.Name, c.Errors)
	}
}

func TestRunner_BadNow(t *testing.T) {
	suite := loadInline(t, `
name: clock
template: t.go
now: "not a time"
cases:
  - name: one
`, map[string]string{"t.go": ""})

	_, err := newTestRunner(t, Options{}).Run(suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "now")
}

func TestRunner_InputError(t *testing.T) {
	suite := loadInline(t, `
name: bad-input
template: t.go
cases:
  - name: one
    input: { interval_time: "yesterday" }
    expect: { action: hold }
`, map[string]string{"t.go": `action = "hold"`})

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)

	c := result.Cases[0]
	assert.Equal(t, StatusError, c.Status)
	assert.Contains(t, c.Errors[0], "invalid input")
	assert.Nil(t, c.Result)
}

func TestRunner_RequestOverrides(t *testing.T) {
	suite := loadInline(t, `
name: sectioned
sections:
  user_params: "const reserve = 20.0"
  main: |
    if battery_soc > reserve {
        action = decisions.Reason("discharge", "above reserve")
    } else {
        action = decisions.Reason("hold", "at reserve")
    }
overrides:
  user_params: "const reserve = 40.0"
cases:
  - name: soc-30
    input: { soc: 30 }
`, nil)

	result, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)
	assert.Equal(t, "hold", *result.Cases[0].Action, "suite override applies")

	override := "const reserve = 10.0"
	result, err = newTestRunner(t, Options{Overrides: SectionOverrides{UserParams: &override}}).Run(suite)
	require.NoError(t, err)
	assert.Equal(t, "discharge", *result.Cases[0].Action, "request override wins")
}

func TestRunner_GoldenRoundTrip(t *testing.T) {
	suite := loadInline(t, `
name: snap
template: t.go
cases:
  - name: one
    input: { sell_price: 40 }
  - name: boom
    input: { sell_price: -1 }
    expect: { success: false }
`, map[string]string{"t.go": `
if sell_price < 0 {
	panic("negative price")
}
action = decisions.Reason("export", "spike", "sell_price", sell_price)
`})

	updated, err := newTestRunner(t, Options{Update: true}).Run(suite)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Cases[0].Status)

	data, err := os.ReadFile(GoldenPath(suite, "one"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"action":"export","cheap_power_available":false,"decisions":{"reasons":[{"action":"export","description":"spike","sell_price":40}]},"description":"spike","error":null,"feed_in_power_limitation":null,"optimal_charging":5000,"success":true}`+"\n",
		string(data))

	data, err = os.ReadFile(GoldenPath(suite, "boom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "negative price")
	assert.NotContains(t, string(data), "goroutine")

	again, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Cases[0].Status)
	assert.Equal(t, StatusPass, again.Cases[1].Status)
	assert.Empty(t, again.Cases[0].Errors)

	writeFile(t, suite.Dir, "t.go", `action = decisions.Reason("export", "changed")`)
	changed, err := newTestRunner(t, Options{}).Run(suite)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, changed.Cases[0].Status)
	require.NotEmpty(t, changed.Cases[0].Errors)
	assert.Contains(t, changed.Cases[0].Errors[0], "golden mismatch")
}

func TestGoldenPath(t *testing.T) {
	suite := &Suite{Name: "peak", Dir: "/suites"}
	assert.Equal(t, filepath.Join("/suites", "golden", "peak", "cheap.golden"), GoldenPath(suite, "cheap"))
}
