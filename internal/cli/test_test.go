package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/powsim/internal/harness"
	"github.com/roach88/powsim/internal/store"
	"github.com/roach88/powsim/internal/testutil"
)

const peakSuite = `name: peak
template: peak.tmpl
now: "2024-06-01T12:00:00Z"
defaults:
  sell_price: 12
cases:
  - name: cheap
    input: { buy_price: 5 }
    expect: { action: charge, description: "cheap power" }
  - name: spike
    input: { buy_price: 25, sell_price: 45 }
    expect: { action: export }
    assertions:
      - type: decision_count
        count: 1
  - name: idle
    input: { buy_price: 25 }
`

// writeSuite lays out a suite directory and returns the suite path.
func writeSuite(t *testing.T, dir, suite string) string {
	t.Helper()
	writeFile(t, dir, "peak.tmpl", peakTemplate)
	return writeFile(t, dir, "peak.yaml", suite)
}

func newTestTestCommand(format string) *TestOptions {
	return &TestOptions{
		RootOptions: testRootOptions(format),
		Clock:       testutil.NewFixedClock(testEpoch),
		IDs:         testutil.NewSequentialIDs("run"),
	}
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, _, err := execute(NewTestCommand(testRootOptions("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_Passes(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, peakSuite)

	stdout, _, err := execute(newTestCommand(newTestTestCommand("text")), path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ cheap")
	assert.Contains(t, stdout, "✓ spike")
	assert.Contains(t, stdout, "? idle (pending: action=auto)")
	assert.Contains(t, stdout, "2 passed, 0 failed, 0 errored, 1 pending (3 total)")
}

func TestTestCommand_Directory(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, filepath.Join(dir, "a"), peakSuite)
	writeSuite(t, filepath.Join(dir, "b"), peakSuite)

	stdout, _, err := execute(newTestCommand(newTestTestCommand("text")), dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "4 passed, 0 failed, 0 errored, 2 pending (6 total)")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, peakSuite)

	stdout, _, err := execute(newTestCommand(newTestTestCommand("text")), path, "--filter", "sp*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ spike")
	assert.NotContains(t, stdout, "cheap")
	assert.Contains(t, stdout, "(1 total)")
}

func TestTestCommand_BadFilter(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, peakSuite)

	_, _, err := execute(newTestCommand(newTestTestCommand("text")), path, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_FailingCase(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `name: peak
template: peak.tmpl
cases:
  - name: wrong
    input: { buy_price: 5, sell_price: 12 }
    expect: { action: export }
`)

	stdout, _, err := execute(newTestCommand(newTestTestCommand("text")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ wrong")
	assert.Contains(t, stdout, `action: expected "export", got "charge"`)
	assert.Contains(t, stdout, "0 passed, 1 failed")
}

func TestTestCommand_SectionOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "peak.yaml", `user_params: |
  const threshold = 10.0
main: |
  if buy_price < threshold {
  	action = decisions.Reason("charge", "below threshold")
  } else {
  	action = decisions.Reason("auto", "above threshold")
  }
`)
	path := writeFile(t, dir, "suite.yml", `name: threshold
sections_file: peak.yaml
cases:
  - name: fifteen
    input: { buy_price: 15 }
    expect: { action: charge }
`)

	_, _, err := execute(newTestCommand(newTestTestCommand("text")), path)
	require.Error(t, err)

	_, _, err = execute(newTestCommand(newTestTestCommand("text")), path, "--user-params", "const threshold = 20.0")
	require.NoError(t, err)
}

func TestTestCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, peakSuite)

	stdout, _, err := execute(newTestCommand(newTestTestCommand("json")), path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Suites []harness.SuiteResult `json:"suites"`
			Counts harness.Counts        `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, harness.Counts{Pass: 2, Pending: 1, Total: 3}, resp.Data.Counts)
	require.Len(t, resp.Data.Suites, 1)
	assert.Equal(t, "peak", resp.Data.Suites[0].Suite)
	require.Len(t, resp.Data.Suites[0].Cases, 3)
	assert.Equal(t, harness.StatusPending, resp.Data.Suites[0].Cases[2].Status)
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "name: broken\ntemplate: missing.tmpl\ncases: []\n")

	stdout, _, err := execute(newTestCommand(newTestTestCommand("json")), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSuite, resp.Error.Code)
}

func TestTestCommand_NoSuites(t *testing.T) {
	_, _, err := execute(newTestCommand(newTestTestCommand("text")), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, peakSuite)

	_, _, err := execute(newTestCommand(newTestTestCommand("text")), path, "--update")
	require.NoError(t, err)

	for _, name := range []string{"cheap", "spike", "idle"} {
		_, err := os.Stat(filepath.Join(dir, "golden", "peak", name+".golden"))
		assert.NoError(t, err, "golden file for %s", name)
	}

	_, _, err = execute(newTestCommand(newTestTestCommand("text")), path)
	require.NoError(t, err)

	// Change the template: the snapshots no longer match.
	writeFile(t, dir, "peak.tmpl", `action = decisions.Reason("auto", "always idle")`+"\n")
	stdout, _, err := execute(newTestCommand(newTestTestCommand("text")), path)
	require.Error(t, err)
	assert.Contains(t, stdout, "golden mismatch")
}

func TestTestCommand_RecordsSuiteRun(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	path := writeSuite(t, dir, peakSuite)

	_, _, err := execute(newTestCommand(newTestTestCommand("text")), path, "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	srs, err := st.ListSuiteRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, srs, 1)
	assert.Equal(t, "peak", srs[0].Suite)
	assert.Equal(t, 2, srs[0].Pass)
	assert.Equal(t, 1, srs[0].Pending)
	assert.Equal(t, 3, srs[0].Total)

	runs, err := st.ListRuns(ctx, store.RunFilter{SuiteRunID: srs[0].ID})
	require.NoError(t, err)
	require.Len(t, runs, 3)

	byCase := map[string]store.Run{}
	for _, r := range runs {
		byCase[r.Case] = r
	}
	assert.Equal(t, "pass", byCase["cheap"].Status)
	require.NotNil(t, byCase["cheap"].ExpectedAction)
	assert.Equal(t, "charge", *byCase["cheap"].ExpectedAction)
	assert.Equal(t, "pending", byCase["idle"].Status)
	assert.Nil(t, byCase["idle"].ExpectedAction)
}
