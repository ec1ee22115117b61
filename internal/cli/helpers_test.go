package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const peakTemplate = `const cheapThreshold = 10.0

if buy_price < cheapThreshold {
	action = decisions.Reason("charge", "cheap power", "buy_price", buy_price)
	optimal_charging = 8000
} else if sell_price > 30 {
	action = decisions.Reason("export", "price spike", "sell_price", sell_price)
} else {
	action = decisions.Reason("auto", "nothing to do")
}
`

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testRootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, loc: time.UTC}
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if args == nil {
		args = []string{} // nil makes cobra read os.Args
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
