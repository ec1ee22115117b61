package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFile writes content to dir/name, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// loadInline writes a suite file into a fresh directory and loads it.
func loadInline(t *testing.T, yaml string, extra map[string]string) *Suite {
	t.Helper()
	dir := t.TempDir()
	for name, content := range extra {
		writeFile(t, dir, name, content)
	}
	suite, err := LoadSuite(writeFile(t, dir, "suite.yaml", yaml))
	require.NoError(t, err)
	return suite
}
