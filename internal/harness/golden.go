package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/ir"
)

// goldenDirName is the directory next to a suite file holding its snapshots.
const goldenDirName = "golden"

// GoldenPath returns the snapshot file of one case.
func GoldenPath(suite *Suite, caseName string) string {
	return filepath.Join(suite.Dir, goldenDirName, suite.Name, caseName+".golden")
}

// snapshotResult is the canonical JSON stored in a case snapshot.
//
// A fault keeps only the first line of its text: the rest is a stack trace
// that changes with the interpreter build.
func snapshotResult(res *engine.Result) ([]byte, error) {
	stored := *res
	if res.Error != nil {
		first := firstLine(*res.Error)
		stored.Error = &first
	}
	data, err := ir.MarshalCanonical(stored)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// checkGolden compares res with the case snapshot, or rewrites the snapshot
// when update is set. A missing snapshot is not checked. The returned
// message is empty when the snapshot matches.
func checkGolden(path string, res *engine.Result, update bool) (string, error) {
	got, err := snapshotResult(res)
	if err != nil {
		return "", err
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			return "", fmt.Errorf("write golden file: %w", err)
		}
		return "", nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read golden file: %w", err)
	}

	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(got)) {
		return fmt.Sprintf("golden mismatch (%s)\n  expected: %s\n  actual:   %s",
			path, bytes.TrimSpace(want), bytes.TrimSpace(got)), nil
	}
	return "", nil
}

// AssertGolden compares a suite result's snapshot against a golden file.
// The golden file is stored in testdata/golden/{name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *SuiteResult) error {
	t.Helper()

	data, err := ir.MarshalCanonical(result.Snapshot())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
