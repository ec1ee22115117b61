package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/testutil"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir with sequential IDs and
// a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, _ := createTestStoreWithClock(t)
	return s
}

func createTestStoreWithClock(t *testing.T) (*Store, *testutil.FixedClock) {
	t.Helper()
	clock := testutil.NewFixedClock(testEpoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(testutil.NewSequentialIDs("run")),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestRun creates a successful run with one decision.
func createTestRun(t *testing.T, action string) Run {
	t.Helper()
	desc := "because " + action
	res := &engine.Result{
		Success:     true,
		Action:      &action,
		Description: &desc,
		Decisions: engine.Structured{Reasons: []engine.Decision{{
			Action:      action,
			Description: desc,
			Extra:       []engine.Field{{Key: "soc", Value: 42.0}, {Key: "buy_price", Value: 5.5}},
		}}},
	}
	run, err := NewRun(`action = decisions.Reason("`+action+`", "x")`, map[string]any{"buy_price": 5.5}, res)
	if err != nil {
		t.Fatalf("NewRun() failed: %v", err)
	}
	return run
}
