package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/backend"
	"tally/internal/ledger"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testEnv(t *testing.T) Env {
	t.Helper()
	clock := func() time.Time { return testNow }
	result, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{
		Type:  backend.MemoryBackend,
		Clock: clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Cleanup() })

	shared := &backend.BackendResult{Backend: result.Backend, Cleanup: func() error { return nil }}
	return Env{
		Open:  func(context.Context) (*backend.BackendResult, error) { return shared, nil },
		Clock: clock,
	}
}

func run(t *testing.T, env Env, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(env)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportSummaryYears(t *testing.T) {
	env := testEnv(t)
	path := writeCSV(t, "2025-06-01,350,Market,groceries\n2025-06-02,x,Bus,transport\n2024-03-01,10,Old,other\n")

	out, err := run(t, env, "import", "--user", "1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 imported, 1 skipped")
	assert.Contains(t, out, "line 2: invalid_amount")

	out, err = run(t, env, "years", "-u", "1")
	require.NoError(t, err)
	assert.Equal(t, "2025\n2024\n", out)

	out, err = run(t, env, "summary", "-u", "1", "--year", "2025", "--month", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-06 total 350.00")
	assert.Contains(t, out, "groceries")
	assert.Contains(t, out, "[danger] You spent 50.00 more than your groceries budget of 300.00")
}

func TestExport(t *testing.T) {
	env := testEnv(t)
	path := writeCSV(t, "2025-06-01,12.5,Bread,groceries\n2025-06-03,4,\"Bus, late\",transport\n")
	_, err := run(t, env, "import", "-u", "1", path)
	require.NoError(t, err)

	out, err := run(t, env, "export", "-u", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,amount,description,category", lines[0])
	assert.Contains(t, out, `2025-06-03,4.00,"Bus, late",transport`)

	target := filepath.Join(t.TempDir(), "out.csv")
	_, err = run(t, env, "export", "-u", "1", "--no-header", "-o", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "date,amount")

	// A headerless export imports cleanly for another owner.
	out, err = run(t, env, "import", "-u", "2", target)
	require.NoError(t, err)
	assert.Contains(t, out, "2 imported, 0 skipped")
}

func TestCommandErrors(t *testing.T) {
	env := testEnv(t)

	_, err := run(t, env, "years")
	assert.ErrorContains(t, err, "--user")

	_, err = run(t, env, "summary", "-u", "1", "--month", "13")
	assert.ErrorContains(t, err, "month")

	_, err = run(t, env, "import", "-u", "1", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = run(t, env, "events")
	assert.ErrorContains(t, err, "not available")
}

func TestEvents(t *testing.T) {
	env := testEnv(t)
	var gotPattern string
	env.Subscribe = func(ctx context.Context, pattern string, handler func(ledger.Event) error) error {
		gotPattern = pattern
		for _, evt := range []ledger.Event{
			{Type: ledger.EventExpenseCreated, OwnerID: 1, ExpenseID: 7, Timestamp: testNow},
			{Type: ledger.EventExpenseCreated, OwnerID: 2, ExpenseID: 8, Timestamp: testNow},
		} {
			if err := handler(evt); err != nil {
				return err
			}
		}
		return context.Canceled
	}

	out, err := run(t, env, "events", "-u", "1", "--pattern", "expense.*")
	require.NoError(t, err)
	assert.Equal(t, "expense.*", gotPattern)
	assert.Contains(t, out, `"expense_id":7`)
	assert.NotContains(t, out, `"expense_id":8`)
}
