package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: roundtrip
description: "Insert then read back"
schema: customers.cue
flow:
  - op: insertMany
    table: customers
    records:
      - name: Alice
  - op: getAll
    table: customers
    expect:
      status: SUCCESS
      records:
        - {id: 1, name: Alice}
assertions:
  - type: record_count
    table: customers
    count: 1
`

const failingScenario = `name: wrong_count
description: "Assertion that does not hold"
schema: customers.cue
flow:
  - op: insertMany
    table: customers
    records:
      - name: Alice
assertions:
  - type: record_count
    table: customers
    count: 3
`

// scenarioDir writes the customers schema and the given scenarios to a
// temporary directory.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	schema, err := os.ReadFile(customersSchema)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customers.cue"), schema, 0644))
	for name, body := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func testResult(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	require.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	return data
}

func TestTestCommand_Pass(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"roundtrip.yaml": passingScenario})

	resp, err := cliRun(t, t.TempDir(), "test", dir)
	require.NoError(t, err)
	data := testResult(t, resp)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(0), data["failed"])
}

func TestTestCommand_Failure(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"roundtrip.yaml":   passingScenario,
		"wrong_count.yaml": failingScenario,
	})

	resp, err := cliRun(t, t.TempDir(), "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	data := testResult(t, resp)
	assert.Equal(t, float64(1), data["passed"])
	assert.Equal(t, float64(1), data["failed"])
	assert.Equal(t, float64(2), data["total"])
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"roundtrip.yaml":   passingScenario,
		"wrong_count.yaml": failingScenario,
	})

	resp, err := cliRun(t, t.TempDir(), "test", dir, "--filter", "round*")
	require.NoError(t, err)
	data := testResult(t, resp)
	assert.Equal(t, float64(1), data["total"])
}

func TestTestCommand_Golden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"roundtrip.yaml": passingScenario})

	_, err := cliRun(t, t.TempDir(), "test", dir, "--update")
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "roundtrip.golden")
	require.FileExists(t, golden)

	_, err = cliRun(t, t.TempDir(), "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))
	resp, err := cliRun(t, t.TempDir(), "test", dir)
	require.Error(t, err)
	data := testResult(t, resp)
	assert.Equal(t, float64(1), data["failed"])
}

func TestTestCommand_MissingDir(t *testing.T) {
	resp, err := cliRun(t, t.TempDir(), "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeBadInput, resp.Error.Code)
}
