package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menuWorkflow = `
id: menu-launch
name: Menu launch
steps:
  - id: audit
    task_type: allergen_check
    agent_role: menu-auditor
    description: "Audit {{.dish}}"
  - id: plan
    task_type: business_strategy
    depends_on: [audit]
  - id: promo
    task_type: business_strategy
    when:
      equals: {promo: "yes"}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseSet(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", pairs: nil, want: map[string]any{}},
		{name: "pairs", pairs: []string{"dish=Pad Thai", "note=a=b"}, want: map[string]any{"dish": "Pad Thai", "note": "a=b"}},
		{name: "missing equals", pairs: []string{"dish"}, wantErr: true},
		{name: "empty key", pairs: []string{" =x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSet(tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "menu.yaml", menuWorkflow)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "workflow menu-launch is valid (3 steps)")
	assert.Contains(t, out, " 1. audit (allergen_check)")
	assert.Contains(t, out, " 2. plan (business_strategy)")

	bad := writeFile(t, "bad.yaml", "id: x\nsteps:\n  - id: a\n    task_type: t\n    depends_on: [nope]\n")
	_, err = execute(t, "validate", bad)
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	path := writeFile(t, "menu.yaml", menuWorkflow)
	cfgPath := writeFile(t, "brigade.yaml", "orchestrator:\n  render_descriptions: true\nmetrics:\n  enabled: true\n")

	out, err := execute(t, "run", path,
		"--config", cfgPath,
		"--set", "dish=Pad Thai",
		"--set", "ingredients=rice noodles, peanuts, egg",
		"--set", "text=Food cost keeps rising",
		"--set", "promo=yes",
		"--timeout", "5s",
	)
	require.NoError(t, err)

	var report runReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "menu-launch", report.Workflow)
	assert.Equal(t, "completed", report.State)
	assert.ElementsMatch(t, []string{"audit", "plan", "promo"}, report.CompletedSteps)
	require.Len(t, report.Tasks, 3)
	assert.Equal(t, "Audit Pad Thai", report.Tasks[0].Description)
	assert.InDelta(t, 1, report.Metrics["brigade_workflows_completed_total"], 0)
}

func TestRunCommand_Stalled(t *testing.T) {
	path := writeFile(t, "menu.yaml", menuWorkflow)

	out, err := execute(t, "run", path, "--set", "text=Food cost keeps rising", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stalled")

	var report runReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "stalled", report.State)
	assert.Contains(t, report.PendingSteps, "plan")
	require.NotEmpty(t, report.Tasks)
	assert.Equal(t, "Audit {{.dish}}", report.Tasks[0].Description)
}

func TestRunCommand_InvalidLogLevel(t *testing.T) {
	path := writeFile(t, "menu.yaml", menuWorkflow)
	_, err := execute(t, "run", path, "--log-level", "loud")
	assert.Error(t, err)
}
