package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: valid
description: "A valid scenario"
connected: false
responses:
  - status: 201
    body: '{"id":9}'
steps:
  - action: enqueue
    method: post
    url: /api/things
    body: { a: 1 }
    temp_id: -1
  - action: connect
assertions:
  - type: call_count
    count: 1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	require.NotNil(t, s.Connected)
	assert.False(t, *s.Connected)
	require.Len(t, s.Responses, 1)
	assert.Equal(t, 201, s.Responses[0].Status)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, StepEnqueue, s.Steps[0].Action)
	require.NotNil(t, s.Steps[0].TempID)
	assert.Equal(t, int64(-1), *s.Steps[0].TempID)
	assert.Equal(t, StepConnect, s.Steps[1].Action)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed",
			yaml:    "name: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown field",
			yaml: `
name: x
description: d
steps: [{action: drain}]
assertion: [{type: call_count}]
`,
			wantErr: "field assertion not found",
		},
		{
			name: "missing name",
			yaml: `
description: d
steps: [{action: drain}]
assertions: [{type: call_count}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: x
steps: [{action: drain}]
assertions: [{type: call_count}]
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			yaml: `
name: x
description: d
assertions: [{type: call_count}]
`,
			wantErr: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: `
name: x
description: d
steps: [{action: drain}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown action",
			yaml: `
name: x
description: d
steps: [{action: explode}]
assertions: [{type: call_count}]
`,
			wantErr: `unknown action "explode"`,
		},
		{
			name: "bad method",
			yaml: `
name: x
description: d
steps: [{action: enqueue, method: GET, url: /a}]
assertions: [{type: call_count}]
`,
			wantErr: "unsupported method",
		},
		{
			name: "enqueue without url",
			yaml: `
name: x
description: d
steps: [{action: enqueue, method: POST}]
assertions: [{type: call_count}]
`,
			wantErr: "url is required",
		},
		{
			name: "body string is not JSON",
			yaml: `
name: x
description: d
steps: [{action: enqueue, method: POST, url: /a, body: "{nope"}]
assertions: [{type: call_count}]
`,
			wantErr: "not valid JSON",
		},
		{
			name: "connect with arguments",
			yaml: `
name: x
description: d
steps: [{action: connect, url: /a}]
assertions: [{type: call_count}]
`,
			wantErr: "connect takes no arguments",
		},
		{
			name: "bad response status",
			yaml: `
name: x
description: d
responses: [{status: 42}]
steps: [{action: drain}]
assertions: [{type: call_count}]
`,
			wantErr: "responses[0]: status must be an HTTP status code",
		},
		{
			name: "call without index",
			yaml: `
name: x
description: d
steps: [{action: drain}]
assertions: [{type: call, url: /a}]
`,
			wantErr: "index (1-based) is required",
		},
		{
			name: "negative count",
			yaml: `
name: x
description: d
steps: [{action: drain}]
assertions: [{type: pending_count, count: -1}]
`,
			wantErr: "count must be non-negative",
		},
		{
			name: "empty status sequence",
			yaml: `
name: x
description: d
steps: [{action: drain}]
assertions: [{type: status_sequence}]
`,
			wantErr: "statuses list is required",
		},
		{
			name: "unknown assertion",
			yaml: `
name: x
description: d
steps: [{action: drain}]
assertions: [{type: trace_contains}]
`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_CountZeroAllowed(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: x
description: d
steps: [{action: drain}]
assertions: [{type: call_count, count: 0}]
`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Assertions[0].Count)
}

func TestParseScenario_NetworkErrorResponseNeedsNoStatus(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: x
description: d
responses: [{error: connection reset}]
steps: [{action: drain}]
assertions: [{type: call_count}]
`))
	require.NoError(t, err)
	assert.Equal(t, "connection reset", s.Responses[0].Error)
}

func TestLoadScenarios_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	body := func(name string) string {
		return "name: " + name + "\ndescription: d\nsteps: [{action: drain}]\nassertions: [{type: call_count}]\n"
	}
	writeScenario(t, dir, "b_second.yaml", body("b"))
	writeScenario(t, dir, "a_first.yml", body("a"))
	writeScenario(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	all, err := LoadScenarios(dir, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)

	filtered, err := LoadScenarios(dir, "b_*")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].Name)

	_, err = LoadScenarios(dir, "[")
	assert.ErrorContains(t, err, "bad filter")
}

func TestLoadScenarios_ReportsFileName(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: x\n")

	_, err := LoadScenarios(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoadTestdataScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Len(t, scenarios, 6)
}
