package harness

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios", "")
	require.NoError(t, err)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/online_enqueue.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, "online_enqueue", result))
}

func TestSnapshot_EmptyCollections(t *testing.T) {
	data, err := Snapshot("empty", &Result{})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"scenario_name\": \"empty\",\n  \"trace\": [],\n  \"pending\": []\n}", string(data))
}

func TestSnapshot_OmitsEmptyFields(t *testing.T) {
	r := NewResult()
	r.Trace = []TraceEvent{{Seq: 1, Type: EventDrain}}

	data, err := Snapshot("s", r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	event := decoded["trace"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"seq": float64(1), "type": "drain"}, event)
}
