package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/planner"
	"github.com/kilianp07/freightplan/core/routing"
	"github.com/kilianp07/freightplan/infra/solver"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--env-file", ""))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReadInstanceYAML(t *testing.T) {
	path := writeFile(t, "inst.yaml", `matrix:
  - [0, 10, 15]
  - [10, 0, 5]
  - [15, 5, 0]
demands: [0, 1, 1]
windows:
  - {earliest: 0, latest: 1440}
  - {earliest: 0, latest: 1440}
  - {earliest: 0, latest: 1440}
capacities: [5]
num_vehicles: 1
distance_km:
  - [0, 8, 12]
  - [8, 0, 4]
  - [12, 4, 0]
template:
  baseline_time_min: 45
  weight_kg: 1200
`)
	req, err := readInstance(path)
	require.NoError(t, err)
	require.NoError(t, req.Instance.Validate())
	assert.Equal(t, 1, req.Instance.NumVehicles)
	assert.Equal(t, routing.TimeWindow{Earliest: 0, Latest: 1440}, req.Instance.Windows[2])
	assert.Len(t, req.DistanceKM, 3)
	assert.Equal(t, 45.0, req.Template.BaselineTimeMin)
	assert.Equal(t, 1200.0, req.Template.WeightKG)
}

func TestReadInstanceJSON(t *testing.T) {
	path := writeFile(t, "inst.json", `{"matrix": [[0, 3], [3, 0]], "demands": [0, 2],
"windows": [{"earliest": 0, "latest": 100}, {"earliest": 0, "latest": 100}],
"capacities": [4], "num_vehicles": 1}`)
	req, err := readInstance(path)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, req.Instance.Demands)
	assert.Empty(t, req.DistanceKM)
}

func TestReadInstanceErrors(t *testing.T) {
	_, err := readInstance(writeFile(t, "inst.toml", "x = 1"))
	assert.Error(t, err)
	_, err = readInstance(writeFile(t, "inst.json", "{"))
	assert.Error(t, err)
	_, err = readInstance(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights(nil)
	require.NoError(t, err)
	assert.True(t, w.IsZero())

	w, err = parseWeights([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, model.Weights{Time: 1, Delay: 2, Emissions: 3, Cost: 4}, w)

	_, err = parseWeights([]float64{1, 2})
	assert.Error(t, err)
}

func TestSolveCommand(t *testing.T) {
	if err := solver.Available(); err != nil {
		t.Skipf("route library unavailable: %v", err)
	}
	path := writeFile(t, "inst.yaml", `matrix: [[0, 10, 15], [10, 0, 5], [15, 5, 0]]
demands: [0, 1, 1]
windows: [{earliest: 0, latest: 1440}, {earliest: 0, latest: 1440}, {earliest: 0, latest: 1440}]
capacities: [5]
num_vehicles: 1
`)
	out, err := execute(t, "solve", "--instance", path)
	require.NoError(t, err)

	var res routing.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, routing.StatusFeasible, res.Status)
	require.NotNil(t, res.Solution.Objective)
	assert.Equal(t, int64(30), *res.Solution.Objective)
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, "plan", "--distance", "800", "--delay-prob", "0.25", "--expected-delay", "20")
	require.NoError(t, err)

	var got planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, model.ModeRail, got.Decision.Mode)
	assert.Equal(t, 0.25, got.Delay.DelayProb)
	assert.NotEmpty(t, got.Candidates)
}

func TestScenariosCommand(t *testing.T) {
	out, err := execute(t, "scenarios", "--name", "traffic", "--distance", "600")
	require.NoError(t, err)

	var got []planner.ScenarioResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "traffic", got[0].Scenario)
}
