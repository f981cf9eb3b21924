package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/freightplan/app"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/planner"
)

var scenarioFlags struct {
	distanceKM float64
	baseline   string
	name       string
	weights    []float64
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Compare the optimised plan with a single-mode baseline across reference scenarios",
	RunE:  runScenarios,
}

func init() {
	f := scenariosCmd.Flags()
	f.Float64Var(&scenarioFlags.distanceKM, "distance", 500, "distance in km")
	f.StringVar(&scenarioFlags.baseline, "baseline", string(model.ModeRoad), "reference mode")
	f.StringVar(&scenarioFlags.name, "name", "", "run a single scenario (normal, traffic, weather)")
	f.Float64SliceVar(&scenarioFlags.weights, "weights", nil, "objective weights: time,delay,emissions,cost")
	rootCmd.AddCommand(scenariosCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	w, err := parseWeights(scenarioFlags.weights)
	if err != nil {
		return err
	}
	base, err := model.ParseMode(scenarioFlags.baseline)
	if err != nil {
		return fmt.Errorf("--baseline: %w", err)
	}
	scenarios := planner.Scenarios()
	if scenarioFlags.name != "" {
		s, err := planner.ScenarioByName(scenarioFlags.name)
		if err != nil {
			return err
		}
		scenarios = []planner.Scenario{s}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opt, err := app.NewOptimizer(cfg)
	if err != nil {
		return err
	}
	results := make([]planner.ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := opt.Evaluate(s, scenarioFlags.distanceKM, base, w)
		if err != nil {
			return err
		}
		results = append(results, r)
	}
	return writeJSON(cmd.OutOrStdout(), results)
}
