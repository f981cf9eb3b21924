package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/freightplan/app"
	"github.com/kilianp07/freightplan/core/prediction"
	"github.com/kilianp07/freightplan/core/routing"
)

var instancePath string

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a vehicle routing instance with time windows and capacities",
	Long: `Solve the instance read from --instance (yaml or json) and print the
routes as JSON.

When the file carries a distance_km matrix, every arc is priced through the
delay oracle and the search runs over the delay-aware matrix.`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&instancePath, "instance", "i", "", "instance file (yaml or json)")
	_ = solveCmd.MarkFlagRequired("instance")
	rootCmd.AddCommand(solveCmd)
}

// featureTemplate holds the oracle inputs shared by every arc.
type featureTemplate struct {
	BaselineTimeMin float64   `json:"baseline_time_min" yaml:"baseline_time_min"`
	WeightKG        float64   `json:"weight_kg" yaml:"weight_kg"`
	Priority        int       `json:"priority" yaml:"priority"`
	At              time.Time `json:"at" yaml:"at"`
}

type instanceFile struct {
	routing.Instance `yaml:",inline"`
	DistanceKM       [][]float64      `json:"distance_km" yaml:"distance_km"`
	Template         *featureTemplate `json:"template" yaml:"template"`
}

func readInstance(path string) (app.SolveRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return app.SolveRequest{}, err
	}
	var f instanceFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return app.SolveRequest{}, fmt.Errorf("unsupported instance format %q", filepath.Ext(path))
	}
	if err != nil {
		return app.SolveRequest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	req := app.SolveRequest{Instance: f.Instance, DistanceKM: f.DistanceKM}
	if f.Template != nil {
		req.Template = prediction.Features{
			BaselineTimeMin: f.Template.BaselineTimeMin,
			WeightKG:        f.Template.WeightKG,
			Priority:        f.Template.Priority,
			At:              f.Template.At,
		}
	}
	return req, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	req, err := readInstance(instancePath)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The search is bounded by the solver time limit; the extra minute covers
	// oracle calls while building penalties.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Solver.TimeLimit+time.Minute)
	defer cancel()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	res, err := svc.Solve(ctx, req)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status != routing.StatusFeasible {
		return fmt.Errorf("no feasible solution: %s", res.Status)
	}
	return nil
}
