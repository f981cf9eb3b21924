package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/freightplan/app"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/planner"
	"github.com/kilianp07/freightplan/core/prediction"
)

type planFlags struct {
	planID        string
	distanceKM    float64
	delayProb     float64
	expectedDelay float64
	baselineMin   float64
	congestion    float64
	rainMM        float64
	originLat     float64
	originLon     float64
	weights       []float64
	activate      bool
}

var pf planFlags

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Select the best mode or multimodal chain for one movement",
	Long: `Select the best mode or chain and print the decision as JSON.

When --delay-prob and --expected-delay are omitted the delay oracle is
queried, falling back to the congestion and rain heuristic when no ML service
is configured.`,
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&pf.planID, "id", "", "store the plan under this id")
	f.Float64Var(&pf.distanceKM, "distance", 0, "distance in km")
	f.Float64Var(&pf.delayProb, "delay-prob", 0, "delay probability in [0,1]")
	f.Float64Var(&pf.expectedDelay, "expected-delay", 0, "expected delay in minutes")
	f.Float64Var(&pf.baselineMin, "baseline", 0, "baseline travel time in minutes for the oracle")
	f.Float64Var(&pf.congestion, "congestion", -1, "congestion index in [0,1] for the oracle")
	f.Float64Var(&pf.rainMM, "rain", 0, "precipitation in mm for the oracle")
	f.Float64Var(&pf.originLat, "origin-lat", 0, "origin latitude; samples live conditions with --origin-lon")
	f.Float64Var(&pf.originLon, "origin-lon", 0, "origin longitude")
	f.Float64SliceVar(&pf.weights, "weights", nil, "objective weights: time,delay,emissions,cost")
	f.BoolVar(&pf.activate, "activate", false, "store the plan as ACTIVE (requires --id)")
	_ = planCmd.MarkFlagRequired("distance")
	rootCmd.AddCommand(planCmd)
}

func parseWeights(v []float64) (model.Weights, error) {
	switch len(v) {
	case 0:
		return model.Weights{}, nil
	case 4:
		return model.Weights{Time: v[0], Delay: v[1], Emissions: v[2], Cost: v[3]}, nil
	}
	return model.Weights{}, fmt.Errorf("--weights needs 4 values, got %d", len(v))
}

type planOutput struct {
	PlanID     string              `json:"plan_id,omitempty"`
	DistanceKM float64             `json:"distance_km"`
	Delay      model.DelayEstimate `json:"delay"`
	Decision   model.PlanDecision  `json:"decision"`
	Candidates []planner.Candidate `json:"candidates"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	w, err := parseWeights(pf.weights)
	if err != nil {
		return err
	}
	if pf.activate && pf.planID == "" {
		return fmt.Errorf("--activate requires --id")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	req := app.PlanRequest{
		PlanID:     pf.planID,
		DistanceKM: pf.distanceKM,
		Weights:    w,
		Activate:   pf.activate,
		Features: prediction.Features{
			DistanceKM:      pf.distanceKM,
			BaselineTimeMin: pf.baselineMin,
		},
	}
	if cmd.Flags().Changed("rain") {
		req.Features.Weather = &model.WeatherSnapshot{TemperatureC: 25, PrecipitationMM: pf.rainMM}
	}
	if cmd.Flags().Changed("origin-lat") || cmd.Flags().Changed("origin-lon") {
		req.Origin = &app.Point{Lat: pf.originLat, Lon: pf.originLon}
	}
	if pf.congestion >= 0 {
		req.Features.Traffic = &model.TrafficSnapshot{CongestionIndex: pf.congestion}
	}
	if cmd.Flags().Changed("delay-prob") || cmd.Flags().Changed("expected-delay") {
		req.Delay = &model.DelayEstimate{DelayProb: pf.delayProb, ExpectedDelayMin: pf.expectedDelay}
	}
	delay, err := svc.Estimate(ctx, req)
	if err != nil {
		return err
	}
	req.Delay = &delay

	dec, err := svc.Plan(ctx, req)
	if err != nil {
		return err
	}
	cands, err := svc.Optimizer.Candidates(pf.distanceKM, delay, w)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), planOutput{
		PlanID:     pf.planID,
		DistanceKM: pf.distanceKM,
		Delay:      delay,
		Decision:   dec,
		Candidates: cands,
	})
}
