package matrix

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/freightplan/core/prediction"
)

// DefaultPenaltyWorkers bounds concurrent oracle calls in BuildPenalties.
const DefaultPenaltyWorkers = 4

// PenaltyRequest gathers the inputs of BuildPenalties. Template provides the
// shipment level features (weight, priority, time, weather, traffic); the
// per-arc distance and baseline time are filled in for each call.
type PenaltyRequest struct {
	Base       TimeMatrix
	DistanceKM [][]float64
	Template   prediction.Features
	Workers    int
}

// BuildPenalties queries the oracle for every off-diagonal arc and returns
// penalty[i][j] = expected_delay_min + delay_prob*base[i][j]. The diagonal
// stays zero. The result does not depend on call ordering.
func BuildPenalties(ctx context.Context, oracle prediction.Oracle, req PenaltyRequest) (PenaltyMatrix, error) {
	n, err := req.Base.Size()
	if err != nil {
		return nil, err
	}
	if len(req.DistanceKM) != n {
		return nil, fmt.Errorf("%w: distance matrix has %d rows, want %d", ErrDimensionMismatch, len(req.DistanceKM), n)
	}
	for i, row := range req.DistanceKM {
		if len(row) != n {
			return nil, fmt.Errorf("%w: distance row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), n)
		}
	}
	workers := req.Workers
	if workers <= 0 {
		workers = DefaultPenaltyWorkers
	}

	out := Zero(n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			g.Go(func() error {
				f := req.Template
				f.DistanceKM = req.DistanceKM[i][j]
				f.BaselineTimeMin = float64(req.Base[i][j])
				est, err := oracle.Predict(gctx, f)
				if err != nil {
					return fmt.Errorf("predict arc %d->%d: %w", i, j, err)
				}
				// each goroutine owns a distinct cell
				out[i][j] = est.ExpectedDelayMin + est.DelayProb*float64(req.Base[i][j])
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
