// Package routing formulates vehicle routing problems with capacity and time
// window constraints over a delay-aware time matrix and delegates the search
// to an Engine.
package routing

import (
	"errors"
	"fmt"

	"github.com/kilianp07/freightplan/core/matrix"
)

// ErrInvalidInstance is returned for malformed routing instances.
var ErrInvalidInstance = errors.New("invalid routing instance")

// TimeWindow bounds the arrival time at a stop in minutes of the horizon.
type TimeWindow struct {
	Earliest int `json:"earliest" yaml:"earliest"`
	Latest   int `json:"latest" yaml:"latest"`
}

// Instance is a routing problem. Stops are matrix indices; Depot is the start
// and end of every route.
type Instance struct {
	Matrix      matrix.TimeMatrix `json:"matrix" yaml:"matrix"`
	Demands     []int             `json:"demands" yaml:"demands"`
	Windows     []TimeWindow      `json:"windows" yaml:"windows"`
	Capacities  []int             `json:"capacities" yaml:"capacities"`
	NumVehicles int               `json:"num_vehicles" yaml:"num_vehicles"`
	Depot       int               `json:"depot" yaml:"depot"`
}

// Validate checks that every dimension agrees.
func (in Instance) Validate() error {
	n, err := in.Matrix.Size()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstance, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty matrix", ErrInvalidInstance)
	}
	for i, row := range in.Matrix {
		for j, v := range row {
			if v < 0 {
				return fmt.Errorf("%w: negative travel time at [%d][%d]", ErrInvalidInstance, i, j)
			}
		}
	}
	if in.Depot < 0 || in.Depot >= n {
		return fmt.Errorf("%w: depot %d out of range [0,%d)", ErrInvalidInstance, in.Depot, n)
	}
	if len(in.Demands) != n {
		return fmt.Errorf("%w: %d demands for %d stops", ErrInvalidInstance, len(in.Demands), n)
	}
	for i, d := range in.Demands {
		if d < 0 {
			return fmt.Errorf("%w: negative demand at stop %d", ErrInvalidInstance, i)
		}
	}
	if len(in.Windows) != n {
		return fmt.Errorf("%w: %d time windows for %d stops", ErrInvalidInstance, len(in.Windows), n)
	}
	for i, w := range in.Windows {
		if w.Earliest < 0 || w.Latest < w.Earliest {
			return fmt.Errorf("%w: bad window %v at stop %d", ErrInvalidInstance, w, i)
		}
	}
	if in.NumVehicles <= 0 {
		return fmt.Errorf("%w: num_vehicles must be > 0", ErrInvalidInstance)
	}
	if len(in.Capacities) != in.NumVehicles {
		return fmt.Errorf("%w: %d capacities for %d vehicles", ErrInvalidInstance, len(in.Capacities), in.NumVehicles)
	}
	for v, c := range in.Capacities {
		if c < 0 {
			return fmt.Errorf("%w: negative capacity for vehicle %d", ErrInvalidInstance, v)
		}
	}
	return nil
}

// Route is the ordered stop sequence of one vehicle, depot to depot.
type Route struct {
	VehicleID    int   `json:"vehicle_id"`
	Stops        []int `json:"stops"`
	TotalTimeMin int   `json:"total_time_min"`
}

// Solution holds one route per vehicle. A nil Objective means no feasible
// assignment was found.
type Solution struct {
	Routes    []Route `json:"routes"`
	Objective *int64  `json:"objective"`
}

// Feasible reports whether the solution carries an objective.
func (s Solution) Feasible() bool { return s.Objective != nil }

// StopSequences returns the stop lists of every route.
func (s Solution) StopSequences() [][]int {
	out := make([][]int, len(s.Routes))
	for i, r := range s.Routes {
		out[i] = r.Stops
	}
	return out
}
