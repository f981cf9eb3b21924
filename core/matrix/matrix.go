// Package matrix builds delay-aware travel time matrices.
package matrix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TimeMatrix holds integer travel minutes between locations.
type TimeMatrix [][]int

// PenaltyMatrix holds predicted extra minutes per arc.
type PenaltyMatrix [][]float64

var (
	// ErrDimensionMismatch is returned when matrices are not square or differ in size.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNegativeAlpha is returned for a negative blending weight.
	ErrNegativeAlpha = errors.New("alpha must be >= 0")
	// ErrNonFinite is returned when a penalty is NaN or infinite.
	ErrNonFinite = errors.New("non-finite penalty")
)

// Size returns the dimension of a square matrix or an error.
func (m TimeMatrix) Size() (int, error) {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return 0, fmt.Errorf("%w: time matrix row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), n)
		}
	}
	return n, nil
}

// Size returns the dimension of a square matrix or an error.
func (m PenaltyMatrix) Size() (int, error) {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return 0, fmt.Errorf("%w: penalty matrix row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), n)
		}
	}
	return n, nil
}

// Clone returns a deep copy.
func (m TimeMatrix) Clone() TimeMatrix {
	out := make(TimeMatrix, len(m))
	for i, row := range m {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Zero returns an n×n penalty matrix of zeros.
func Zero(n int) PenaltyMatrix {
	out := make(PenaltyMatrix, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

// Build returns round(base + alpha*penalty) element-wise. Rounding is to
// the nearest integer minute with halves rounded away from zero
// (math.Round), so 12.5 becomes 13. The diagonal is copied from base.
// Inputs are never modified.
func Build(base TimeMatrix, penalty PenaltyMatrix, alpha float64) (TimeMatrix, error) {
	if alpha < 0 || math.IsNaN(alpha) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeAlpha, alpha)
	}
	n, err := base.Size()
	if err != nil {
		return nil, err
	}
	pn, err := penalty.Size()
	if err != nil {
		return nil, err
	}
	if n != pn {
		return nil, fmt.Errorf("%w: base is %dx%d, penalty is %dx%d", ErrDimensionMismatch, n, n, pn, pn)
	}
	if n == 0 {
		return TimeMatrix{}, nil
	}

	b := mat.NewDense(n, n, nil)
	p := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := penalty[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w at [%d][%d]", ErrNonFinite, i, j)
			}
			b.Set(i, j, float64(base[i][j]))
			p.Set(i, j, v)
		}
	}
	var sum mat.Dense
	sum.Scale(alpha, p)
	sum.Add(b, &sum)

	out := make(TimeMatrix, n)
	for i := 0; i < n; i++ {
		out[i] = make([]int, n)
		for j := 0; j < n; j++ {
			if i == j {
				out[i][j] = base[i][j]
				continue
			}
			out[i][j] = int(math.Round(sum.At(i, j)))
		}
	}
	return out, nil
}

// PenaltyUsed sums penalty[i][j] over consecutive stops of every route. It
// reports how much of the matrix inflation the chosen routes absorbed.
func PenaltyUsed(routes [][]int, penalty PenaltyMatrix) (float64, error) {
	n := len(penalty)
	var total float64
	for r, stops := range routes {
		for k := 0; k+1 < len(stops); k++ {
			i, j := stops[k], stops[k+1]
			if i < 0 || j < 0 || i >= n || j >= n || j >= len(penalty[i]) {
				return 0, fmt.Errorf("%w: route %d uses arc %d->%d outside %dx%d penalty matrix", ErrDimensionMismatch, r, i, j, n, n)
			}
			total += penalty[i][j]
		}
	}
	return total, nil
}
