package seir

import (
	"errors"
	"fmt"

	"github.com/epistrat/epi"
	"github.com/epistrat/epi/gonumExtensions"
	"github.com/epistrat/epi/ode"
)

// ErrNegativeState signals a persistent negative compartment value, a
// violation of the physical invariants of the system. Excursions at
// roundoff level are clamped to zero instead.
var ErrNegativeState = errors.New("negative compartment state")

// negativeTolerance is the clamp threshold relative to the total
// population mass.
const negativeTolerance = 1e-9

// Integrate produces the trajectory of the model over the given time
// grid, starting from initial at grid[0]. Within each grid interval
// the state is advanced with adaptive Fehlberg 4(5) stepping at the
// given per-step error tolerance (in units of individuals).
//
// On failure the trajectory up to the last stable grid point is
// returned alongside the error, which carries the diagnostic time.
func Integrate(m *Model, initial State, grid []float64, tol float64) (*Trajectory, error) {
	if initial.NumGroups() != m.groups {
		return nil, fmt.Errorf("%w: initial state has %d groups, model has %d",
			epi.ErrInvalidParameter, initial.NumGroups(), m.groups)
	}
	if len(grid) < 2 {
		return nil, fmt.Errorf("%w: time grid needs at least two points, got %d",
			epi.ErrInvalidParameter, len(grid))
	}
	for k := 1; k < len(grid); k++ {
		if grid[k] <= grid[k-1] {
			return nil, fmt.Errorf("%w: time grid is not strictly increasing at index %d",
				epi.ErrInvalidParameter, k)
		}
	}
	if tol <= 0 {
		return nil, fmt.Errorf("%w: error tolerance %v is not positive", epi.ErrInvalidParameter, tol)
	}

	clamp := negativeTolerance * initial.Total()
	rk := ode.NewFehlberg45()
	value := initial.vector()

	tr := &Trajectory{
		Times:  make([]float64, 0, len(grid)),
		States: make([]State, 0, len(grid)),
	}
	tr.Times = append(tr.Times, grid[0])
	tr.States = append(tr.States, initial.clone())

	for k := 1; k < len(grid); k++ {
		if err := rk.AdaptiveCompute(grid[k-1], grid[k], tol, value, m); err != nil {
			return tr, err
		}
		if gonumExtensions.NANORINF(value) {
			return tr, fmt.Errorf("%w: non-finite state at time %v", ode.ErrDivergence, grid[k])
		}
		for i := 0; i < value.Len(); i++ {
			v := value.AtVec(i)
			if v < -clamp {
				return tr, fmt.Errorf("%w: compartment %d is %v at time %v",
					ErrNegativeState, i, v, grid[k])
			}
			if v < 0 {
				value.SetVec(i, 0)
			}
		}
		tr.Times = append(tr.Times, grid[k])
		tr.States = append(tr.States, stateFromVector(value, m.groups))
	}
	return tr, nil
}

// Grid returns a uniform time grid from t0 to t1 with n intervals.
func Grid(t0, t1 float64, n int) []float64 {
	res := make([]float64, n+1)
	for i := range res {
		res[i] = t0 + (t1-t0)*float64(i)/float64(n)
	}
	return res
}
