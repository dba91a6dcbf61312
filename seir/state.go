package seir

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/epistrat/epi"
)

// State holds the four compartment count vectors at one point in time.
type State struct {
	S []float64
	E []float64
	I []float64
	R []float64
}

// NewState validates compartment vector lengths and nonnegativity.
func NewState(s, e, i, r []float64) (State, error) {
	g := len(s)
	if g == 0 || len(e) != g || len(i) != g || len(r) != g {
		return State{}, fmt.Errorf("%w: compartment vectors have lengths %d, %d, %d, %d",
			epi.ErrInvalidParameter, len(s), len(e), len(i), len(r))
	}
	for _, vec := range [][]float64{s, e, i, r} {
		for k, v := range vec {
			if v < 0 {
				return State{}, fmt.Errorf("%w: negative compartment count %v in group %d",
					epi.ErrInvalidParameter, v, k)
			}
		}
	}
	return State{
		S: append([]float64(nil), s...),
		E: append([]float64(nil), e...),
		I: append([]float64(nil), i...),
		R: append([]float64(nil), r...),
	}, nil
}

// SeedState builds the outbreak starting state from a population:
// every group fully susceptible except for its initial infected.
func SeedState(pop *epi.PopulationContext) State {
	g := pop.NumGroups()
	st := State{
		S: make([]float64, g),
		E: make([]float64, g),
		I: make([]float64, g),
		R: make([]float64, g),
	}
	for i := 0; i < g; i++ {
		st.I[i] = pop.Groups[i].InitialInfected
		st.S[i] = pop.GroupSize(i) - st.I[i]
	}
	return st
}

// NumGroups returns the number of demographic groups.
func (st State) NumGroups() int { return len(st.S) }

// Total returns the population mass across all compartments.
func (st State) Total() float64 {
	return floats.Sum(st.S) + floats.Sum(st.E) + floats.Sum(st.I) + floats.Sum(st.R)
}

// GroupTotal returns S+E+I+R for group i.
func (st State) GroupTotal(i int) float64 {
	return st.S[i] + st.E[i] + st.I[i] + st.R[i]
}

// clone returns a deep copy.
func (st State) clone() State {
	return State{
		S: append([]float64(nil), st.S...),
		E: append([]float64(nil), st.E...),
		I: append([]float64(nil), st.I...),
		R: append([]float64(nil), st.R...),
	}
}

// vector flattens the state into the [S | E | I | R] layout used by
// Model.Derivative.
func (st State) vector() *mat.VecDense {
	g := len(st.S)
	v := mat.NewVecDense(4*g, nil)
	for i := 0; i < g; i++ {
		v.SetVec(i, st.S[i])
		v.SetVec(g+i, st.E[i])
		v.SetVec(2*g+i, st.I[i])
		v.SetVec(3*g+i, st.R[i])
	}
	return v
}

// stateFromVector is the inverse of vector.
func stateFromVector(v mat.Vector, g int) State {
	st := State{
		S: make([]float64, g),
		E: make([]float64, g),
		I: make([]float64, g),
		R: make([]float64, g),
	}
	for i := 0; i < g; i++ {
		st.S[i] = v.AtVec(i)
		st.E[i] = v.AtVec(g + i)
		st.I[i] = v.AtVec(2*g + i)
		st.R[i] = v.AtVec(3*g + i)
	}
	return st
}

// Trajectory is an ordered sequence of states over a monotonically
// increasing time grid. It is owned by the caller of Integrate and
// immutable once produced.
type Trajectory struct {
	Times  []float64
	States []State
}

// Len returns the number of recorded time points.
func (tr *Trajectory) Len() int { return len(tr.Times) }

// Final returns the state at the last recorded time point.
func (tr *Trajectory) Final() State { return tr.States[len(tr.States)-1] }
