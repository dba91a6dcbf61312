// Package seir integrates the stratified SEIR compartmental system
//
//	S_i' = -(sum_j beta[i][j]*I_j) * S_i
//	E_i' =  (sum_j beta[i][j]*I_j) * S_i - r*E_i
//	I_i' =  r*E_i - gamma*I_i
//	R_i' =  gamma*I_i
//
// for a population split into demographic groups, where transitions
// never reverse and R is terminal. The model implements
// ode.DifferentiableSystem and is integrated over a caller-supplied
// time grid with adaptive Fehlberg 4(5) stepping.
package seir

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/epistrat/epi"
)

// Model holds the fixed parameters of the differential system: the
// (scaled) transmission-rate matrix and the compartment transition
// rates. A Model is read-only after construction and safe to share
// across evaluations.
type Model struct {
	beta   *mat.Dense
	rates  epi.Rates
	groups int
}

// NewModel validates the transmission matrix and rates.
func NewModel(beta mat.Matrix, rates epi.Rates) (*Model, error) {
	g, cols := beta.Dims()
	if g == 0 || g != cols {
		return nil, fmt.Errorf("%w: transmission matrix is %dx%d, not square",
			epi.ErrInvalidParameter, g, cols)
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	dense := mat.NewDense(g, g, nil)
	dense.Copy(beta)
	return &Model{beta: dense, rates: rates, groups: g}, nil
}

// NumGroups returns the number of demographic groups.
func (m *Model) NumGroups() int { return m.groups }

// Derivative returns the SEIR right-hand side at the given state. The
// state vector is laid out as [S | E | I | R] with one block per
// compartment.
func (m *Model) Derivative(t float64, state mat.Vector) mat.Vector {
	g := m.groups
	if state.Len() != 4*g {
		panic(errors.New("state vector doesn't match the number of groups"))
	}
	res := mat.NewVecDense(4*g, nil)
	for i := 0; i < g; i++ {
		// Force of infection on group i.
		lambda := 0.
		for j := 0; j < g; j++ {
			lambda += m.beta.At(i, j) * state.AtVec(2*g+j)
		}
		s := state.AtVec(i)
		e := state.AtVec(g + i)
		inf := state.AtVec(2*g + i)

		res.SetVec(i, -lambda*s)
		res.SetVec(g+i, lambda*s-m.rates.Latency*e)
		res.SetVec(2*g+i, m.rates.Latency*e-m.rates.Recovery*inf)
		res.SetVec(3*g+i, m.rates.Recovery*inf)
	}
	return res
}
