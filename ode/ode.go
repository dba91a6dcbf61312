// Package ode implements explicit Runge-Kutta methods
// https://en.wikipedia.org/wiki/Runge–Kutta_methods described by their
// Butcher tableau. Tableaus with an embedded error row additionally
// support adaptive stepping with a bounded step-reduction budget.
package ode

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDivergence signals that the adaptive integrator could not reach
// the requested tolerance within its step budget. The wrapped message
// carries the last stable time point.
var ErrDivergence = errors.New("integration divergence")

// DifferentiableSystem is any system exposing its state derivative.
type DifferentiableSystem interface {
	Derivative(t float64, state mat.Vector) mat.Vector
}

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// butcherTableau which describes the approximate solution, see
// https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          [][]float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// Stages returns the number of stages of the method.
func (rk RungeKutta) Stages() int { return rk.Description.stages }

// Adaptive reports whether the tableau carries an embedded error row.
func (rk RungeKutta) Adaptive() bool { return len(rk.Description.weights) == 2 }

// Compute advances value by a single step from t=from to t=to and
// writes the result back into value. The returned vector is the
// embedded local error estimate; it is zero for tableaus without an
// embedded row.
func (rk RungeKutta) Compute(from, to float64, value *mat.VecDense, system DifferentiableSystem) *mat.VecDense {
	var tmpV mat.VecDense

	m := value.Len()
	h := to - from
	// The precomputed derivative points
	K := make([]mat.Vector, rk.Description.stages)
	for index := range K {
		tmpV.CloneFromVec(value)
		// Combine previously computed derivative points according to
		// the Butcher tableau.
		for index2, a := range rk.Description.rungeKuttaMatrix[index] {
			tmpV.AddScaledVec(&tmpV, h*a, K[index2])
		}
		K[index] = system.Derivative(from+h*rk.Description.nodes[index], &tmpV)
	}

	errVec := mat.NewVecDense(m, nil)
	tmpV.CloneFromVec(value)
	// Sum up the different contributions with relevant weights.
	for index, k := range K {
		tmpV.AddScaledVec(&tmpV, h*rk.Description.weights[0][index], k)
		if len(rk.Description.weights) == 2 {
			errVec.AddScaledVec(errVec, h*(rk.Description.weights[1][index]-rk.Description.weights[0][index]), k)
		}
	}
	value.CopyVec(&tmpV)
	return errVec
}

// AdaptiveCompute advances value from t=from to t=to such that the
// local error estimate of every accepted step stays below tol. Steps
// that miss the tolerance are retried over half the interval; the
// total number of rejected trials is bounded, and exhausting the
// budget returns ErrDivergence together with the last stable time.
func (rk RungeKutta) AdaptiveCompute(from, to, tol float64, value *mat.VecDense, system DifferentiableSystem) error {
	if !rk.Adaptive() {
		panic(errors.New("tableau has no embedded error row"))
	}

	// Total budget of rejected trial steps.
	const maxNumberOfIterations int = 10000

	m := value.Len()
	stable := mat.NewVecDense(m, nil)
	trial := mat.NewVecDense(m, nil)
	stable.CloneFromVec(value)

	var count int
	tnow := from
	h := to - from
	for tnow < to {
		tnext := tnow + h
		if tnext > to {
			tnext = to
		}
		// Shrink the step until the target error is reached.
		for {
			trial.CopyVec(stable)
			errVec := rk.Compute(tnow, tnext, trial, system)
			currentError := 0.
			for index := 0; index < m; index++ {
				currentError += math.Abs(errVec.AtVec(index))
			}
			// A NaN error fails this comparison and shrinks the step.
			if currentError < tol {
				break
			}
			tnext = (tnext-tnow)/2. + tnow
			if tnext <= tnow {
				// Step size underflowed.
				return fmt.Errorf("%w: step size underflow, last stable time %v", ErrDivergence, tnow)
			}

			count++
			if count >= maxNumberOfIterations {
				return fmt.Errorf("%w: step budget exhausted at tolerance %v, last stable time %v",
					ErrDivergence, tol, tnow)
			}
		}
		// Accept, and let the next trial step grow again.
		h = (tnext - tnow) * 2.
		stable.CopyVec(trial)
		tnow = tnext
	}
	value.CopyVec(stable)
	return nil
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	var temp butcherTableau
	temp.stages = 4
	temp.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	temp.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	return &RungeKutta{temp}
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	var temp butcherTableau
	temp.stages = 1
	temp.nodes = []float64{0}
	temp.weights = [][]float64{{1}}
	temp.rungeKuttaMatrix = [][]float64{nil}
	return &RungeKutta{temp}
}

// NewFehlberg45 implements https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method
func NewFehlberg45() *RungeKutta {
	var temp butcherTableau
	temp.stages = 6
	temp.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	temp.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	return &RungeKutta{temp}
}
