package ode

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// scaledGrowth is the test system x' = rate*x with closed-form
// solution x(t) = x(0)*exp(rate*t).
type scaledGrowth struct{ rate float64 }

func (s scaledGrowth) Derivative(t float64, state mat.Vector) mat.Vector {
	res := mat.NewVecDense(state.Len(), nil)
	for i := 0; i < state.Len(); i++ {
		res.SetVec(i, s.rate*state.AtVec(i))
	}
	return res
}

// quadraticGrowth is x' = x^2, which blows up in finite time.
type quadraticGrowth struct{}

func (quadraticGrowth) Derivative(t float64, state mat.Vector) mat.Vector {
	res := mat.NewVecDense(state.Len(), nil)
	for i := 0; i < state.Len(); i++ {
		res.SetVec(i, state.AtVec(i)*state.AtVec(i))
	}
	return res
}

func TestRk4(t *testing.T) {
	test := NewRK4()
	if test.Stages() != 4 {
		t.Errorf("Not four stages. Rk4 should have four stages. Instead has %v", test.Stages())
	}
	if test.Adaptive() {
		t.Error("Rk4 has no embedded error row and should not report adaptive.")
	}
}

func TestEuler(t *testing.T) {
	test := NewEulerMethod()
	if test.Stages() != 1 {
		t.Error("Wrong number of stages.")
	}
}

func TestFehlberg45(t *testing.T) {
	test := NewFehlberg45()
	if test.Stages() != 6 {
		t.Errorf("Fehlberg 4(5) should have six stages, has %v", test.Stages())
	}
	if !test.Adaptive() {
		t.Error("Fehlberg 4(5) should report adaptive.")
	}
}

func TestComputeExponentialDecay(t *testing.T) {
	rk := NewRK4()
	value := mat.NewVecDense(2, []float64{1, 3})
	tnow := 0.
	for step := 0; step < 10; step++ {
		rk.Compute(tnow, tnow+0.1, value, scaledGrowth{rate: -1})
		tnow += 0.1
	}
	want := math.Exp(-1)
	if math.Abs(value.AtVec(0)-want) > 1e-6 {
		t.Errorf("x_0(1) = %v, want %v", value.AtVec(0), want)
	}
	if math.Abs(value.AtVec(1)-3*want) > 1e-6 {
		t.Errorf("x_1(1) = %v, want %v", value.AtVec(1), 3*want)
	}
}

func TestAdaptiveComputeAccuracy(t *testing.T) {
	rk := NewFehlberg45()
	value := mat.NewVecDense(1, []float64{1})
	if err := rk.AdaptiveCompute(0, 5, 1e-9, value, scaledGrowth{rate: -1}); err != nil {
		t.Fatal(err)
	}
	want := math.Exp(-5)
	if math.Abs(value.AtVec(0)-want) > 1e-6 {
		t.Errorf("x(5) = %v, want %v", value.AtVec(0), want)
	}
}

func TestAdaptiveComputeDivergence(t *testing.T) {
	rk := NewFehlberg45()
	value := mat.NewVecDense(1, []float64{2})
	// x' = x^2 with x(0)=2 has a singularity at t=0.5.
	err := rk.AdaptiveCompute(0, 1, 1e-9, value, quadraticGrowth{})
	if !errors.Is(err, ErrDivergence) {
		t.Errorf("integrating past a finite-time singularity returned %v, want ErrDivergence", err)
	}
}

func TestAdaptiveComputeRequiresEmbeddedRow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("AdaptiveCompute with a plain Rk4 tableau should panic")
		}
	}()
	value := mat.NewVecDense(1, []float64{1})
	_ = NewRK4().AdaptiveCompute(0, 1, 1e-9, value, scaledGrowth{rate: -1})
}
