package epi

import (
	"errors"
	"testing"
)

func TestNewPopulationContext(t *testing.T) {
	pop, err := NewPopulationContext(1000, []float64{0.6, 0.4}, []float64{1, 2}, []float64{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if pop.NumGroups() != 2 {
		t.Errorf("NumGroups() = %v, want 2", pop.NumGroups())
	}
	if pop.GroupSize(0) != 600 || pop.GroupSize(1) != 400 {
		t.Errorf("group sizes %v, %v, want 600, 400", pop.GroupSize(0), pop.GroupSize(1))
	}

	// Accessors hand out copies, not the backing storage.
	fractions := pop.Fractions()
	fractions[0] = 0
	if pop.Groups[0].Fraction != 0.6 {
		t.Error("Fractions() exposed the internal slice")
	}
}

func TestNewPopulationContextRejectsInvalidInputs(t *testing.T) {
	cases := []struct {
		name       string
		n          float64
		fractions  []float64
		activities []float64
		seeds      []float64
	}{
		{"zero population", 0, []float64{1}, []float64{1}, []float64{0}},
		{"fractions not summing to one", 100, []float64{0.6, 0.5}, []float64{1, 1}, []float64{0, 0}},
		{"zero fraction", 100, []float64{1, 0}, []float64{1, 1}, []float64{0, 0}},
		{"zero activity", 100, []float64{0.5, 0.5}, []float64{1, 0}, []float64{0, 0}},
		{"negative seed", 100, []float64{0.5, 0.5}, []float64{1, 1}, []float64{-1, 0}},
		{"length mismatch", 100, []float64{0.5, 0.5}, []float64{1}, []float64{0, 0}},
		{"empty", 100, nil, nil, nil},
	}
	for _, c := range cases {
		if _, err := NewPopulationContext(c.n, c.fractions, c.activities, c.seeds); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%s: got %v, want ErrInvalidParameter", c.name, err)
		}
	}
}

func TestNewSeroObservationDerivesCounts(t *testing.T) {
	obs, err := NewSeroObservation([]float64{1599, 301, 111, 50, 50}, []float64{0.087, 0.320, 0.158, 0.084, 0.207})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{139, 96, 18, 4, 10}
	for i := range want {
		if obs.Positive[i] != want[i] {
			t.Errorf("positive count %d = %v, want %v", i, obs.Positive[i], want[i])
		}
	}
}

func TestNewSeroObservationRejectsInvalidInputs(t *testing.T) {
	if _, err := NewSeroObservation([]float64{0}, []float64{0.1}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero sample size: got %v, want ErrInvalidParameter", err)
	}
	if _, err := NewSeroObservation([]float64{100}, []float64{1.2}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("fraction above one: got %v, want ErrInvalidParameter", err)
	}
	if _, err := NewSeroObservation([]float64{100, 100}, []float64{0.1}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("length mismatch: got %v, want ErrInvalidParameter", err)
	}
}

func TestRatesValidate(t *testing.T) {
	if err := (Rates{Latency: 1. / 3., Recovery: 1. / 4.}).Validate(); err != nil {
		t.Errorf("valid rates rejected: %v", err)
	}
	if err := (Rates{Latency: 0, Recovery: 1}).Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero latency: got %v, want ErrInvalidParameter", err)
	}
}
