// Package epi holds the scenario data model shared by the stratified
// SEIR engine: a closed population partitioned into demographic groups
// with heterogeneous contact behavior, serosurvey observations against
// which group parameters are calibrated, and the epidemiological rates.
//
// All types are plain value holders. They are validated once at
// construction and treated as read-only afterwards; every downstream
// computation is fully parameterized by its arguments.
package epi

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter flags malformed scenario inputs. Always fatal;
// the caller must fix the inputs before retrying.
var ErrInvalidParameter = errors.New("invalid parameter")

// fractionSumTolerance is the allowed deviation of the population
// fractions from summing to one. Fractions typically come from
// census/survey tables rounded to three decimals, so per-group
// rounding can leave the sum off by a few parts per thousand.
const fractionSumTolerance = 5e-3

// DemographicGroup describes one stratum of the population.
type DemographicGroup struct {
	// Fraction of the total population in this group, in (0,1).
	Fraction float64
	// Activity is the group's relative contact/susceptibility
	// multiplier, strictly positive.
	Activity float64
	// InitialInfected is the number of infectious individuals seeding
	// the outbreak in this group.
	InitialInfected float64
}

// PopulationContext is a closed population of N individuals split into
// demographic groups. Created once per scenario, read-only thereafter.
type PopulationContext struct {
	N      float64
	Groups []DemographicGroup
}

// NewPopulationContext validates and assembles a scenario population.
// Fractions must be strictly positive and sum to one, activities
// strictly positive and seeds nonnegative.
func NewPopulationContext(n float64, fractions, activities, seeds []float64) (*PopulationContext, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: total population %v is not positive", ErrInvalidParameter, n)
	}
	g := len(fractions)
	if g == 0 || len(activities) != g || len(seeds) != g {
		return nil, fmt.Errorf("%w: group vectors have mismatched lengths %d, %d, %d",
			ErrInvalidParameter, len(fractions), len(activities), len(seeds))
	}
	sum := 0.
	for i := 0; i < g; i++ {
		if fractions[i] <= 0 {
			return nil, fmt.Errorf("%w: population fraction %v of group %d is not positive",
				ErrInvalidParameter, fractions[i], i)
		}
		if activities[i] <= 0 {
			return nil, fmt.Errorf("%w: activity %v of group %d is not positive",
				ErrInvalidParameter, activities[i], i)
		}
		if seeds[i] < 0 {
			return nil, fmt.Errorf("%w: negative seed %v in group %d",
				ErrInvalidParameter, seeds[i], i)
		}
		sum += fractions[i]
	}
	if math.Abs(sum-1) > fractionSumTolerance {
		return nil, fmt.Errorf("%w: population fractions sum to %v, not 1", ErrInvalidParameter, sum)
	}
	groups := make([]DemographicGroup, g)
	for i := range groups {
		groups[i] = DemographicGroup{Fraction: fractions[i], Activity: activities[i], InitialInfected: seeds[i]}
	}
	return &PopulationContext{N: n, Groups: groups}, nil
}

// NumGroups returns the number of demographic groups.
func (p *PopulationContext) NumGroups() int { return len(p.Groups) }

// GroupSize returns the number of individuals in group i.
func (p *PopulationContext) GroupSize(i int) float64 { return p.N * p.Groups[i].Fraction }

// Fractions returns a fresh copy of the population-fraction vector.
func (p *PopulationContext) Fractions() []float64 {
	res := make([]float64, len(p.Groups))
	for i, g := range p.Groups {
		res[i] = g.Fraction
	}
	return res
}

// Activities returns a fresh copy of the activity vector.
func (p *PopulationContext) Activities() []float64 {
	res := make([]float64, len(p.Groups))
	for i, g := range p.Groups {
		res[i] = g.Activity
	}
	return res
}

// Seeds returns a fresh copy of the initial-infected vector.
func (p *PopulationContext) Seeds() []float64 {
	res := make([]float64, len(p.Groups))
	for i, g := range p.Groups {
		res[i] = g.InitialInfected
	}
	return res
}

// Rates bundles the compartment transition rates. Latency is the rate
// out of the exposed compartment (1/mean latent period), Recovery the
// rate out of the infectious compartment (1/mean infectious period).
type Rates struct {
	Latency  float64
	Recovery float64
}

// Validate checks that both rates are strictly positive.
func (r Rates) Validate() error {
	if r.Latency <= 0 || r.Recovery <= 0 {
		return fmt.Errorf("%w: rates (%v, %v) must be positive", ErrInvalidParameter, r.Latency, r.Recovery)
	}
	return nil
}

// SeroObservation holds per-group serosurvey counts. Positive counts
// are derived from the reported seropositive fraction at construction
// and fixed thereafter.
type SeroObservation struct {
	// Tested is the per-group sample size.
	Tested []float64
	// Positive is the per-group seropositive count,
	// round(fraction*tested).
	Positive []float64
}

// NewSeroObservation derives integer positive counts from reported
// seropositive fractions.
func NewSeroObservation(tested []float64, seropositiveFraction []float64) (*SeroObservation, error) {
	if len(tested) == 0 || len(tested) != len(seropositiveFraction) {
		return nil, fmt.Errorf("%w: tested and fraction vectors have lengths %d and %d",
			ErrInvalidParameter, len(tested), len(seropositiveFraction))
	}
	pos := make([]float64, len(tested))
	for i := range tested {
		if tested[i] <= 0 {
			return nil, fmt.Errorf("%w: sample size %v of group %d is not positive",
				ErrInvalidParameter, tested[i], i)
		}
		if seropositiveFraction[i] < 0 || seropositiveFraction[i] > 1 {
			return nil, fmt.Errorf("%w: seropositive fraction %v of group %d outside [0,1]",
				ErrInvalidParameter, seropositiveFraction[i], i)
		}
		pos[i] = math.Round(seropositiveFraction[i] * tested[i])
	}
	return &SeroObservation{Tested: append([]float64(nil), tested...), Positive: pos}, nil
}
