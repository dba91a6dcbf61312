// Package calibrate fits unobserved per-group contact/susceptibility
// multipliers against serosurvey counts by maximum likelihood. Each
// objective evaluation rebuilds the transmission matrix at the trial
// parameter vector, integrates the SEIR system to the survey time and
// scores the observed seropositive counts under a binomial model of
// the predicted cumulative-incidence fractions.
//
// The transmission matrix is used with a scaling factor fixed at one
// during calibration: the basic reproduction number is not separately
// identifiable from a single cross-sectional seroprevalence, so the
// raw parameter scale absorbs it.
package calibrate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/epistrat/epi"
	"github.com/epistrat/epi/gonumExtensions"
	"github.com/epistrat/epi/mixing"
	"github.com/epistrat/epi/seir"
)

// Mode selects how the fitted parameter vector enters the
// transmission matrix.
type Mode string

const (
	// ModeActivity fits activity multipliers: the parameters are the
	// per-group activities of the mixing model, weighting both
	// exposure and infectiousness.
	ModeActivity Mode = "activity"
	// ModeSusceptibility fits susceptibility multipliers on top of a
	// unit-activity mixing structure: parameter i scales the hazard
	// experienced by group i (the matrix row), leaving the contact
	// structure untouched.
	ModeSusceptibility Mode = "susceptibility"
)

// ErrUnknownModel flags a parameterization mode that is neither
// activity nor susceptibility. A caller programming error, always
// fatal.
var ErrUnknownModel = errors.New("unknown parameterization mode")

// Settings bundles the numerical configuration of one fit: the
// optimizer's deterministic give-up conditions and the trial-run
// integration setup. The zero value of any field falls back to its
// default, so callers can override selectively.
type Settings struct {
	// MaxIterations and MaxEvaluations cap the optimizer's major
	// iterations and objective evaluations.
	MaxIterations  int
	MaxEvaluations int
	// IntegrationTolerance is the per-step error tolerance of the
	// trial runs, relative to the population size.
	IntegrationTolerance float64
	// GridIntervals is the number of grid intervals between outbreak
	// start and survey time in each trial run.
	GridIntervals int
}

// DefaultSettings returns the fit configuration used when the caller
// passes nil.
func DefaultSettings() *Settings {
	return &Settings{
		MaxIterations:        2000,
		MaxEvaluations:       10000,
		IntegrationTolerance: 1e-6,
		GridIntervals:        8,
	}
}

// withDefaults fills zero-valued fields from DefaultSettings.
func (s *Settings) withDefaults() Settings {
	def := *DefaultSettings()
	if s == nil {
		return def
	}
	res := *s
	if res.MaxIterations == 0 {
		res.MaxIterations = def.MaxIterations
	}
	if res.MaxEvaluations == 0 {
		res.MaxEvaluations = def.MaxEvaluations
	}
	if res.IntegrationTolerance == 0 {
		res.IntegrationTolerance = def.IntegrationTolerance
	}
	if res.GridIntervals == 0 {
		res.GridIntervals = def.GridIntervals
	}
	return res
}

// Result is the outcome of one calibration run.
type Result struct {
	// Parameters is the fitted vector normalized so the reference
	// group (index 0) equals exactly 1. This is a reporting
	// convention, not an identifiability fix: the raw scale is
	// meaningful only together with the fixed unit scaling factor.
	Parameters []float64
	// Converged reports whether the optimizer terminated on its own
	// convergence criterion rather than an iteration or evaluation
	// cap. When false, Parameters still holds the best vector found.
	Converged bool
	// NegLogLik is the negative binomial log-likelihood at the best
	// vector.
	NegLogLik float64
}

// Fit maximizes the binomial log-likelihood of the observed
// seropositive counts over parameter vectors in [lo,hi]^G, starting
// from x0. The search is gradient-free (Nelder-Mead) with trial
// vectors outside the bounds rejected by an infinite penalty; any
// failed model evaluation is likewise treated as an infinitely poor
// objective value rather than aborting the fit.
func Fit(pop *epi.PopulationContext, obs *epi.SeroObservation, rates epi.Rates,
	epsilon, surveyTime float64, mode Mode, x0 []float64, lo, hi float64, cfg *Settings) (*Result, error) {

	conf := cfg.withDefaults()
	if mode != ModeActivity && mode != ModeSusceptibility {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, mode)
	}
	g := pop.NumGroups()
	if len(x0) != g || len(obs.Tested) != g {
		return nil, fmt.Errorf("%w: %d groups, %d starting parameters, %d observations",
			epi.ErrInvalidParameter, g, len(x0), len(obs.Tested))
	}
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	if surveyTime <= 0 {
		return nil, fmt.Errorf("%w: survey time %v is not positive", epi.ErrInvalidParameter, surveyTime)
	}
	if lo <= 0 || hi <= lo {
		return nil, fmt.Errorf("%w: bounds [%v,%v]", epi.ErrInvalidParameter, lo, hi)
	}
	for i, v := range x0 {
		if v < lo || v > hi {
			return nil, fmt.Errorf("%w: starting parameter %v of group %d outside [%v,%v]",
				epi.ErrInvalidParameter, v, i, lo, hi)
		}
	}

	objective := func(theta []float64) float64 {
		for _, v := range theta {
			if v < lo || v > hi {
				return math.Inf(1)
			}
		}
		prevalence, err := predictPrevalence(pop, rates, epsilon, surveyTime, mode, theta, conf)
		if err != nil {
			// A single bad trial vector must not abort the search.
			return math.Inf(1)
		}
		nll := 0.
		for i := 0; i < g; i++ {
			b := distuv.Binomial{N: obs.Tested[i], P: prevalence[i]}
			nll -= b.LogProb(obs.Positive[i])
		}
		return nll
	}

	settings := &optimize.Settings{
		MajorIterations: conf.MaxIterations,
		FuncEvaluations: conf.MaxEvaluations,
	}
	res, err := optimize.Minimize(optimize.Problem{Func: objective},
		append([]float64(nil), x0...), settings, &optimize.NelderMead{})
	if res == nil {
		return nil, err
	}

	converged := err == nil &&
		res.Status != optimize.IterationLimit &&
		res.Status != optimize.FunctionEvaluationLimit &&
		res.Status != optimize.RuntimeLimit &&
		res.Status != optimize.Failure

	params := append([]float64(nil), res.X...)
	reference := params[0]
	for i := range params {
		params[i] /= reference
	}
	return &Result{Parameters: params, Converged: converged, NegLogLik: res.F}, nil
}

// predictPrevalence runs the model at a trial parameter vector and
// returns the per-group cumulative-incidence fraction R_i/N_i at the
// survey time.
func predictPrevalence(pop *epi.PopulationContext, rates epi.Rates,
	epsilon, surveyTime float64, mode Mode, theta []float64, conf Settings) ([]float64, error) {

	g := pop.NumGroups()
	fractions := pop.Fractions()

	activities := theta
	if mode == ModeSusceptibility {
		activities = make([]float64, g)
		for i := range activities {
			activities[i] = 1
		}
	}
	beta, err := mixing.ContactMatrix(activities, fractions, pop.N, epsilon)
	if err != nil {
		return nil, err
	}
	if mode == ModeSusceptibility {
		for i := 0; i < g; i++ {
			for j := 0; j < g; j++ {
				beta.Set(i, j, theta[i]*beta.At(i, j))
			}
		}
	}
	if gonumExtensions.NANORINF(beta) {
		return nil, fmt.Errorf("%w: non-finite transmission matrix at trial parameters",
			epi.ErrInvalidParameter)
	}

	model, err := seir.NewModel(beta, rates)
	if err != nil {
		return nil, err
	}
	grid := seir.Grid(0, surveyTime, conf.GridIntervals)
	tr, err := seir.Integrate(model, seir.SeedState(pop), grid, conf.IntegrationTolerance*pop.N)
	if err != nil {
		return nil, err
	}

	prevalence := make([]float64, g)
	for i, removed := range tr.Final().R {
		p := removed / pop.GroupSize(i)
		prevalence[i] = math.Min(math.Max(p, 0), 1)
	}
	return prevalence, nil
}
