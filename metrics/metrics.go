// Package metrics derives epidemiological summary statistics from a
// completed trajectory: the final epidemic size, the time series of
// the effective reproduction number and the herd-immunity threshold.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/epistrat/epi"
	"github.com/epistrat/epi/ngm"
	"github.com/epistrat/epi/seir"
)

// ErrThresholdNotReached signals that no trajectory time point has an
// effective reproduction number at or below one. Recoverable: extend
// the time horizon and retry.
var ErrThresholdNotReached = errors.New("herd immunity threshold not reached")

// Report bundles the derived metrics of one trajectory.
type Report struct {
	// FinalSize is the removed fraction of the population at the last
	// trajectory time point.
	FinalSize float64
	// Rt is the effective reproduction number per trajectory time point.
	Rt []float64
	// HITOverall and HITPerGroup are the immune fractions at the
	// threshold crossing; NaN when the threshold was not reached.
	HITOverall  float64
	HITPerGroup []float64
}

// FinalSize returns the total removed count at the trajectory's last
// time point as a fraction of the population n.
func FinalSize(tr *seir.Trajectory, n float64) float64 {
	return floats.Sum(tr.Final().R) / n
}

// RtSeries evaluates the effective reproduction number at every
// trajectory time point: the dominant eigenvalue of the
// next-generation matrix re-evaluated with the current susceptible
// pool,
//
//	Rt(t) = lambda_1( diag(S(t)) * beta / (scale*gamma) ).
//
// The per-point eigenproblems are independent and evaluated
// concurrently.
func RtSeries(tr *seir.Trajectory, betaUnscaled mat.Matrix, scale, gamma float64) ([]float64, error) {
	g, cols := betaUnscaled.Dims()
	if g != cols || g != tr.States[0].NumGroups() {
		return nil, fmt.Errorf("%w: transmission matrix is %dx%d for %d groups",
			epi.ErrInvalidParameter, g, cols, tr.States[0].NumGroups())
	}
	if scale <= 0 || gamma <= 0 {
		return nil, fmt.Errorf("%w: scale %v and recovery rate %v must be positive",
			epi.ErrInvalidParameter, scale, gamma)
	}

	rt := make([]float64, tr.Len())
	errs := make([]error, tr.Len())

	var wg sync.WaitGroup
	wg.Add(tr.Len())
	for k := 0; k < tr.Len(); k++ {
		go func(k int) {
			defer wg.Done()
			s := tr.States[k].S
			m := mat.NewDense(g, g, nil)
			for i := 0; i < g; i++ {
				for j := 0; j < g; j++ {
					m.Set(i, j, s[i]*betaUnscaled.At(i, j)/(scale*gamma))
				}
			}
			rt[k], errs[k] = ngm.DominantEigenvalue(m)
		}(k)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// HIT locates the herd-immunity threshold: among all time points with
// Rt <= 1 it selects the one with the largest Rt, the crossing point
// closest to one from below. It returns the overall immune fraction
// 1 - sum(S_i)/n and the per-group fractions 1 - S_i/N_i at that
// point.
func HIT(tr *seir.Trajectory, rt []float64, n float64, fractions []float64) (float64, []float64, error) {
	if len(rt) != tr.Len() {
		return 0, nil, fmt.Errorf("%w: Rt series has %d points for a trajectory of %d",
			epi.ErrInvalidParameter, len(rt), tr.Len())
	}
	crossing := -1
	for k, v := range rt {
		if v > 1 {
			continue
		}
		if crossing < 0 || v > rt[crossing] {
			crossing = k
		}
	}
	if crossing < 0 {
		return 0, nil, ErrThresholdNotReached
	}

	s := tr.States[crossing].S
	overall := 1 - floats.Sum(s)/n
	perGroup := make([]float64, len(s))
	for i := range s {
		perGroup[i] = 1 - s[i]/(n*fractions[i])
	}
	return overall, perGroup, nil
}

// Compute derives all metrics of a trajectory in one pass. When the
// herd-immunity threshold is not reached the report still carries the
// final size and Rt series, with the HIT fields set to NaN, and
// ErrThresholdNotReached is returned for the caller to extend the
// horizon.
func Compute(tr *seir.Trajectory, betaUnscaled mat.Matrix, scale, gamma, n float64, fractions []float64) (*Report, error) {
	rt, err := RtSeries(tr, betaUnscaled, scale, gamma)
	if err != nil {
		return nil, err
	}
	report := &Report{
		FinalSize:  FinalSize(tr, n),
		Rt:         rt,
		HITOverall: math.NaN(),
	}
	overall, perGroup, err := HIT(tr, rt, n, fractions)
	if err != nil {
		return report, err
	}
	report.HITOverall = overall
	report.HITPerGroup = perGroup
	return report, nil
}
