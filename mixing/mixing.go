// Package mixing builds group-to-group transmission-rate matrices for
// a stratified population under a configurable mixing regime. The
// assortativity coefficient epsilon interpolates between proportionate
// mixing (epsilon=0, contact probability proportional to relative
// activity and group size) and fully assortative mixing (epsilon=1,
// contact confined within the own group).
package mixing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/epistrat/epi"
)

// ContactMatrix returns the unscaled transmission-rate matrix
//
//	beta[i][j] = (1-eps) * a_i*a_j / sum_k(n*f_k*a_k) + eps * a_i/(n*f_i) * [i==j]
//
// for activities a, population fractions f and total population n.
// The function is pure and O(G^2); it is called repeatedly inside the
// calibration engine's objective.
func ContactMatrix(activities, fractions []float64, n, epsilon float64) (*mat.Dense, error) {
	g := len(activities)
	if g == 0 || len(fractions) != g {
		return nil, fmt.Errorf("%w: activities and fractions have lengths %d and %d",
			epi.ErrInvalidParameter, g, len(fractions))
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: total population %v is not positive", epi.ErrInvalidParameter, n)
	}
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("%w: assortativity %v outside [0,1]", epi.ErrInvalidParameter, epsilon)
	}

	// Total contact weight sum_k n*f_k*a_k.
	denom := 0.
	for k := 0; k < g; k++ {
		if fractions[k] <= 0 {
			return nil, fmt.Errorf("%w: population fraction %v of group %d is not positive",
				epi.ErrInvalidParameter, fractions[k], k)
		}
		if activities[k] <= 0 {
			return nil, fmt.Errorf("%w: activity %v of group %d is not positive",
				epi.ErrInvalidParameter, activities[k], k)
		}
		denom += n * fractions[k] * activities[k]
	}

	beta := mat.NewDense(g, g, nil)
	for i := 0; i < g; i++ {
		for j := 0; j < g; j++ {
			value := (1 - epsilon) * activities[i] * activities[j] / denom
			if i == j {
				value += epsilon * activities[i] / (n * fractions[i])
			}
			beta.Set(i, j, value)
		}
	}
	return beta, nil
}
