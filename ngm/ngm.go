// Package ngm performs the next-generation-matrix analysis of a
// transmission matrix: the NGM entry [i][j] is the expected number of
// secondary infections in group i caused by one infectious individual
// of group j in a fully susceptible population, and its dominant
// eigenvalue is the reproduction number.
package ngm

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/epistrat/epi"
)

// ErrDegenerateSpectrum signals that the eigen-analysis produced a
// non-physical dominant eigenvalue. Transmission-derived matrices are
// nonnegative, so by Perron-Frobenius the dominant eigenvalue must be
// real and, for any viable scenario, strictly positive.
var ErrDegenerateSpectrum = errors.New("degenerate spectrum")

// imagTolerance bounds the relative imaginary part accepted as
// eigensolver roundoff.
const imagTolerance = 1e-9

// NextGeneration builds the next-generation matrix
//
//	M[i][j] = n*f_i*beta[i][j]/gamma
//
// from a transmission matrix beta, recovery rate gamma and group sizes
// n*f_i.
func NextGeneration(beta mat.Matrix, gamma float64, fractions []float64, n float64) *mat.Dense {
	g, cols := beta.Dims()
	if g != cols || g != len(fractions) {
		panic(errors.New("transmission matrix and fraction vector dimensions don't match"))
	}
	m := mat.NewDense(g, g, nil)
	for i := 0; i < g; i++ {
		for j := 0; j < g; j++ {
			m.Set(i, j, n*fractions[i]*beta.At(i, j)/gamma)
		}
	}
	return m
}

// DominantEigenvalue returns the largest-magnitude eigenvalue of a.
// The eigenvalue is selected explicitly rather than trusting the
// solver's ordering. A dominant eigenvalue with an imaginary part
// beyond roundoff, or one that is not strictly positive, is reported
// as ErrDegenerateSpectrum.
func DominantEigenvalue(a mat.Matrix) (float64, error) {
	g, cols := a.Dims()
	if g != cols {
		panic(errors.New("matrix is not square"))
	}
	dense := mat.NewDense(g, g, nil)
	dense.Copy(a)

	var eig mat.Eigen
	if ok := eig.Factorize(dense, mat.EigenNone); !ok {
		return 0, fmt.Errorf("%w: eigendecomposition failed", ErrDegenerateSpectrum)
	}
	values := eig.Values(nil)

	dominant := values[0]
	for _, v := range values[1:] {
		if cmplx.Abs(v) > cmplx.Abs(dominant) {
			dominant = v
		}
	}
	if math.Abs(imag(dominant)) > imagTolerance*math.Max(1, math.Abs(real(dominant))) {
		return 0, fmt.Errorf("%w: dominant eigenvalue %v is not real", ErrDegenerateSpectrum, dominant)
	}
	if real(dominant) <= 0 {
		return 0, fmt.Errorf("%w: dominant eigenvalue %v is not positive", ErrDegenerateSpectrum, real(dominant))
	}
	return real(dominant), nil
}

// ScalingFactor computes s = lambda_1/r0Target where lambda_1 is the
// dominant eigenvalue of the next-generation matrix of beta. Dividing
// beta by s yields a transmission matrix whose NGM has dominant
// eigenvalue r0Target. The factor is computed once as a scalar; it is
// algebraically independent of beta's individual entries, so scaling
// per entry would only propagate floating-point noise.
func ScalingFactor(beta mat.Matrix, gamma float64, fractions []float64, n, r0Target float64) (float64, error) {
	if r0Target <= 0 {
		return 0, fmt.Errorf("%w: target reproduction number %v is not positive",
			epi.ErrInvalidParameter, r0Target)
	}
	if gamma <= 0 {
		return 0, fmt.Errorf("%w: recovery rate %v is not positive", epi.ErrInvalidParameter, gamma)
	}
	lambda, err := DominantEigenvalue(NextGeneration(beta, gamma, fractions, n))
	if err != nil {
		return 0, err
	}
	return lambda / r0Target, nil
}
