package recon

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// epsilon is the default tolerance for float comparisons across the
// package.
const epsilon = 1e-12

// norm returns the Euclidean norm of a 3-vector.
func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// unit returns the unit vector of v, or the zero vector if v is ~0.
func unit(v [3]float64) [3]float64 {
	n := norm(v)
	if floats.EqualWithinAbs(n, 0, epsilon) {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

// scale returns v scaled by s.
func scale(v [3]float64, s float64) [3]float64 {
	return [3]float64{v[0] * s, v[1] * s, v[2] * s}
}

// cross returns a x b for 3-vectors.
func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// dot returns the inner product of two 3-vectors.
func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// sign returns the sign of v, treating values within epsilon of 0 as
// positive.
func sign(v float64) float64 {
	if floats.EqualWithinAbs(v, 0, epsilon) {
		return 1
	}
	return v / math.Abs(v)
}

// sphericalToCartesian converts (r, polar theta, azimuth phi) to (x,y,z)
// using the (sinθcosφ, sinθsinφ, cosθ) convention.
func sphericalToCartesian(r, polar, azimuth float64) [3]float64 {
	sp, cp := math.Sincos(polar)
	sa, ca := math.Sincos(azimuth)
	return [3]float64{r * sp * ca, r * sp * sa, r * cp}
}

// cartesianToSpherical is the inverse of sphericalToCartesian, returning
// (r, polar, azimuth).
func cartesianToSpherical(v [3]float64) (r, polar, azimuth float64) {
	r = norm(v)
	if r == 0 {
		return 0, 0, 0
	}
	polar = math.Acos(v[2] / r)
	azimuth = math.Atan2(v[1], v[0])
	return
}

// rotateAboutX rotates a 3-vector about the x-axis by angle theta, used for
// the tilt correction in EventGenerator's projection step.
func rotateAboutX(theta float64, v [3]float64) [3]float64 {
	s, c := math.Sincos(theta)
	r := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
	return mulVec3(r, v)
}

// rotateAboutZ rotates a 2D point (embedded as x,y,0) about the z-axis by
// theta, used by PadPlane to apply its intrinsic rotation.
func rotateAboutZ(theta, x, y float64) (xr, yr float64) {
	s, c := math.Sincos(theta)
	return x*c - y*s, x*s + y*c
}

// mulVec3 multiplies a 3x3 dense matrix by a 3-vector.
func mulVec3(m *mat.Dense, v [3]float64) [3]float64 {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, v[:]))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// nearestNeighborIndex returns the index of the row in m nearest to v under
// the Euclidean metric, used to pair a reconstructed trajectory sample with
// the experimental position it's being compared against.
func nearestNeighborIndex(m *mat.Dense, v [3]float64) int {
	rows, _ := m.Dims()
	best := -1
	bestD := math.Inf(1)
	for i := 0; i < rows; i++ {
		dx := m.At(i, 0) - v[0]
		dy := m.At(i, 1) - v[1]
		dz := m.At(i, 2) - v[2]
		d := dx*dx + dy*dy + dz*dz
		if d < bestD {
			bestD = d
			best = i
		}
	}
	return best
}
