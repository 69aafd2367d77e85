package recon

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FindPositionDeviations pairs each experimental position with its nearest
// sample on the simulated trajectory and returns the vector difference
// exp-sim for each pair, in trajectory order of the experimental points.
func FindPositionDeviations(simPositions, expPositions [][3]float64) ([][3]float64, error) {
	if len(simPositions) == 0 {
		return nil, newError(kindEmptyTrajectory, "no simulated positions to compare against")
	}
	if len(expPositions) == 0 {
		return nil, newError(kindInvalidArgument, "no experimental positions given")
	}

	simRows := len(simPositions)
	data := make([]float64, 0, simRows*3)
	for _, p := range simPositions {
		data = append(data, p[0], p[1], p[2])
	}
	simMat := mat.NewDense(simRows, 3, data)

	out := make([][3]float64, len(expPositions))
	for i, exp := range expPositions {
		idx := nearestNeighborIndex(simMat, exp)
		sim := simPositions[idx]
		out[i] = [3]float64{exp[0] - sim[0], exp[1] - sim[1], exp[2] - sim[2]}
	}
	return out, nil
}

// FindHitPatternDeviation returns, pad by pad, the simulated-minus-measured
// charge difference for every pad appearing in either pattern.
func FindHitPatternDeviation(sim, exp HitPattern) map[uint16]float64 {
	out := make(map[uint16]float64, len(sim.Charge)+len(exp.Charge))
	for pad, q := range sim.Charge {
		out[pad] = q - exp.Charge[pad]
	}
	for pad, q := range exp.Charge {
		if _, ok := out[pad]; !ok {
			out[pad] = -q
		}
	}
	return out
}

// RMSPositionDeviation summarizes FindPositionDeviations as a single
// root-mean-square distance, convenient for logging fit quality.
func RMSPositionDeviation(deviations [][3]float64) float64 {
	if len(deviations) == 0 {
		return 0
	}
	var sum float64
	for _, d := range deviations {
		sum += dot(d, d)
	}
	return math.Sqrt(sum / float64(len(deviations)))
}
