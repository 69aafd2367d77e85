package recon

import "math"

// computeChi2 scores a candidate parameter vector against experimental
// data: how far the simulated trajectory's positions and hit pattern land
// from the measured ones, plus how far the fitted vertex sits transversely
// from the beam prior's line. Terms can be individually disabled via cfg; a
// disabled term contributes zero to Total.
func computeChi2(cfg Chi2Config, simPositions, expPositions [][3]float64, simHits, expHits HitPattern, vertex [3]float64, beamPrior BeamPrior) Chi2Set {
	var set Chi2Set

	if cfg.PosEnabled {
		set.Position = positionChi2(simPositions, expPositions, cfg.PosNorm)
	}
	if cfg.EnEnabled {
		set.Energy = energyChi2(simHits, expHits, cfg.EnNormFraction)
	}
	if cfg.VertEnabled {
		set.Vertex = vertexChi2(vertex, beamPrior, cfg.VertTolerance)
	}
	set.Total = set.Position + set.Energy + set.Vertex
	return set
}

// positionChi2 sums, over every experimental position, the squared
// distance to its nearest simulated trajectory sample, normalized by
// posNorm squared. This rewards simulated trajectories that pass close to
// every measured point regardless of timing.
func positionChi2(simPositions, expPositions [][3]float64, posNorm float64) float64 {
	if posNorm <= 0 || len(simPositions) == 0 || len(expPositions) == 0 {
		return 0
	}
	var sum float64
	for _, exp := range expPositions {
		best := math.Inf(1)
		for _, sim := range simPositions {
			d := sqDist(sim, exp)
			if d < best {
				best = d
			}
		}
		sum += best
	}
	return sum / (posNorm * posNorm)
}

// energyChi2 compares the simulated and experimental hit patterns pad by
// pad, normalized by a fraction of the total experimental charge.
func energyChi2(simHits, expHits HitPattern, enNormFraction float64) float64 {
	total := 0.0
	for _, q := range expHits.Charge {
		total += q
	}
	if total <= 0 || enNormFraction <= 0 {
		return 0
	}
	norm := enNormFraction * total

	pads := make(map[uint16]bool, len(expHits.Charge)+len(simHits.Charge))
	for pad := range expHits.Charge {
		pads[pad] = true
	}
	for pad := range simHits.Charge {
		pads[pad] = true
	}
	var sum float64
	for pad := range pads {
		d := simHits.Charge[pad] - expHits.Charge[pad]
		sum += d * d
	}
	return sum / (norm * norm)
}

// vertexChi2 penalizes a fitted vertex (x,y) away from the beam line the
// prior describes, evaluated at the fitted vertex's depth z, normalized by
// a fixed tolerance.
func vertexChi2(vertex [3]float64, prior BeamPrior, tolerance float64) float64 {
	if tolerance <= 0 {
		return 0
	}
	d := prior.transverseDistance(vertex[0], vertex[1], vertex[2])
	return (d * d) / (tolerance * tolerance)
}

func sqDist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}
