package recon

import (
	"context"
	"math"
	"testing"
)

// quadraticSimulator is a trivial Simulator whose "trajectory" is a single
// point at the candidate's vertex and whose "hit pattern" is empty, so the
// minimizer's search can be exercised without the full tracker/eventgen
// pipeline. The true minimum sits at target.
type quadraticSimulator struct {
	target [3]float64
	fail   bool
}

func (q *quadraticSimulator) Simulate(p ParameterVector, rngSeed int64) (Trajectory, HitPattern, error) {
	if q.fail {
		return Trajectory{}, HitPattern{}, newError(kindNumericalError, "forced failure")
	}
	return Trajectory{Points: []TrajectoryPoint{
		{Position: p.Vertex},
		{Position: p.Vertex},
	}}, HitPattern{Charge: map[uint16]float64{}}, nil
}

func TestMinimizeConvergesTowardTarget(t *testing.T) {
	target := [3]float64{0.02, -0.01, 0.03}
	sim := &quadraticSimulator{target: target}
	chi2cfg := Chi2Config{PosNorm: 0.01, PosEnabled: true}
	m, err := NewMinimizer(sim, chi2cfg, 42, nil)
	if err != nil {
		t.Fatalf("NewMinimizer: %s", err)
	}

	ctr0 := ParameterVector{Vertex: [3]float64{0, 0, 0}}
	box0 := Sigma{Vertex: [3]float64{0.1, 0.1, 0.1}}
	expPos := [][3]float64{target}

	result, err := m.Minimize(context.Background(), ctr0, box0, expPos, HitPattern{Charge: map[uint16]float64{}},
		BeamPrior{}, MinimizeOptions{NumIters: 12, NumPts: 60, RedFactor: 0.6})
	if err != nil {
		t.Fatalf("Minimize: %s", err)
	}
	devs, err := FindPositionDeviations([][3]float64{result.Best.Vertex}, expPos)
	if err != nil {
		t.Fatalf("FindPositionDeviations: %s", err)
	}
	if RMSPositionDeviation(devs) > 0.02 {
		t.Fatalf("minimizer did not converge close to target: best=%v rms=%v", result.Best.Vertex, RMSPositionDeviation(devs))
	}
}

func TestMinimizeStallsWhenEverySimulationFails(t *testing.T) {
	sim := &quadraticSimulator{fail: true}
	m, err := NewMinimizer(sim, Chi2Config{PosNorm: 0.01, PosEnabled: true}, 1, nil)
	if err != nil {
		t.Fatalf("NewMinimizer: %s", err)
	}
	_, err = m.Minimize(context.Background(), ParameterVector{}, Sigma{Vertex: [3]float64{0.1, 0.1, 0.1}},
		[][3]float64{{0, 0, 0}}, HitPattern{Charge: map[uint16]float64{}}, BeamPrior{}, MinimizeOptions{NumIters: 5, NumPts: 10})
	if err == nil {
		t.Fatal("expected ErrMinimizationStalled when every candidate fails to simulate")
	}
}

func TestMinimizeRespectsCancellation(t *testing.T) {
	sim := &quadraticSimulator{}
	m, err := NewMinimizer(sim, Chi2Config{PosNorm: 0.01, PosEnabled: true}, 1, nil)
	if err != nil {
		t.Fatalf("NewMinimizer: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Minimize(ctx, ParameterVector{}, Sigma{Vertex: [3]float64{0.1, 0.1, 0.1}},
		[][3]float64{{0, 0, 0}}, HitPattern{Charge: map[uint16]float64{}}, BeamPrior{}, MinimizeOptions{NumIters: 5, NumPts: 10})
	if err == nil {
		t.Fatal("expected ErrCancelled for an already-cancelled context")
	}
}

func TestMinimizeReproducibleWithSameSeed(t *testing.T) {
	target := [3]float64{0.01, 0.01, 0.01}
	opts := MinimizeOptions{NumIters: 8, NumPts: 40, RedFactor: 0.6}
	run := func() ParameterVector {
		sim := &quadraticSimulator{target: target}
		m, err := NewMinimizer(sim, Chi2Config{PosNorm: 0.01, PosEnabled: true}, 7, nil)
		if err != nil {
			t.Fatalf("NewMinimizer: %s", err)
		}
		result, err := m.Minimize(context.Background(), ParameterVector{}, Sigma{Vertex: [3]float64{0.1, 0.1, 0.1}},
			[][3]float64{target}, HitPattern{Charge: map[uint16]float64{}}, BeamPrior{}, opts)
		if err != nil {
			t.Fatalf("Minimize: %s", err)
		}
		return result.Best
	}
	a, b := run(), run()
	if a != b {
		t.Fatalf("expected identical results from the same seed, got %v and %v", a, b)
	}
}

func TestMinimizeRecordsIterationMajorAllParamsAndContraction(t *testing.T) {
	target := [3]float64{0.02, -0.01, 0.03}
	sim := &quadraticSimulator{target: target}
	m, err := NewMinimizer(sim, Chi2Config{PosNorm: 0.01, PosEnabled: true}, 3, nil)
	if err != nil {
		t.Fatalf("NewMinimizer: %s", err)
	}
	const numIters, numPts = 5, 8
	const redFactor = 0.8
	result, err := m.Minimize(context.Background(), ParameterVector{}, Sigma{Vertex: [3]float64{0.1, 0.1, 0.1}},
		[][3]float64{target}, HitPattern{Charge: map[uint16]float64{}}, BeamPrior{},
		MinimizeOptions{NumIters: numIters, NumPts: numPts, RedFactor: redFactor})
	if err != nil {
		t.Fatalf("Minimize: %s", err)
	}
	if len(result.AllParams) != numIters*numPts {
		t.Fatalf("expected %d sampled candidates (iteration-major, sample-minor), got %d", numIters*numPts, len(result.AllParams))
	}
	if len(result.MinChis) != numIters || len(result.GoodIdx) != numIters {
		t.Fatalf("expected %d per-iteration chi2/goodIdx entries, got %d/%d", numIters, len(result.MinChis), len(result.GoodIdx))
	}
	for _, idx := range result.GoodIdx {
		if idx < 0 || idx >= numPts {
			t.Fatalf("good index %d out of range [0,%d)", idx, numPts)
		}
	}
	// Iteration k samples within 0.1*redFactor^k of the previous winner.
	halfWidth, ctr := 0.1, [3]float64{}
	for k := 0; k < numIters; k++ {
		for j := 0; j < numPts; j++ {
			v := result.AllParams[k*numPts+j].Vertex
			for d := 0; d < 3; d++ {
				if math.Abs(v[d]-ctr[d]) > halfWidth*(1+1e-12) {
					t.Fatalf("iter %d sample %d: |%v-%v| exceeds half-width %v", k, j, v[d], ctr[d], halfWidth)
				}
			}
		}
		ctr = result.AllParams[k*numPts+result.GoodIdx[k]].Vertex
		halfWidth *= redFactor
	}
}

func TestMinimizeRespectsBmagDimension(t *testing.T) {
	target := ParameterVector{Vertex: [3]float64{0.01, 0, 0}, Bmag: 0.5}
	sim := &bmagSimulator{target: target}
	m, err := NewMinimizer(sim, Chi2Config{PosNorm: 0.01, PosEnabled: true}, 9, nil)
	if err != nil {
		t.Fatalf("NewMinimizer: %s", err)
	}
	ctr0 := ParameterVector{Vertex: [3]float64{0.01, 0, 0}, Bmag: 0.3}
	box0 := Sigma{Vertex: [3]float64{0.001, 0.001, 0.001}, Bmag: 0.3}
	result, err := m.Minimize(context.Background(), ctr0, box0,
		[][3]float64{target.Vertex}, HitPattern{Charge: map[uint16]float64{}}, BeamPrior{},
		MinimizeOptions{NumIters: 15, NumPts: 60, RedFactor: 0.8})
	if err != nil {
		t.Fatalf("Minimize: %s", err)
	}
	if d := result.Best.Bmag - target.Bmag; d > 0.05 || d < -0.05 {
		t.Fatalf("expected Bmag to converge near %v, got %v", target.Bmag, result.Best.Bmag)
	}
}

// bmagSimulator scores a candidate purely on how close its Bmag is to
// target, letting the minimizer's Bmag dimension be exercised without the
// full tracker/eventgen pipeline.
type bmagSimulator struct {
	target ParameterVector
}

func (b *bmagSimulator) Simulate(p ParameterVector, rngSeed int64) (Trajectory, HitPattern, error) {
	jitter := [3]float64{p.Vertex[0], p.Vertex[1], p.Vertex[2] + (p.Bmag - b.target.Bmag)}
	return Trajectory{Points: []TrajectoryPoint{{Position: jitter}, {Position: jitter}}},
		HitPattern{Charge: map[uint16]float64{}}, nil
}
