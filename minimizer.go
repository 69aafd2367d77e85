package recon

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/go-kit/log"
)

// Simulator produces everything a candidate parameter vector needs scored
// against experimental data: the forward-tracked trajectory and its
// projected hit pattern. rngSeed seeds whatever stochastic step the
// simulation takes (e.g. EventGenerator's lateral diffusion); callers that
// run Simulate concurrently must pass a distinct seed per call and the
// implementation must not touch any RNG state shared with other calls, so
// that candidates scored on different goroutines never share a mutable
// scratch RNG (see Minimizer.scoreAll).
type Simulator interface {
	Simulate(p ParameterVector, rngSeed int64) (Trajectory, HitPattern, error)
}

// Minimizer fits track parameters to experimental data via a
// contracting-hypercube Monte Carlo search: each iteration samples points
// uniformly in a box around the current best guess, scores them, keeps the
// best, and shrinks the box for the next iteration.
type Minimizer struct {
	sim    Simulator
	chi2   Chi2Config
	rng    *rand.Rand
	logger log.Logger
}

// NewMinimizer builds a Minimizer around sim, scoring candidates with cfg's
// chi2 weights. seed makes the search reproducible.
func NewMinimizer(sim Simulator, cfg Chi2Config, seed int64, logger log.Logger) (*Minimizer, error) {
	if sim == nil {
		return nil, newError(kindInvalidArgument, "minimizer requires a non-nil Simulator")
	}
	return &Minimizer{
		sim:    sim,
		chi2:   cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: scoped(logger, "minimizer"),
	}, nil
}

// Sigma bounds the half-width of the search box along each of the seven
// searched parameters of ParameterVector.
type Sigma struct {
	Vertex     [3]float64
	EnergyPerU float64
	Azimuth    float64
	Polar      float64
	Bmag       float64
}

// Minimize searches for the parameter vector that best explains expPos and
// expHits, starting from ctr0 with initial box half-widths sigma0. It
// returns ErrCancelled if ctx is done at an iteration boundary, and
// ErrMinimizationStalled after three consecutive iterations in which every
// sampled candidate failed to simulate; the result returned with that error
// carries the best center found so far in Best.
//
// The returned MinimizeResult.AllParams and MinChis list samples in
// canonical iteration-major, sample-minor order regardless of how the
// per-iteration worker pool interleaved its scoring.
func (m *Minimizer) Minimize(ctx context.Context, ctr0 ParameterVector, sigma0 Sigma, expPos [][3]float64, expHits HitPattern, beamPrior BeamPrior, opts MinimizeOptions) (MinimizeResult, error) {
	opts = opts.withDefaults()
	if beamPrior.SigmaFraction <= 0 {
		beamPrior.SigmaFraction = opts.EnergySigmaFraction
	}

	ctr := ctr0
	box := sigma0
	bestChi2 := math.Inf(1)
	bestParams := ctr0
	stallCount := 0

	allParams := make([]ParameterVector, 0, opts.NumIters*opts.NumPts)
	minChis := make([]Chi2Set, opts.NumIters)
	goodIdx := make([]int, opts.NumIters)

	for iter := 0; iter < opts.NumIters; iter++ {
		select {
		case <-ctx.Done():
			return MinimizeResult{}, newError(kindCancelled, "cancelled after %d iterations", iter)
		default:
		}

		candidates := make([]ParameterVector, opts.NumPts)
		seeds := make([]int64, opts.NumPts)
		for i := range candidates {
			candidates[i] = m.sampleCandidate(ctr, box, beamPrior)
			seeds[i] = m.rng.Int63()
		}
		allParams = append(allParams, candidates...)

		scores, sets := m.scoreAll(candidates, seeds, expPos, expHits, beamPrior)

		iterBest := -1
		for i, s := range scores {
			if math.IsInf(s, 1) {
				continue
			}
			if iterBest == -1 || s < scores[iterBest] || (s == scores[iterBest] && i < iterBest) {
				iterBest = i
			}
		}

		if iterBest == -1 {
			minChis[iter] = Chi2Set{Total: math.Inf(1)}
			goodIdx[iter] = -1
			stallCount++
			if stallCount >= 3 {
				return MinimizeResult{Best: bestParams}, newError(kindMinimizationStalled, "no candidate simulated successfully in 3 consecutive iterations")
			}
			continue
		}
		stallCount = 0

		minChis[iter] = sets[iterBest]
		goodIdx[iter] = iterBest

		if scores[iterBest] < bestChi2 {
			bestChi2 = scores[iterBest]
			bestParams = candidates[iterBest]
		}
		ctr = candidates[iterBest]
		box = shrinkBox(box, opts.RedFactor)

		m.logger.Log("level", "debug", "subsys", "minimizer", "iter", iter, "chi2", bestChi2)
	}

	traj, hits, err := m.sim.Simulate(bestParams, m.rng.Int63())
	if err != nil {
		return MinimizeResult{}, err
	}
	finalSet := computeChi2(m.chi2, traj.Positions(), expPos, hits, expHits, bestParams.Vertex, beamPrior)

	return MinimizeResult{
		Best:       bestParams,
		BestChi2:   finalSet,
		Iterations: opts.NumIters,
		AllParams:  allParams,
		MinChis:    minChis,
		GoodIdx:    goodIdx,
	}, nil
}

// scoreAll simulates and scores every candidate concurrently, returning
// index-aligned slices of total scores and full Chi2Sets; a failed
// simulation scores +Inf with a zero Chi2Set. Each candidate carries its own
// seed, drawn sequentially on the single-threaded caller before any goroutine
// starts, so the set of (candidate, seed) pairs scored in an iteration is
// fixed regardless of how the worker pool interleaves them: results are
// reproducible given a fixed Minimizer seed, independent of goroutine
// scheduling or worker count, and no Simulate call shares RNG state with
// another.
func (m *Minimizer) scoreAll(candidates []ParameterVector, seeds []int64, expPos [][3]float64, expHits HitPattern, beamPrior BeamPrior) ([]float64, []Chi2Set) {
	scores := make([]float64, len(candidates))
	sets := make([]Chi2Set, len(candidates))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 8)

	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c ParameterVector, seed int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			traj, hits, err := m.sim.Simulate(c, seed)
			if err != nil {
				scores[i] = math.Inf(1)
				return
			}
			set := computeChi2(m.chi2, traj.Positions(), expPos, hits, expHits, c.Vertex, beamPrior)
			sets[i] = set
			scores[i] = set.Total
		}(i, c, seeds[i])
	}
	wg.Wait()
	return scores, sets
}

// sampleCandidate draws one uniform sample from the box around ctr, then
// clamps EnergyPerU into the beam-energy prior's range when one is given.
func (m *Minimizer) sampleCandidate(ctr ParameterVector, box Sigma, prior BeamPrior) ParameterVector {
	u := func(halfWidth float64) float64 {
		if halfWidth <= 0 {
			return 0
		}
		return (m.rng.Float64()*2 - 1) * halfWidth
	}
	var out ParameterVector
	out.Vertex = [3]float64{
		ctr.Vertex[0] + u(box.Vertex[0]),
		ctr.Vertex[1] + u(box.Vertex[1]),
		ctr.Vertex[2] + u(box.Vertex[2]),
	}
	out.Polar = ctr.Polar + u(box.Polar)
	out.Azimuth = ctr.Azimuth + u(box.Azimuth)
	out.EnergyPerU = ctr.EnergyPerU + u(box.EnergyPerU)
	out.Bmag = ctr.Bmag + u(box.Bmag)
	if out.Bmag < 0 {
		out.Bmag = -out.Bmag
	}
	if prior.EnergyPerU > 0 {
		floor := prior.EnergyPerU * (1 - prior.SigmaFraction)
		ceil := prior.EnergyPerU * (1 + prior.SigmaFraction)
		if out.EnergyPerU < floor {
			out.EnergyPerU = floor
		}
		if out.EnergyPerU > ceil {
			out.EnergyPerU = ceil
		}
	}
	out.BeamEnergy = prior.EnergyPerU
	return out
}

// shrinkBox contracts every dimension's half-width by redFactor, including
// Bmag too: a separate (narrower) Bmag prior width is allowed, but it
// must respect the same per-iteration contraction rule as every other
// dimension.
func shrinkBox(box Sigma, redFactor float64) Sigma {
	return Sigma{
		Vertex:     [3]float64{box.Vertex[0] * redFactor, box.Vertex[1] * redFactor, box.Vertex[2] * redFactor},
		Polar:      box.Polar * redFactor,
		Azimuth:    box.Azimuth * redFactor,
		EnergyPerU: box.EnergyPerU * redFactor,
		Bmag:       box.Bmag * redFactor,
	}
}
