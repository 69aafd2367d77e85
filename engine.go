package recon

import "github.com/go-kit/log"

// Engine wires GasModel, Tracker and EventGenerator together into the
// Simulator the Minimizer drives: given a candidate ParameterVector it
// tracks the corresponding trajectory and projects it onto the pad plane.
type Engine struct {
	gas      *GasModel
	tracker  *Tracker
	eventGen *EventGenerator
	massA    int
}

// NewEngine builds an Engine from its three components. massA is the mass
// number used to convert ParameterVector.EnergyPerU (MeV/u) to the total
// kinetic energy TrackParticle expects.
func NewEngine(gas *GasModel, tracker *Tracker, eventGen *EventGenerator, massA int, logger log.Logger) (*Engine, error) {
	if gas == nil || tracker == nil || eventGen == nil {
		return nil, newError(kindInvalidArgument, "engine requires non-nil gas model, tracker and event generator")
	}
	if massA <= 0 {
		return nil, newError(kindInvalidArgument, "mass number must be positive, got %d", massA)
	}
	return &Engine{gas: gas, tracker: tracker, eventGen: eventGen, massA: massA}, nil
}

// Simulate implements Simulator: track p's vertex/energy/direction, then
// project the resulting trajectory into a hit pattern. rngSeed drives the
// event generator's diffusion sampling for this call only, so Simulate is
// safe to call concurrently for different candidates as long as each call
// gets a distinct seed.
func (e *Engine) Simulate(p ParameterVector, rngSeed int64) (Trajectory, HitPattern, error) {
	keMeV := p.EnergyPerU * float64(e.massA)
	bfield := e.tracker.FieldVector(p.Bmag)
	traj, err := e.tracker.TrackParticleWithField(p.Vertex, keMeV, p.Polar, p.Azimuth, bfield)
	if err != nil {
		return Trajectory{}, HitPattern{}, err
	}
	signal, err := e.eventGen.MakeEventWithSeed(traj, rngSeed)
	if err != nil {
		return Trajectory{}, HitPattern{}, err
	}
	return traj, e.eventGen.MakeHitPattern(signal), nil
}

// PredictedVertexEnergy returns the beam energy the gas model predicts at
// the depth of p's vertex, divided by the engine's mass number. The
// minimizer's vertex chi² does not use it; that term is the vertex's
// distance from the beam line.
func (e *Engine) PredictedVertexEnergy(p ParameterVector) float64 {
	return e.gas.VertexEnergy(p.Vertex[2]) / float64(e.massA)
}
