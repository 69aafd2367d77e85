package recon

import (
	"math"

	"github.com/ChristopherRabotin/ode"
	"github.com/go-kit/log"
)

// Tracker forward-integrates a charged particle through the chamber's
// electric and magnetic fields, losing energy continuously to the fill gas
// along the way, producing a Trajectory.
type Tracker struct {
	gas    *GasModel
	efield [3]float64
	bfield [3]float64 // nominal field; TrackParticle's default magnitude
	bDir   [3]float64 // unit direction scaled by a candidate's searched Bmag

	massA int     // mass number of the tracked species
	charZ int     // charge number of the tracked species
	eMinU float64 // stop once kinetic energy per nucleon drops below this, MeV/u

	rChamberM float64 // stop once |r_transverse| exceeds this, meters
	lChamberM float64 // stop once z leaves [0, lChamberM], meters

	stepSeconds float64
	logger      log.Logger
}

// NewTracker builds a Tracker for the given species in the given fields.
// step is the fixed RK4 step in seconds; zero selects the package default.
func NewTracker(gas *GasModel, efield, bfield [3]float64, massA, charZ int, eMinMeVPerU, stepSeconds float64, logger log.Logger) (*Tracker, error) {
	return NewTrackerWithChamber(gas, efield, bfield, massA, charZ, eMinMeVPerU, stepSeconds, 0, 0, logger)
}

// NewTrackerWithChamber is NewTracker with explicit bounds on the active
// volume: once the particle's transverse radius exceeds rChamberM, or its
// z leaves [0, lChamberM], tracking stops. Zero selects the canonical
// AT-TPC dimensions (the pad plane's outer radius, and the 1m beam-entry
// depth GasModel's vertex-energy table spans).
func NewTrackerWithChamber(gas *GasModel, efield, bfield [3]float64, massA, charZ int, eMinMeVPerU, stepSeconds, rChamberM, lChamberM float64, logger log.Logger) (*Tracker, error) {
	if gas == nil {
		return nil, newError(kindInvalidArgument, "tracker requires a non-nil GasModel")
	}
	if massA <= 0 {
		return nil, newError(kindInvalidArgument, "mass number must be positive, got %d", massA)
	}
	if stepSeconds <= 0 {
		stepSeconds = defaultStepSeconds
	}
	if eMinMeVPerU <= 0 {
		eMinMeVPerU = defaultEMinMeVPerU
	}
	if rChamberM <= 0 {
		rChamberM = outerRadiusM
	}
	if lChamberM <= 0 {
		lChamberM = 1.0
	}
	bDir := unit(bfield)
	if bDir == ([3]float64{}) {
		bDir = [3]float64{0, 0, 1} // chamber's nominal drift/field axis
	}
	return &Tracker{
		gas: gas, efield: efield, bfield: bfield, bDir: bDir,
		massA: massA, charZ: charZ, eMinU: eMinMeVPerU,
		rChamberM: rChamberM, lChamberM: lChamberM,
		stepSeconds: stepSeconds, logger: scoped(logger, "tracker"),
	}, nil
}

// StepSize returns the tracker's fixed RK4 step in seconds.
func (tr *Tracker) StepSize() float64 { return tr.stepSeconds }

// FieldVector scales the tracker's nominal field direction to the given
// magnitude in tesla, letting a caller (the Minimizer) search over the
// candidate parameter vector's magnetic-field magnitude while the field's
// orientation stays fixed by detector geometry.
func (tr *Tracker) FieldVector(bMagT float64) [3]float64 {
	return scale(tr.bDir, bMagT)
}

// massKg is the rest mass of the tracked species in kilograms.
func (tr *Tracker) massKg() float64 {
	return float64(tr.massA) * ProtonMassMeV * MeVToJ / (SpeedOfLightMPerS * SpeedOfLightMPerS)
}

// chargeC is the charge of the tracked species in coulombs.
func (tr *Tracker) chargeC() float64 {
	return float64(tr.charZ) * ElementaryChargeC
}

// trackerState is the ode.Integrable driving one call to TrackParticle. Its
// state vector is position and relativistic momentum, six components.
type trackerState struct {
	tr       *Tracker
	bfield   [3]float64 // field for this integration run; overrides tr.bfield
	pos      [3]float64
	mom      [3]float64 // kg*m/s
	points   []TrajectoryPoint
	stopped  bool
	stopKind errorKind
	stopMsg  string
}

func (s *trackerState) GetState() []float64 {
	return []float64{s.pos[0], s.pos[1], s.pos[2], s.mom[0], s.mom[1], s.mom[2]}
}

func (s *trackerState) SetState(t float64, f []float64) {
	s.pos = [3]float64{f[0], f[1], f[2]}
	s.mom = [3]float64{f[3], f[4], f[5]}

	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s.stopped = true
			s.stopKind = kindNumericalError
			s.stopMsg = "non-finite state encountered during integration"
			return
		}
	}

	v := s.velocity()
	speed := norm(v)
	energyMeV := s.kineticEnergyMeV()
	s.points = append(s.points, TrajectoryPoint{T: t, Position: s.pos, Velocity: v, EnergyMeV: energyMeV})

	if len(s.points) > maxTrackerSamples {
		s.stopped = true
		return
	}
	if energyMeV/float64(s.tr.massA) < s.tr.eMinU {
		s.stopped = true
		return
	}
	if speed < epsilon {
		s.stopped = true
		return
	}
	rTransverse := math.Hypot(s.pos[0], s.pos[1])
	if rTransverse > s.tr.rChamberM || s.pos[2] < 0 || s.pos[2] > s.tr.lChamberM {
		s.stopped = true
		return
	}
}

func (s *trackerState) Stop(t float64) bool {
	return s.stopped
}

// Func evaluates the Lorentz force plus a drag force representing
// continuous energy loss to the fill gas, opposing the direction of travel.
func (s *trackerState) Func(t float64, f []float64) []float64 {
	pos := [3]float64{f[0], f[1], f[2]}
	mom := [3]float64{f[3], f[4], f[5]}

	tmp := trackerState{tr: s.tr, bfield: s.bfield, pos: pos, mom: mom}
	v := tmp.velocity()

	q := s.tr.chargeC()
	lorentz := cross(v, s.bfield)
	var force [3]float64
	for i := 0; i < 3; i++ {
		force[i] = q * (s.tr.efield[i] + lorentz[i])
	}

	speed := norm(v)
	if speed > epsilon {
		keMeV := tmp.kineticEnergyMeV()
		dEdx := s.tr.gas.StoppingPower(keMeV) // MeV/m
		dragMag := dEdx * MeVToJ // N
		u := unit(v)
		for i := 0; i < 3; i++ {
			force[i] -= dragMag * u[i]
		}
	}

	return []float64{v[0], v[1], v[2], force[0], force[1], force[2]}
}

// velocity returns the relativistic velocity corresponding to the state's
// momentum, v = p c^2 / E.
func (s *trackerState) velocity() [3]float64 {
	m := s.tr.massKg()
	mc2 := m * SpeedOfLightMPerS * SpeedOfLightMPerS
	etot := math.Sqrt(dot(s.mom, s.mom)*SpeedOfLightMPerS*SpeedOfLightMPerS + mc2*mc2)
	if etot < epsilon {
		return [3]float64{0, 0, 0}
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		v[i] = s.mom[i] * SpeedOfLightMPerS * SpeedOfLightMPerS / etot
	}
	return v
}

// kineticEnergyMeV returns the state's total (not per-nucleon) kinetic
// energy in MeV.
func (s *trackerState) kineticEnergyMeV() float64 {
	m := s.tr.massKg()
	mc2 := m * SpeedOfLightMPerS * SpeedOfLightMPerS
	etot := math.Sqrt(dot(s.mom, s.mom)*SpeedOfLightMPerS*SpeedOfLightMPerS + mc2*mc2)
	return (etot - mc2) / MeVToJ
}

// momentumFromEnergy returns the relativistic momentum vector for a
// particle of the tracker's species moving along dir (need not be
// normalized) with the given total kinetic energy in MeV.
func (tr *Tracker) momentumFromEnergy(keMeV float64, dir [3]float64) [3]float64 {
	m := tr.massKg()
	mc2 := m * SpeedOfLightMPerS * SpeedOfLightMPerS
	etot := keMeV*MeVToJ + mc2
	pc := math.Sqrt(math.Max(etot*etot-mc2*mc2, 0))
	p := pc / SpeedOfLightMPerS
	u := unit(dir)
	return [3]float64{u[0] * p, u[1] * p, u[2] * p}
}

// TrackParticle integrates a particle starting at vertex with the given
// kinetic energy (MeV, total not per-nucleon) and direction, until it stops
// (energy threshold, leaves the active volume, reaches the sample-count cap,
// or a numerical fault), returning every RK4 sample taken.
func (tr *Tracker) TrackParticle(vertex [3]float64, keMeV float64, polar, azimuth float64) (Trajectory, error) {
	return tr.TrackParticleWithField(vertex, keMeV, polar, azimuth, tr.bfield)
}

// TrackParticleWithField is TrackParticle with an explicit magnetic field
// vector for this run, letting the Minimizer hold orientation fixed while
// searching over B_mag (see Tracker.FieldVector).
func (tr *Tracker) TrackParticleWithField(vertex [3]float64, keMeV float64, polar, azimuth float64, bfield [3]float64) (Trajectory, error) {
	dir := sphericalToCartesian(1, polar, azimuth)
	mom := tr.momentumFromEnergy(keMeV, dir)

	st := &trackerState{tr: tr, bfield: bfield, pos: vertex, mom: mom}
	st.points = append(st.points, TrajectoryPoint{T: 0, Position: vertex, Velocity: st.velocity(), EnergyMeV: keMeV})

	tr.logger.Log("level", "debug", "subsys", "tracker", "vertex", vertex, "energy_mev", keMeV)
	ode.NewRK4(0, tr.stepSeconds, st).Solve()

	if st.stopKind == kindNumericalError {
		return Trajectory{}, newError(kindNumericalError, "%s", st.stopMsg)
	}
	if len(st.points) < 2 {
		return Trajectory{}, newError(kindEmptyTrajectory, "trajectory has fewer than two samples")
	}
	return Trajectory{Points: st.points}, nil
}
