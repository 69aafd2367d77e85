package recon

import (
	"fmt"
	"math"
)

// TrajectoryPoint is one sample of a tracked particle's state.
type TrajectoryPoint struct {
	T         float64 // seconds since the start of tracking
	Position  [3]float64
	Velocity  [3]float64
	EnergyMeV float64 // kinetic energy at this sample
}

// Trajectory is the ordered set of samples TrackParticle produces.
type Trajectory struct {
	Points []TrajectoryPoint
}

// Positions returns the position of every sample, in order.
func (tr Trajectory) Positions() [][3]float64 {
	out := make([][3]float64, len(tr.Points))
	for i, p := range tr.Points {
		out[i] = p.Position
	}
	return out
}

// String renders a compact one-line summary for logging.
func (tr Trajectory) String() string {
	if len(tr.Points) == 0 {
		return "Trajectory{empty}"
	}
	first, last := tr.Points[0], tr.Points[len(tr.Points)-1]
	return fmt.Sprintf("Trajectory{n=%d, t=[%.3e,%.3e]s, E=[%.3f,%.3f]MeV}",
		len(tr.Points), first.T, last.T, first.EnergyMeV, last.EnergyMeV)
}

// CSVRows renders the trajectory as CSV rows, header first.
func (tr Trajectory) CSVRows() []string {
	rows := make([]string, 0, len(tr.Points)+1)
	rows = append(rows, "t,x,y,z,vx,vy,vz,energy_mev")
	for _, p := range tr.Points {
		rows = append(rows, fmt.Sprintf("%g,%g,%g,%g,%g,%g,%g,%g",
			p.T, p.Position[0], p.Position[1], p.Position[2],
			p.Velocity[0], p.Velocity[1], p.Velocity[2], p.EnergyMeV))
	}
	return rows
}

// ParameterVector is the set of track parameters the minimizer searches
// over: vertex position and momentum direction/magnitude.
type ParameterVector struct {
	Vertex     [3]float64
	EnergyPerU float64 // MeV/u at the vertex
	Azimuth    float64 // azimuth angle, radians
	Polar      float64 // polar angle, radians
	Bmag       float64 // local magnetic field magnitude, tesla
	BeamEnergy float64 // MeV/u of the beam, copied from BeamPrior.EnergyPerU by the minimizer
}

func (p ParameterVector) String() string {
	return fmt.Sprintf("ParameterVector{vertex=%v, E/u=%.4f, azimuth=%.4f, polar=%.4f, bmag=%.4f, beamE=%.4f}",
		p.Vertex, p.EnergyPerU, p.Azimuth, p.Polar, p.Bmag, p.BeamEnergy)
}

// Chi2Set breaks a composite chi² score into its contributing terms.
type Chi2Set struct {
	Position float64
	Energy   float64
	Vertex   float64
	Total    float64
}

func (c Chi2Set) String() string {
	return fmt.Sprintf("Chi2{pos=%.6g, en=%.6g, vert=%.6g, total=%.6g}",
		c.Position, c.Energy, c.Vertex, c.Total)
}

// MinimizeResult is the outcome of a Minimizer.Minimize call.
type MinimizeResult struct {
	Best       ParameterVector
	BestChi2   Chi2Set
	Iterations int

	// AllParams lists every candidate sampled, in canonical
	// iteration-major, sample-minor order: AllParams[iter*NumPts+j]
	// is the j-th candidate drawn in iteration iter, regardless of the
	// order concurrent workers finished scoring them in.
	AllParams []ParameterVector
	// MinChis[iter] is the winning candidate's Chi2Set for that iteration,
	// or a Chi2Set with Total=+Inf if every candidate failed to simulate.
	MinChis []Chi2Set
	// GoodIdx[iter] is the within-iteration index (0..NumPts-1) of the
	// winning candidate, or -1 if every candidate in that iteration failed.
	GoodIdx []int
}

func (r MinimizeResult) String() string {
	return fmt.Sprintf("MinimizeResult{iters=%d, best=%v, chi2=%v}", r.Iterations, r.Best, r.BestChi2)
}

// PadSignal is a sparse per-pad, per-time-bucket waveform: samples[padID]
// holds only the nonzero time buckets for that pad, keyed by bucket index.
type PadSignal struct {
	Samples map[uint16]map[int]float64
}

// NewPadSignal returns an empty PadSignal ready for accumulation.
func NewPadSignal() PadSignal {
	return PadSignal{Samples: make(map[uint16]map[int]float64)}
}

// Add accumulates amplitude onto the named pad's time bucket.
func (s PadSignal) Add(pad uint16, bucket int, amplitude float64) {
	row, ok := s.Samples[pad]
	if !ok {
		row = make(map[int]float64)
		s.Samples[pad] = row
	}
	row[bucket] += amplitude
}

// Map returns the signal as nested plain maps, convenient for callers that
// don't need the PadSignal type itself.
func (s PadSignal) Map() map[uint16]map[int]float64 {
	return s.Samples
}

// MeshSignal is the sum of every pad's waveform, indexed by time bucket:
// the whole-detector response a Micromegas mesh electrode would see.
type MeshSignal struct {
	Buckets map[int]float64
}

// HitPattern is the per-pad integrated charge, collapsing the time axis.
type HitPattern struct {
	Charge map[uint16]float64
}

func (h HitPattern) String() string {
	return fmt.Sprintf("HitPattern{%d pads}", len(h.Charge))
}

// PeaksTable lists, per pad, the time buckets and amplitudes of detected
// signal peaks.
type PeaksTable struct {
	Peaks map[uint16][]Peak
}

// Peak is a single detected pulse on one pad: its integrated amplitude (the
// sum of every time bucket's charge, not the single tallest sample) and the
// physical (x,y) centroid of the struck pad, when known.
type Peak struct {
	Bucket    int // time bucket of the pulse's largest sample, for reference
	Amplitude float64
	X, Y      float64
}

func (t PeaksTable) CSVRows() []string {
	var rows []string
	rows = append(rows, "pad,bucket,amplitude,x,y")
	for pad, peaks := range t.Peaks {
		for _, p := range peaks {
			rows = append(rows, fmt.Sprintf("%d,%d,%g,%g,%g", pad, p.Bucket, p.Amplitude, p.X, p.Y))
		}
	}
	return rows
}

// BeamPrior summarizes prior knowledge of the incoming beam used to
// regularize the minimizer's search: the beam axis, for vertChi²'s
// transverse-distance term (x = XSlope*z + XIntercept, y = YSlope*z +
// YIntercept), and the beam's energy per nucleon, for clamping the
// minimizer's energy candidates.
type BeamPrior struct {
	XSlope, XIntercept float64
	YSlope, YIntercept float64

	EnergyPerU    float64
	SigmaFraction float64 // default 0.2 when unset
}

// transverseDistance returns the distance from (x,y) to the beam line at
// depth z.
func (b BeamPrior) transverseDistance(x, y, z float64) float64 {
	dx := x - (b.XSlope*z + b.XIntercept)
	dy := y - (b.YSlope*z + b.YIntercept)
	return math.Sqrt(dx*dx + dy*dy)
}

// MinimizeOptions tunes the Minimizer's contracting-hypercube search.
type MinimizeOptions struct {
	NumIters            int
	NumPts              int
	RedFactor           float64 // hypercube contraction factor per iteration, in (0,1)
	EnergySigmaFraction float64 // fallback BeamPrior.SigmaFraction when the caller leaves it unset
}

func (o MinimizeOptions) withDefaults() MinimizeOptions {
	if o.NumIters <= 0 {
		o.NumIters = 10
	}
	if o.NumPts <= 0 {
		o.NumPts = 200
	}
	if o.RedFactor <= 0 || o.RedFactor >= 1 {
		o.RedFactor = 0.6
	}
	if o.EnergySigmaFraction <= 0 {
		o.EnergySigmaFraction = 0.2
	}
	return o
}

func (o MinimizeOptions) String() string {
	return fmt.Sprintf("MinimizeOptions{iters=%d, pts=%d, redFactor=%.3f, energySigmaFraction=%.3f}",
		o.NumIters, o.NumPts, o.RedFactor, o.EnergySigmaFraction)
}
