package recon

import (
	"math"
	"math/rand"

	"github.com/go-kit/log"
	"gonum.org/v1/gonum/stat/distuv"
)

// EventGenerator forward-projects a tracked trajectory onto the pad plane's
// electronics, producing the same kind of sparse digitized signal real data
// acquisition would record.
type EventGenerator struct {
	pads *PadPlane

	tiltRad         float64
	driftVelocity   [3]float64 // m/s
	clockHz         float64
	shapingTimeS    float64
	diffusionSigma  float64 // meters, lateral spread per unit drift length
	ionizationEV    float64
	micromegasGain  float64
	electronicsGain float64
	nBuckets        int
	kernelNorm      float64 // sum of the discrete shaping kernel, so convolution conserves charge

	rngSrc rand.Source
	logger log.Logger
}

// NewEventGenerator builds an EventGenerator from the chamber's electronics
// configuration and pad-plane geometry. seed makes the diffusion sampling
// reproducible; callers that don't care can pass 0.
func NewEventGenerator(pads *PadPlane, cfg Config, seed int64, logger log.Logger) (*EventGenerator, error) {
	if pads == nil {
		return nil, newError(kindInvalidArgument, "event generator requires a non-nil PadPlane")
	}
	if cfg.IonizationEV <= 0 {
		return nil, newError(kindInvalidArgument, "ionization energy must be positive, got %v", cfg.IonizationEV)
	}
	nBuckets := defaultNTimeBuckets
	eg := &EventGenerator{
		pads:            pads,
		tiltRad:         cfg.TiltRad,
		driftVelocity:   cfg.DriftVelocity,
		clockHz:         cfg.ClockHz,
		shapingTimeS:    cfg.ShapingTimeS,
		diffusionSigma:  cfg.DiffusionSigma,
		ionizationEV:    cfg.IonizationEV,
		micromegasGain:  cfg.MicromegasGain,
		electronicsGain: cfg.ElectronicsGain,
		nBuckets:        nBuckets,
		rngSrc:          rand.NewSource(seed),
		logger:          scoped(logger, "eventgen"),
	}
	eg.kernelNorm = eg.computeKernelNorm()
	return eg, nil
}

// computeKernelNorm sums the discrete shaping kernel over its support so
// spreadShapedPulse can rescale by it, keeping the total charge deposited
// across a pulse's time buckets equal to the charge that arrived: h(t) is
// a shaping impulse response, which by convention conserves the area of
// whatever it convolves.
func (eg *EventGenerator) computeKernelNorm() float64 {
	if eg.clockHz <= 0 {
		return 0
	}
	bucketSeconds := 1.0 / eg.clockHz
	var sum float64
	for k := 0; k < spanBuckets; k++ {
		sum += eg.shapingResponse(float64(k) * bucketSeconds)
	}
	return sum
}

// MakeEvent projects traj onto the pad plane, returning the full per-pad,
// per-time-bucket signal. It draws diffusion samples from the
// EventGenerator's own rngSrc, so concurrent calls on the same instance
// race; callers that simulate multiple candidates concurrently (the
// Minimizer's worker pool) must use MakeEventWithSeed instead, which owns an
// unshared, call-local RNG.
func (eg *EventGenerator) MakeEvent(traj Trajectory) (PadSignal, error) {
	return eg.makeEvent(traj, eg.rngSrc)
}

// MakeEventWithSeed is MakeEvent with an explicit seed for this call's
// diffusion sampling. Each call constructs its own rand.Source local to the
// call and touches no state shared with eg or with any other concurrent
// call, so it is safe to call concurrently on a single EventGenerator from
// multiple goroutines (e.g. the Minimizer scoring a batch of candidates in
// parallel) as long as each call is given a distinct seed.
func (eg *EventGenerator) MakeEventWithSeed(traj Trajectory, seed int64) (PadSignal, error) {
	return eg.makeEvent(traj, rand.NewSource(seed))
}

func (eg *EventGenerator) makeEvent(traj Trajectory, rngSrc rand.Source) (PadSignal, error) {
	if len(traj.Points) < 2 {
		return PadSignal{}, newError(kindEmptyTrajectory, "trajectory has fewer than two samples")
	}

	signal := NewPadSignal()
	for i := 1; i < len(traj.Points); i++ {
		prev, cur := traj.Points[i-1], traj.Points[i]
		dE := prev.EnergyMeV - cur.EnergyMeV
		if dE <= 0 {
			continue
		}
		electrons := dE * 1e6 / eg.ionizationEV // MeV -> eV, divided by eV/electron
		eg.depositCharge(signal, cur.Position, electrons, rngSrc)
	}
	return signal, nil
}

// depositCharge drifts electrons liberated at pos to the pad plane, applies
// lateral diffusion proportional to drift distance, looks up the struck
// pad, and convolves the arrival with the shaping function before adding it
// to signal. rngSrc is the diffusion sampling source for this call only;
// depositCharge never reads or writes eg.rngSrc directly, so callers control
// exactly what RNG state (if any) is shared across concurrent calls.
func (eg *EventGenerator) depositCharge(signal PadSignal, pos [3]float64, electrons float64, rngSrc rand.Source) {
	tilted := rotateAboutX(eg.tiltRad, pos)

	driftSpeed := norm(eg.driftVelocity)
	if driftSpeed < epsilon {
		return
	}
	driftDistance := math.Abs(tilted[2])
	driftTimeS := driftDistance / driftSpeed

	sigma := eg.diffusionSigma * math.Sqrt(math.Max(driftDistance, 0))
	x, y := tilted[0], tilted[1]
	if sigma > epsilon {
		d := distuv.Normal{Mu: 0, Sigma: sigma, Src: rngSrc}
		x += d.Rand()
		y += d.Rand()
	}

	pad, err := eg.pads.PadAt(x, y)
	if err != nil || pad == NoPad {
		return // miss the pad plane entirely; charge is lost, not an error
	}

	arrivalBucket := int(driftTimeS * eg.clockHz)
	// electronics response gain: micromegas_gain * electronics_gain * q_e.
	gain := eg.micromegasGain * eg.electronicsGain * ElementaryChargeC
	charge := electrons * gain

	eg.spreadShapedPulse(signal, pad, arrivalBucket, charge)
}

// shapingResponse is the bipolar-free shaping function h(t) = (t/tau)
// exp(1 - t/tau), peak-normalized to 1 at t=tau, used by typical GET/AGET
// electronics chains.
func (eg *EventGenerator) shapingResponse(tSeconds float64) float64 {
	if tSeconds < 0 || eg.shapingTimeS <= 0 {
		return 0
	}
	x := tSeconds / eg.shapingTimeS
	return x * math.Exp(1-x)
}

// spreadShapedPulse convolves a unit charge arriving at arrivalBucket with
// the shaping response, adding the result to every time bucket the pulse
// has non-negligible amplitude in.
func (eg *EventGenerator) spreadShapedPulse(signal PadSignal, pad uint16, arrivalBucket int, charge float64) {
	if eg.kernelNorm <= 0 {
		return
	}
	bucketSeconds := 1.0 / eg.clockHz
	for k := 0; k < spanBuckets; k++ {
		bucket := arrivalBucket + k
		if bucket < 0 || bucket >= eg.nBuckets {
			continue
		}
		amp := charge * eg.shapingResponse(float64(k)*bucketSeconds) / eg.kernelNorm
		if amp == 0 {
			continue
		}
		signal.Add(pad, bucket, amp)
	}
}

// spanBuckets bounds the shaping kernel's support to a fixed number of time
// buckets. It does not scale with the shaping time: at a 25 MHz clock and
// tau = 400 ns the kernel is cut off at 2 tau. computeKernelNorm sums the
// same span, so the truncation does not change the deposited total.
const spanBuckets = 20

// MakePeaks reduces a full signal to its per-pad integrated amplitude and
// physical location, the way real reconstruction would read back a GET
// waveform: Amplitude is each pad's total collected charge (the sum over its
// time buckets, since the shaping convolution spreads one arrival's charge
// across many buckets), not the single tallest sample, and X/Y are the
// struck pad's physical centroid when the generator's PadPlane carries
// geometry data.
func (eg *EventGenerator) MakePeaks(signal PadSignal) PeaksTable {
	peaks := make(map[uint16][]Peak, len(signal.Samples))
	for pad, buckets := range signal.Samples {
		var total float64
		var bestBucket int
		bestAmp := math.Inf(-1)
		for b, amp := range buckets {
			total += amp
			if amp > bestAmp {
				bestAmp = amp
				bestBucket = b
			}
		}
		x, y, _ := eg.pads.Centroid(pad)
		peaks[pad] = []Peak{{Bucket: bestBucket, Amplitude: total, X: x, Y: y}}
	}
	return PeaksTable{Peaks: peaks}
}

// MakeMeshSignal sums every pad's waveform into the single time series a
// Micromegas mesh electrode would read.
func (eg *EventGenerator) MakeMeshSignal(signal PadSignal) MeshSignal {
	buckets := make(map[int]float64)
	for _, row := range signal.Samples {
		for b, amp := range row {
			buckets[b] += amp
		}
	}
	return MeshSignal{Buckets: buckets}
}

// MakeHitPattern integrates each pad's waveform over time, collapsing the
// time axis into a single per-pad charge total.
func (eg *EventGenerator) MakeHitPattern(signal PadSignal) HitPattern {
	charge := make(map[uint16]float64, len(signal.Samples))
	for pad, row := range signal.Samples {
		var total float64
		for _, amp := range row {
			total += amp
		}
		charge[pad] = total
	}
	return HitPattern{Charge: charge}
}
