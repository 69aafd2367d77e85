package recon

import (
	"os"

	"github.com/spf13/viper"
)

// SpeciesConfig names the tracked particle species by mass and charge
// number.
type SpeciesConfig struct {
	A int
	Z int
}

// BeamConfig describes the incident beam used to populate GasModel's
// vertex-energy table.
type BeamConfig struct {
	A          int
	Z          int
	EnergyPerU float64 // MeV/u at z=1m entrance
}

// Chi2Config holds the composite chi² normalizers and enable flags.
// PosNorm and EnNormFraction default to 0.01 m and 0.10 when the file
// LoadConfig reads does not set them; an explicit zero is kept.
type Chi2Config struct {
	PosNorm        float64
	EnNormFraction float64
	VertTolerance  float64 // meters; fixed tolerance for vertChi²'s beam-line distance
	PosEnabled     bool
	EnEnabled      bool
	VertEnabled    bool
}

// Config bundles every external configuration input: species, beam,
// fields, gains, geometry and chi² tuning.
type Config struct {
	Species SpeciesConfig
	Beam    BeamConfig

	EField [3]float64 // V/m
	BField [3]float64 // T

	IonizationEV    float64
	MicromegasGain  float64
	ElectronicsGain float64
	TiltRad         float64
	DriftVelocity   [3]float64 // m/s, already converted from cm/us
	ClockHz         float64    // Hz, already converted from MHz
	ShapingTimeS    float64
	DiffusionSigma  float64

	StepSeconds float64 // Tracker RK4 step; defaults to 1ns
	EMinMeVPerU float64 // Tracker stopping threshold

	ChamberRadiusM float64 // Tracker exit radius; defaults to the pad plane's outer radius
	ChamberLengthM float64 // Tracker exit length along z; defaults to 1m

	Chi2 Chi2Config
}

// defaultConfig fills in the parameters that have documented defaults, so a
// caller supplying a partial TOML file still gets a runnable configuration.
func defaultConfig() Config {
	return Config{
		StepSeconds: defaultStepSeconds,
		EMinMeVPerU: defaultEMinMeVPerU,
		Chi2: Chi2Config{
			PosNorm:        0.01,
			EnNormFraction: 0.10,
			VertTolerance:  0.01,
			PosEnabled:     true,
			EnEnabled:      true,
			VertEnabled:    true,
		},
	}
}

// LoadConfig reads a `recon.toml` from the directory named by the
// TPCRECON_CONFIG environment variable. Unlike some viper-based config
// loaders, a missing or malformed file is returned as an error rather than
// a panic, so library callers can decide how to handle it.
func LoadConfig() (Config, error) {
	dir := os.Getenv("TPCRECON_CONFIG")
	if dir == "" {
		return Config{}, newError(kindInvalidArgument, "environment variable TPCRECON_CONFIG is missing or empty")
	}
	return LoadConfigFrom(dir)
}

// LoadConfigFrom reads a `recon.toml` from the given directory.
func LoadConfigFrom(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("recon")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, newError(kindInvalidArgument, "reading recon.toml from %s: %s", dir, err)
	}

	cfg := defaultConfig()
	cfg.Species = SpeciesConfig{A: v.GetInt("species.a"), Z: v.GetInt("species.z")}
	cfg.Beam = BeamConfig{
		A:          v.GetInt("beam.a"),
		Z:          v.GetInt("beam.z"),
		EnergyPerU: v.GetFloat64("beam.energy_per_u"),
	}
	cfg.EField = toVec3(v.GetFloat64Slice("fields.e_field"))
	cfg.BField = toVec3(v.GetFloat64Slice("fields.b_field"))
	cfg.IonizationEV = v.GetFloat64("gas.ionization_ev")
	cfg.MicromegasGain = v.GetFloat64("gains.micromegas")
	cfg.ElectronicsGain = v.GetFloat64("gains.electronics")
	cfg.TiltRad = v.GetFloat64("geometry.tilt_rad")
	cfg.DriftVelocity = DriftVelocityFromCmPerUs(toVec3(v.GetFloat64Slice("drift.velocity_cm_per_us")))
	if hz := v.GetFloat64("drift.clock_mhz"); hz != 0 {
		cfg.ClockHz = ClockHzFromMHz(hz)
	}
	cfg.ShapingTimeS = v.GetFloat64("electronics.shaping_time_s")
	cfg.DiffusionSigma = v.GetFloat64("electronics.diffusion_sigma")

	if step := v.GetFloat64("tracker.step_seconds"); step > 0 {
		cfg.StepSeconds = step
	}
	if emin := v.GetFloat64("tracker.e_min_mev_per_u"); emin > 0 {
		cfg.EMinMeVPerU = emin
	}
	if r := v.GetFloat64("tracker.chamber_radius_m"); r > 0 {
		cfg.ChamberRadiusM = r
	}
	if l := v.GetFloat64("tracker.chamber_length_m"); l > 0 {
		cfg.ChamberLengthM = l
	}

	if v.IsSet("chi2.pos_norm") {
		cfg.Chi2.PosNorm = v.GetFloat64("chi2.pos_norm")
	}
	if v.IsSet("chi2.en_norm_fraction") {
		cfg.Chi2.EnNormFraction = v.GetFloat64("chi2.en_norm_fraction")
	}
	if v.IsSet("chi2.vert_tolerance") {
		cfg.Chi2.VertTolerance = v.GetFloat64("chi2.vert_tolerance")
	}
	if v.IsSet("chi2.pos_enabled") {
		cfg.Chi2.PosEnabled = v.GetBool("chi2.pos_enabled")
	}
	if v.IsSet("chi2.en_enabled") {
		cfg.Chi2.EnEnabled = v.GetBool("chi2.en_enabled")
	}
	if v.IsSet("chi2.vert_enabled") {
		cfg.Chi2.VertEnabled = v.GetBool("chi2.vert_enabled")
	}

	return cfg, nil
}

func toVec3(s []float64) [3]float64 {
	var v [3]float64
	for i := 0; i < len(s) && i < 3; i++ {
		v[i] = s[i]
	}
	return v
}
