package recon

// GasModel answers two questions about the chamber's fill gas: how much
// energy per unit length a projectile loses at a given energy
// (StoppingPower), and what the residual energy of the beam is after
// penetrating a given depth (BeamEnergyAt). Both tables are supplied by an
// external gas-physics collaborator and treated as authoritative once
// constructed.
type GasModel struct {
	// eloss is MeV/m, indexed 0..len(eloss)-1 at 1 keV spacing.
	eloss []float64
	// enVsZ is MeV, indexed 0..1000 at 1mm spacing over z in [0, 1] m. The
	// beam enters the active volume at z=1m moving in -z, so enVsZ[0] is
	// the energy at the entrance and enVsZ[1000] is the energy after
	// traversing the full meter.
	enVsZ []float64
	// maxEnergyMeV is the energy at which the eloss table ends.
	maxEnergyMeV float64
}

// enVsZPoints is the fixed 1mm-spaced table length (z from 0 to 1000mm
// inclusive).
const enVsZPoints = 1001

// NewGasModel constructs a GasModel from caller-supplied tables. eloss must
// have exactly int(maxEnergyMeV*1000)+1 entries (1 keV spacing from 0 to
// maxEnergyMeV); enVsZ must have exactly 1001 entries (1mm spacing from 0 to
// 1000mm).
func NewGasModel(eloss []float64, enVsZ []float64, maxEnergyMeV float64) (*GasModel, error) {
	wantELossLen := int(maxEnergyMeV*1000) + 1
	if len(eloss) != wantELossLen {
		return nil, newError(kindInvalidArgument, "eloss table length %d, want %d for maxEnergyMeV=%v", len(eloss), wantELossLen, maxEnergyMeV)
	}
	if len(enVsZ) != enVsZPoints {
		return nil, newError(kindInvalidArgument, "enVsZ table length %d, want %d", len(enVsZ), enVsZPoints)
	}
	for _, v := range eloss {
		if v < 0 {
			return nil, newError(kindInvalidArgument, "eloss table contains a negative entry")
		}
	}
	return &GasModel{eloss: eloss, enVsZ: enVsZ, maxEnergyMeV: maxEnergyMeV}, nil
}

// StoppingPower returns dE/dx in MeV/m at the given kinetic energy (MeV),
// linearly interpolated on the 1 keV table, clamped to the nearest table
// endpoint when eMeV is out of range.
func (g *GasModel) StoppingPower(eMeV float64) float64 {
	return interpolateClamped(g.eloss, eMeV*1000, 1.0)
}

// BeamEnergyAt returns the residual beam energy in MeV after penetrating
// zMeters of depth from the z=1m entrance, linearly interpolated on the
// 1mm table, clamped at both ends.
func (g *GasModel) BeamEnergyAt(zMeters float64) float64 {
	return interpolateClamped(g.enVsZ, zMeters*1000, 1.0)
}

// VertexEnergy is a named alias for BeamEnergyAt: reconstruction code reads
// this value as "the projectile energy at the reaction vertex's depth," and
// spelling it that way at call sites is clearer than BeamEnergyAt even
// though the two compute the same lookup.
func (g *GasModel) VertexEnergy(zMeters float64) float64 {
	return g.BeamEnergyAt(zMeters)
}

// interpolateClamped performs linear interpolation into table, which is
// assumed to be sampled at uniform spacing step starting at index 0, with
// x given in the same units as the table's index (i.e. already divided by
// the physical spacing, e.g. keV for a 1keV table). Out-of-range x clamps
// to the nearest endpoint.
func interpolateClamped(table []float64, x float64, step float64) float64 {
	if len(table) == 0 {
		return 0
	}
	idx := x / step
	if idx <= 0 {
		return table[0]
	}
	last := float64(len(table) - 1)
	if idx >= last {
		return table[len(table)-1]
	}
	lo := int(idx)
	frac := idx - float64(lo)
	if lo+1 >= len(table) {
		return table[lo]
	}
	return table[lo]*(1-frac) + table[lo+1]*frac
}
