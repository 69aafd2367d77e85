package recon

import "testing"

func TestGeneratePadCoordinatesCount(t *testing.T) {
	pads := GeneratePadCoordinates(0)
	if len(pads) != NumPads {
		t.Fatalf("got %d pads, want %d", len(pads), NumPads)
	}
	seen := make(map[uint16]bool, len(pads))
	for _, p := range pads {
		if seen[p.ID] {
			t.Fatalf("duplicate pad id %d", p.ID)
		}
		seen[p.ID] = true
		if int(p.ID) >= NumPads {
			t.Fatalf("pad id %d out of range", p.ID)
		}
	}
}

func TestPadAtRoundTrip(t *testing.T) {
	plane, err := BuildCanonicalLUT(0, innerEdgeM/2, innerEdgeM/2)
	if err != nil {
		t.Fatalf("BuildCanonicalLUT: %s", err)
	}
	pads := GeneratePadCoordinates(0)
	matches := 0
	for _, p := range pads {
		cx := (p.Vertices[0][0] + p.Vertices[1][0] + p.Vertices[2][0]) / 3
		cy := (p.Vertices[0][1] + p.Vertices[1][1] + p.Vertices[2][1]) / 3
		id, err := plane.PadAt(cx, cy)
		if err != nil {
			t.Fatalf("PadAt(%v,%v): %s", cx, cy, err)
		}
		if id == p.ID {
			matches++
		}
	}
	// The raster has finite resolution, so neighboring small pads can share
	// a cell; most centroids must still round-trip to their own id.
	if float64(matches)/float64(len(pads)) < 0.9 {
		t.Fatalf("only %d/%d pad centroids round-tripped", matches, len(pads))
	}
}

func TestCentroidKnownForCanonicalLUTUnknownForRawLUT(t *testing.T) {
	canonical, err := BuildCanonicalLUT(0, innerEdgeM/2, innerEdgeM/2)
	if err != nil {
		t.Fatalf("BuildCanonicalLUT: %s", err)
	}
	if _, _, ok := canonical.Centroid(0); !ok {
		t.Fatal("expected a known centroid for pad 0 of the canonical LUT")
	}

	lut := [][]uint16{{0, 1}, {2, 3}}
	raw, err := NewPadPlane(lut, 0, 1, 0, 1, 0, 4)
	if err != nil {
		t.Fatalf("NewPadPlane: %s", err)
	}
	if _, _, ok := raw.Centroid(0); ok {
		t.Fatal("expected no centroid data for a PadPlane built from a raw LUT")
	}
}

func TestPadAtOutOfRangeIsLookupMiss(t *testing.T) {
	lut := [][]uint16{{0, 1}, {2, 3}}
	plane, err := NewPadPlane(lut, 0, 1, 0, 1, 0, 4)
	if err != nil {
		t.Fatalf("NewPadPlane: %s", err)
	}
	if _, err := plane.PadAt(100, 100); err == nil {
		t.Fatal("expected ErrLookupMiss for out-of-range point")
	}
}

func TestPadPlaneRotationInvariance(t *testing.T) {
	lut := make([][]uint16, 10)
	for i := range lut {
		lut[i] = make([]uint16, 10)
		for j := range lut[i] {
			lut[i][j] = uint16(i*10 + j)
		}
	}
	const theta = 0.37
	unrotated, err := NewPadPlane(lut, -5, 1, -5, 1, 0, 100)
	if err != nil {
		t.Fatalf("NewPadPlane: %s", err)
	}
	rotated, err := NewPadPlane(lut, -5, 1, -5, 1, theta, 100)
	if err != nil {
		t.Fatalf("NewPadPlane: %s", err)
	}
	for _, p := range [][2]float64{{1.2, -2.3}, {0, 0}, {3.3, 4.1}, {-4, 2}} {
		x, y := rotateAboutZ(theta, p[0], p[1])
		got, err1 := rotated.PadAt(x, y)
		want, err2 := unrotated.PadAt(p[0], p[1])
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("rotation invariance mismatch in errors for %v", p)
		}
		if err1 == nil && got != want {
			t.Fatalf("rotation invariance failed for %v: got %d want %d", p, got, want)
		}
	}
}
