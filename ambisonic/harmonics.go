// Package ambisonic implements the Ambisonic Reverb Store (C5) and the
// Environment / Ambisonic DSP (C7): the virtual-Ambisonic B-format reverb
// path driven by six virtual-loudspeaker BRIRs, and the higher-order
// (N3D/SN3D/maxN) anechoic variant whose AHRBIR is derived from a
// virtual-loudspeaker decoding of the listener's HRIR table (§4.4).
//
// Grounded on 3dti_Toolkit/BinauralSpatializer/{Environment,HRTF}.{h,cpp}
// for the B-format encode/convolve/sum/IFFT shape and
// HRTF.h/AmbisonicEncoder.h for the higher-order channel math; reuses this
// module's dsp.UPC "without memory" variant (§4.1) for the shared-IFFT
// frequency accumulation spec.md §4.4 describes.
package ambisonic

import "math"

// Order is the Ambisonic order for the higher-order anechoic variant (§6).
type Order int

const (
	Order1 Order = 1
	Order2 Order = 2
	Order3 Order = 3
)

// ChannelCount returns (N+1)^2, the number of spherical-harmonic channels
// for this order (§4.4).
func (o Order) ChannelCount() int { return (int(o) + 1) * (int(o) + 1) }

// VirtualSpeakerCount returns the number of uniformly distributed virtual
// loudspeaker directions used to derive the AHRBIR for this order: 6 (N=1),
// 12 (N=2), 20 (N=3) — octahedron, icosahedron, and dodecahedron vertices
// respectively (§4.4).
func (o Order) VirtualSpeakerCount() int {
	switch o {
	case Order1:
		return 6
	case Order2:
		return 12
	default:
		return 20
	}
}

// Normalization selects the scale applied to higher-order Ambisonic
// channels "on the way out" of the encoder (§4.4, §6 control API). It never
// changes the rendered acoustic result: AmbisonicDSP applies the same
// per-channel factor at encode and divides it back out at decode, exactly
// as a normalization-aware real decoder would.
type Normalization int

const (
	N3D Normalization = iota
	SN3D
	MaxN
)

// normalizationScale returns the per-ACN-channel scale factor for norm,
// relative to the N3D basis sphericalHarmonicN3D already returns.
func normalizationScale(acn int, norm Normalization) float64 {
	switch norm {
	case SN3D:
		l, _ := acnToLM(acn)
		return 1 / math.Sqrt(float64(2*l+1))
	case MaxN:
		if acn < len(maxNScale) && maxNScale[acn] > 0 {
			return 1 / maxNScale[acn]
		}
		return 1
	default:
		return 1
	}
}

// acnToLM decodes an ACN channel index into spherical-harmonic degree l and
// order m (l >= 0, -l <= m <= l), matching the standard
// "Ambisonic Channel Number" convention acn = l*(l+1)+m.
func acnToLM(acn int) (l, m int) {
	l = int(math.Sqrt(float64(acn)))
	m = acn - l*(l+1)
	return
}

// sphericalHarmonicN3D evaluates the N3D-normalized real spherical harmonic
// Y_l^m at the unit direction (x,y,z), for l in [0,3] (the orders this
// module supports). Closed forms below follow the standard real
// solid-harmonic table used throughout the Ambisonic literature.
func sphericalHarmonicN3D(l, m int, x, y, z float64) float64 {
	switch l {
	case 0:
		return 1
	case 1:
		switch m {
		case -1:
			return math.Sqrt(3) * y
		case 0:
			return math.Sqrt(3) * z
		default:
			return math.Sqrt(3) * x
		}
	case 2:
		switch m {
		case -2:
			return math.Sqrt(15) * x * y
		case -1:
			return math.Sqrt(15) * y * z
		case 0:
			return math.Sqrt(5) / 2 * (3*z*z - 1)
		case 1:
			return math.Sqrt(15) * x * z
		default:
			return math.Sqrt(15) / 2 * (x*x - y*y)
		}
	default: // l == 3
		switch m {
		case -3:
			return math.Sqrt(35.0/8) * y * (3*x*x - y*y)
		case -2:
			return math.Sqrt(105) * x * y * z
		case -1:
			return math.Sqrt(21.0/8) * y * (5*z*z - 1)
		case 0:
			return math.Sqrt(7) / 2 * z * (5*z*z - 3)
		case 1:
			return math.Sqrt(21.0/8) * x * (5*z*z - 1)
		case 2:
			return math.Sqrt(105) / 2 * z * (x*x - y*y)
		default:
			return math.Sqrt(35.0/8) * x * (x*x - 3*y*y)
		}
	}
}

// maxNScale holds, per ACN channel (0..15, orders 0-3), the peak absolute
// value of its N3D spherical harmonic over the unit sphere. maxN
// normalization divides by this so every channel's signal peaks at unit
// gain for an on-axis source; the degree-3 peaks are unwieldy to derive in
// closed form so they are found by a one-time numerical sweep instead.
var maxNScale [16]float64

func init() {
	const steps = 90
	for acn := 0; acn < 16; acn++ {
		l, m := acnToLM(acn)
		peak := 0.0
		for i := 0; i < steps; i++ {
			az := 2 * math.Pi * float64(i) / steps
			for j := 0; j <= steps/2; j++ {
				el := math.Pi * (float64(j)/float64(steps/2) - 0.5)
				x := math.Cos(el) * math.Cos(az)
				y := math.Cos(el) * math.Sin(az)
				z := math.Sin(el)
				if v := math.Abs(sphericalHarmonicN3D(l, m, x, y, z)); v > peak {
					peak = v
				}
			}
		}
		maxNScale[acn] = peak
	}
}

// virtualSpeakerDirections returns VirtualSpeakerCount unit direction
// vectors (x,y,z) for order, using the vertices of the octahedron (6),
// icosahedron (12), or dodecahedron (20) — all spherical designs well
// suited to Ambisonic virtual-loudspeaker decoding (§4.4).
func virtualSpeakerDirections(o Order) [][3]float64 {
	switch o {
	case Order1:
		return [][3]float64{
			{1, 0, 0}, {-1, 0, 0},
			{0, 0, 1}, {0, 0, -1},
			{0, 1, 0}, {0, -1, 0},
		}
	case Order2:
		phi := (1 + math.Sqrt(5)) / 2
		raw := [][3]float64{
			{0, 1, phi}, {0, 1, -phi}, {0, -1, phi}, {0, -1, -phi},
			{1, phi, 0}, {1, -phi, 0}, {-1, phi, 0}, {-1, -phi, 0},
			{phi, 0, 1}, {phi, 0, -1}, {-phi, 0, 1}, {-phi, 0, -1},
		}
		return normalizeAll(raw)
	default:
		phi := (1 + math.Sqrt(5)) / 2
		invPhi := 1 / phi
		var raw [][3]float64
		for _, sx := range []float64{1, -1} {
			for _, sy := range []float64{1, -1} {
				for _, sz := range []float64{1, -1} {
					raw = append(raw, [3]float64{sx, sy, sz})
				}
			}
		}
		for _, s1 := range []float64{1, -1} {
			for _, s2 := range []float64{1, -1} {
				raw = append(raw, [3]float64{0, s1 * invPhi, s2 * phi})
				raw = append(raw, [3]float64{s1 * invPhi, s2 * phi, 0})
				raw = append(raw, [3]float64{s1 * phi, 0, s2 * invPhi})
			}
		}
		return normalizeAll(raw)
	}
}

func normalizeAll(pts [][3]float64) [][3]float64 {
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		n := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
		if n < 1e-12 {
			n = 1
		}
		out[i] = [3]float64{p[0] / n, p[1] / n, p[2] / n}
	}
	return out
}
