package hrtf

import (
	"math"

	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

// PartitionedHRIR is a query result: frequency-domain partitions for one
// ear, ready to feed a dsp.UPC via SetIRFreq.
type PartitionedHRIR struct {
	Freq  [][]complex64
	Delay int
}

// GetHRIRPartitioned implements §4.2's query: snap to 1 degree, return the
// pole entry directly if within tolerance of a pole, otherwise either snap
// to the grid (interpolate=false) or blend the enclosing triangle
// (interpolate=true).
func (s *Store) GetHRIRPartitioned(ear geom.Ear, azimuthDeg, elevationDeg float64, interpolate bool) (PartitionedHRIR, result.Result) {
	if !s.ready {
		return PartitionedHRIR{}, s.reporter.SetResult(result.NotSet, "GetHRIRPartitioned called before EndSetup", "hrtf/query.go", 0)
	}
	if ear != geom.EarLeft && ear != geom.EarRight {
		return PartitionedHRIR{}, s.reporter.SetResult(result.InvalidParam, "GetHRIRPartitioned requires EarLeft or EarRight", "hrtf/query.go", 0)
	}

	az := wrapDeg(math.Round(azimuthDeg))
	el := wrapDeg(math.Round(elevationDeg))

	if el == 90 || el == 270 {
		return s.entryForEar(orientation{Azimuth: 0, Elevation: el}, ear)
	}

	if !interpolate {
		snapped := orientation{
			Azimuth:   (az / s.resampStep) * s.resampStep,
			Elevation: (el / s.resampStep) * s.resampStep,
		}
		return s.entryForEar(snapped, ear)
	}

	p1, p2, p3, alpha, beta, gamma, ok := s.enclosingTriangle(float64(az), float64(el))
	if !ok {
		return PartitionedHRIR{}, s.reporter.SetResult(result.OutOfRange, "GetHRIRPartitioned: no enclosing grid triangle", "hrtf/query.go", 0)
	}
	return s.blendEntries(p1, p2, p3, alpha, beta, gamma, ear)
}

// GetHRIRDelay mirrors GetHRIRPartitioned but returns only the scalar onset
// delay, in samples.
func (s *Store) GetHRIRDelay(ear geom.Ear, azimuthDeg, elevationDeg float64, interpolate bool) (int, result.Result) {
	h, res := s.GetHRIRPartitioned(ear, azimuthDeg, elevationDeg, interpolate)
	return h.Delay, res
}

// GetCustomizedDelay replaces the measured ITD with a Woodworth-formula
// estimate from head radius and interaural azimuth, used when customized
// ITD is enabled (§4.2).
func (s *Store) GetCustomizedDelay(ear geom.Ear, azimuthDeg, elevationDeg float64) (int, result.Result) {
	if ear != geom.EarLeft && ear != geom.EarRight {
		return 0, s.reporter.SetResult(result.InvalidParam, "GetCustomizedDelay requires EarLeft or EarRight", "hrtf/query.go", 0)
	}
	interauralAz := geom.InterauralAzimuth(azimuthDeg, elevationDeg)
	sign := 1.0
	if ear == geom.EarLeft {
		sign = -1.0
	}
	theta := sign * interauralAz * math.Pi / 180
	// Woodworth's formula: ITD = (r/c) * (theta + sin(theta)).
	const speedOfSound = 343.0
	itdSeconds := (s.headRadius / speedOfSound) * (theta + math.Sin(theta))
	delaySamples := int(math.Round(itdSeconds * s.sampleRate))
	return delaySamples, s.reporter.SetResult(result.OK, "GetCustomizedDelay computed", "hrtf/query.go", 0)
}

func (s *Store) entryForEar(o orientation, ear geom.Ear) (PartitionedHRIR, result.Result) {
	if o.Azimuth == 360 {
		o.Azimuth = 0
	}
	e, ok := s.grid[o]
	if !ok {
		return PartitionedHRIR{}, s.reporter.SetResult(result.OutOfRange, "GetHRIRPartitioned: orientation not on the grid", "hrtf/query.go", 0)
	}
	if ear == geom.EarLeft {
		return PartitionedHRIR{Freq: e.Left, Delay: e.DelayL}, s.reporter.SetResult(result.OK, "", "hrtf/query.go", 0)
	}
	return PartitionedHRIR{Freq: e.Right, Delay: e.DelayR}, s.reporter.SetResult(result.OK, "", "hrtf/query.go", 0)
}

// enclosingTriangle implements GetHRIR_(partitioned_)InterpolationMethod:
// locate the grid quadrant ABCD containing (az,el) and the midpoint P, then
// pick the 3 of 4 corners forming the triangle that contains the query
// point, matching the original's four-quadrant case split exactly.
func (s *Store) enclosingTriangle(az, el float64) (p1, p2, p3 orientation, alpha, beta, gamma float64, ok bool) {
	step := s.resampStep
	cAz := int(math.Trunc(az/float64(step))) * step
	cEl := int(math.Trunc(el/float64(step))) * step

	C := orientation{Azimuth: cAz, Elevation: cEl}
	A := orientation{Azimuth: cAz, Elevation: cEl + step}
	B := orientation{Azimuth: cAz + step, Elevation: cEl + step}
	D := orientation{Azimuth: cAz + step, Elevation: cEl}

	pAz := float64(cAz) + float64(step)*0.5
	pEl := float64(cEl) + float64(step)*0.5

	switch {
	case az >= pAz && el >= pEl: // second quadrant
		p1, p2, p3 = A, B, D
	case az >= pAz && el < pEl: // fourth quadrant
		p1, p2, p3 = B, C, D
	case az < pAz && el >= pEl: // first quadrant
		p1, p2, p3 = A, B, C
	default: // third quadrant
		p1, p2, p3 = A, C, D
	}
	w, valid := barycentric(az, el, float64(p1.Azimuth), float64(p1.Elevation), float64(p2.Azimuth), float64(p2.Elevation), float64(p3.Azimuth), float64(p3.Elevation))
	if !valid {
		return orientation{}, orientation{}, orientation{}, 0, 0, 0, false
	}
	return p1, p2, p3, w.alpha, w.beta, w.gamma, true
}

// blendEntries averages the three grid entries' time-aligned delays and
// frequency-domain partitions by (alpha,beta,gamma), mirroring
// CalculateHRIR_partitioned_FromBarycentricCoordinates. azimuth/elevation
// 360 alias to 0 per the original's wraparound handling.
func (s *Store) blendEntries(p1, p2, p3 orientation, alpha, beta, gamma float64, ear geom.Ear) (PartitionedHRIR, result.Result) {
	norm := func(o orientation) orientation {
		if o.Azimuth == 360 {
			o.Azimuth = 0
		}
		if o.Elevation == 360 {
			o.Elevation = 0
		}
		return o
	}
	e1, ok1 := s.grid[norm(p1)]
	e2, ok2 := s.grid[norm(p2)]
	e3, ok3 := s.grid[norm(p3)]
	if !ok1 || !ok2 || !ok3 {
		return PartitionedHRIR{}, s.reporter.SetResult(result.OutOfRange, "GetHRIRPartitioned: triangle corner missing from grid", "hrtf/query.go", 0)
	}

	var f1, f2, f3 [][]complex64
	var d1, d2, d3 int
	if ear == geom.EarLeft {
		f1, f2, f3 = e1.Left, e2.Left, e3.Left
		d1, d2, d3 = e1.DelayL, e2.DelayL, e3.DelayL
	} else {
		f1, f2, f3 = e1.Right, e2.Right, e3.Right
		d1, d2, d3 = e1.DelayR, e2.DelayR, e3.DelayR
	}

	n := len(f1)
	out := make([][]complex64, n)
	for p := 0; p < n; p++ {
		if f1[p] == nil || p >= len(f2) || p >= len(f3) || f2[p] == nil || f3[p] == nil {
			continue
		}
		blk := make([]complex64, len(f1[p]))
		for i := range blk {
			blk[i] = complex64(complex(
				alpha*real(complex128(f1[p][i]))+beta*real(complex128(f2[p][i]))+gamma*real(complex128(f3[p][i])),
				alpha*imag(complex128(f1[p][i]))+beta*imag(complex128(f2[p][i]))+gamma*imag(complex128(f3[p][i])),
			))
		}
		out[p] = blk
	}
	delay := int(math.Round(alpha*float64(d1) + beta*float64(d2) + gamma*float64(d3)))

	return PartitionedHRIR{Freq: out, Delay: delay}, s.reporter.SetResult(result.OK, "", "hrtf/query.go", 0)
}
