package hrtf

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
)

// gridElevations returns every elevation (in the [0,360) convention, poles
// at 90 and 270) the resampling grid covers for a given step.
func gridElevations(step int) []int {
	var out []int
	for el := 0; el <= 90; el += step {
		out = append(out, el)
	}
	for el := 270; el < 360; el += step {
		out = append(out, el)
	}
	return out
}

// buildGrid resamples s.raw onto the fixed angular grid (§4.2 step 4) and
// partitions each resulting HRIR (§4.2 step 5). delays holds the per-entry,
// per-ear onset delay removed by removeCommonDelay, keyed the same way as
// s.raw, blended alongside the audio.
func (s *Store) buildGrid(delays map[orientation][2]int) (map[orientation]*partitionedHRIR, string) {
	step := s.resampStep
	elevations := gridElevations(step)
	grid := make(map[orientation]*partitionedHRIR)

	rawKeys := make([]orientation, 0, len(s.raw))
	for k := range s.raw {
		rawKeys = append(rawKeys, k)
	}

	for az := 0; az <= 360; az += step {
		for _, el := range elevations {
			target := orientation{Azimuth: az % 360, Elevation: el}
			if az == 360 {
				target.Azimuth = 360
			}

			if h, ok := s.raw[target]; ok {
				d := delays[target]
				grid[target] = s.partition(h, d[0], d[1])
				continue
			}

			a, b, c, wa, wb, wc, ok := nearestTriangle(rawKeys, target)
			if !ok {
				continue
			}
			ha, hb, hc := s.raw[a], s.raw[b], s.raw[c]
			da, db, dc := delays[a], delays[b], delays[c]

			blendedL := blendSamples(ha.Left, hb.Left, hc.Left, wa, wb, wc)
			blendedR := blendSamples(ha.Right, hb.Right, hc.Right, wa, wb, wc)
			delayL := int(math.Round(wa*float64(da[0]) + wb*float64(db[0]) + wc*float64(dc[0])))
			delayR := int(math.Round(wa*float64(da[1]) + wb*float64(db[1]) + wc*float64(dc[1])))

			grid[target] = s.partition(HRIR{Left: blendedL, Right: blendedR}, delayL, delayR)
		}
	}

	if len(grid) == 0 {
		return nil, "EndSetup: resampling grid produced no entries"
	}
	return grid, ""
}

// partition splits hrir into blockSize partitions (zero-padded) and
// forward-transforms each one, ready for dsp.UPC.SetIRFreq.
func (s *Store) partition(h HRIR, delayL, delayR int) *partitionedHRIR {
	return &partitionedHRIR{
		Left:   partitionAndTransform(h.Left, s.blockSize),
		Right:  partitionAndTransform(h.Right, s.blockSize),
		DelayL: delayL,
		DelayR: delayR,
	}
}

func partitionAndTransform(ir []float32, blockSize int) [][]complex64 {
	parts := dsp.PartitionIR(ir, blockSize)
	proc, err := dsp.NewFrequencyProcessor(2 * blockSize)
	if err != nil {
		return nil
	}
	out := make([][]complex64, len(parts))
	padded := make([]complex64, 2*blockSize)
	for i, p := range parts {
		dsp.RealToComplex(padded, p)
		freq := make([]complex64, 2*blockSize)
		if err := proc.Forward(freq, padded); err != nil {
			continue
		}
		out[i] = freq
	}
	return out
}

func blendSamples(a, b, c []float32, wa, wb, wc float64) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if len(c) > n {
		n = len(c)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var va, vb, vc float32
		if i < len(a) {
			va = a[i]
		}
		if i < len(b) {
			vb = b[i]
		}
		if i < len(c) {
			vc = c[i]
		}
		out[i] = float32(wa)*va + float32(wb)*vb + float32(wc)*vc
	}
	return out
}

// nearestTriangle finds the 3 raw measurements closest to target (angular
// distance) that form a valid (non-degenerate) triangle, and returns
// barycentric weights for target within it.
func nearestTriangle(keys []orientation, target orientation) (a, b, c orientation, wa, wb, wc float64, ok bool) {
	if len(keys) < 3 {
		return
	}
	type cand struct {
		key  orientation
		dist float64
	}
	cands := make([]cand, len(keys))
	for i, k := range keys {
		cands[i] = cand{k, angularDistance(target, k)}
	}
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].dist < cands[j-1].dist; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}

	limit := len(cands)
	if limit > 12 {
		limit = 12
	}
	for i := 0; i < limit; i++ {
		for j := i + 1; j < limit; j++ {
			for k := j + 1; k < limit; k++ {
				p1, p2, p3 := cands[i].key, cands[j].key, cands[k].key
				bw, valid := barycentric(
					float64(target.Azimuth), float64(target.Elevation),
					float64(p1.Azimuth), float64(p1.Elevation),
					float64(p2.Azimuth), float64(p2.Elevation),
					float64(p3.Azimuth), float64(p3.Elevation),
				)
				if valid && bw.alpha >= 0 && bw.beta >= 0 && bw.gamma >= 0 {
					return p1, p2, p3, bw.alpha, bw.beta, bw.gamma, true
				}
			}
		}
	}
	// No enclosing triangle found (target outside the convex hull of
	// measurements, e.g. sparse data): fall back to the nearest point with
	// full weight.
	return cands[0].key, cands[0].key, cands[0].key, 1, 0, 0, true
}

func angularDistance(a, b orientation) float64 {
	dAz := float64(a.Azimuth - b.Azimuth)
	if dAz > 180 {
		dAz -= 360
	} else if dAz < -180 {
		dAz += 360
	}
	dEl := float64(a.Elevation - b.Elevation)
	return math.Hypot(dAz, dEl)
}
