// Package hrtf implements the HRIR/BRIR store (§4.2): the BeginSetup/
// AddHRIR/EndSetup build protocol, common-delay removal, pole filling, the
// az=0->360 wraparound copy, barycentric grid resampling, and the
// GetHRIRPartitioned/GetHRIRDelay/GetCustomizedDelay query surface.
//
// Grounded on 3dti_Toolkit/BinauralSpatializer/HRTF.{h,cpp}; the partitioned
// storage itself is built with this module's dsp package (UPC/PartitionIR)
// instead of the original's fftsg.h-based transform.
package hrtf

import (
	"math"
	"sort"

	"github.com/3dti-go/binaural/pkg/resampler"
	"github.com/3dti-go/binaural/result"
)

// Constants mirroring HRTF.h's #defines.
const (
	DefaultResamplingStep  = 5
	DefaultMeasuredDistance = 1.95

	numberOfParts                = 4  // NUMBER_OF_PARTS
	poleFillAzimuthStep          = 15 // AZIMUTH_STEP
	maxDistanceBetweenElevations = 5
)

// orientation is an integer-degree (azimuth, elevation) key, matching the
// original's int32_t orientation struct used as the database key.
type orientation struct {
	Azimuth   int
	Elevation int
}

// HRIR is one measured or resampled impulse response, one slice per ear.
type HRIR struct {
	Left  []float32
	Right []float32
}

// partitionedHRIR is the frequency-domain partitioned form stored per grid
// entry, ready to hand to a dsp.UPC via SetIRFreq without reallocation.
type partitionedHRIR struct {
	Left  [][]complex64
	Right [][]complex64
	DelayL int
	DelayR int
}

// Store is the HRIR table for one measurement set (one HRTF or BRIR table).
// It is built once on the control thread (BeginSetup/AddHRIR/EndSetup); after
// EndSetup it is only read, and source.Source queries it (GetHRIRPartitioned,
// GetHRIRDelay) once per processed block.
type Store struct {
	reporter *result.Reporter

	setupInProgress bool
	ready           bool

	hrirLength  int
	distance    float64
	sampleRate  float64
	blockSize   int
	resampStep  int

	enableCustomITD bool
	headRadius      float64

	nativeSampleRate float64

	raw map[orientation]HRIR

	grid map[orientation]*partitionedHRIR
}

// NewStore creates an empty store. sampleRate/blockSize determine the
// partition geometry used once EndSetup runs.
func NewStore(reporter *result.Reporter, sampleRate float64, blockSize int) *Store {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	return &Store{
		reporter:   reporter,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		resampStep: DefaultResamplingStep,
		distance:   DefaultMeasuredDistance,
		raw:        make(map[orientation]HRIR),
	}
}

// SetResamplingStep overrides the default 5 degree grid step. Must be called
// before BeginSetup.
func (s *Store) SetResamplingStep(step int) {
	if step > 0 {
		s.resampStep = step
	}
}

// SetHeadRadius sets the listener head radius (metres) used by
// GetCustomizedDelay's Woodworth formula.
func (s *Store) SetHeadRadius(r float64) { s.headRadius = r }

// EnableCustomizedITD toggles the Woodworth-formula delay override.
func (s *Store) EnableCustomizedITD(enable bool) { s.enableCustomITD = enable }

// SetNativeSampleRate records the sample rate the loaded table was measured
// at. If it differs from the store's own sampleRate, EndSetup resamples
// every raw HRIR to match before partitioning, mirroring the teacher's own
// applyImpulseResponseUnlocked resample-on-load path
// (dsp/convolution.go in the teacher repo). Zero (the default) means the
// table is already at the store's rate and no resampling runs.
func (s *Store) SetNativeSampleRate(rate float64) { s.nativeSampleRate = rate }

// BeginSetup starts a new build: hrirLength is the length in samples of
// every HRIR that will be added, measurementDistance the distance (metres)
// the table was measured at.
func (s *Store) BeginSetup(hrirLength int, measurementDistance float64) {
	s.hrirLength = hrirLength
	if measurementDistance > 0 {
		s.distance = measurementDistance
	}
	s.raw = make(map[orientation]HRIR)
	s.grid = nil
	s.setupInProgress = true
	s.ready = false
}

// AddHRIR stores one measured direction. azimuth/elevation are in degrees,
// wrapped into [0,360). Ignored (with a reported error) if called outside a
// BeginSetup/EndSetup bracket or if the HRIR length doesn't match.
func (s *Store) AddHRIR(azimuthDeg, elevationDeg float64, hrir HRIR) {
	if !s.setupInProgress {
		s.reporter.SetResult(result.NotAllowed, "AddHRIR called outside BeginSetup/EndSetup", "hrtf/store.go", 0)
		return
	}
	if len(hrir.Left) != s.hrirLength || len(hrir.Right) != s.hrirLength {
		s.reporter.SetResult(result.BadSize, "AddHRIR: HRIR length does not match BeginSetup length", "hrtf/store.go", 0)
		return
	}
	key := orientation{Azimuth: wrapDeg(azimuthDeg), Elevation: wrapDeg(elevationDeg)}
	s.raw[key] = hrir
}

// HRTFTableEntry is one directional measurement in a bulk-loaded table, the
// unit AddHRTFTable consumes.
type HRTFTableEntry struct {
	AzimuthDeg   float64
	ElevationDeg float64
	HRIR         HRIR
}

// AddHRTFTable bulk-loads a whole pre-densified measurement set in one call,
// mirroring HRTF.cpp's AddHRTFTable alongside the original's per-entry
// AddHRIR: every entry goes through the same validation AddHRIR applies, so
// a table measured at the wrong length or added outside BeginSetup/EndSetup
// is rejected entry-by-entry rather than silently accepted.
func (s *Store) AddHRTFTable(entries []HRTFTableEntry) {
	for _, e := range entries {
		s.AddHRIR(e.AzimuthDeg, e.ElevationDeg, e.HRIR)
	}
}

// EndSetup runs common-delay removal, pole filling, the az=0->360 copy, grid
// resampling, and partitioning, per §4.2.
func (s *Store) EndSetup() result.Result {
	if !s.setupInProgress {
		return s.reporter.SetResult(result.NotAllowed, "EndSetup called without a matching BeginSetup", "hrtf/store.go", 0)
	}
	if len(s.raw) == 0 {
		s.setupInProgress = false
		return s.reporter.SetResult(result.NotSet, "EndSetup: no HRIRs were added", "hrtf/store.go", 0)
	}

	if err := s.resampleToTargetRate(); err != "" {
		s.setupInProgress = false
		return s.reporter.SetResult(result.BadSize, err, "hrtf/store.go", 0)
	}

	delays := s.removeCommonDelay()
	s.fillPoles(delays)
	s.copyAzimuthWraparound(delays)

	grid, err := s.buildGrid(delays)
	if err != "" {
		s.setupInProgress = false
		return s.reporter.SetResult(result.BadSize, err, "hrtf/store.go", 0)
	}
	s.grid = grid

	s.setupInProgress = false
	s.ready = true
	return s.reporter.SetResult(result.OK, "HRTF EndSetup completed", "hrtf/store.go", 0)
}

// Ready reports whether EndSetup has completed successfully.
func (s *Store) Ready() bool { return s.ready }

// MeasurementDistance returns the distance (metres) this table was measured
// at, set by BeginSetup.
func (s *Store) MeasurementDistance() float64 { return s.distance }

// resampleToTargetRate converts every raw HRIR from nativeSampleRate to
// sampleRate when the two differ, the setup-time counterpart to the
// teacher's applyImpulseResponseUnlocked IR-resample-on-load path. It is a
// no-op when nativeSampleRate is zero (never set) or equal to sampleRate.
func (s *Store) resampleToTargetRate() string {
	if s.nativeSampleRate <= 0 || s.nativeSampleRate == s.sampleRate {
		return ""
	}

	conv := resampler.New()
	newLength := resampler.CalculateOutputLength(s.hrirLength, s.nativeSampleRate, s.sampleRate)

	for key, h := range s.raw {
		pair, err := conv.ResampleEarPair([][]float32{h.Left, h.Right}, s.nativeSampleRate, s.sampleRate)
		if err != nil {
			return "resampleToTargetRate: " + err.Error()
		}
		s.raw[key] = HRIR{Left: pair[0], Right: pair[1]}
	}

	s.hrirLength = newLength
	return ""
}

// removeCommonDelay finds the onset (first sample whose magnitude exceeds a
// small threshold) of every raw HRIR, removes each entry's own onset from its
// audio (shifting left), and returns the per-entry, per-ear onset minus the
// table-wide per-ear minimum onset, in samples -- the delay the caller adds
// back via GetHRIRDelay.
func (s *Store) removeCommonDelay() map[orientation][2]int {
	onsets := make(map[orientation][2]int, len(s.raw))
	minL, minR := math.MaxInt32, math.MaxInt32
	for key, h := range s.raw {
		ol := onsetSample(h.Left)
		or := onsetSample(h.Right)
		onsets[key] = [2]int{ol, or}
		if ol < minL {
			minL = ol
		}
		if or < minR {
			minR = or
		}
	}

	for key, h := range s.raw {
		shiftedL := shiftLeft(h.Left, onsets[key][0])
		shiftedR := shiftLeft(h.Right, onsets[key][1])
		s.raw[key] = HRIR{Left: shiftedL, Right: shiftedR}
	}

	delays := make(map[orientation][2]int, len(onsets))
	for key, o := range onsets {
		delays[key] = [2]int{o[0] - minL, o[1] - minR}
	}
	return delays
}

// onsetSample returns the index of the first sample whose absolute value
// exceeds 1% of the buffer's peak, a simple onset detector standing in for
// the original's cross-correlation-based delay estimate.
func onsetSample(buf []float32) int {
	peak := float32(0)
	for _, v := range buf {
		if a := abs32(v); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return 0
	}
	threshold := peak * 0.01
	for i, v := range buf {
		if abs32(v) >= threshold {
			return i
		}
	}
	return 0
}

func shiftLeft(buf []float32, n int) []float32 {
	out := make([]float32, len(buf))
	if n <= 0 {
		copy(out, buf)
		return out
	}
	if n >= len(buf) {
		return out
	}
	copy(out, buf[n:])
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// fillPoles implements CalculateHRIR_InPoles: if (0,90) or (0,270) are
// missing, average the four most-populated azimuth sectors (border =
// ceil(360/numberOfParts), inclusive-low/exclusive-high) of the nearest
// ring(s) to that pole, then stamp the result across every azimuth at that
// elevation in poleFillAzimuthStep increments.
func (s *Store) fillPoles(delays map[orientation][2]int) {
	north := s.poleHRIR(90, func(el int) bool { return el < 90 }, func(a, b int) bool { return a > b })
	south := s.poleHRIR(270, func(el int) bool { return el > 270 }, func(a, b int) bool { return a < b })

	for az := 0; az < 360; az += poleFillAzimuthStep {
		southKey := orientation{Azimuth: az, Elevation: 270}
		northKey := orientation{Azimuth: az, Elevation: 90}
		s.raw[southKey] = south
		s.raw[northKey] = north
		if _, ok := delays[southKey]; !ok {
			delays[southKey] = [2]int{0, 0}
		}
		if _, ok := delays[northKey]; !ok {
			delays[northKey] = [2]int{0, 0}
		}
	}
}

// poleHRIR returns the existing measurement at (0, poleElevation) if present,
// otherwise averages the nearest ring(s) below/above the pole (selected by
// include/less) into a single HRIR via four equal-weight azimuth sectors.
func (s *Store) poleHRIR(poleElevation int, include func(el int) bool, elevationLess func(a, b int) bool) HRIR {
	if h, ok := s.raw[orientation{Azimuth: 0, Elevation: poleElevation}]; ok {
		return h
	}

	var keys []orientation
	for k := range s.raw {
		if include(k.Elevation) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return HRIR{Left: make([]float32, s.hrirLength), Right: make([]float32, s.hrirLength)}
	}
	sort.Slice(keys, func(i, j int) bool { return elevationLess(keys[i].Elevation, keys[j].Elevation) })

	border := int(math.Ceil(360.0 / numberOfParts))
	sectors := make([][]orientation, numberOfParts)

	currentElevation := keys[0].Elevation
	firstElevation := currentElevation
	for _, k := range keys {
		if k.Elevation != currentElevation {
			if allSectorsFilled(sectors) {
				break
			}
			currentElevation = k.Elevation
			if elevationDistance(currentElevation, firstElevation) > maxDistanceBetweenElevations {
				break
			}
		}
		j := sectorIndex(k.Azimuth, border)
		sectors[j] = append(sectors[j], k)
	}

	var sumL, sumR []float32
	n := 0
	for _, sector := range sectors {
		if len(sector) == 0 {
			continue
		}
		var accL, accR []float32
		for _, k := range sector {
			h := s.raw[k]
			accL = addBuf(accL, h.Left)
			accR = addBuf(accR, h.Right)
		}
		scaleBuf(accL, 1/float32(len(sector)))
		scaleBuf(accR, 1/float32(len(sector)))
		sumL = addBuf(sumL, accL)
		sumR = addBuf(sumR, accR)
		n++
	}
	if n == 0 {
		return HRIR{Left: make([]float32, s.hrirLength), Right: make([]float32, s.hrirLength)}
	}
	scaleBuf(sumL, 1/float32(n))
	scaleBuf(sumR, 1/float32(n))
	return HRIR{Left: sumL, Right: sumR}
}

func sectorIndex(azimuth, border int) int {
	for j := 0; j < numberOfParts; j++ {
		if azimuth >= border*j && azimuth < border*(j+1) {
			return j
		}
	}
	return numberOfParts - 1
}

func allSectorsFilled(sectors [][]orientation) bool {
	for _, s := range sectors {
		if len(s) == 0 {
			return false
		}
	}
	return true
}

func elevationDistance(a, b int) int {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

func addBuf(dst, src []float32) []float32 {
	if dst == nil {
		dst = make([]float32, len(src))
	}
	for i := range src {
		dst[i] += src[i]
	}
	return dst
}

func scaleBuf(buf []float32, g float32) {
	for i := range buf {
		buf[i] *= g
	}
}

// copyAzimuthWraparound duplicates every az=0 entry to az=360, so the grid
// builder can treat 360 as a valid right edge without special-casing wrap.
func (s *Store) copyAzimuthWraparound(delays map[orientation][2]int) {
	for k, h := range s.raw {
		if k.Azimuth == 0 {
			wrapKey := orientation{Azimuth: 360, Elevation: k.Elevation}
			s.raw[wrapKey] = h
			if d, ok := delays[k]; ok {
				delays[wrapKey] = d
			}
		}
	}
}

func wrapDeg(deg float64) int {
	d := int(math.Round(deg))
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

