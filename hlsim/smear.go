package hlsim

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
	"gonum.org/v1/gonum/mat"
)

// erbHz returns the Equivalent Rectangular Bandwidth, in Hz, of the
// auditory filter centered at freqHz (Glasberg & Moore's formula), used to
// scale the auditory-filterbank Gaussian widths for both smearing
// algorithms (§4.6, GLOSSARY "ERB").
func erbHz(freqHz float64) float64 {
	return 24.7 * (4.37*freqHz/1000 + 1)
}

func binToHz(bin, fftSize int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(fftSize)
}

// ClassicSmearer implements the "Classic" frequency-smearing algorithm
// (§4.6): overlap-add over doubled blocks, multiplying the magnitude
// spectrum by a separable smearing window built from a downward Gaussian
// (for bins below the target) and an upward Gaussian (for bins above),
// each normalized so the kernel's area sums to 1.
type ClassicSmearer struct {
	sampleRate float64
	blockSize  int
	fftSize    int
	downwardBW float64 // broadening factor for the downward (low-frequency-ward) spread
	upwardBW   float64

	proc *dsp.FrequencyProcessor
	win  []float32 // Hann analysis window, length fftSize

	overlapTail []float32 // previous input block, the first half of the next analysis frame
	outputTail  []float32 // second half of the previous resynthesized frame, added into the next output block
	freqBuf     []complex64
	ifftBuf     []complex64
	mag, phase  []float32
}

// NewClassicSmearer builds a classic smearer for blockSize-sample blocks
// (internally doubled to 2*blockSize for the overlap-add FFT) at the given
// sample rate. downwardBW/upwardBW scale the ERB-derived Gaussian spread in
// each direction; 0 disables spreading in that direction.
func NewClassicSmearer(sampleRate float64, blockSize int, downwardBW, upwardBW float64) (*ClassicSmearer, error) {
	fftSize := blockSize * 2
	proc, err := dsp.NewFrequencyProcessor(fftSize)
	if err != nil {
		return nil, err
	}
	win := make([]float32, fftSize)
	for i := range win {
		win[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	return &ClassicSmearer{
		sampleRate:  sampleRate,
		blockSize:   blockSize,
		fftSize:     fftSize,
		downwardBW:  downwardBW,
		upwardBW:    upwardBW,
		proc:        proc,
		win:         win,
		overlapTail: make([]float32, blockSize),
		outputTail:  make([]float32, blockSize),
		freqBuf:     make([]complex64, fftSize),
		ifftBuf:     make([]complex64, fftSize),
		mag:         make([]float32, fftSize),
		phase:       make([]float32, fftSize),
	}, nil
}

// ProcessBlock smears a blockSize-long buffer in place using 50%-overlap
// windowed FFT analysis/resynthesis with overlap-add; the output lags the
// input by one block.
func (s *ClassicSmearer) ProcessBlock(buf []float32) {
	windowed := make([]float32, s.fftSize)
	copy(windowed[:s.blockSize], s.overlapTail)
	copy(windowed[s.blockSize:], buf)
	for i := range windowed {
		windowed[i] *= s.win[i]
	}
	copy(s.overlapTail, buf)

	dsp.RealToComplex(s.freqBuf, windowed)
	_ = s.proc.Forward(s.freqBuf, s.freqBuf)

	dsp.ToModulePhase(s.mag, s.phase, s.freqBuf)
	smeared := s.smearMagnitude(s.mag)
	dsp.ToRealImaginary(s.ifftBuf, smeared, s.phase)

	_ = s.proc.Inverse(s.ifftBuf, s.ifftBuf)
	out := make([]float32, s.fftSize)
	dsp.ComplexToReal(out, s.ifftBuf)

	// 50% overlap-add: this frame's first half completes the previous
	// frame's second half; this frame's second half is kept for the next call.
	for i := 0; i < s.blockSize; i++ {
		buf[i] = s.outputTail[i] + out[i]
	}
	copy(s.outputTail, out[s.blockSize:])
}

// smearMagnitude convolves mag with a per-bin separable Gaussian kernel:
// downwardBW scales the spread toward lower bins, upwardBW toward higher.
func (s *ClassicSmearer) smearMagnitude(mag []float32) []float32 {
	n := len(mag)
	out := make([]float32, n)
	for k := 0; k < n; k++ {
		freq := binToHz(k, s.fftSize, s.sampleRate)
		sigmaHz := erbHz(freq) / 2
		sigmaDown := sigmaHz * s.downwardBW
		sigmaUp := sigmaHz * s.upwardBW

		var sum, weight float64
		for j := 0; j < n; j++ {
			df := binToHz(j, s.fftSize, s.sampleRate) - freq
			var sigma float64
			if df < 0 {
				sigma = sigmaDown
			} else {
				sigma = sigmaUp
			}
			if sigma <= 0 {
				if j == k {
					sum += float64(mag[j])
					weight++
				}
				continue
			}
			w := math.Exp(-(df * df) / (2 * sigma * sigma))
			sum += w * float64(mag[j])
			weight += w
		}
		if weight > 0 {
			out[k] = float32(sum / weight)
		}
	}
	return out
}

// Reset clears overlap-add history.
func (s *ClassicSmearer) Reset() {
	for i := range s.overlapTail {
		s.overlapTail[i] = 0
		s.outputTail[i] = 0
	}
}

// SubframeSmearer implements the "Subframe" algorithm (§4.6): four
// overlapping Hann-windowed sub-blocks per block, each processed through a
// precomputed smearingMatrix[input-bin][output-bin] solved from
// A*X = B where A is an auditory-filterbank matrix and B is the same
// matrix widened by downward/upward ERB-based broadening factors.
type SubframeSmearer struct {
	sampleRate float64
	subSize    int
	fftSize    int
	hop        int

	proc   *dsp.FrequencyProcessor
	win    []float32
	matrix *mat.Dense // bins x bins, matrix[input][output]

	ring      []float32 // circular input history, length >= fftSize
	writeIdx  int
	outputAcc []float32 // circular overlap-add accumulator
	outWrite  int
	filled    int
}

// NewSubframeSmearer builds a subframe smearer. subBlockSize is the length
// of each of the four overlapping Hann windows per outer block (§4.6:
// "four overlapping Hann-windowed sub-blocks per block").
func NewSubframeSmearer(sampleRate float64, subBlockSize int, downwardBW, upwardBW float64) (*SubframeSmearer, error) {
	fftSize := subBlockSize
	proc, err := dsp.NewFrequencyProcessor(fftSize)
	if err != nil {
		return nil, err
	}
	win := make([]float32, fftSize)
	for i := range win {
		win[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}
	bins := fftSize/2 + 1
	m := BuildSmearingMatrix(bins, fftSize, sampleRate, downwardBW, upwardBW)

	return &SubframeSmearer{
		sampleRate: sampleRate,
		subSize:    subBlockSize,
		fftSize:    fftSize,
		hop:        subBlockSize / 4,
		proc:       proc,
		win:        win,
		matrix:     m,
		ring:       make([]float32, fftSize*2),
		outputAcc:  make([]float32, fftSize*2),
	}, nil
}

// BuildSmearingMatrix solves A*X = B for X, where A[i][j] is an
// auditory-filter gaussian of ERB-derived width centered on bin j evaluated
// at bin i, over the non-negative-frequency bins 0..bins-1 only (the filters
// are not extended into negative frequency), and B is the same construction with the Gaussian width scaled by
// downwardBW (for i<j) or upwardBW (for i>j). When downwardBW==upwardBW==1,
// B==A and the least-squares solution is the identity (§8 scenario 6).
func BuildSmearingMatrix(bins, fftSize int, sampleRate, downwardBW, upwardBW float64) *mat.Dense {
	a := mat.NewDense(bins, bins, nil)
	b := mat.NewDense(bins, bins, nil)

	for j := 0; j < bins; j++ {
		freq := binToHz(j, fftSize, sampleRate)
		sigma := erbHz(freq) / 2
		if sigma <= 0 {
			sigma = 1
		}
		for i := 0; i < bins; i++ {
			fi := binToHz(i, fftSize, sampleRate)
			d := fi - freq
			g := math.Exp(-(d * d) / (2 * sigma * sigma))
			a.Set(i, j, g)

			var bw float64
			if d < 0 {
				bw = downwardBW
			} else {
				bw = upwardBW
			}
			sigmaB := sigma * bw
			if sigmaB <= 0 {
				sigmaB = 1e-6
			}
			gb := math.Exp(-(d * d) / (2 * sigmaB * sigmaB))
			b.Set(i, j, gb)
		}
		// Normalize each column (filter) to unit area so energy is preserved.
		normalizeColumn(a, j)
		normalizeColumn(b, j)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.Dense
	if err := qr.SolveTo(&x, false, b); err != nil {
		// Singular filterbank (degenerate sample rate/fftSize combination):
		// fall back to the identity so smearing is a no-op rather than NaN.
		ident := mat.NewDense(bins, bins, nil)
		for i := 0; i < bins; i++ {
			ident.Set(i, i, 1)
		}
		return ident
	}
	return &x
}

func normalizeColumn(m *mat.Dense, col int) {
	rows, _ := m.Dims()
	var sum float64
	for i := 0; i < rows; i++ {
		sum += m.At(i, col)
	}
	if sum <= 1e-12 {
		return
	}
	for i := 0; i < rows; i++ {
		m.Set(i, col, m.At(i, col)/sum)
	}
}

// ProcessBlock smears an arbitrary-length buffer using overlap-add across
// hop-sized sub-blocks (hop = subBlockSize/4, i.e. 4 overlapping windows
// per outer block as §4.6 specifies for a block equal to 4*hop).
func (s *SubframeSmearer) ProcessBlock(buf []float32) {
	bins := s.fftSize/2 + 1
	mag := make([]float32, bins)
	phase := make([]float32, bins)
	outMag := make([]float32, bins)
	freqBuf := make([]complex64, s.fftSize)
	windowed := make([]float32, s.fftSize)
	out := make([]float32, s.fftSize)

	for _, x := range buf {
		s.ring[s.writeIdx] = x
		s.writeIdx = (s.writeIdx + 1) % len(s.ring)
		s.filled++

		if s.filled >= s.hop {
			s.filled = 0
			s.analyzeSynthesize(windowed, freqBuf, mag, phase, outMag, out, bins)
		}
	}

	for i := range buf {
		buf[i] = s.outputAcc[s.outWrite]
		s.outputAcc[s.outWrite] = 0
		s.outWrite = (s.outWrite + 1) % len(s.outputAcc)
	}
}

func (s *SubframeSmearer) analyzeSynthesize(windowed []float32, freqBuf []complex64, mag, phase, outMag, out []float32, bins int) {
	for i := 0; i < s.fftSize; i++ {
		idx := (s.writeIdx - s.fftSize + i + len(s.ring)) % len(s.ring)
		windowed[i] = s.ring[idx] * s.win[i]
	}
	dsp.RealToComplex(freqBuf, windowed)
	_ = s.proc.Forward(freqBuf, freqBuf)

	half := freqBuf[:bins]
	dsp.ToModulePhase(mag[:bins], phase[:bins], half)

	for o := 0; o < bins; o++ {
		var sum float64
		for in := 0; in < bins; in++ {
			sum += float64(mag[in]) * s.matrix.At(in, o)
		}
		outMag[o] = float32(sum)
	}

	ifftIn := make([]complex64, s.fftSize)
	dsp.ToRealImaginary(ifftIn[:bins], outMag[:bins], phase[:bins])
	for i := bins; i < s.fftSize; i++ {
		mirror := s.fftSize - i
		ifftIn[i] = complex(real(ifftIn[mirror]), -imag(ifftIn[mirror]))
	}
	_ = s.proc.Inverse(ifftIn, ifftIn)
	dsp.ComplexToReal(out, ifftIn)

	for i := 0; i < s.fftSize; i++ {
		idx := (s.outWrite + i) % len(s.outputAcc)
		s.outputAcc[idx] += out[i] * s.win[i]
	}
}

// Reset clears all ring-buffer and accumulator state.
func (s *SubframeSmearer) Reset() {
	for i := range s.ring {
		s.ring[i] = 0
	}
	for i := range s.outputAcc {
		s.outputAcc[i] = 0
	}
	s.writeIdx, s.outWrite, s.filled = 0, 0, 0
}
