package dsp

import (
	"fmt"
)

// UPC implements Uniformly Partitioned Convolution (§4.1): the impulse
// response is split into N partitions of equal length L (the block size),
// each partition's FFT is pre-computed once, and every block the engine
// FFTs the new input block, pushes it into a ring of the last N
// frequency-domain input blocks, multiply-accumulates against the N
// partitioned IR blocks, and IFFTs the sum.
//
// This mirrors the ring-buffer/complex-multiply-accumulate shape of the
// teacher's ConvolutionStage (dsp/convolution_stage.go in pw-convoverb) but
// uses a single partition size throughout, per spec.md §4.1, rather than
// the teacher's exponentially-growing multi-rate stages.
type UPC struct {
	blockSize  int // L
	fftSize    int // 2L
	partitions int // N

	proc *FrequencyProcessor

	// Partitioned impulse response, frequency domain, one block of length
	// fftSize (interleaved re/im via complex64) per partition.
	irFreq [][]complex64

	// Ring of the last `partitions` FFT'd input blocks.
	ring      [][]complex64
	ringIndex int

	// withMemory selects between returning a time-domain output block
	// (ProcessBlock) or leaving the result in the frequency domain for the
	// caller to mix with other channels before a single shared IFFT
	// (ProcessBlockFreq), per §4.1 "with memory" vs "without memory".
	withMemory bool

	// scratch buffers, sized once at construction (§3 invariant 4: no
	// reallocation on the real-time path).
	inputTime  []float32
	inputFreq  []complex64
	accum      []complex64
	outputTime []float32

	// prevInput is the carry buffer: the previous call's input block, placed
	// in the first half of the next FFT frame (overlap-save).
	prevInput []float32
}

// NewUPC builds a convolver for an impulse response already split into
// `partitions` slices of length `blockSize` (the caller pads the final
// partition with zeros if the IR doesn't divide evenly — see PartitionIR).
func NewUPC(irPartitions [][]float32, blockSize int, withMemory bool) (*UPC, error) {
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("dsp: UPC block size must be a power of two, got %d", blockSize)
	}
	if len(irPartitions) == 0 {
		return nil, fmt.Errorf("dsp: UPC requires at least one IR partition")
	}

	fftSize := 2 * blockSize
	proc, err := NewFrequencyProcessor(fftSize)
	if err != nil {
		return nil, err
	}

	u := &UPC{
		blockSize:  blockSize,
		fftSize:    fftSize,
		partitions: len(irPartitions),
		proc:       proc,
		withMemory: withMemory,
		inputTime:  make([]float32, fftSize),
		inputFreq:  make([]complex64, fftSize),
		accum:      make([]complex64, fftSize),
		outputTime: make([]float32, fftSize),
		prevInput:  make([]float32, blockSize),
	}

	u.irFreq = make([][]complex64, u.partitions)
	u.ring = make([][]complex64, u.partitions)
	for i := 0; i < u.partitions; i++ {
		if len(irPartitions[i]) != blockSize {
			return nil, fmt.Errorf("dsp: IR partition %d has length %d, want %d", i, len(irPartitions[i]), blockSize)
		}
		padded := make([]complex64, fftSize)
		RealToComplex(padded, irPartitions[i])
		freq := make([]complex64, fftSize)
		if err := proc.Forward(freq, padded); err != nil {
			return nil, fmt.Errorf("dsp: failed to transform IR partition %d: %w", i, err)
		}
		u.irFreq[i] = freq
		u.ring[i] = make([]complex64, fftSize) // zero-initialized = silence
	}

	return u, nil
}

// SetIRFreq swaps in a new set of pre-transformed IR partitions without
// reallocating, so a per-source convolver can follow a moving HRTF query
// result block-to-block (§4.2 query surface feeding §4.3's anechoic path).
// partitions must match Partitions() in count and each block must be
// exactly fftSize long; a mismatched or nil partition leaves that slot's
// previous content in place rather than erroring, since HRTF queries can
// return sparse partition results when the requested direction falls
// outside the measured table's convex hull.
func (u *UPC) SetIRFreq(partitions [][]complex64) error {
	if len(partitions) != u.partitions {
		return fmt.Errorf("dsp: SetIRFreq expected %d partitions, got %d", u.partitions, len(partitions))
	}
	for i, p := range partitions {
		if p == nil {
			continue
		}
		if len(p) != u.fftSize {
			return fmt.Errorf("dsp: SetIRFreq partition %d has length %d, want %d", i, len(p), u.fftSize)
		}
		copy(u.irFreq[i], p)
	}
	return nil
}

// BlockSize returns L, the input block length this engine expects.
func (u *UPC) BlockSize() int { return u.blockSize }

// Partitions returns N, the number of IR partitions.
func (u *UPC) Partitions() int { return u.partitions }

// ProcessBlock runs the "with memory" variant (§4.1): input of length L in,
// output of length L out, continuous across calls. Returns an error (and
// zeroes output) if len(input) != BlockSize(), per the UPC failure mode.
func (u *UPC) ProcessBlock(input, output []float32) error {
	if !u.withMemory {
		return fmt.Errorf("dsp: UPC configured without memory; use ProcessBlockFreq")
	}
	if len(input) != u.blockSize || len(output) != u.blockSize {
		for i := range output {
			output[i] = 0
		}
		return fmt.Errorf("dsp: UPC input/output must be length %d, got in=%d out=%d", u.blockSize, len(input), len(output))
	}

	if err := u.stepFrequencyDomain(input); err != nil {
		return err
	}

	if err := u.proc.Inverse(u.outputTime, u.accum); err != nil {
		return fmt.Errorf("dsp: UPC inverse FFT failed: %w", err)
	}

	// Discard the first half (aliased overlap-save remainder); the second
	// half is the valid linear-convolution output block (§4.1 step 5).
	copy(output, u.outputTime[u.blockSize:])

	return nil
}

// ProcessBlockFreq runs the "without memory" variant (§4.1): it performs
// steps 1-4 (zero-pad, FFT, ring push, partition multiply-accumulate) and
// returns the frequency-domain accumulator directly so multiple Ambisonic
// channels can be summed before a single shared IFFT (used by the
// ambisonic package's Environment DSP).
func (u *UPC) ProcessBlockFreq(input []float32, dst []complex64) error {
	if u.withMemory {
		return fmt.Errorf("dsp: UPC configured with memory; use ProcessBlock")
	}
	if len(input) != u.blockSize {
		for i := range dst {
			dst[i] = 0
		}
		return fmt.Errorf("dsp: UPC input must be length %d, got %d", u.blockSize, len(input))
	}
	if err := u.stepFrequencyDomain(input); err != nil {
		return err
	}
	copy(dst, u.accum)
	return nil
}

// stepFrequencyDomain implements §4.1 steps 1-4.
func (u *UPC) stepFrequencyDomain(input []float32) error {
	// 1. Build a 2L frame: the previous input block (the carry buffer) in
	// the first half, the new block in the second half. Keep the new block
	// as the carry for the next call.
	copy(u.inputTime[:u.blockSize], u.prevInput)
	copy(u.inputTime[u.blockSize:], input)
	copy(u.prevInput, input)

	// 2. FFT to a complex block of length 2L.
	RealToComplex(u.inputFreq, u.inputTime)
	if err := u.proc.Forward(u.ring[u.ringIndex], u.inputFreq); err != nil {
		return fmt.Errorf("dsp: UPC forward FFT failed: %w", err)
	}

	// 3. Push into the ring (index advances modulo N) -- the Forward above
	// wrote directly into ring[ringIndex], so this is just the pointer
	// advance bookkeeping handled at the end of this function.

	// 4. For k=0..N-1, complex-multiply ring[k] by partitioned IR[k] and
	// accumulate. ring[ringIndex] holds the newest block (lag 0); walking
	// backwards from ringIndex pairs lag k with IR partition k.
	for i := range u.accum {
		u.accum[i] = 0
	}
	for k := 0; k < u.partitions; k++ {
		idx := u.ringIndex - k
		if idx < 0 {
			idx += u.partitions
		}
		ComplexMultiplyAccumulate(u.accum, u.ring[idx], u.irFreq[k], u.fftSize)
	}

	u.ringIndex = (u.ringIndex + 1) % u.partitions
	return nil
}

// Reset clears the ring buffer, carry buffer, and scratch state.
func (u *UPC) Reset() {
	for i := range u.ring {
		for j := range u.ring[i] {
			u.ring[i][j] = 0
		}
	}
	u.ringIndex = 0
	for i := range u.accum {
		u.accum[i] = 0
	}
	for i := range u.prevInput {
		u.prevInput[i] = 0
	}
}

// PartitionIR splits a time-domain impulse response into
// ceil(len(ir)/blockSize) slices of length blockSize, zero-padding the
// final partition, matching the partitioning rule used throughout §4.2 and
// §4.4 (invariant 1).
func PartitionIR(ir []float32, blockSize int) [][]float32 {
	n := (len(ir) + blockSize - 1) / blockSize
	if n == 0 {
		n = 1
	}
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		part := make([]float32, blockSize)
		start := i * blockSize
		end := start + blockSize
		if start < len(ir) {
			if end > len(ir) {
				end = len(ir)
			}
			copy(part, ir[start:end])
		}
		out[i] = part
	}
	return out
}
