// Command demo drives Core.ProcessAll directly against synthetic buffers: a
// single moving sine-wave source spatialized around a listener built from a
// procedurally generated HRIR set, with optional hearing-loss/hearing-aid
// simulation and the C12 monitor dashboard.
//
// It replaces the teacher's PipeWire filter + cgo bridge (main.go's
// processAudioBuffer/process_channel_go, driven by a real audio device) with
// an in-process block-stepping harness: the same "take one buffer, run it
// through the DSP chain, hand back the result" shape, minus the C bridge and
// the real audio device on either end (spec.md §1 lists real-time audio I/O
// as external and out of scope).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/core"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hasim"
	"github.com/3dti-go/binaural/hlsim"
	"github.com/3dti-go/binaural/hrtf"
	"github.com/3dti-go/binaural/monitor"
	"github.com/3dti-go/binaural/result"
)

// CLI is the demo harness's command-line interface.
type CLI struct {
	SampleRate   float64 `default:"48000" help:"Sample rate in Hz (44100, 48000, or 96000)."`
	BlockSize    int     `default:"256" help:"Block size in samples; must be a power of two."`
	Duration     float64 `default:"2.0" help:"Seconds of audio to process."`
	Azimuth      float64 `default:"0" help:"Starting azimuth of the source, degrees."`
	Elevation    float64 `default:"0" help:"Elevation of the source, degrees."`
	Sweep        bool    `help:"Rotate the source a full turn in azimuth over Duration."`
	Frequency    float64 `default:"440" help:"Frequency of the synthetic source tone, Hz."`
	HearingLossL float64 `help:"Uniform left-ear hearing loss, dB HL, applied via hlsim.Simulator (0 disables)."`
	HearingLossR float64 `help:"Uniform right-ear hearing loss, dB HL, applied via hlsim.Simulator (0 disables)."`
	HearingAid   bool    `help:"Wire a hasim.Simulator fit to the same audiogram as the hearing-loss simulation."`
	Monitor      bool    `help:"Serve the C12 monitor dashboard over HTTP while processing."`
	Port         int     `default:"8080" help:"Monitor dashboard port."`
	NoBrowser    bool    `help:"Don't auto-open a browser when --monitor is set."`
	TUI          bool    `help:"Run the termbox monitor dashboard in the foreground instead of printing progress."`
	LogFile      string  `default:"binaural-demo.log" help:"Log file path for structured (slog) logging."`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("demo"),
		kong.Description("In-process block-stepping harness for Core.ProcessAll."),
		kong.UsageOnError(),
	)

	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

func run(cli *CLI) error {
	logFile, err := os.OpenFile(cli.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	state := audio.State{SampleRate: cli.SampleRate, BlockSize: cli.BlockSize}
	if err := state.Validate(); err != nil {
		return err
	}

	reporter := result.NewReporter()
	profiler := result.NewProfiler(result.DefaultHistory)
	c := core.New(reporter, profiler)

	if err := c.SetAudioState(state); err != nil {
		return fmt.Errorf("SetAudioState: %w", err)
	}

	listener, err := c.CreateListener(0.0875)
	if err != nil {
		return fmt.Errorf("CreateListener: %w", err)
	}

	const hrirLength = 256
	if err := buildSyntheticHRIRSet(listener.HRTF(), hrirLength, state.SampleRate); err != nil {
		return fmt.Errorf("building synthetic HRIR set: %w", err)
	}

	src, _, err := c.CreateSingleSourceDSP(hrirLength)
	if err != nil {
		return fmt.Errorf("CreateSingleSourceDSP: %w", err)
	}
	src.EnableInterpolation(true)
	src.EnableDistanceAttenuation(true)

	if cli.HearingLossL != 0 || cli.HearingLossR != 0 {
		c.SetHearingLossSimulator(newHearingLossSimulator(state.SampleRate, state.BlockSize, cli.HearingLossL, cli.HearingLossR))
		slog.Info("hearing-loss simulation enabled", "leftDBHL", cli.HearingLossL, "rightDBHL", cli.HearingLossR)
	}
	if cli.HearingAid {
		c.SetHearingAidSimulator(newHearingAidSimulator(state.SampleRate, cli.HearingLossL, cli.HearingLossR))
		slog.Info("hearing-aid simulation enabled")
	}

	if cli.Monitor {
		srv := monitor.NewServer(c, cli.Port)
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("monitor server stopped", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		url := fmt.Sprintf("http://localhost:%d", cli.Port)
		fmt.Printf("monitor dashboard: %s\n", url)
		if !cli.NoBrowser {
			go func() { _ = monitor.OpenBrowser(url) }()
		}
	}

	if cli.TUI {
		done := make(chan struct{})
		go func() {
			defer close(done)
			processBlocks(c, src, cli, nil)
		}()
		if err := monitor.RunTUI(c); err != nil {
			return fmt.Errorf("RunTUI: %w", err)
		}
		<-done
		return nil
	}

	processBlocks(c, src, cli, os.Stdout)
	return nil
}

// processBlocks steps Core.ProcessAll once per block over cli.Duration
// seconds of synthetic audio, optionally rotating the source and printing
// per-second RMS to progress (nil disables printing).
func processBlocks(c *core.Core, src interface {
	SetBuffer(audio.MonoBuffer)
	SetSourceTransform(geom.Transform)
}, cli *CLI, progress *os.File) {
	blockSize := cli.BlockSize
	totalBlocks := int(cli.Duration * cli.SampleRate / float64(blockSize))
	tone := make(audio.MonoBuffer, blockSize)
	stereoOut := audio.NewStereoBuffer(blockSize)
	phase := 0.0
	phaseStep := 2 * math.Pi * cli.Frequency / cli.SampleRate

	var sumSquares float64
	var samplesSeen int
	blocksPerSecond := int(cli.SampleRate / float64(blockSize))
	if blocksPerSecond == 0 {
		blocksPerSecond = 1
	}

	for block := 0; block < totalBlocks; block++ {
		if cli.Sweep {
			turn := float64(block) / float64(totalBlocks)
			az := cli.Azimuth + turn*360
			src.SetSourceTransform(directionTransform(az, cli.Elevation))
		} else if block == 0 {
			src.SetSourceTransform(directionTransform(cli.Azimuth, cli.Elevation))
		}

		for i := range tone {
			tone[i] = float32(0.25 * math.Sin(phase))
			phase += phaseStep
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
		src.SetBuffer(tone)

		res := c.ProcessAll(stereoOut)
		if res.Code != result.OK {
			slog.Warn("ProcessAll returned non-OK result", "code", res.Code, "suggestion", res.Suggestion)
		}

		for _, v := range stereoOut {
			sumSquares += float64(v) * float64(v)
		}
		samplesSeen += len(stereoOut)

		if progress != nil && (block+1)%blocksPerSecond == 0 {
			rms := math.Sqrt(sumSquares / float64(samplesSeen))
			fmt.Fprintf(progress, "t=%.1fs  sources=%d  images=%d  rms=%.4f\n",
				float64(block+1)*float64(blockSize)/cli.SampleRate, c.ActiveSourceCount(), c.ActiveImageCount(), rms)
			sumSquares = 0
			samplesSeen = 0
		}
	}
}

// directionTransform places a unit-distance point at (azimuthDeg,
// elevationDeg) relative to the listener at the origin, using the same
// local-azimuth/elevation convention as geom.LocalAzimuthElevation.
func directionTransform(azimuthDeg, elevationDeg float64) geom.Transform {
	azRad := azimuthDeg * math.Pi / 180
	elRad := elevationDeg * math.Pi / 180
	x := math.Cos(elRad) * math.Sin(azRad)
	y := math.Sin(elRad)
	z := -math.Cos(elRad) * math.Cos(azRad)
	return geom.NewTransform(geom.Vec(x, y, z))
}

// buildSyntheticHRIRSet fills store with procedurally generated HRIRs
// covering a coarse azimuth/elevation grid: a direct-path impulse per ear,
// delayed and attenuated by a simple ITD/ILD model (not a measured
// response), enough to exercise the full BeginSetup/AddHRIR/EndSetup
// protocol and the partitioned-convolution path without any external data
// file (spec.md §1: "WAV-free buffers").
func buildSyntheticHRIRSet(store *hrtf.Store, length int, sampleRate float64) error {
	store.BeginSetup(length, 1.0)

	const azimuthStep = 30
	elevations := []int{-90, -45, 0, 45, 90}
	for _, el := range elevations {
		for az := 0; az < 360; az += azimuthStep {
			store.AddHRIR(float64(az), float64(el), syntheticHRIR(float64(az), float64(el), length, sampleRate))
		}
	}

	if res := store.EndSetup(); res.Code != result.OK {
		return fmt.Errorf("EndSetup: %s (%s)", res.Code, res.Suggestion)
	}
	return nil
}

func syntheticHRIR(azimuthDeg, elevationDeg float64, length int, sampleRate float64) hrtf.HRIR {
	interauralAz := geom.InterauralAzimuth(azimuthDeg, elevationDeg)
	const headRadius = 0.0875
	const speedOfSound = 343.0
	theta := interauralAz * math.Pi / 180
	itdSeconds := (headRadius / speedOfSound) * (theta + math.Sin(theta))
	delaySamples := int(math.Round(itdSeconds * sampleRate))

	left := make([]float32, length)
	right := make([]float32, length)

	leftDelay, rightDelay := 0, 0
	if delaySamples > 0 {
		rightDelay = delaySamples
	} else {
		leftDelay = -delaySamples
	}

	farEarGain := math.Abs(math.Cos(theta / 2))
	leftGain, rightGain := 1.0, 1.0
	if delaySamples > 0 {
		rightGain = farEarGain // right ear is farther from the source
	} else if delaySamples < 0 {
		leftGain = farEarGain // left ear is farther from the source
	}

	if leftDelay < length {
		left[leftDelay] = float32(leftGain)
	}
	if rightDelay < length {
		right[rightDelay] = float32(rightGain)
	}
	return hrtf.HRIR{Left: left, Right: right}
}

func newHearingLossSimulator(sampleRate float64, blockSize int, leftDBHL, rightDBHL float64) *hlsim.Simulator {
	leftCfg := hlsim.Config{ExpanderEnabled: leftDBHL > 0}
	rightCfg := hlsim.Config{ExpanderEnabled: rightDBHL > 0}
	for i := range leftCfg.Audiogram {
		leftCfg.Audiogram[i] = leftDBHL
		rightCfg.Audiogram[i] = rightDBHL
	}
	sim, err := hlsim.New(sampleRate, blockSize, geom.EarPair[hlsim.Config]{Left: leftCfg, Right: rightCfg})
	if err != nil {
		slog.Error("hlsim.New failed, hearing-loss simulation disabled", "error", err)
		return nil
	}
	return sim
}

func newHearingAidSimulator(sampleRate float64, leftDBHL, rightDBHL float64) *hasim.Simulator {
	leftCfg := hasim.Config{BandCount: 9, IniFreqHz: 62.5, OctaveBandStep: 1, AttackMs: 5, ReleaseMs: 50, CalibrationSPL: 100, NormalizeEnabled: true, NormalizeRefDBFS: -6}
	rightCfg := leftCfg
	for i := range leftCfg.Audiogram {
		leftCfg.Audiogram[i] = leftDBHL
		rightCfg.Audiogram[i] = rightDBHL
	}
	return hasim.New(sampleRate, geom.EarPair[hasim.Config]{Left: leftCfg, Right: rightCfg})
}
