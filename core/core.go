// Package core implements the Listener and Core orchestrator (C9, §4
// intro, §5, §6): owns the fixed AudioState, the single Listener, the
// active source list, the shared reverb DSP (B-format or higher-order
// Ambisonic), and the image-source engine, and drives one ProcessAll per
// block in the ordering §5 specifies — Source DSP for every active source,
// then Ambisonic DSP from the same per-source input, anechoic and reverb
// summed last.
//
// Grounded on 3dti_Toolkit/BinauralSpatializer/CCore.{h,cpp}; the raw
// Core/Listener/Source back-pointers that toolkit uses are replaced here
// with Core holding exclusive ownership and Sources exposing read-only
// getters Core polls each block (§9 "weak reference + lookup"), the same
// shape the teacher's convolution stages use for their owning engine.
package core

import (
	"fmt"

	"github.com/3dti-go/binaural/ambisonic"
	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hasim"
	"github.com/3dti-go/binaural/hlsim"
	"github.com/3dti-go/binaural/hrtf"
	"github.com/3dti-go/binaural/ism"
	"github.com/3dti-go/binaural/result"
	"github.com/3dti-go/binaural/source"
)

// reverbEncoder is the shape shared by ambisonic.Environment and
// ambisonic.AmbisonicDSP (§4.4: "two variants share a structure"). Core
// drives either through this interface and calls its own process closure
// for the final IFFT/sum step, since the two variants name that step
// differently.
type reverbEncoder interface {
	SetDirectionality(left, right float32)
	BeginBlock()
	EncodeSource(dir geom.CVector3, buf audio.MonoBuffer)
	Reset()
}

type sourceEntry struct {
	src        *source.Source
	scratchL   audio.MonoBuffer
	scratchR   audio.MonoBuffer
}

// Core is the per-process orchestrator (C9).
type Core struct {
	reporter *result.Reporter
	profiler *result.Profiler

	state           audio.State
	stateIsSet      bool
	setupInProgress bool

	listener *Listener

	sources      map[int]*sourceEntry
	nextSourceID int

	room   *ism.Room
	images *ism.Engine

	imagePool        []*source.Source
	imageScratchL    [][]float32
	imageScratchR    [][]float32
	imageOut         []ism.VirtualSource

	reverb        reverbEncoder
	processReverb func(outL, outR audio.MonoBuffer) result.Result

	hearingAid  *hasim.Simulator
	hearingLoss *hlsim.Simulator

	anechoicL, anechoicR audio.MonoBuffer
	reverbL, reverbR     audio.MonoBuffer
	finalL, finalR       audio.MonoBuffer
}

// New creates an orchestrator. Call SetAudioState before creating a
// listener, a source, a reverb DSP, or a room.
func New(reporter *result.Reporter, profiler *result.Profiler) *Core {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	if profiler == nil {
		profiler = result.NewProfiler(result.DefaultHistory)
	}
	return &Core{reporter: reporter, profiler: profiler, sources: make(map[int]*sourceEntry)}
}

// Reporter returns the Core's error reporter.
func (c *Core) Reporter() *result.Reporter { return c.reporter }

// Profiler returns the Core's profiler.
func (c *Core) Profiler() *result.Profiler { return c.profiler }

// SetAudioState installs the fixed per-process sample rate/block size.
// Idempotent when state is unchanged; changing it after the first call
// requires Reset (§3 Lifecycle).
func (c *Core) SetAudioState(state audio.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if c.stateIsSet && state != c.state {
		return fmt.Errorf("core: AudioState changed from %+v to %+v without Reset", c.state, state)
	}
	c.state = state
	c.stateIsSet = true
	c.anechoicL = make(audio.MonoBuffer, state.BlockSize)
	c.anechoicR = make(audio.MonoBuffer, state.BlockSize)
	c.reverbL = make(audio.MonoBuffer, state.BlockSize)
	c.reverbR = make(audio.MonoBuffer, state.BlockSize)
	c.finalL = make(audio.MonoBuffer, state.BlockSize)
	c.finalR = make(audio.MonoBuffer, state.BlockSize)
	return nil
}

func (c *Core) requireState() error {
	if !c.stateIsSet {
		return fmt.Errorf("core: AudioState not set; call SetAudioState first")
	}
	return nil
}

// CreateListener creates the Core's single listener with the given head
// radius and an empty HRIR store ready for BeginSetup.
func (c *Core) CreateListener(headRadiusM float64) (*Listener, error) {
	if err := c.requireState(); err != nil {
		return nil, err
	}
	store := hrtf.NewStore(c.reporter, c.state.SampleRate, c.state.BlockSize)
	store.SetHeadRadius(headRadiusM)
	l := &Listener{
		core:               c,
		transform:          geom.NewTransform(geom.Zero),
		headRadius:         headRadiusM,
		store:              store,
		directionalityGain: geom.EarPair[float32]{Left: 1, Right: 1},
	}
	c.listener = l
	return l, nil
}

// Listener returns the Core's listener, or nil if none has been created.
func (c *Core) Listener() *Listener { return c.listener }

// CreateSingleSourceDSP creates a new Source bound to the listener's HRIR
// store, registers it with the orchestrator, and returns both the Source
// (for the per-block SetBuffer/SetSourceTransform/ProcessAnechoic API, §6)
// and its integer handle (for RemoveSource/RebuildImages).
func (c *Core) CreateSingleSourceDSP(hrirLength int) (*source.Source, int, error) {
	if err := c.requireState(); err != nil {
		return nil, 0, err
	}
	if c.listener == nil {
		return nil, 0, fmt.Errorf("core: CreateSingleSourceDSP called before CreateListener")
	}
	src, err := source.New(c.reporter, c.state, c.listener.store, hrirLength)
	if err != nil {
		return nil, 0, err
	}
	id := c.nextSourceID
	c.nextSourceID++
	c.sources[id] = &sourceEntry{
		src:      src,
		scratchL: make(audio.MonoBuffer, c.state.BlockSize),
		scratchR: make(audio.MonoBuffer, c.state.BlockSize),
	}
	return src, id, nil
}

// RemoveSource discards a source and its image tree.
func (c *Core) RemoveSource(id int) {
	delete(c.sources, id)
	if c.images != nil {
		c.images.RemoveSource(id)
	}
}

// CreateEnvironment wires a completed B-format ReverbStore as the Core's
// active reverb DSP (§6 "Core.CreateEnvironment() -> Environment").
func (c *Core) CreateEnvironment(store *ambisonic.ReverbStore) (*ambisonic.Environment, error) {
	if err := c.requireState(); err != nil {
		return nil, err
	}
	env, err := ambisonic.NewEnvironment(c.reporter, c.state, store)
	if err != nil {
		return nil, err
	}
	c.reverb = env
	c.processReverb = func(outL, outR audio.MonoBuffer) result.Result {
		return env.ProcessVirtualAmbisonicReverb(outL, outR)
	}
	return env, nil
}

// CreateAmbisonicDSP wires a completed higher-order HOAStore as the Core's
// active reverb DSP (§6 "Core.CreateAmbisonicDSP(order, normalization)").
func (c *Core) CreateAmbisonicDSP(store *ambisonic.HOAStore) (*ambisonic.AmbisonicDSP, error) {
	if err := c.requireState(); err != nil {
		return nil, err
	}
	hoa, err := ambisonic.NewAmbisonicDSP(c.reporter, c.state, store)
	if err != nil {
		return nil, err
	}
	c.reverb = hoa
	c.processReverb = func(outL, outR audio.MonoBuffer) result.Result {
		return hoa.ProcessVirtualAmbisonicAnechoic(outL, outR)
	}
	return hoa, nil
}

// SetRoom installs room as the shared geometry for the image-source engine
// and allocates a fixed-size pool of Source instances used to spatialize
// up to imagePoolSize virtual sources per block without any per-block
// allocation (§3 invariant 4).
func (c *Core) SetRoom(room *ism.Room, maxOrder int, maxDistanceImageSources float64, imagePoolSize, hrirLength int) error {
	if err := c.requireState(); err != nil {
		return err
	}
	if c.listener == nil {
		return fmt.Errorf("core: SetRoom called before CreateListener")
	}
	c.room = room
	c.images = ism.NewEngine(c.reporter, c.state, room, maxOrder, maxDistanceImageSources)

	c.imagePool = make([]*source.Source, imagePoolSize)
	c.imageScratchL = make([][]float32, imagePoolSize)
	c.imageScratchR = make([][]float32, imagePoolSize)
	for i := range c.imagePool {
		src, err := source.New(c.reporter, c.state, c.listener.store, hrirLength)
		if err != nil {
			return err
		}
		c.imagePool[i] = src
		c.imageScratchL[i] = make([]float32, c.state.BlockSize)
		c.imageScratchR[i] = make([]float32, c.state.BlockSize)
	}
	c.imageOut = make([]ism.VirtualSource, 0, imagePoolSize)
	return nil
}

// Room returns the Core's room geometry, or nil if SetRoom was never called.
func (c *Core) Room() *ism.Room { return c.room }

// ActiveSourceCount returns how many sources are currently registered
// (ready or not), for the C12 monitor dashboard.
func (c *Core) ActiveSourceCount() int { return len(c.sources) }

// ActiveImageCount returns how many virtual image sources were emitted by
// the image-source engine on the most recent ProcessAll call.
func (c *Core) ActiveImageCount() int { return len(c.imageOut) }

// RebuildImages rebuilds sourceID's image tree from its current transform
// and the listener's current position (§3 Lifecycle: "rebuilt when room
// geometry, reflection order, or source location changes by more than a
// configured threshold" — the threshold decision belongs to the caller).
func (c *Core) RebuildImages(id int) {
	entry, ok := c.sources[id]
	if !ok || c.images == nil || c.listener == nil {
		return
	}
	c.images.BuildImages(id, entry.src.Transform().Position, c.listener.transform.Position)
}

// SetHearingAidSimulator wires an optional C11 hearing-aid chain into the
// per-block pipeline (§2 data flow: "optional C11 -> optional C10 ->
// host"); pass nil to disable it.
func (c *Core) SetHearingAidSimulator(s *hasim.Simulator) { c.hearingAid = s }

// SetHearingLossSimulator wires an optional C10 hearing-loss chain into the
// per-block pipeline; pass nil to disable it.
func (c *Core) SetHearingLossSimulator(s *hlsim.Simulator) { c.hearingLoss = s }

// BeginReconfiguration / EndReconfiguration bracket control-thread HRIR or
// room reloads, so ProcessAll returns a zeroed block instead of reading
// half-updated tables (§5 "setupInProgress flag").
func (c *Core) BeginReconfiguration() { c.setupInProgress = true }
func (c *Core) EndReconfiguration()  { c.setupInProgress = false }

// Reset clears every Source's and image's DSP memory (new AudioState or
// explicit Reset, §3 Lifecycle). It does not forget registered sources,
// the room, or the reverb wiring.
func (c *Core) Reset() {
	for _, e := range c.sources {
		e.src.Reset()
	}
	for _, s := range c.imagePool {
		s.Reset()
	}
	if c.reverb != nil {
		c.reverb.Reset()
	}
	if c.images != nil {
		c.images.Reset()
	}
	if c.hearingAid != nil {
		c.hearingAid.Reset()
	}
	if c.hearingLoss != nil {
		c.hearingLoss.Reset()
	}
	c.anechoicL.Zero()
	c.anechoicR.Zero()
	c.reverbL.Zero()
	c.reverbR.Zero()
}

// localDirection converts a world-space position into a unit direction
// vector in the listener's local frame, the convention EncodeBFormat and
// the spherical-harmonic encoder expect.
func (c *Core) localDirection(worldPos geom.CVector3) geom.CVector3 {
	toSource := c.listener.transform.VectorTo(geom.NewTransform(worldPos))
	local := c.listener.transform.Orientation.Inverse().Rotate(toSource)
	norm := local.Norm()
	if norm < 1e-9 {
		return geom.Vec(0, 0, -1)
	}
	return local.Mul(1 / norm)
}

// ProcessAll drives the per-block pipeline (§2 data flow, §5 ordering
// guarantees): every active source's anechoic path and its Ambisonic
// encode, then every visible image source's anechoic path and encode, then
// the shared reverb DSP's single IFFT, then the anechoic+reverb sum.
func (c *Core) ProcessAll(stereoOut audio.StereoBuffer) result.Result {
	if c.setupInProgress {
		stereoOut.Zero()
		return c.reporter.SetResult(result.NotAllowed, "ProcessAll called while setupInProgress", "core/core.go", 0)
	}
	if c.listener == nil {
		stereoOut.Zero()
		return c.reporter.SetResult(result.NotInitialized, "ProcessAll called before CreateListener", "core/core.go", 0)
	}
	if len(stereoOut) != 2*c.state.BlockSize {
		stereoOut.Zero()
		return c.reporter.SetResult(result.BadSize, "ProcessAll: stereoOut length does not match 2*BlockSize", "core/core.go", 0)
	}

	c.anechoicL.Zero()
	c.anechoicR.Zero()

	if c.reverb != nil {
		left, right := c.listener.effectiveDirectionality()
		c.reverb.SetDirectionality(left, right)
		c.reverb.BeginBlock()
	}

	for id, entry := range c.sources {
		if !entry.src.Ready() {
			continue
		}
		if res := entry.src.ProcessAnechoic(c.listener.transform, entry.scratchL, entry.scratchR); res.Code == result.OK {
			c.anechoicL.Add(entry.scratchL)
			c.anechoicR.Add(entry.scratchR)
		}
		if c.reverb != nil {
			dir := c.localDirection(entry.src.Transform().Position)
			c.reverb.EncodeSource(dir, entry.src.Buffer())
		}
		if c.images != nil {
			c.images.UpdateVisibility(id, c.listener.transform.Position)
		}
	}

	if c.images != nil {
		c.imageOut = c.imageOut[:0]
		for id, entry := range c.sources {
			if !entry.src.Ready() {
				continue
			}
			c.imageOut = c.images.ProcessBlock(id, entry.src.Buffer(), c.imageOut)
		}
		for i, vs := range c.imageOut {
			if i >= len(c.imagePool) {
				break // bounded by the pool SetRoom configured; excess images are dropped this block
			}
			imgSrc := c.imagePool[i]
			imgSrc.SetSourceTransform(geom.NewTransform(vs.Location))
			imgSrc.SetBuffer(vs.Buffer)
			if res := imgSrc.ProcessAnechoic(c.listener.transform, c.imageScratchL[i], c.imageScratchR[i]); res.Code == result.OK {
				c.anechoicL.Add(c.imageScratchL[i])
				c.anechoicR.Add(c.imageScratchR[i])
			}
			if c.reverb != nil {
				dir := c.localDirection(vs.Location)
				c.reverb.EncodeSource(dir, vs.Buffer)
			}
		}
	}

	if c.reverb != nil && c.processReverb != nil {
		c.processReverb(c.reverbL, c.reverbR)
	} else {
		c.reverbL.Zero()
		c.reverbR.Zero()
	}

	n := c.state.BlockSize
	for i := 0; i < n; i++ {
		c.finalL[i] = c.anechoicL[i] + c.reverbL[i]
		c.finalR[i] = c.anechoicR[i] + c.reverbR[i]
	}

	if c.hearingAid != nil {
		c.hearingAid.ProcessBlock(c.finalL, c.finalR)
	}
	if c.hearingLoss != nil {
		c.hearingLoss.ProcessBlock(c.finalL, c.finalR)
	}

	audio.Interleave(stereoOut, c.finalL, c.finalR)

	return c.reporter.SetResult(result.OK, "", "core/core.go", 0)
}
