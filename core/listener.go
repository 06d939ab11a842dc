package core

import (
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hrtf"
)

// Listener holds the per-process listener state (§3 "Listener"): transform,
// head radius, a pointer to its HRIR store, and per-ear directionality.
// Exactly one Listener is owned by a Core at a time.
type Listener struct {
	core *Core

	transform  geom.Transform
	headRadius float64

	store *hrtf.Store

	customizedITD bool

	directionalityGain    geom.EarPair[float32]
	directionalityEnabled geom.EarPair[bool]
}

// HRTF returns the listener's HRIR store, for the control-thread build
// protocol (BeginSetup/AddHRIR/AddHRTFTable/EndSetup).
func (l *Listener) HRTF() *hrtf.Store { return l.store }

// SetTransform updates the listener's world position/orientation.
func (l *Listener) SetTransform(t geom.Transform) { l.transform = t }

// Transform returns the listener's current world transform.
func (l *Listener) Transform() geom.Transform { return l.transform }

// SetHeadRadius updates the head radius used by every Source created
// against this listener's store (near-source bypass, Woodworth ITD).
func (l *Listener) SetHeadRadius(r float64) {
	l.headRadius = r
	l.store.SetHeadRadius(r)
}

// HeadRadius returns the configured head radius in metres.
func (l *Listener) HeadRadius() float64 { return l.headRadius }

// EnableCustomizedITD toggles the Woodworth-formula ITD in place of the
// measured table delay, for every Source reading this listener's store.
func (l *Listener) EnableCustomizedITD(enable bool) {
	l.customizedITD = enable
	l.store.EnableCustomizedITD(enable)
}

// CustomizedITDEnabled reports the current toggle state.
func (l *Listener) CustomizedITDEnabled() bool { return l.customizedITD }

// SetDirectionalityGain sets ear's configured linear gain (§3 "per-ear
// directionality linear-gain"), used only while EnableDirectionality(ear)
// is true.
func (l *Listener) SetDirectionalityGain(ear geom.Ear, gain float32) {
	l.directionalityGain.Set(ear, gain)
}

// EnableDirectionality toggles whether ear's configured directionality
// gain is applied to the reverb sum, or bypassed at unity (§6
// "DirectionalityEnabled per ear").
func (l *Listener) EnableDirectionality(ear geom.Ear, enable bool) {
	l.directionalityEnabled.Set(ear, enable)
}

func (l *Listener) effectiveDirectionality() (left, right float32) {
	left, right = 1, 1
	if l.directionalityEnabled.Left {
		left = l.directionalityGain.Left
	}
	if l.directionalityEnabled.Right {
		right = l.directionalityGain.Right
	}
	return left, right
}
