package hasim

// fig6Order is the load-bearing curve-storage order §9 Open Questions
// preserves verbatim: gains are computed for input levels in natural order
// (40, 65, 95 dB SPL -> indices 0,1,2) but stored into level-curve slots
// (1, 0, 2) — so slot 0 ends up holding the *central* (65 dB) curve, not
// the lowest input level. Reimplementations must match this exact mapping.
var fig6Order = [3]int{1, 0, 2}

// Fig6Levels are the three reference input levels, dB SPL, Fig6 fits gain
// curves for (§4.7, GLOSSARY "Fig6").
var Fig6Levels = [3]float64{40, 65, 95}

// Fig6Gain approximates the classic Fig6 prescription-rule insertion gain,
// in dB, for one audiogram band threshold (dBHL) at one of the three
// reference input levels. Below a 20 dBHL threshold no gain is prescribed.
// Gain shrinks with increasing input level (more gain for soft sounds, less
// for loud ones), matching Fig6's compression intent.
func Fig6Gain(thresholdDBHL float64, levelIndex int) float64 {
	htl := thresholdDBHL - 20
	if htl < 0 {
		htl = 0
	}
	central := 0.48 * htl
	switch levelIndex {
	case 0: // 40 dB SPL input: most gain
		g := central + 0.25*htl
		return clampGain(g)
	case 2: // 95 dB SPL input: least gain (compression)
		g := central - 0.2*htl
		return clampGain(g)
	default: // 65 dB SPL input: central curve
		return clampGain(central)
	}
}

func clampGain(g float64) float64 {
	if g < 0 {
		return 0
	}
	if g > 80 {
		return 80
	}
	return g
}

// Fig6LevelCurves computes the per-band gain (dB) for all three reference
// levels from a 9-band audiogram, storing them into the load-bearing
// (1,0,2) slot order so curves[0] is always the central 65 dB-SPL curve.
func Fig6LevelCurves(audiogramDBHL [9]float64) (curves [3][9]float64) {
	for band, dbhl := range audiogramDBHL {
		for naturalLevel := 0; naturalLevel < 3; naturalLevel++ {
			slot := fig6Order[naturalLevel]
			curves[slot][band] = Fig6Gain(dbhl, naturalLevel)
		}
	}
	return curves
}
