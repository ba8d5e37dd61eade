package imaging

import "image/color"

type colorStop struct {
	pos, value float64
}

// Piecewise-linear channel definitions of the classic "jet" colormap.
var (
	jetRed   = []colorStop{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}}
	jetGreen = []colorStop{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}}
	jetBlue  = []colorStop{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}}
)

var jetLUT = buildJet()

func buildJet() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		t := float64(i) / 255
		lut[i] = color.RGBA{
			R: channelByte(interpolate(jetRed, t)),
			G: channelByte(interpolate(jetGreen, t)),
			B: channelByte(interpolate(jetBlue, t)),
			A: 255,
		}
	}
	return lut
}

// Jet maps an 8-bit intensity to its jet color.
func Jet(v uint8) color.RGBA {
	return jetLUT[v]
}

func interpolate(stops []colorStop, t float64) float64 {
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].pos {
			lo, hi := stops[i-1], stops[i]
			frac := (t - lo.pos) / (hi.pos - lo.pos)
			return lo.value + frac*(hi.value-lo.value)
		}
	}
	return stops[len(stops)-1].value
}

func channelByte(v float64) uint8 {
	return uint8(v*255 + 0.5)
}
