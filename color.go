package vaporlight

// Colors arrive on the wire in two precisions, 8 and 16 bit per channel.
// Both normalize to the 16 bit representation below before they are stored
// in an overlay, so the rest of the daemon only ever deals with one format.

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Color is the internal RGBA representation, 16 bits per channel
type Color struct {
	R, G, B, A uint16
}

// ColorFrom8 widens 8 bit channel values to the internal representation.
// The scaling by 0x0101 maps 0x00 to 0x0000 and 0xff to 0xffff and is
// exactly invertible, which keeps the low precision wire encoding a
// byte for byte round trip.
func ColorFrom8(r, g, b, a uint8) Color {
	return Color{
		R: uint16(r) * 0x0101,
		G: uint16(g) * 0x0101,
		B: uint16(b) * 0x0101,
		A: uint16(a) * 0x0101,
	}
}

// RGBA8 narrows the channels back to 8 bits without applying alpha
func (c Color) RGBA8() (r, g, b, a uint8) {
	return uint8(c.R >> 8), uint8(c.G >> 8), uint8(c.B >> 8), uint8(c.A >> 8)
}

// Channels8 returns the alpha scaled 8 bit channel values in the order the
// hardware bus expects them, red, green, blue, then the raw alpha.  LEDs
// with fewer physical channels than four simply ignore the tail.
func (c Color) Channels8() [4]uint8 {
	alpha := uint32(c.A)
	scale := func(v uint16) uint8 {
		return uint8((uint32(v) * alpha / 0xffff) >> 8)
	}
	return [4]uint8{scale(c.R), scale(c.G), scale(c.B), uint8(c.A >> 8)}
}

// strobeBlend is how far toward white a color is pushed while its overlay
// is flashing
const strobeBlend = 0.8

var strobeWhite = colorful.Color{R: 1.0, G: 1.0, B: 1.0}

// Flash returns the transient color shown for the strobe effect, the
// steady color blended toward white in Lab space at full alpha.  Lab
// keeps the blend perceptually even, the same reason the gradient tables
// elsewhere use it.
func (c Color) Flash() Color {
	base := colorful.Color{
		R: float64(c.R) / 0xffff,
		G: float64(c.G) / 0xffff,
		B: float64(c.B) / 0xffff,
	}
	r, g, b := base.BlendLab(strobeWhite, strobeBlend).Clamped().RGB255()
	flashed := ColorFrom8(r, g, b, 0xff)
	return flashed
}
