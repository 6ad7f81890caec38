package identity

import (
	"fmt"
	"math"
)

// Fixed saturation and lightness keep generated colors readable on white
const (
	colorSaturation = 0.65
	colorLightness  = 0.60
)

// pickColor draws random hues until it finds one not in use. After attempts
// tries it settles for the last candidate.
func pickColor(hue func() float64, attempts int, inUse map[string]struct{}) string {
	if attempts < 1 {
		attempts = 1
	}

	var candidate string
	for i := 0; i < attempts; i++ {
		candidate = hslToHex(hue(), colorSaturation, colorLightness)
		if _, taken := inUse[candidate]; !taken {
			return candidate
		}
	}
	return candidate
}

// hslToHex converts hue in degrees, saturation and lightness in [0,1] to #rrggbb
func hslToHex(h, s, l float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}

	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	m := l - c/2
	return fmt.Sprintf("#%02x%02x%02x", channel(r+m), channel(g+m), channel(b+m))
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
