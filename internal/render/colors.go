package render

import (
	"fmt"
	"image/color"
)

// Palette of the arcade card
var (
	backgroundTop    = parseHexColor("#0b1220")
	backgroundBottom = parseHexColor("#020617")

	starColor = withAlpha(parseHexColor("#94a3b8"), 0.15)

	meteorCore   = parseHexColor("#fde047")
	meteorMid    = parseHexColor("#fb923c")
	meteorEdge   = parseHexColor("#b45309")
	meteorStroke = withAlpha(color.NRGBA{255, 255, 255, 255}, 0.35)
	labelColor   = withAlpha(parseHexColor("#0f172a"), 0.85)

	planeFill   = parseHexColor("#7dd3fc")
	planeStroke = parseHexColor("#0ea5e9")

	hudColor   = withAlpha(parseHexColor("#e2e8f0"), 0.75)
	flashColor = parseHexColor("#ef4444")
)

func parseHexColor(hex string) color.NRGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.NRGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{255, 255, 255, 255}
	}
	return color.NRGBA{r, g, b, 255}
}

func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = alpha8(a)
	return c
}

func alpha8(a float64) uint8 {
	if a <= 0 {
		return 0
	}
	if a >= 1 {
		return 255
	}
	return uint8(a*255 + 0.5)
}
