package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/pixelbox/internal/core"
)

// upperHalf draws the top pixel in the foreground and the bottom pixel in
// the background, packing two surface rows into one terminal row.
const upperHalf = "▀"

type cellColors struct {
	top, bottom core.Color
}

// RenderSurface converts a surface to a styled string for display.
// Groups adjacent cells with the same colors to minimize ANSI escape sequences.
// With wide set every pixel takes two columns, which looks square in most fonts.
func RenderSurface(s *core.Surface, wide bool) string {
	glyph := upperHalf
	if wide {
		glyph = upperHalf + upperHalf
	}

	var sb strings.Builder
	// Pre-allocate with extra space for ANSI codes
	sb.Grow(s.Width() * (s.Height() + 1) / 2 * 24)

	for y := 0; y < s.Height(); y += 2 {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < s.Width() {
			start := cellAt(s, x, y)

			// Collect consecutive cells with the same colors
			n := 0
			for x < s.Width() && cellAt(s, x, y) == start {
				n++
				x++
			}

			sb.WriteString(styleFor(start).Render(strings.Repeat(glyph, n)))
		}
	}
	return sb.String()
}

func cellAt(s *core.Surface, x, y int) cellColors {
	c := cellColors{top: s.Pixel(x, y), bottom: s.Background()}
	if y+1 < s.Height() {
		c.bottom = s.Pixel(x, y+1)
	}
	return c
}

func styleFor(c cellColors) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(hex(c.top))).
		Background(lipgloss.Color(hex(c.bottom)))
}

// hex drops alpha; terminals have no transparency.
func hex(c core.Color) string {
	return core.FormatColor(core.Color{R: c.R, G: c.G, B: c.B, A: 255})
}
