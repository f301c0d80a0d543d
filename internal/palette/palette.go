// Package palette assigns terminal colors to hosts. A host with an
// explicit color keeps it; everything else gets a deterministic pick
// from the configured palette, stable across runs and restarts so a
// host never changes color between sessions.
package palette

import (
	"hash/fnv"
	"image/color"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/agent462/fleetmux/internal/config"
)

// Color is one entry of the 16-color terminal palette.
type Color struct {
	index int
}

// Term converts to a lipgloss-renderable color.
func (c Color) Term() color.Color {
	return lipgloss.Color(strconv.Itoa(c.index))
}

// Focus returns the bright variant used for the focused tile border.
// Bright colors already are their own focus variant.
func (c Color) Focus() Color {
	if c.index < 8 {
		return Color{index: c.index + 8}
	}
	return c
}

// Name returns the canonical color name.
func (c Color) Name() string {
	for name, idx := range names {
		if idx == c.index {
			return name
		}
	}
	return strconv.Itoa(c.index)
}

// DownColor is the override for DOWN tiles: dark red, distinct from any
// palette assignment.
var DownColor = lipgloss.Color("88")

// names is the accepted color vocabulary, mapped to ANSI indices.
var names = map[string]int{
	"black":        0,
	"red":          1,
	"green":        2,
	"yellow":       3,
	"blue":         4,
	"magenta":      5,
	"cyan":         6,
	"gray":         7,
	"darkgray":     8,
	"lightred":     9,
	"lightgreen":   10,
	"lightyellow":  11,
	"lightblue":    12,
	"lightmagenta": 13,
	"lightcyan":    14,
	"white":        15,
}

// Parse resolves a color name, case-insensitively.
func Parse(name string) (Color, bool) {
	idx, ok := names[strings.ToLower(strings.TrimSpace(name))]
	return Color{index: idx}, ok
}

// Default is the fallback when a configured name does not parse.
var Default = Color{index: 4} // blue

// Assignor maps host names to palette colors.
type Assignor struct {
	palette []Color
}

// New builds an assignor from an ordered list of color names. Unknown
// names are dropped; an empty result falls back to a single-blue palette
// so ColorFor always has something to return.
func New(paletteNames []string) *Assignor {
	var palette []Color
	for _, name := range paletteNames {
		if c, ok := Parse(name); ok {
			palette = append(palette, c)
		}
	}
	if len(palette) == 0 {
		palette = []Color{Default}
	}
	return &Assignor{palette: palette}
}

// ColorFor returns the host's color: its explicit configured color if it
// has one, otherwise a stable hash of the host name into the palette.
func (a *Assignor) ColorFor(host config.Host) Color {
	if host.Color != "" {
		if c, ok := Parse(host.Color); ok {
			return c
		}
	}
	h := fnv.New64a()
	h.Write([]byte(host.Name))
	return a.palette[h.Sum64()%uint64(len(a.palette))]
}
