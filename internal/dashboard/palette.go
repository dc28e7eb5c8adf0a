package dashboard

// Palette is an ordered, fixed list of series colours.
type Palette []string

// DefaultPalette is the ten-colour series palette.
var DefaultPalette = Palette{
	"#3b82f6",
	"#10b981",
	"#f59e0b",
	"#ef4444",
	"#8b5cf6",
	"#ec4899",
	"#14b8a6",
	"#f97316",
	"#6366f1",
	"#84cc16",
}

// Color returns the colour for position i, cycling through the palette.
func (p Palette) Color(i int) string {
	if len(p) == 0 || i < 0 {
		return ""
	}
	return p[i%len(p)]
}

// Assign maps each symbol to the colour of its position. The result is a new
// map built from scratch on every call.
func (p Palette) Assign(symbols []string) map[string]string {
	out := make(map[string]string, len(symbols))
	for i, s := range symbols {
		if _, ok := out[s]; ok {
			continue
		}
		out[s] = p.Color(i)
	}
	return out
}
