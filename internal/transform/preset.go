package transform

import "strings"

// Preset selects one of the fixed presentation sizes.
type Preset int

const (
	Original Preset = iota
	Emoji
	Avatar
	Preview
	Badge
)

// Policy is how a preset changes the size of its input.
type Policy int

const (
	Identity  Policy = iota
	HeightCap        // shrink to Height keeping the aspect ratio
	Exact            // stretch to Width x Height
)

// StaticHeight caps the height of a de-animated image.
const StaticHeight = 422

// Profile defines the resize policy and output format of a preset.
type Profile struct {
	Name   string
	Policy Policy
	Width  int // Exact only
	Height int
	Format string // output format
}

// Built-in profiles.
var profiles = map[Preset]Profile{
	Original: {Name: "original", Policy: Identity, Format: "webp"},
	Emoji:    {Name: "emoji", Policy: HeightCap, Height: 128, Format: "webp"},
	Avatar:   {Name: "avatar", Policy: HeightCap, Height: 320, Format: "webp"},
	Preview:  {Name: "preview", Policy: Exact, Width: 200, Height: 200, Format: "webp"},
	Badge:    {Name: "badge", Policy: Exact, Width: 96, Height: 96, Format: "png"},
}

// Profile returns the profile of p. Unknown presets behave like Original.
func (p Preset) Profile() Profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return profiles[Original]
}

func (p Preset) String() string { return p.Profile().Name }

// ParsePreset resolves a preset by name.
func ParsePreset(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, prof := range profiles {
		if prof.Name == name {
			return p, true
		}
	}
	return Original, false
}

// Presets lists every preset in priority order, highest first.
func Presets() []Preset {
	return []Preset{Emoji, Avatar, Preview, Badge, Original}
}
