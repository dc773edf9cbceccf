package engine

import "fmt"

// Preset is an encoder speed preset, fastest first.
type Preset int

const (
	PresetUltrafast Preset = iota
	PresetSuperfast
	PresetVeryfast
	PresetFaster
	PresetFast
	PresetMedium
	PresetSlow
	PresetSlower
	PresetVeryslow
	PresetPlacebo
)

var presetNames = [...]string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow", "placebo",
}

// String returns the preset name.
func (p Preset) String() string {
	if p < 0 || int(p) >= len(presetNames) {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return presetNames[p]
}

// Valid reports whether p names a preset.
func (p Preset) Valid() bool {
	return p >= PresetUltrafast && p <= PresetPlacebo
}

// PresetForSpeed maps a speed percentage to a preset: 100 is ultrafast,
// 0 is placebo. Out of range values are clamped.
func PresetForSpeed(pct int) Preset {
	pct = ClampPercent(pct)
	last := int(PresetPlacebo)
	return Preset(((100-pct)*last + 50) / 100)
}

// ClampPercent limits pct to 0..100.
func ClampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
