package store

import "time"

// DefaultState returns the default tree for the circular waveform player:
// fixed top-level sections, each an arbitrarily nested mapping of scalars,
// sequences, numeric buffers and timestamps.
func DefaultState() map[string]any {
	return map[string]any{
		"audio": map[string]any{
			"isPlaying":    false,
			"currentTime":  0.0,
			"duration":     0.0,
			"volume":       0.8,
			"playhead":     0.0,
			"muted":        false,
			"playbackRate": 1.0,
			"waveform":     []float32{},
			"loadedAt":     time.Time{},
		},
		"visual": map[string]any{
			"rotation":  0.0,
			"intensity": 0.6,
			"glow":      true,
			"palette":   "aurora",
			"barCount":  128,
		},
		"interaction": map[string]any{
			"pointerActive": false,
			"pointerAngle":  0.0,
			"shortcuts":     true,
		},
		"render": map[string]any{
			"fps":      60,
			"quality":  "high",
			"lowPower": false,
		},
		"ui": map[string]any{
			"panelOpen":    false,
			"theme":        "dark",
			"tooltipsSeen": false,
		},
		"settings": map[string]any{
			"volume":    0.8,
			"theme":     "dark",
			"quality":   "high",
			"shortcuts": true,
		},
	}
}

// registerBuiltinRules installs the range checks for known player fields.
// They run ahead of custom predicates on every validated write.
func registerBuiltinRules(rules *ruleSet) {
	rules.add("audio.volume", rangeRule(0, 1))
	rules.add("audio.playhead", rangeRule(0, 1))
	rules.add("audio.playbackRate", rangeRule(0.25, 4))
	rules.add("audio.currentTime", minRule(0))
	rules.add("audio.duration", minRule(0))
	rules.add("visual.intensity", rangeRule(0, 1))
	rules.add("visual.rotation", rangeRule(-360, 360))
	rules.add("render.fps", rangeRule(1, 240))
	rules.add("render.quality", oneOfRule("low", "medium", "high"))
	rules.add("settings.volume", rangeRule(0, 1))
	rules.add("settings.quality", oneOfRule("low", "medium", "high"))
}
