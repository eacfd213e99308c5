package audio

import "strings"

// Preset is a pre-tuned response profile for a music style. Attack and
// release are normalised response speeds in (0,1]; BeatThreshold is the
// multiplier over the rolling average that counts as a beat; Sensitivity
// scales each band before pattern evaluation.
type Preset struct {
	Name          string
	Attack        float64
	Release       float64
	BeatThreshold float64
	Sensitivity   [NumBands]float64
}

// presets holds the built-in profiles, keyed by lower-case name.
var presets = map[string]Preset{
	"auto": {
		Name:          "auto",
		Attack:        0.35,
		Release:       0.08,
		BeatThreshold: 1.3,
		Sensitivity:   [NumBands]float64{1.0, 1.0, 1.0, 1.0, 1.0},
	},
	"edm": {
		Name:          "edm",
		Attack:        0.7,
		Release:       0.15,
		BeatThreshold: 1.1,
		Sensitivity:   [NumBands]float64{1.5, 0.8, 0.9, 1.2, 1.0},
	},
	"chill": {
		Name:          "chill",
		Attack:        0.25,
		Release:       0.05,
		BeatThreshold: 1.6,
		Sensitivity:   [NumBands]float64{0.9, 1.0, 1.1, 1.2, 1.3},
	},
	"rock": {
		Name:          "rock",
		Attack:        0.5,
		Release:       0.12,
		BeatThreshold: 1.3,
		Sensitivity:   [NumBands]float64{1.2, 1.0, 1.0, 0.9, 0.8},
	},
	"hiphop": {
		Name:          "hiphop",
		Attack:        0.6,
		Release:       0.1,
		BeatThreshold: 1.2,
		Sensitivity:   [NumBands]float64{1.4, 0.9, 1.0, 1.1, 0.9},
	},
	"classical": {
		Name:          "classical",
		Attack:        0.2,
		Release:       0.04,
		BeatThreshold: 1.8,
		Sensitivity:   [NumBands]float64{0.8, 1.0, 1.2, 1.3, 1.4},
	},
}

// LookupPreset returns the preset for name (case-insensitive). Unknown
// names fall back to "auto".
func LookupPreset(name string) Preset {
	if p, ok := presets[strings.ToLower(name)]; ok {
		return p
	}
	return presets["auto"]
}

// PresetNames lists the built-in preset names in a stable order.
func PresetNames() []string {
	return []string{"auto", "edm", "chill", "rock", "hiphop", "classical"}
}
