package config

import "sort"

// Presets are named engine tunings selectable with --preset.
var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"fast": func() *Config {
		c := DefaultConfig()
		c.StepTime = 0.001
		c.RecordEvery = 30
		return c
	}(),
	"precise": func() *Config {
		c := DefaultConfig()
		c.StepTime = 0.0005
		c.RecordEvery = 60
		c.PublishBuffer = 256
		return c
	}(),
	"coarse": func() *Config {
		c := DefaultConfig()
		c.StepTime = 0.01
		c.ODEMethod = "euler"
		c.RecordEvery = 1
		return c
	}(),
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
