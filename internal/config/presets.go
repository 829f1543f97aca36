package config

import (
	"sort"

	"github.com/san-kum/poseloop/internal/dynamo"
)

func preset(apply func(*Config)) *Config {
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

// Presets are named scenarios. Use GetPreset to obtain a modifiable copy.
var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"viapoint": preset(func(c *Config) {
		c.Strategy = "viapoint"
		c.StartPose = dynamo.Pose{X: 0, Y: 6, Theta: 0}
		c.Duration = 15
	}),
	"wheels": preset(func(c *Config) {
		c.Strategy = "wheels"
		c.Duration = 5
		c.Wheels.Left = 10
		c.Wheels.Right = 12
	}),
	"far": preset(func(c *Config) {
		c.StartPose = dynamo.Pose{X: -6, Y: -4, Theta: 1.2}
		c.Duration = 30
	}),
}

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
