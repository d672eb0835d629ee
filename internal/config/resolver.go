package config

import (
	"maps"
	"slices"
)

// Resolve returns the configured module IDs in sorted order, which is the
// order modules are loaded and started in.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
