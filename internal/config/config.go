// SPDX-License-Identifier: Apache-2.0

// Package config loads the small set of knobs OmniLang's core exposes as
// configuration rather than hard-coded constants: the default loop-guard
// bounds (max_iterations/max_time_ms) and the legacy FOR-null-iteration
// compatibility flag. It layers a YAML file provider over built-in
// defaults, trimmed down to the one config document OmniLang actually
// needs — there is no database DSN, listen address, or plugin search
// path to load here, since those concerns don't exist in this module's
// scope.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/omnilang/omnilang/internal/decision"
	"github.com/omnilang/omnilang/internal/policyir"
)

// Guard mirrors policyir.GuardMeta's fields for the purposes of a config
// document; it is a separate type so this package doesn't force
// internal/policyir's struct tags to follow koanf's (lowercase, dotted)
// naming convention.
type Guard struct {
	MaxIterations int `koanf:"max_iterations"`
	MaxTimeMs     int `koanf:"max_time_ms"`
}

// Config is the full OmniLang core configuration document.
type Config struct {
	Guard                   Guard `koanf:"guard"`
	LegacyForNullIterations bool  `koanf:"legacy_for_null_iterations"`
}

// Default returns a Config populated with the package's built-in
// defaults (50 iterations, 1000ms, legacy behavior off).
func Default() Config {
	return Config{
		Guard: Guard{
			MaxIterations: policyir.DefaultMaxIterations,
			MaxTimeMs:     policyir.DefaultMaxTimeMs,
		},
		LegacyForNullIterations: false,
	}
}

// Load reads a YAML config document from path over top of Default(),
// starting from built-in defaults and merging a file provider on top.
// A missing file is not an error; Load simply returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, err
	}

	out := cfg
	if err := k.Unmarshal("", &out); err != nil {
		return cfg, err
	}
	return out, nil
}

// Apply installs cfg as the process-wide defaults consumed by
// internal/policyir (guard bounds) and returns the decision.Options a
// caller should pass to internal/policyinterp.Execute for the legacy
// compatibility flag.
func Apply(cfg Config) decision.Options {
	policyir.DefaultMaxIterations = cfg.Guard.MaxIterations
	policyir.DefaultMaxTimeMs = cfg.Guard.MaxTimeMs
	return decision.Options{LegacyForNullIterations: cfg.LegacyForNullIterations}
}
