// Package config provides configuration loading for phaseline.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/felixgeelhaar/phaseline/internal/errors"
)

// Config is the engine configuration
type Config struct {
	// StateDir is where plans and the current pointer live
	StateDir string `koanf:"state_dir"`
	Log      Log    `koanf:"log"`
	Gates    Gates  `koanf:"gates"`
	Agent    Agent  `koanf:"agent"`
	Checks   Checks `koanf:"checks"`
}

// Log configures the process logger
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Gates holds the corrective-cycle ceilings. Raising a ceiling here is the
// operator's remediation for a repeatedly escalating gate.
type Gates struct {
	Review            int `koanf:"review"`
	SpecializedReview int `koanf:"specialized_review"`
	Tests             int `koanf:"tests"`
	PostLoop          int `koanf:"post_loop"`
}

// Agent configures how collaborators are invoked
type Agent struct {
	// Mode is "openai" for the API gateway or "command" for per-role
	// executables
	Mode string `koanf:"mode"`
	// Model is the chat model used in openai mode
	Model string `koanf:"model"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `koanf:"api_key_env"`
	// Commands maps role names to argv in command mode
	Commands map[string][]string `koanf:"commands"`
}

// Checks holds the deterministic commands run during execute_tests,
// presentation typechecking, and post-loop build verification
type Checks struct {
	Test      []string `koanf:"test"`
	Typecheck []string `koanf:"typecheck"`
	Build     []string `koanf:"build"`
}

// Default returns the built-in defaults
func Default() Config {
	return Config{
		StateDir: ".phaseline",
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Gates: Gates{
			Review:            3,
			SpecializedReview: 2,
			Tests:             3,
			PostLoop:          3,
		},
		Agent: Agent{
			Mode:      "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Checks: Checks{
			Test:      []string{"go", "test", "./..."},
			Typecheck: []string{"go", "vet", "./..."},
			Build:     []string{"go", "build", "./..."},
		},
	}
}

// Load reads configuration from the YAML file at path (skipped when absent),
// then overrides with PHASELINE_* environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PHASELINE_GATES_REVIEW, PHASELINE_AGENT_MODEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if content, err := os.ReadFile(path); err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, errors.Wrap(errors.ErrCodeConfigInvalid,
					fmt.Sprintf("parse config file %s", path), err)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("read config file %s", path), err)
		}
	}

	// PHASELINE_GATES_REVIEW -> gates.review
	if err := k.Load(env.Provider("PHASELINE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "PHASELINE_")), "_", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "load environment overrides", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StateDir) == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "state_dir cannot be empty")
	}

	ceilings := map[string]int{
		"gates.review":             c.Gates.Review,
		"gates.specialized_review": c.Gates.SpecializedReview,
		"gates.tests":              c.Gates.Tests,
		"gates.post_loop":          c.Gates.PostLoop,
	}
	for name, v := range ceilings {
		if v < 1 {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("%s must be at least 1, got %d", name, v))
		}
	}

	switch c.Agent.Mode {
	case "openai":
	case "command":
		if len(c.Agent.Commands) == 0 {
			return errors.New(errors.ErrCodeConfigInvalid,
				"agent.mode is command but agent.commands is empty")
		}
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown agent.mode %q (supported: openai, command)", c.Agent.Mode))
	}

	if len(c.Checks.Test) == 0 || len(c.Checks.Build) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			"checks.test and checks.build must be configured")
	}

	return nil
}
