package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g.
// CHEWBRIDGE_ENGINE_LAYOUT or CHEWBRIDGE_LOG_LEVEL.
const EnvPrefix = "CHEWBRIDGE_"

// ApplyEnv overrides fields of c from the environment. Unset variables
// leave their fields unchanged.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (c *Config) applyEnv(opts env.Options) error {
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
