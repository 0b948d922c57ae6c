package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds the settings read from the process environment.
type Env struct {
	LogLevel   string        `env:"MANVER_LOG_LEVEL" envDefault:"info"`
	GitTimeout time.Duration `env:"MANVER_GIT_TIMEOUT"`
	NoCommit   bool          `env:"MANVER_NO_COMMIT"`
}

// LoadEnv parses the MANVER_* environment variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parsing environment: %w", err)
	}
	return e, nil
}

// ApplyEnv overrides file settings with environment ones.
func (c *Config) ApplyEnv(e Env) {
	if e.GitTimeout > 0 {
		c.timeout = e.GitTimeout
	}
	if e.NoCommit && c.VCS != nil {
		c.VCS.Commit = false
	}
}
