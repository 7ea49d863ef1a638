package scen

import (
	"fmt"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config carries the process-level runtime settings, loaded from the
// environment. Flags on the CLI override individual fields after loading.
type Config struct {
	// Workers sizes the parallel pool; 0 means one worker per CPU.
	Workers int `env:"ECOSCEN_WORKERS" envDefault:"0"`
	// StagingDir receives the working model copy; empty means alongside
	// the source model file.
	StagingDir string `env:"ECOSCEN_STAGING_DIR"`

	CleanupRetries int           `env:"ECOSCEN_CLEANUP_RETRIES" envDefault:"10"`
	CleanupBackoff time.Duration `env:"ECOSCEN_CLEANUP_BACKOFF" envDefault:"500ms"`

	LogLevel string `env:"ECOSCEN_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.CleanupRetries < 0 {
		return Config{}, fmt.Errorf("cleanup retries must be >= 0, got %d", cfg.CleanupRetries)
	}
	return cfg, nil
}

// EffectiveWorkers resolves the worker count, defaulting to one per CPU.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU()
	logrus.Debugf("worker count not set; defaulting to %d (one per CPU)", n)
	return n
}
