package runsets

import (
	"errors"

	"github.com/animus-labs/cbas-go/internal/platform/env"
)

const DefaultMaximumRecordIDs = 100

type Config struct {
	MaximumRecordIDs int
}

func ConfigFromEnv() (Config, error) {
	maxIDs, err := env.Int("CBAS_RUN_SETS_MAXIMUM_RECORD_IDS", DefaultMaximumRecordIDs)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{MaximumRecordIDs: maxIDs}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaximumRecordIDs < 1 {
		return errors.New("CBAS_RUN_SETS_MAXIMUM_RECORD_IDS must be >= 1")
	}
	return nil
}
