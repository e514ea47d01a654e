package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/cbas-go/internal/platform/env"
)

// Config describes the S3-compatible store that archives run outputs.
// The archive is optional; Enabled gates client construction.
type Config struct {
	Enabled       bool
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketOutputs string
}

func ConfigFromEnv() (Config, error) {
	enabled, err := env.Bool("CBAS_MINIO_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	useSSL, err := env.Bool("CBAS_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Enabled:       enabled,
		Endpoint:      env.String("CBAS_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("CBAS_MINIO_ACCESS_KEY", "cbas"),
		SecretKey:     env.String("CBAS_MINIO_SECRET_KEY", "cbasminio"),
		Region:        env.String("CBAS_MINIO_REGION", "us-east-1"),
		UseSSL:        useSSL,
		BucketOutputs: env.String("CBAS_MINIO_BUCKET_OUTPUTS", "run-outputs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketOutputs) == "" {
		return errors.New("outputs bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
