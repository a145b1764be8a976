package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const SignerEnvPrefix = "PDX_SIGNER"

// Signer configures the development presign server.
type Signer struct {
	ListenAddr   string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8787"`
	Secret       string        `envconfig:"SECRET"`
	Bucket       string        `envconfig:"BUCKET"`
	Region       string        `envconfig:"REGION" default:"us-east-1"`
	Endpoint     string        `envconfig:"ENDPOINT"`
	AccessKey    string        `envconfig:"ACCESS_KEY"`
	SecretKey    string        `envconfig:"SECRET_KEY"`
	Expiry       time.Duration `envconfig:"EXPIRY" default:"15m"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
}

// LoadSigner reads PDX_SIGNER_* variables.
func LoadSigner() (Signer, error) {
	var cfg Signer
	if err := envconfig.Process(SignerEnvPrefix, &cfg); err != nil {
		return Signer{}, fmt.Errorf("process signer environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Signer{}, fmt.Errorf("validate signer config: %w", err)
	}
	return cfg, nil
}

func (c Signer) Validate() error {
	var errs []error
	if c.Secret == "" {
		errs = append(errs, errors.New(SignerEnvPrefix+"_SECRET is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New(SignerEnvPrefix+"_BUCKET is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New(SignerEnvPrefix+"_ACCESS_KEY and "+SignerEnvPrefix+"_SECRET_KEY must be set together"))
	}
	return errors.Join(errs...)
}
