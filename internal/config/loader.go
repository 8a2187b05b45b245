// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load .env files via godotenv (the default ".env" is optional).
//  2. Use envconfig to process struct tags and populate the Config struct.
//  3. Populate BuildInfo from linker-injected variables.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// defaultDotenv is loaded when present and silently skipped otherwise.
const defaultDotenv = ".env"

// LoadConfig loads and validates the configuration.
//
// dotenvFiles lists additional .env files to load; unlike the default .env
// they must exist. godotenv never overrides variables already set in the
// process environment, so the OS environment always wins.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if err := godotenv.Load(defaultDotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{
			Type:    ErrDotenv,
			Message: "failed to read " + defaultDotenv,
			Err:     err,
		}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil {
			return nil, &ConfigError{
				Type:    ErrDotenv,
				Message: "failed to read " + f,
				Err:     err,
			}
		}
	}

	// The empty prefix means envconfig uses the exact tag values.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
