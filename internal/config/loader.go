// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Outside local, resolve *_SSM_PARAM bindings for unset secrets.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

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

// loaderDeps holds the environment access used while loading, so tests can
// swap the provider factory.
type loaderDeps struct {
	lookupEnv   func(string) (string, bool)
	setEnv      func(key, value string) error
	newProvider func(lookupEnv func(string) (string, bool)) SecretProvider
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv:   os.LookupEnv,
		setEnv:      os.Setenv,
		newProvider: defaultSecretProvider,
	}
}

// defaultSecretProvider reads the parameter store in the service's own
// region, honouring the LocalStack endpoint.
func defaultSecretProvider(lookupEnv func(string) (string, bool)) SecretProvider {
	region, _ := lookupEnv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	endpoint, _ := lookupEnv("AWS_ENDPOINT_URL")
	return NewSSMProvider(region, endpoint)
}

// LoadConfig loads and validates the configuration. dotenvFiles defaults to
// ".env" in the working directory; missing files are skipped but a malformed
// file is an error. Values already in the environment are never overridden.
// Secrets bound with *_SSM_PARAM are read from SSM Parameter Store.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	return loadConfigWithDeps(nil, defaultDeps(), dotenvFiles...)
}

// LoadConfigWithProvider is LoadConfig with *_SSM_PARAM bindings resolved
// through provider.
func LoadConfigWithProvider(provider SecretProvider, dotenvFiles ...string) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps(), dotenvFiles...)
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps, dotenvFiles ...string) (*Config, error) {
	time.Local = time.UTC

	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{
				Type:    ErrDotenv,
				Message: fmt.Sprintf("failed to load %s", f),
				Err:     err,
			}
		}
	}

	if err := resolveSecrets(provider, deps); err != nil {
		return nil, err
	}

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
