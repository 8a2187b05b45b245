// Package config defines the configuration of the Krushak workflow client and
// its HTTP facade. Configuration is loaded once at process start and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any invalid value aborts start-up (fail fast).
package config

import "time"

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Backend  BackendConfig
	Workflow WorkflowConfig
	Server   ServerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// BackendConfig describes how to reach the prediction, weather and report
// services. All three live behind one base URL.
type BackendConfig struct {
	BaseURL string `envconfig:"KRUSHAK_API_URL" default:"http://localhost:5000" validate:"required,url"`
	// Optional bearer token for deployments behind an authenticating gateway.
	APIToken  SecretString `envconfig:"KRUSHAK_API_TOKEN"`
	UserAgent string       `envconfig:"KRUSHAK_USER_AGENT" default:"Krushak-Client/1.0"`

	Timeout       time.Duration `envconfig:"KRUSHAK_HTTP_TIMEOUT" default:"15s" validate:"gt=0"`
	ReportTimeout time.Duration `envconfig:"KRUSHAK_REPORT_TIMEOUT" default:"60s" validate:"gt=0"`

	// Circuit breaker tuning. The breaker trips after BreakerFailures
	// consecutive transport failures and probes again after BreakerCooldown.
	BreakerFailures uint32        `envconfig:"KRUSHAK_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerCooldown time.Duration `envconfig:"KRUSHAK_BREAKER_COOLDOWN" default:"30s" validate:"gt=0"`
}

// WorkflowConfig holds controller behaviour switches.
type WorkflowConfig struct {
	Language string `envconfig:"KRUSHAK_LANGUAGE" default:"en"`
	// SupersedePending lets a new prediction submission replace one that is
	// still in flight instead of being rejected.
	SupersedePending bool `envconfig:"KRUSHAK_SUPERSEDE_PENDING" default:"false"`
}

// ServerConfig holds settings for the krushakd HTTP facade.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	SessionCapacity    int           `envconfig:"SESSION_CAPACITY" default:"1024" validate:"min=1"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s" validate:"gt=0"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrDotenv indicates an explicitly requested .env file could not be read.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
