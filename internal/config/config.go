// Package config loads fieldsync settings.
//
// Precedence, lowest first: schema defaults, the CUE config file,
// FIELDSYNC_* environment variables, then command-line flags (applied by the
// caller). The CUE schema is the single source of validation: the merged
// result is re-encoded and checked against it after env overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaSource string

// Config is the resolved configuration.
type Config struct {
	Database  string    `json:"database" env:"FIELDSYNC_DATABASE"`
	Store     string    `json:"store" env:"FIELDSYNC_STORE"`
	Backend   Backend   `json:"backend"`
	Probe     Probe     `json:"probe"`
	Lease     Lease     `json:"lease"`
	Listen    string    `json:"listen" env:"FIELDSYNC_LISTEN"`
	Log       Log       `json:"log"`
	Telemetry Telemetry `json:"telemetry"`
}

// Backend configures the HTTP transport.
type Backend struct {
	BaseURL string   `json:"base_url" env:"FIELDSYNC_BACKEND_URL"`
	Timeout Duration `json:"timeout" env:"FIELDSYNC_BACKEND_TIMEOUT"`
}

// Probe configures the connectivity monitor.
type Probe struct {
	URL        string   `json:"url" env:"FIELDSYNC_PROBE_URL"`
	Interval   Duration `json:"interval" env:"FIELDSYNC_PROBE_INTERVAL"`
	MinBackoff Duration `json:"min_backoff" env:"FIELDSYNC_PROBE_MIN_BACKOFF"`
	MaxBackoff Duration `json:"max_backoff" env:"FIELDSYNC_PROBE_MAX_BACKOFF"`
}

// Lease configures cross-process drain exclusion.
type Lease struct {
	Enabled bool     `json:"enabled" env:"FIELDSYNC_LEASE_ENABLED"`
	TTL     Duration `json:"ttl" env:"FIELDSYNC_LEASE_TTL"`
}

// Log configures logging for long-running commands.
type Log struct {
	Level      string `json:"level" env:"FIELDSYNC_LOG_LEVEL"`
	File       string `json:"file" env:"FIELDSYNC_LOG_FILE"`
	MaxSizeMB  int    `json:"max_size_mb" env:"FIELDSYNC_LOG_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" env:"FIELDSYNC_LOG_MAX_BACKUPS"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	OTELEndpoint string `json:"otel_endpoint" env:"FIELDSYNC_OTEL_ENDPOINT"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadError reports a configuration that could not be loaded.
type LoadError struct {
	// Code identifies the error category.
	Code string

	// Message is a human-readable description.
	Message string
}

// Error codes for LoadError.
const (
	ErrCodeNotFound = "CONFIG_NOT_FOUND"
	ErrCodeParse    = "CONFIG_PARSE_FAILED"
	ErrCodeInvalid  = "CONFIG_INVALID"
	ErrCodeEnv      = "CONFIG_ENV_INVALID"
)

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError returns true if err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// Load resolves configuration from the schema defaults, the CUE file at
// path (skipped when path is empty) and the environment.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		data = b
	}
	return load(path, data)
}

// Default returns the schema defaults with no file or environment applied.
func Default() *Config {
	cfg, err := decode(cuecontext.New(), "", nil)
	if err != nil {
		panic(fmt.Sprintf("config schema defaults: %v", err))
	}
	return cfg
}

func load(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	cfg, err := decode(ctx, name, data)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, &LoadError{Code: ErrCodeEnv, Message: err.Error()}
	}

	if err := Validate(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode unifies the file with #Config and decodes the result.
func decode(ctx *cue.Context, name string, data []byte) (*Config, error) {
	schema := schemaValue(ctx)

	value := schema
	if len(data) > 0 {
		file := ctx.CompileBytes(data, cue.Filename(name))
		if err := file.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeParse, Message: details(err)}
		}
		value = schema.Unify(file)
	}

	if err := value.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: details(err)}
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: details(err)}
	}
	return &cfg, nil
}

// Validate checks cfg against the schema. Callers run it again after
// applying flag overrides.
func Validate(ctx *cue.Context, cfg *Config) error {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	value := schemaValue(ctx).Unify(ctx.Encode(cfg))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Code: ErrCodeInvalid, Message: details(err)}
	}
	return nil
}

func schemaValue(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaSource, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
}

func details(err error) string {
	return cueerrors.Details(err, nil)
}
