// Package config provides configuration loading and validation for the portal server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/portal/internal/archive"
	"github.com/onnwee/portal/internal/sigv4"
	"github.com/onnwee/portal/internal/tracing"
)

// Signer names accepted in ARCHIVE_SIGNER.
const (
	SignerHMAC = "hmac"
	SignerSDK  = "sdk"
)

// Config holds all configuration values for the portal server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// InternalToken guards /metrics when set.
	InternalToken string `koanf:"internal_token"`

	// Archive store. Every field is optional; without a bucket and key pair
	// records go to the fallback sink.
	ArchiveBucket          string `koanf:"archive_bucket"`
	ArchivePrefix          string `koanf:"archive_prefix"`
	ArchiveSSE             string `koanf:"archive_sse"`
	ArchiveStorageClass    string `koanf:"archive_storage_class"`
	ArchiveRegion          string `koanf:"archive_region"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveSessionToken    string `koanf:"archive_session_token"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`
	ArchivePathStyle       bool   `koanf:"archive_path_style"`
	ArchiveSigner          string `koanf:"archive_signer"`
	ArchiveMaxConcurrency  int    `koanf:"archive_max_concurrency"`
	ArchiveTimeoutSeconds  int    `koanf:"archive_timeout_seconds"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidInteger       = errors.New("must be a valid integer")
	ErrInvalidFloat         = errors.New("must be a valid float")
	ErrInvalidBool          = errors.New("must be a boolean")
	ErrUnknownSigner        = errors.New("ARCHIVE_SIGNER must be hmac or sdk")
	ErrNegativeConcurrency  = errors.New("ARCHIVE_MAX_CONCURRENCY must not be negative")
	ErrNonPositiveTimeout   = errors.New("ARCHIVE_TIMEOUT_SECONDS must be positive")
	ErrInvalidSampleRate    = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrUnknownTraceExporter = errors.New("TRACING_EXPORTER must be otlp-grpc or otlp-http")
)

// Default values for non-secret configuration.
const (
	DefaultPort                  = 8080
	DefaultEnv                   = "development"
	DefaultArchiveSigner         = SignerHMAC
	DefaultArchiveTimeoutSeconds = 10
	DefaultTracingExporter       = tracing.ExporterOTLPHTTP
	DefaultTracingSampleRate     = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// PORTAL_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"PORTAL_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	maxConc, err := getEnvIntOrDefault("ARCHIVE_MAX_CONCURRENCY", k.Int("archive_max_concurrency"), 0)
	collect(err)
	timeoutSecs, err := getEnvIntOrDefault("ARCHIVE_TIMEOUT_SECONDS", k.Int("archive_timeout_seconds"), DefaultArchiveTimeoutSeconds)
	collect(err)
	pathStyle, err := getEnvBoolOrKoanf("ARCHIVE_PATH_STYLE", k, "archive_path_style")
	collect(err)
	tracingEnabled, err := getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled")
	collect(err)
	tracingInsecure, err := getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure")
	collect(err)

	sampleRate := DefaultTracingSampleRate
	if k.Exists("tracing_sample_rate") {
		sampleRate = k.Float64("tracing_sample_rate")
	}
	sampleRate, err = getEnvFloatOrDefault("TRACING_SAMPLE_RATE", sampleRate)
	collect(err)

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"PORTAL_ENV", "ENV"}, k.String("env"), DefaultEnv),
		InternalToken:          getEnvOrKoanf("PORTAL_INTERNAL_TOKEN", k, "internal_token"),
		ArchiveBucket:          getEnvOrKoanf("ARCHIVE_BUCKET", k, "archive_bucket"),
		ArchivePrefix:          getEnvOrDefault("ARCHIVE_PREFIX", k.String("archive_prefix"), archive.DefaultPrefix),
		ArchiveSSE:             getEnvOrDefault("ARCHIVE_SSE", k.String("archive_sse"), archive.DefaultSSE),
		ArchiveStorageClass:    getEnvOrDefault("ARCHIVE_STORAGE_CLASS", k.String("archive_storage_class"), archive.DefaultStorageClass),
		ArchiveRegion:          getEnvOrDefault("AWS_REGION", k.String("archive_region"), archive.DefaultRegion),
		ArchiveAccessKeyID:     getEnvOrKoanf("AWS_ACCESS_KEY_ID", k, "archive_access_key_id"),
		ArchiveSecretAccessKey: getEnvOrKoanf("AWS_SECRET_ACCESS_KEY", k, "archive_secret_access_key"),
		ArchiveSessionToken:    getEnvOrKoanf("AWS_SESSION_TOKEN", k, "archive_session_token"),
		ArchiveEndpoint:        getEnvOrKoanf("ARCHIVE_ENDPOINT", k, "archive_endpoint"),
		ArchivePathStyle:       pathStyle,
		ArchiveSigner:          strings.ToLower(getEnvOrDefault("ARCHIVE_SIGNER", k.String("archive_signer"), DefaultArchiveSigner)),
		ArchiveMaxConcurrency:  maxConc,
		ArchiveTimeoutSeconds:  timeoutSecs,
		TracingEnabled:         tracingEnabled,
		TracingExporter:        getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:        getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSampleRate:      sampleRate,
		TracingInsecure:        tracingInsecure,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return defaultVal, fmt.Errorf("%s %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise current.
func getEnvFloatOrDefault(envKey string, current float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return current, fmt.Errorf("%s %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	return current, nil
}

// getEnvBoolOrKoanf parses a boolean env var, falling back to the file value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) (bool, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return k.Bool(koanfKey), nil
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return k.Bool(koanfKey), fmt.Errorf("%s %w", envKey, ErrInvalidBool)
}

// Validate checks configuration values that were present but malformed.
// A missing archive bucket or key pair is not an error.
func (c *Config) Validate() []error {
	var errs []error

	if c.ArchiveSigner != SignerHMAC && c.ArchiveSigner != SignerSDK {
		errs = append(errs, ErrUnknownSigner)
	}
	if c.ArchiveMaxConcurrency < 0 {
		errs = append(errs, ErrNegativeConcurrency)
	}
	if c.ArchiveTimeoutSeconds <= 0 {
		errs = append(errs, ErrNonPositiveTimeout)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingExporter != tracing.ExporterOTLPGRPC && c.TracingExporter != tracing.ExporterOTLPHTTP {
		errs = append(errs, ErrUnknownTraceExporter)
	}

	return errs
}

// ArchiveConfig converts the archive settings into the client configuration.
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		Bucket:       c.ArchiveBucket,
		Prefix:       c.ArchivePrefix,
		Region:       c.ArchiveRegion,
		SSE:          c.ArchiveSSE,
		StorageClass: c.ArchiveStorageClass,
		Credentials: sigv4.Credentials{
			AccessKeyID:     c.ArchiveAccessKeyID,
			SecretAccessKey: c.ArchiveSecretAccessKey,
			SessionToken:    c.ArchiveSessionToken,
		},
		Endpoint:       c.ArchiveEndpoint,
		PathStyle:      c.ArchivePathStyle,
		MaxConcurrency: c.ArchiveMaxConcurrency,
		Timeout:        time.Duration(c.ArchiveTimeoutSeconds) * time.Second,
	}
}

// Signer returns the request signer selected by ArchiveSigner.
func (c *Config) Signer() sigv4.Signer {
	if c.ArchiveSigner == SignerSDK {
		return sigv4.NewSDKSigner()
	}
	return sigv4.NewHMACSigner()
}

// TracingConfig converts the tracing settings for tracing.NewProvider.
func (c *Config) TracingConfig(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        c.TracingEnabled,
		Environment:    c.Env,
		ExporterType:   c.TracingExporter,
		OTLPEndpoint:   c.TracingEndpoint,
		SamplingRate:   c.TracingSampleRate,
		InsecureMode:   c.TracingInsecure,
	}
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      strconv.Itoa(c.Port),
		"env":                       c.Env,
		"internal_token":            maskSecret(c.InternalToken),
		"archive_bucket":            orNotSet(c.ArchiveBucket),
		"archive_prefix":            c.ArchivePrefix,
		"archive_region":            c.ArchiveRegion,
		"archive_sse":               c.ArchiveSSE,
		"archive_storage_class":     c.ArchiveStorageClass,
		"archive_access_key_id":     maskSecret(c.ArchiveAccessKeyID),
		"archive_secret_access_key": maskSecret(c.ArchiveSecretAccessKey),
		"archive_session_token":     maskSecret(c.ArchiveSessionToken),
		"archive_endpoint":          orNotSet(c.ArchiveEndpoint),
		"archive_path_style":        strconv.FormatBool(c.ArchivePathStyle),
		"archive_signer":            c.ArchiveSigner,
		"archive_max_concurrency":   strconv.Itoa(c.ArchiveMaxConcurrency),
		"archive_timeout_seconds":   strconv.Itoa(c.ArchiveTimeoutSeconds),
		"tracing_enabled":           strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":          c.TracingExporter,
		"tracing_endpoint":          orNotSet(c.TracingEndpoint),
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}
