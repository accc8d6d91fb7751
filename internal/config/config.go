// Package config provides configuration management for the institution-sync tools.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/helixir/institution-sync/internal/domain"
	"github.com/helixir/institution-sync/internal/harvest"
	"github.com/helixir/institution-sync/internal/observability"
	"github.com/helixir/institution-sync/internal/papersources/openalex"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "INSTSYNC"

// DateLayout is the layout of from_date and to_date.
const DateLayout = "2006-01-02"

// DefaultROR is the example institution used when none is configured.
const DefaultROR = "04q2jes40"

// Config holds all configuration for a fetch run.
type Config struct {
	// OpenAlex contains the API query settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Paging contains the paging controller bounds.
	Paging PagingConfig `mapstructure:"paging"`
	// Output contains output file locations.
	Output OutputConfig `mapstructure:"output"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
}

// OpenAlexConfig holds the works query settings.
type OpenAlexConfig struct {
	// BaseURL is the API root (default: https://api.openalex.org).
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// Email identifies the caller for the polite pool.
	Email string `mapstructure:"email" validate:"required,email"`
	// ROR is the institution ROR code.
	ROR string `mapstructure:"ror" validate:"required"`
	// FromDate is the first publication date included (YYYY-MM-DD).
	FromDate string `mapstructure:"from_date" validate:"required,datetime=2006-01-02"`
	// ToDate is the last publication date included (YYYY-MM-DD).
	ToDate string `mapstructure:"to_date" validate:"required,datetime=2006-01-02"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// RateLimit is the request ceiling in requests per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gt=0"`
}

// PagingConfig holds the paging controller bounds.
type PagingConfig struct {
	PageSize        int           `mapstructure:"page_size" validate:"min=1,max=200"`
	ReducedPageSize int           `mapstructure:"reduced_page_size" validate:"min=1,ltefield=PageSize"`
	MaxPages        int           `mapstructure:"max_pages" validate:"min=1"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" validate:"gte=0"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff" validate:"gt=0"`
	MaxWait         time.Duration `mapstructure:"max_wait" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"min=1"`
}

// OutputConfig holds output locations.
type OutputConfig struct {
	// Path is the snapshot file.
	Path string `mapstructure:"path" validate:"required"`
	// MetricsFile, when set, receives Prometheus text-format metrics after the run.
	MetricsFile string `mapstructure:"metrics_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
	// Output is the log destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// FlagKeys maps command-line flag names to configuration keys. Flags that
// are set on the command line take precedence over env and file values.
var FlagKeys = map[string]string{
	"ror":          "openalex.ror",
	"email":        "openalex.email",
	"from":         "openalex.from_date",
	"to":           "openalex.to_date",
	"per-page":     "paging.page_size",
	"max-pages":    "paging.max_pages",
	"out":          "output.path",
	"metrics-file": "output.metrics_file",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from defaults, an optional .env file, environment
// variables, a config file and flags, in increasing order of precedence.
//
// When path is empty, config.yaml is searched in . and ./config and may be
// absent. An explicit path must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, time.Now().UTC())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. to_date defaults to the
// last day of now's year.
func setDefaults(v *viper.Viper, now time.Time) {
	// OpenAlex defaults
	v.SetDefault("openalex.base_url", openalex.DefaultBaseURL)
	v.SetDefault("openalex.email", "")
	v.SetDefault("openalex.ror", DefaultROR)
	v.SetDefault("openalex.from_date", "2010-01-01")
	v.SetDefault("openalex.to_date", fmt.Sprintf("%d-12-31", now.Year()))
	v.SetDefault("openalex.timeout", openalex.DefaultTimeout.String())
	v.SetDefault("openalex.rate_limit", openalex.DefaultRateLimit)

	// Paging defaults
	d := harvest.DefaultConfig()
	v.SetDefault("paging.page_size", d.PageSize)
	v.SetDefault("paging.reduced_page_size", d.ReducedPageSize)
	v.SetDefault("paging.max_pages", d.MaxPages)
	v.SetDefault("paging.politeness_delay", d.PolitenessDelay.String())
	v.SetDefault("paging.base_backoff", d.BaseBackoff.String())
	v.SetDefault("paging.max_wait", d.MaxWait.String())
	v.SetDefault("paging.max_retries", d.MaxRetries)

	// Output defaults
	v.SetDefault("output.path", "institution_data.json")
	v.SetDefault("output.metrics_file", "")

	// Logging defaults
	l := observability.DefaultLoggingConfig()
	v.SetDefault("logging.level", l.Level)
	v.SetDefault("logging.format", l.Format)
	v.SetDefault("logging.output", l.Output)
	v.SetDefault("logging.add_source", l.AddSource)
	v.SetDefault("logging.time_format", l.TimeFormat)
}

// Validate checks struct tags and the constraints that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError(fieldKey(fe), describe(fe))
		}
		return err
	}

	from, _ := time.Parse(DateLayout, c.OpenAlex.FromDate)
	to, _ := time.Parse(DateLayout, c.OpenAlex.ToDate)
	if from.After(to) {
		return domain.NewValidationError("openalex.from_date",
			fmt.Sprintf("%s is after to_date %s", c.OpenAlex.FromDate, c.OpenAlex.ToDate))
	}

	return nil
}

// fieldKey turns a validator namespace such as Config.Paging.PageSize into
// the configuration key paging.page_size.
func fieldKey(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snakeCase(p)
	}
	return strings.Join(parts, ".")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return fmt.Sprintf("%q is not a valid email address", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "datetime":
		return fmt.Sprintf("%q is not a date in YYYY-MM-DD form", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v must be one of [%s]", fe.Value(), fe.Param())
	case "ltefield":
		return fmt.Sprintf("%v must not exceed %s", fe.Value(), snakeCase(fe.Param()))
	default:
		return fmt.Sprintf("%v failed %s=%s", fe.Value(), fe.Tag(), fe.Param())
	}
}

func snakeCase(s string) string {
	switch s {
	case "OpenAlex":
		return "openalex"
	case "ROR":
		return "ror"
	case "BaseURL":
		return "base_url"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HarvestConfig returns the paging controller configuration.
func (c *Config) HarvestConfig() harvest.Config {
	return harvest.Config{
		PageSize:        c.Paging.PageSize,
		ReducedPageSize: c.Paging.ReducedPageSize,
		MaxPages:        c.Paging.MaxPages,
		PolitenessDelay: c.Paging.PolitenessDelay,
		BaseBackoff:     c.Paging.BaseBackoff,
		MaxWait:         c.Paging.MaxWait,
		MaxRetries:      c.Paging.MaxRetries,
	}
}

// OpenAlexClientConfig returns the API client configuration.
func (c *Config) OpenAlexClientConfig() openalex.Config {
	return openalex.Config{
		BaseURL:   c.OpenAlex.BaseURL,
		Email:     c.OpenAlex.Email,
		ROR:       c.OpenAlex.ROR,
		FromDate:  c.OpenAlex.FromDate,
		ToDate:    c.OpenAlex.ToDate,
		Timeout:   c.OpenAlex.Timeout,
		RateLimit: c.OpenAlex.RateLimit,
	}
}

// ObservabilityLogging returns the logger configuration.
func (c *Config) ObservabilityLogging() observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		AddSource:  c.Logging.AddSource,
		TimeFormat: c.Logging.TimeFormat,
	}
}
