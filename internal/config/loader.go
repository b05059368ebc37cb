package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// Load reads configuration from the process environment.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup instead of the process
// environment.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	return load(lookup, false, (*Config).Validate)
}

// LoadCLI reads configuration for the csvsed command, ignoring settings
// only the HTTP service uses.
func LoadCLI() (*Config, error) {
	return LoadCLIFrom(os.LookupEnv)
}

// LoadCLIFrom is LoadCLI reading through lookup.
func LoadCLIFrom(lookup LookupFunc) (*Config, error) {
	return load(lookup, true, (*Config).ValidateCLI)
}

func load(lookup LookupFunc, cliOnly bool, validate func(*Config) error) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup, cliOnly); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from tagged variables.
// With cliOnly set, fields tagged scope:"server" are left zero.
func loadStruct(v reflect.Value, lookup LookupFunc, cliOnly bool) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}
		if cliOnly && field.Tag.Get("scope") == "server" {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal, lookup, cliOnly); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		required := field.Tag.Get("required") == "true"

		// primary, then alternate, then default
		value, _ := lookup(envName)
		if value == "" && envAlt != "" {
			value, _ = lookup(envAlt)
		}
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		// comma-separated, blanks dropped
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.serverErrors()...)
	errs = append(errs, c.commonErrors()...)
	return joinErrors(errs)
}

// ValidateCLI checks only the settings the csvsed command reads: the sed
// runtime, database and logging sections.
func (c *Config) ValidateCLI() error {
	return joinErrors(c.commonErrors())
}

func joinErrors(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// serverErrors covers settings used only by the HTTP service.
func (c *Config) serverErrors() []string {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Sed.MaxBodySize <= 0 {
		errs = append(errs, "SED_MAX_BODY_SIZE must be positive")
	}
	if c.Sed.MaxConcurrent <= 0 {
		errs = append(errs, "SED_MAX_CONCURRENT must be positive")
	}
	if c.Sed.MaxWaitTime <= 0 {
		errs = append(errs, "SED_MAX_WAIT_TIME must be positive")
	}
	if c.Sed.JobTimeout <= 0 {
		errs = append(errs, "SED_JOB_TIMEOUT must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty")
	}
	return errs
}

// commonErrors covers settings both binaries read.
func (c *Config) commonErrors() []string {
	var errs []string

	if strings.TrimSpace(c.Sed.Shell) == "" {
		errs = append(errs, "SED_SHELL must not be empty")
	}
	if c.Sed.CloseGrace <= 0 {
		errs = append(errs, "SED_CLOSE_GRACE must be positive")
	}
	if c.Sed.FlushRows <= 0 {
		errs = append(errs, "SED_FLUSH_ROWS must be positive")
	}

	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	return errs
}

// String returns a representation safe for logging; the database URL is
// masked.
func (c *Config) String() string {
	db := "unset"
	if c.Database.URL != "" {
		db = "[MASKED]"
	}
	return fmt.Sprintf("Config{Server: {Addr: %q}, Sed: {MaxConcurrent: %d, MaxBodySize: %d, Shell: %q, AllowExternal: %v}, Database: {URL: %s, MaxConns: %d}, Security: {RequireAPIKey: %v, APIKeys: %d}, Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(),
		c.Sed.MaxConcurrent, c.Sed.MaxBodySize, c.Sed.Shell, c.Sed.AllowExternal,
		db, c.Database.MaxConns,
		c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format,
	)
}
