package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// LookupFunc resolves one configuration key.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup instead of the process environment.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from the lookup.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
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

		value := get(lookup, envName)
		if value == "" && envAlt != "" {
			value = get(lookup, envAlt)
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

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func get(lookup LookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(strings.ReplaceAll(value, "_", ""), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.ConnString() == "" {
		errs = append(errs, "DATABASE_URL or POSTGRES_USER and POSTGRES_DB are required")
	} else if _, err := url.Parse(c.Database.ConnString()); err != nil {
		errs = append(errs, fmt.Sprintf("database URL is invalid: %v", err))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("POSTGRES_PORT (%d) must be 1-65535", c.Database.Port))
	}
	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, "DB_CONNECT_TIMEOUT must be positive")
	}

	if c.Mongo.Enabled() {
		if c.Mongo.Database == "" {
			errs = append(errs, "MONGO_DB is required when MongoDB replication is configured")
		}
		if c.Mongo.Collection == "" {
			errs = append(errs, "MONGO_COLLECTION must not be empty")
		}
		if c.Mongo.BatchSize <= 0 {
			errs = append(errs, "MONGO_BATCH_SIZE must be positive")
		}
	}

	archives := c.Input.Archives()
	stems := make(map[string]string)
	for _, name := range []string{"vendas", "clientes", "produtos"} {
		path := archives[name]
		if path == "" {
			errs = append(errs, fmt.Sprintf("%s_ARCHIVE must not be empty", strings.ToUpper(name)))
			continue
		}
		// Each archive extracts to {ETL_TMP_DIR}/{file stem}.
		base := filepath.Base(path)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if other, dup := stems[stem]; dup {
			errs = append(errs, fmt.Sprintf("%s_ARCHIVE and %s_ARCHIVE share the file name %q",
				strings.ToUpper(other), strings.ToUpper(name), stem))
		}
		stems[stem] = name
	}
	if c.Input.TmpDir == "" {
		errs = append(errs, "ETL_TMP_DIR must not be empty")
	}

	if c.Output.ParquetDir == "" {
		errs = append(errs, "OUTPUT_PARQUET_DIR must not be empty")
	}
	if c.Output.DivergenceDir == "" {
		errs = append(errs, "OUTPUT_DIVERGENCE_DIR must not be empty")
	}
	if c.Output.Indicators && c.Output.IndicatorsDir == "" {
		errs = append(errs, "OUTPUT_INDICATORS_DIR must not be empty when indicators are enabled")
	}

	if c.Load.Table == "" {
		errs = append(errs, "LOAD_TABLE must not be empty")
	}
	if c.Load.BatchSize <= 0 {
		errs = append(errs, "LOAD_BATCH_SIZE must be positive")
	}
	if c.Load.Timeout <= 0 {
		errs = append(errs, "ETL_TIMEOUT must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: validation failed:\n  - %s", core.ErrConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Passwords in connection URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Database: {URL: %s}, ", maskURL(c.Database.ConnString()))
	fmt.Fprintf(&b, "Mongo: {URI: %s, Database: %q, Collection: %q}, ",
		maskURL(c.Mongo.ConnString()), c.Mongo.Database, c.Mongo.Collection)
	fmt.Fprintf(&b, "Input: {TmpDir: %q}, ", c.Input.TmpDir)
	fmt.Fprintf(&b, "Load: {Table: %q, BatchSize: %d}, ", c.Load.Table, c.Load.BatchSize)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func maskURL(raw string) string {
	if raw == "" {
		return "[UNSET]"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[MASKED]"
	}
	return u.Redacted()
}
