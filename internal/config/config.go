// Package config provides centralized configuration management for the pipeline.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config holds all pipeline configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Mongo    MongoConfig
	Input    InputConfig
	Output   OutputConfig
	Load     LoadConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
// DATABASE_URL wins; otherwise the URL is composed from the POSTGRES_* parts.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `env:"POSTGRES_HOST" default:"localhost"`
	Port     int    `env:"POSTGRES_PORT" default:"5432"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Name     string `env:"POSTGRES_DB"`

	// ConnectTimeout bounds opening the pool and the first ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// ConnString returns the connection URL, or "" when neither form is configured.
func (c DatabaseConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Name == "" || c.User == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	return u.String()
}

// MongoConfig holds document store settings. Replication is skipped when no
// URI can be resolved.
type MongoConfig struct {
	URI string `env:"MONGO_URI"`

	Host     string `env:"MONGO_HOST"`
	Port     int    `env:"MONGO_PORT" default:"27017"`
	User     string `env:"MONGO_USER"`
	Password string `env:"MONGO_PASSWORD"`

	Database   string `env:"MONGO_DB"`
	Collection string `env:"MONGO_COLLECTION" default:"clientes"`

	// BatchSize is the number of documents per insert (default: 100000)
	BatchSize int `env:"MONGO_BATCH_SIZE" default:"100000"`
}

// ConnString returns the MongoDB URI, or "" when replication is not configured.
func (c MongoConfig) ConnString() string {
	if c.URI != "" {
		return c.URI
	}
	if c.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/",
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Enabled reports whether customers should be replicated.
func (c MongoConfig) Enabled() bool { return c.ConnString() != "" }

// InputConfig locates the dataset archives.
type InputConfig struct {
	VendasArchive   string `env:"VENDAS_ARCHIVE" default:"data/vendas.zip"`
	ClientesArchive string `env:"CLIENTES_ARCHIVE" default:"data/clientes.zip"`
	ProdutosArchive string `env:"PRODUTOS_ARCHIVE" default:"data/produtos.zip"`

	// TmpDir is where archives are extracted; it is removed after the run (default: /tmp/etl_data)
	TmpDir string `env:"ETL_TMP_DIR" default:"/tmp/etl_data"`

	// KeepTmp leaves the extracted files in place for inspection (default: false)
	KeepTmp bool `env:"ETL_KEEP_TMP" default:"false"`
}

// Archives maps dataset names to archive paths.
func (c InputConfig) Archives() map[string]string {
	return map[string]string{
		"vendas":   c.VendasArchive,
		"clientes": c.ClientesArchive,
		"produtos": c.ProdutosArchive,
	}
}

// OutputConfig holds the export destinations.
type OutputConfig struct {
	ParquetDir    string `env:"OUTPUT_PARQUET_DIR" default:"outputs/vendas_parquet"`
	DivergenceDir string `env:"OUTPUT_DIVERGENCE_DIR" default:"outputs/divergencias"`
	IndicatorsDir string `env:"OUTPUT_INDICATORS_DIR" default:"outputs/indicadores_sql"`

	// Indicators runs the SQL reports after the load (default: true)
	Indicators bool `env:"INDICATORS_ENABLED" default:"true"`
}

// LoadConfig holds bulk load settings.
type LoadConfig struct {
	// Table is the destination table, replaced on every run (default: vendas)
	Table string `env:"LOAD_TABLE" default:"vendas"`

	// BatchSize is the number of rows per committed batch (default: 100000)
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"100000"`

	// Timeout bounds the whole run (default: 1h)
	Timeout time.Duration `env:"ETL_TIMEOUT" default:"1h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds metrics output settings.
type MetricsConfig struct {
	// Textfile receives the run metrics in Prometheus text format; empty disables it
	Textfile string `env:"METRICS_TEXTFILE"`
}
