// Package config loads run configuration from defaults, an optional config
// file, FLIGHT_INGEST_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

// EnvPrefix is prepended to every environment variable; dots in keys become
// underscores, e.g. FLIGHT_INGEST_STORE_URI.
const EnvPrefix = "FLIGHT_INGEST"

// Config holds all configuration for an ingestion run.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// SourceConfig selects the object to ingest.
type SourceConfig struct {
	Type        string `mapstructure:"type" validate:"oneof=file s3"`
	Path        string `mapstructure:"path" validate:"required_if=Type file"`
	Bucket      string `mapstructure:"bucket" validate:"required_if=Type s3"`
	Key         string `mapstructure:"key" validate:"required_if=Type s3"`
	Region      string `mapstructure:"region"`
	Compression string `mapstructure:"compression" validate:"oneof=auto gzip none"`
}

// PipelineConfig defines operational pipeline settings.
type PipelineConfig struct {
	ChunkSize   int           `mapstructure:"chunk_size" validate:"gt=0"`
	Workers     int           `mapstructure:"workers" validate:"gte=0"`
	MaxInFlight int           `mapstructure:"max_in_flight" validate:"gt=0"`
	Delimiter   string        `mapstructure:"delimiter" validate:"required"`
	ErrorFile   string        `mapstructure:"error_file"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Aggregate   bool          `mapstructure:"aggregate"`
	TopAirports int           `mapstructure:"top_airports" validate:"gte=0"`
}

// StoreConfig defines the output destination.
type StoreConfig struct {
	Type          string        `mapstructure:"type" validate:"oneof=mongodb postgres dynamodb jsonfile memory"`
	URI           string        `mapstructure:"uri"`
	Database      string        `mapstructure:"database" validate:"required_if=Type mongodb"`
	Collection    string        `mapstructure:"collection" validate:"required_if=Type mongodb"`
	Table         string        `mapstructure:"table" validate:"required_if=Type dynamodb"`
	Path          string        `mapstructure:"path" validate:"required_if=Type jsonfile"`
	Region        string        `mapstructure:"region"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	MaxConns      int32         `mapstructure:"max_conns" validate:"gte=0"`
	EnsureSchema  bool          `mapstructure:"ensure_schema"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	// Addr is where /metrics is served; empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"source.type":        "file",
	"source.path":        "",
	"source.bucket":      "",
	"source.key":         "",
	"source.region":      "",
	"source.compression": "auto",

	"pipeline.chunk_size":    10_000,
	"pipeline.workers":       0,
	"pipeline.max_in_flight": 4,
	"pipeline.delimiter":     ",",
	"pipeline.error_file":    "",
	"pipeline.timeout":       time.Duration(0),
	"pipeline.aggregate":     false,
	"pipeline.top_airports":  10,

	"store.type":           "mongodb",
	"store.uri":            "",
	"store.database":       "flights",
	"store.collection":     "flight_data",
	"store.table":          "flight_data",
	"store.path":           "",
	"store.region":         "",
	"store.batch_size":     2000,
	"store.retry_attempts": 0,
	"store.retry_delay":    500 * time.Millisecond,
	"store.max_conns":      0,
	"store.ensure_schema":  true,

	"log.level":  "info",
	"log.format": "json",

	"metrics.addr": "",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"source":        "source.type",
	"source-path":   "source.path",
	"bucket":        "source.bucket",
	"key":           "source.key",
	"compression":   "source.compression",
	"chunk-size":    "pipeline.chunk_size",
	"workers":       "pipeline.workers",
	"max-in-flight": "pipeline.max_in_flight",
	"delimiter":     "pipeline.delimiter",
	"error-file":    "pipeline.error_file",
	"timeout":       "pipeline.timeout",
	"aggregate":     "pipeline.aggregate",
	"store":         "store.type",
	"store-uri":     "store.uri",
	"batch-size":    "store.batch_size",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"metrics-addr":  "metrics.addr",
}

// RegisterFlags defines the flags Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("source", "file", "source type: file or s3")
	fs.String("source-path", "", "path of the CSV file to ingest")
	fs.String("bucket", "", "S3 bucket of the object to ingest")
	fs.String("key", "", "S3 key of the object to ingest")
	fs.String("compression", "auto", "source compression: auto, gzip or none")
	fs.Int("chunk-size", 10_000, "data lines per unit of work")
	fs.Int("workers", 0, "parser workers per chunk (0 = one per CPU)")
	fs.Int("max-in-flight", 4, "chunks processed concurrently")
	fs.String("delimiter", ",", "field delimiter")
	fs.String("error-file", "", "dead-letter CSV for rejected rows")
	fs.Duration("timeout", 0, "overall run deadline (0 = none)")
	fs.Bool("aggregate", false, "count departures per origin airport")
	fs.String("store", "mongodb", "store type: mongodb, postgres, dynamodb, jsonfile or memory")
	fs.String("store-uri", "", "store connection string")
	fs.Int("batch-size", 2000, "records per insert request")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "json", "log format: json or console")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on")
}

// LoadOption adjusts how Load validates the result.
type LoadOption func(*loadOptions)

type loadOptions struct {
	skipSource bool
}

// WithoutSource leaves the source section unvalidated, for callers that
// learn the source later (one per Lambda event) and call Validate then.
func WithoutSource() LoadOption {
	return func(o *loadOptions) { o.skipSource = true }
}

// Load builds the configuration. path may be empty; flags may be nil. Only
// flags that were set explicitly override lower layers.
func Load(path string, flags *pflag.FlagSet, opts ...LoadOption) (*Config, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, appErrors.NewConfig(fmt.Sprintf("reading config file %s", path), err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, appErrors.NewConfig("binding flag --"+name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, appErrors.NewConfig("decoding config", err)
	}
	if err := cfg.validate(!lo.skipSource); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the combinations the tags cannot
// express.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(withSource bool) error {
	sections := []any{&c.Pipeline, &c.Store, &c.Log, &c.Metrics}
	if withSource {
		sections = append(sections, &c.Source)
	}
	for _, section := range sections {
		if err := validate.Struct(section); err != nil {
			return appErrors.NewConfig("invalid config", err)
		}
	}

	var errs []error
	switch c.Store.Type {
	case "mongodb", "postgres":
		if c.Store.URI == "" {
			errs = append(errs, fmt.Errorf("store.uri is required for %s", c.Store.Type))
		}
	}
	if c.Pipeline.ErrorFile != "" && c.Pipeline.ErrorFile == c.Source.Path {
		errs = append(errs, errors.New("pipeline.error_file must differ from source.path"))
	}
	if c.Store.Type == "jsonfile" && c.Store.Path == c.Source.Path {
		errs = append(errs, errors.New("store.path must differ from source.path"))
	}
	if len(errs) > 0 {
		return appErrors.NewConfig("invalid config", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to log: the password in store.uri is masked.
func (c Config) Redacted() Config {
	if u, err := url.Parse(c.Store.URI); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			c.Store.URI = u.String()
		}
	}
	return c
}
