// Package config provides the configuration system for mongobridge.
// It defines a single Config structure shared by every stage of a run,
// so the CLI, the pipeline and the connectors read the same values.
//
// The configuration is organized into logical sections:
//   - Mongo: document-store credentials and target collection
//   - MySQL: relational server, database and table
//   - Source: how remote references are fetched
//   - Migration: identifier handling and declared columns
//   - Reliability: retry policy for connection attempts
//   - Timeouts: connection, request and whole-run timeouts
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg, err := config.Load("mongobridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Defaults used when neither a config file nor the environment sets a value.
const (
	DefaultDatabase      = "pasta"
	DefaultCollection    = "pomodoro"
	DefaultTable         = "pomodoro"
	DefaultClusterDomain = "whc9v.mongodb.net"
	DefaultIDField       = "_id"
	DefaultIDLength      = 24
	DefaultSampleSize    = 100
)

// Config is the single configuration structure of a mongobridge run.
type Config struct {
	// Mongo holds the document-store connection and target collection
	Mongo MongoConfig `mapstructure:"mongo" yaml:"mongo"`

	// MySQL holds the relational connection and target table
	MySQL MySQLConfig `mapstructure:"mysql" yaml:"mysql"`

	// Source controls how source references are resolved
	Source SourceConfig `mapstructure:"source" yaml:"source"`

	// Migration controls the document to row conversion
	Migration MigrationConfig `mapstructure:"migration" yaml:"migration"`

	// Reliability settings for connection attempts
	Reliability ReliabilityConfig `mapstructure:"reliability" yaml:"reliability"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// Observability settings for logs, metrics and traces
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// MongoConfig contains document-store settings.
type MongoConfig struct {
	// Username, Password and ClusterName are overridable from
	// MONGO_USERNAME, MONGO_PASSWORD and MONGO_CLUSTERNAME
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	ClusterName string `mapstructure:"cluster_name" yaml:"cluster_name"`
	// ClusterDomain is appended to ClusterName unless it already has a dot
	ClusterDomain string `mapstructure:"cluster_domain" yaml:"cluster_domain"`
	// URI bypasses URI building entirely (e.g. mongodb://localhost:27017)
	URI        string `mapstructure:"uri" yaml:"uri"`
	AppName    string `mapstructure:"app_name" yaml:"app_name"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// MySQLConfig contains relational-store settings.
type MySQLConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	Table    string `mapstructure:"table" yaml:"table"`
	// TLS enables the driver's "true" TLS profile
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// SourceConfig contains source resolution settings.
type SourceConfig struct {
	// BearerToken is sent as an OAuth2 bearer token on remote fetches
	BearerToken string `mapstructure:"bearer_token" yaml:"bearer_token"`
	// MaxBytes caps a remote body, 0 means unlimited
	MaxBytes int64 `mapstructure:"max_bytes" yaml:"max_bytes"`
	// Decompress enables gzip/zstd/lz4 detection on resolved content
	Decompress bool `mapstructure:"decompress" yaml:"decompress"`
}

// ColumnConfig declares one relational column.
type ColumnConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"`
}

// MigrationConfig contains document to row conversion settings.
type MigrationConfig struct {
	// Enabled runs the migration stage after loading
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// IDField is the document field used as the relational primary key
	IDField string `mapstructure:"id_field" yaml:"id_field"`
	// IDLength is the width of the key column
	IDLength int `mapstructure:"id_length" yaml:"id_length"`
	// Columns declares the table; when empty, columns are inferred
	Columns []ColumnConfig `mapstructure:"columns" yaml:"columns"`
	// SampleSize bounds the documents scanned for field names
	SampleSize int `mapstructure:"sample_size" yaml:"sample_size"`
}

// ReliabilityConfig contains retry settings.
type ReliabilityConfig struct {
	// RetryAttempts sets maximum attempts for a connection check
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	// RetryDelay is the initial delay between attempts
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// RetryMultiplier increases delay exponentially
	RetryMultiplier float64 `mapstructure:"retry_multiplier" yaml:"retry_multiplier"`
	// MaxRetryDelay caps the delay
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay"`
}

// TimeoutConfig contains timeout settings. A zero value means no timeout.
type TimeoutConfig struct {
	// Connection bounds connect and ping calls
	Connection time.Duration `mapstructure:"connection" yaml:"connection"`
	// Request bounds a remote source fetch
	Request time.Duration `mapstructure:"request" yaml:"request"`
	// Run bounds a whole pipeline run
	Run time.Duration `mapstructure:"run" yaml:"run"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// MetricsFile receives a Prometheus textfile at the end of a run
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
	// EnableTracing exports one span per pipeline stage
	EnableTracing bool `mapstructure:"enable_tracing" yaml:"enable_tracing"`
	// TraceFile receives spans; stderr when empty
	TraceFile string `mapstructure:"trace_file" yaml:"trace_file"`
}

// Default returns a Config populated with the built-in constants.
func Default() *Config {
	return &Config{
		Mongo: MongoConfig{
			ClusterDomain: DefaultClusterDomain,
			AppName:       "mongobridge",
			Database:      DefaultDatabase,
			Collection:    DefaultCollection,
		},
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     3306,
			Username: "root",
			Database: DefaultDatabase,
			Table:    DefaultTable,
		},
		Source: SourceConfig{
			Decompress: true,
		},
		Migration: MigrationConfig{
			Enabled:    true,
			IDField:    DefaultIDField,
			IDLength:   DefaultIDLength,
			SampleSize: DefaultSampleSize,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   30 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Connection: 10 * time.Second,
			Request:    30 * time.Second,
			Run:        0,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if c.Mongo.Collection == "" {
		return fmt.Errorf("mongo.collection is required")
	}
	if c.Migration.IDField == "" {
		return fmt.Errorf("migration.id_field is required")
	}
	if c.Migration.IDLength <= 0 {
		return fmt.Errorf("migration.id_length must be positive")
	}
	if c.Migration.SampleSize < 0 {
		return fmt.Errorf("migration.sample_size cannot be negative")
	}
	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts cannot be negative")
	}
	if c.Source.MaxBytes < 0 {
		return fmt.Errorf("source.max_bytes cannot be negative")
	}
	for i, col := range c.Migration.Columns {
		if col.Name == "" || col.Type == "" {
			return fmt.Errorf("migration.columns[%d] needs both name and type", i)
		}
	}
	return nil
}

// ValidateMongo checks that the document store can be addressed.
func (m *MongoConfig) ValidateMongo() error {
	if m.URI != "" {
		return nil
	}
	if m.Username == "" || m.Password == "" || m.ClusterName == "" {
		return fmt.Errorf("mongo.uri or mongo.username, mongo.password and mongo.cluster_name are required")
	}
	return nil
}

// ValidateMySQL checks that the relational store can be addressed.
func (m *MySQLConfig) ValidateMySQL() error {
	if m.Host == "" {
		return fmt.Errorf("mysql.host is required")
	}
	if m.Port <= 0 {
		return fmt.Errorf("mysql.port must be positive")
	}
	if m.Database == "" || m.Table == "" {
		return fmt.Errorf("mysql.database and mysql.table are required")
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Migration.Columns = append([]ColumnConfig(nil), c.Migration.Columns...)
	if out.Mongo.Password != "" {
		out.Mongo.Password = "***"
	}
	if out.MySQL.Password != "" {
		out.MySQL.Password = "***"
	}
	if out.Source.BearerToken != "" {
		out.Source.BearerToken = "***"
	}
	if out.Mongo.URI != "" {
		out.Mongo.URI = redactURI(out.Mongo.URI)
	}
	return &out
}
