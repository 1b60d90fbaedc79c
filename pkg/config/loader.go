package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MONGOBRIDGE_MYSQL_HOST.
const EnvPrefix = "MONGOBRIDGE"

// legacyEnv maps the credential variables used before the prefix existed.
var legacyEnv = map[string]string{
	"mongo.username":     "MONGO_USERNAME",
	"mongo.password":     "MONGO_PASSWORD",
	"mongo.cluster_name": "MONGO_CLUSTERNAME",
}

// LoadDotEnv loads .env files into the process environment if present.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads configuration from the optional YAML file at path, then applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

// setDefaults registers every key with viper so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("mongo.username", d.Mongo.Username)
	v.SetDefault("mongo.password", d.Mongo.Password)
	v.SetDefault("mongo.cluster_name", d.Mongo.ClusterName)
	v.SetDefault("mongo.cluster_domain", d.Mongo.ClusterDomain)
	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.app_name", d.Mongo.AppName)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.collection", d.Mongo.Collection)

	v.SetDefault("mysql.host", d.MySQL.Host)
	v.SetDefault("mysql.port", d.MySQL.Port)
	v.SetDefault("mysql.username", d.MySQL.Username)
	v.SetDefault("mysql.password", d.MySQL.Password)
	v.SetDefault("mysql.database", d.MySQL.Database)
	v.SetDefault("mysql.table", d.MySQL.Table)
	v.SetDefault("mysql.tls", d.MySQL.TLS)

	v.SetDefault("source.bearer_token", d.Source.BearerToken)
	v.SetDefault("source.max_bytes", d.Source.MaxBytes)
	v.SetDefault("source.decompress", d.Source.Decompress)

	v.SetDefault("migration.enabled", d.Migration.Enabled)
	v.SetDefault("migration.id_field", d.Migration.IDField)
	v.SetDefault("migration.id_length", d.Migration.IDLength)
	v.SetDefault("migration.sample_size", d.Migration.SampleSize)

	v.SetDefault("reliability.retry_attempts", d.Reliability.RetryAttempts)
	v.SetDefault("reliability.retry_delay", d.Reliability.RetryDelay)
	v.SetDefault("reliability.retry_multiplier", d.Reliability.RetryMultiplier)
	v.SetDefault("reliability.max_retry_delay", d.Reliability.MaxRetryDelay)

	v.SetDefault("timeouts.connection", d.Timeouts.Connection)
	v.SetDefault("timeouts.request", d.Timeouts.Request)
	v.SetDefault("timeouts.run", d.Timeouts.Run)

	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
	v.SetDefault("observability.metrics_file", d.Observability.MetricsFile)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.trace_file", d.Observability.TraceFile)
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
