// Package config loads kwsub settings from an optional .kwsub.yaml file,
// KWSUB_* environment variables and built-in defaults, in that order of
// precedence (environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wildeconsulting/kwsub/internal/handoff"
	"github.com/wildeconsulting/kwsub/internal/ledger"
	"github.com/wildeconsulting/kwsub/internal/secrets"
)

const (
	configName = ".kwsub"
	configType = "yaml"
	envPrefix  = "KWSUB"
)

// Exporter names accepted by telemetry.exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// DefaultSecretName is the secrets file holding the ledger connection.
const DefaultSecretName = "mysql_dsn"

var (
	ErrInvalidLockTimeout = errors.New("lock.timeout must be positive")
	ErrInvalidExporter    = errors.New("telemetry.exporter must be none, stdout or otlp")
	ErrMissingEndpoint    = errors.New("telemetry.endpoint is required for the otlp exporter")
	ErrEmptySecretName    = errors.New("ledger.secret must not be empty")
)

// Config is the resolved configuration.
type Config struct {
	Lock      LockConfig      `mapstructure:"lock"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SecretsConfig struct {
	Dir string `mapstructure:"dir"`
}

type LedgerConfig struct {
	// Secret is the file name, inside Secrets.Dir, of the connection string.
	Secret   string `mapstructure:"secret"`
	Database string `mapstructure:"database"`
}

type TelemetryConfig struct {
	Exporter string `mapstructure:"exporter"`
	// Endpoint is the OTLP/HTTP metrics URL, e.g. http://localhost:4318/v1/metrics.
	Endpoint string `mapstructure:"endpoint"`
}

// Load resolves the configuration. An explicit path must exist; otherwise
// .kwsub.yaml is looked up in each of searchDirs and then $HOME, and a missing
// file just means defaults.
func Load(path string, searchDirs ...string) (*Config, error) {
	v := viper.New()
	if err := applyDefaults(v); err != nil {
		return nil, err
	}

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		for _, dir := range searchDirs {
			if dir != "" {
				v.AddConfigPath(dir)
			}
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) error {
	dir, err := secrets.DefaultDir()
	if err != nil {
		return err
	}
	v.SetDefault("lock.timeout", handoff.DefaultLockTimeout)
	v.SetDefault("secrets.dir", dir)
	v.SetDefault("ledger.secret", DefaultSecretName)
	v.SetDefault("ledger.database", ledger.DefaultDatabase)
	v.SetDefault("telemetry.exporter", ExporterNone)
	v.SetDefault("telemetry.endpoint", "")
	return nil
}

// Validate checks the invariants Load cannot express as defaults.
func (c *Config) Validate() error {
	if c.Lock.Timeout <= 0 {
		return ErrInvalidLockTimeout
	}
	if strings.TrimSpace(c.Ledger.Secret) == "" {
		return ErrEmptySecretName
	}
	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.Telemetry.Endpoint == "" {
			return ErrMissingEndpoint
		}
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidExporter, c.Telemetry.Exporter)
	}
	return nil
}

// NewLedger returns a ledger that connects on first use with these settings.
func (c *Config) NewLedger() *ledger.Lazy {
	return &ledger.Lazy{
		SecretsDir: c.Secrets.Dir,
		SecretName: c.Ledger.Secret,
		Database:   c.Ledger.Database,
	}
}
