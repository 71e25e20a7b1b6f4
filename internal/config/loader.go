package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// Config represents the top-level YAML configuration file.
type Config struct {
	URI string `mapstructure:"uri" yaml:"uri"`

	Backup  BackupConfig  `mapstructure:"backup"  yaml:"backup"`
	Restore RestoreConfig `mapstructure:"restore" yaml:"restore"`
	Vault   VaultConfig   `mapstructure:"vault"   yaml:"vault"`
	Log     LogConfig     `mapstructure:"log"     yaml:"log"`

	Include []string `mapstructure:"include" yaml:"include,omitempty"`
}

// BackupConfig contains defaults for the backup pipeline.
type BackupConfig struct {
	OutputDirectory string        `mapstructure:"output_directory" yaml:"output_directory"`
	BatchSize       int           `mapstructure:"batch_size"       yaml:"batch_size"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"    yaml:"retry_backoff"`
}

// RestoreConfig contains defaults for the restore pipeline.
type RestoreConfig struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// VaultConfig holds connection settings for HashiCorp Vault. When Address is
// set, MongoDB credentials are fetched from the configured role path and
// injected into the connection URI.
type VaultConfig struct {
	Address  string `mapstructure:"address"   yaml:"address"`
	RoleID   string `mapstructure:"role_id"   yaml:"role_id,omitempty"`
	RoleName string `mapstructure:"role_name" yaml:"role_name,omitempty"`
	RolePath string `mapstructure:"role_path" yaml:"role_path"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level,omitempty"`
	File  string `mapstructure:"file"  yaml:"file,omitempty"`
}

// Load reads the configuration from the given YAML file using Viper, merges
// any included files, and unmarshals into the Config struct. An empty path
// yields the built-in defaults with environment overrides applied.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MONGOSNAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("uri", "mongodb://localhost:27017")
	v.SetDefault("backup.output_directory", "./backups")
	v.SetDefault("backup.batch_size", 1000)
	v.SetDefault("backup.max_retries", 3)
	v.SetDefault("backup.retry_backoff", 2*time.Second)
	v.SetDefault("restore.batch_size", 1000)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		// Merge include files (if any)
		for _, inc := range v.GetStringSlice("include") {
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return nil
}
