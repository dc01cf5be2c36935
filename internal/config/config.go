// Package config loads the process configuration from the environment
// (DCSNAP_ prefix) and an optional YAML file. The resulting Config is
// built once and passed explicitly into constructors; nothing in this
// program reads configuration globally.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	BackupDir   string          `mapstructure:"backup_dir"`
	Blacklist   []string        `mapstructure:"blacklist"`
	HelperImage string          `mapstructure:"helper_image"`
	FailureHook string          `mapstructure:"failure_hook"`
	Retention   RetentionConfig `mapstructure:"retention"`
	Remote      RemoteConfig    `mapstructure:"remote"`
}

type RetentionConfig struct {
	Hourly  int `mapstructure:"hourly"`
	Daily   int `mapstructure:"daily"`
	Weekly  int `mapstructure:"weekly"`
	Default int `mapstructure:"default"`
}

type RemoteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // s3, gcs, ssh
	Prefix  string `mapstructure:"prefix"`

	// S3
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`

	// GCS
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSCreds  string `mapstructure:"gcs_creds"`

	// SSH
	SSHHost    string `mapstructure:"ssh_host"`
	SSHPort    int    `mapstructure:"ssh_port"`
	SSHUser    string `mapstructure:"ssh_user"`
	SSHKeyFile string `mapstructure:"ssh_key_file"`
	SSHPath    string `mapstructure:"ssh_path"`
}

// Load reads configuration from the environment and, when file is not
// empty, from a YAML config file. Environment values win over file values.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("dcsnap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backup_dir", "./backups")
	v.SetDefault("blacklist", "")
	v.SetDefault("helper_image", "")
	v.SetDefault("failure_hook", "")
	v.SetDefault("retention.hourly", 24)
	v.SetDefault("retention.daily", 7)
	v.SetDefault("retention.weekly", 4)
	v.SetDefault("retention.default", 0)
	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.type", "")
	v.SetDefault("remote.prefix", "")
	v.SetDefault("remote.s3_region", "us-east-1")
	v.SetDefault("remote.ssh_port", 22)

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The blacklist arrives as a comma-separated string from the
	// environment; normalize either form.
	cfg.Blacklist = splitList(v.GetString("blacklist"))
	if len(cfg.Blacklist) == 0 {
		cfg.Blacklist = v.GetStringSlice("blacklist")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}

	if c.Remote.Enabled {
		switch c.Remote.Type {
		case "s3":
			if c.Remote.S3Bucket == "" {
				return fmt.Errorf("remote.s3_bucket is required for s3 replication")
			}
		case "gcs":
			if c.Remote.GCSBucket == "" {
				return fmt.Errorf("remote.gcs_bucket is required for gcs replication")
			}
		case "ssh":
			if c.Remote.SSHHost == "" || c.Remote.SSHUser == "" {
				return fmt.Errorf("remote.ssh_host and remote.ssh_user are required for ssh replication")
			}
		default:
			return fmt.Errorf("unsupported remote type: %s", c.Remote.Type)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
