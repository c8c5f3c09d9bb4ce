// Package config loads and validates the bot configuration from an optional
// YAML file and STATSBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "STATSBOT"

// Config is the complete application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Transport TransportConfig `mapstructure:"transport"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TransportConfig selects the chat network the bot listens on.
type TransportConfig struct {
	Kind      string          `mapstructure:"kind"      validate:"required,oneof=deltachat telegram"`
	DeltaChat DeltaChatConfig `mapstructure:"deltachat"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type DeltaChatConfig struct {
	RPCServerPath string `mapstructure:"rpc_server_path"`
	AccountsDir   string `mapstructure:"accounts_dir"`
}

type TelegramConfig struct {
	Token    string `mapstructure:"token"`
	CacheDir string `mapstructure:"cache_dir"`
	// CacheMaxAge bounds how long downloaded attachments are kept.
	CacheMaxAge time.Duration `mapstructure:"cache_max_age" validate:"min=0"`
}

type ReportsConfig struct {
	Dir                string        `mapstructure:"dir"                  validate:"required"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes" validate:"min=1"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"         validate:"min=1ms"`
	TempMaxAge         time.Duration `mapstructure:"temp_max_age"         validate:"min=1s"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AccountsConfig holds the retention settings applied to every account at
// startup.
type AccountsConfig struct {
	DeleteServerAfter string `mapstructure:"delete_server_after" validate:"required,numeric"`
	DeleteDeviceAfter string `mapstructure:"delete_device_after" validate:"required,numeric"`
}

// MessagesConfig holds the fixed texts the bot sends.
type MessagesConfig struct {
	Thanks    string `mapstructure:"thanks"    validate:"required"`
	Rejection string `mapstructure:"rejection" validate:"required"`
	Reaction  string `mapstructure:"reaction"  validate:"required"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// LoadConfig reads configPath (if it exists) over the defaults, applies
// environment overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags plus the cross-field transport rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Transport.Kind {
	case "deltachat":
		if c.Transport.DeltaChat.RPCServerPath == "" {
			return errors.New("invalid configuration: transport.deltachat.rpc_server_path is required for the deltachat transport")
		}
	case "telegram":
		if c.Transport.Telegram.Token == "" {
			return errors.New("invalid configuration: transport.telegram.token is required for the telegram transport")
		}
	}
	return nil
}
