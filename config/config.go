package config

import (
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	DefaultMaxFailures  = 5
	DefaultCallTimeout  = time.Second
	DefaultResetTimeout = 5 * time.Second
)

// BreakerConfig holds the circuit breaker settings for one command key.
// Durations are strings like "200ms"; a call timeout of "0" disables
// the deadline.
type BreakerConfig struct {
	MaxFailures  int    `mapstructure:"max-failures"`
	CallTimeout  string `mapstructure:"call-timeout"`
	ResetTimeout string `mapstructure:"reset-timeout"`
}

// CommandConfig is the per-key configuration block. An empty Dispatcher
// means sync commands run on the shared default pool.
type CommandConfig struct {
	CircuitBreaker BreakerConfig `mapstructure:"circuit-breaker"`
	Dispatcher     string        `mapstructure:"dispatcher"`
}

// DispatcherConfig sizes a named worker pool.
type DispatcherConfig struct {
	Size int `mapstructure:"size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the defender configuration tree. Command keys absent from
// Commands fall back to the built-in defaults.
type Config struct {
	Commands    map[string]CommandConfig    `mapstructure:"command"`
	Dispatchers map[string]DispatcherConfig `mapstructure:"dispatcher"`
	Logging     LoggingConfig               `mapstructure:"logging"`
}

// Settings is the resolved, immutable per-key configuration handed to
// an executor. It never changes after the executor is created.
type Settings struct {
	MaxFailures  int
	CallTimeout  time.Duration
	ResetTimeout time.Duration
	Dispatcher   string
}

// DefaultSettings returns the built-in per-key defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxFailures:  DefaultMaxFailures,
		CallTimeout:  DefaultCallTimeout,
		ResetTimeout: DefaultResetTimeout,
	}
}

// Load reads the defender configuration from a "defender" YAML file
// found in ./config or the working directory, with environment variable
// overrides. A missing file yields a config with no command entries
// (logging level "info"): every key then uses the built-in defaults.
func Load() (*Config, error) {
	viper.SetDefault("defender.logging.level", "info")

	viper.SetConfigName("defender")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var root struct {
		Defender Config `mapstructure:"defender"`
	}
	if err := viper.Unmarshal(&root); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg := root.Defender
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// ForKey resolves the settings for a command key, filling in defaults
// for anything the configuration leaves out. The configuration is
// assumed validated, so duration parse failures fall back silently.
func (c *Config) ForKey(key string) Settings {
	settings := DefaultSettings()
	if c == nil {
		return settings
	}

	cmd, exists := c.Commands[key]
	if !exists {
		return settings
	}

	if cmd.CircuitBreaker.MaxFailures > 0 {
		settings.MaxFailures = cmd.CircuitBreaker.MaxFailures
	}
	if cmd.CircuitBreaker.CallTimeout != "" {
		if d, err := time.ParseDuration(cmd.CircuitBreaker.CallTimeout); err == nil {
			settings.CallTimeout = d
		}
	}
	if cmd.CircuitBreaker.ResetTimeout != "" {
		if d, err := time.ParseDuration(cmd.CircuitBreaker.ResetTimeout); err == nil {
			settings.ResetTimeout = d
		}
	}
	settings.Dispatcher = cmd.Dispatcher

	return settings
}

// DispatcherSize returns the configured size for a named pool, or zero
// when unset.
func (c *Config) DispatcherSize(name string) int {
	if c == nil {
		return 0
	}
	return c.Dispatchers[name].Size
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Logging,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				if lc.Level == "" {
					return nil
				}
				return validation.Validate(lc.Level,
					validation.In("debug", "info", "warn", "error"),
				)
			}),
		),
		validation.Field(&c.Commands,
			validation.By(func(value interface{}) error {
				cmds, ok := value.(map[string]CommandConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a command map")
				}
				for key, cmd := range cmds {
					if err := validateCommandConfig(key, cmd); err != nil {
						return err
					}
				}
				return nil
			}),
		),
		validation.Field(&c.Dispatchers,
			validation.By(func(value interface{}) error {
				pools, ok := value.(map[string]DispatcherConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a dispatcher map")
				}
				for name, pool := range pools {
					if pool.Size < 0 {
						return validation.NewError("validation_invalid_size",
							"dispatcher "+name+": size cannot be negative")
					}
				}
				return nil
			}),
		),
	)
}

func validateCommandConfig(key string, cmd CommandConfig) error {
	if cmd.CircuitBreaker.MaxFailures < 0 {
		return validation.NewError("validation_invalid_max_failures",
			"command "+key+": max-failures cannot be negative")
	}

	if err := validateDuration(cmd.CircuitBreaker.CallTimeout); err != nil {
		return validation.NewError("validation_invalid_call_timeout",
			"command "+key+": call-timeout must be a valid duration (e.g. 200ms; 0 disables)")
	}

	if err := validateDuration(cmd.CircuitBreaker.ResetTimeout); err != nil {
		return validation.NewError("validation_invalid_reset_timeout",
			"command "+key+": reset-timeout must be a valid duration (e.g. 5s)")
	}

	return nil
}

func validateDuration(value string) error {
	if value == "" {
		return nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d < 0 {
		return validation.NewError("validation_negative_duration", "duration cannot be negative")
	}

	return nil
}
