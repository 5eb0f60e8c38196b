package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/scope/internal/tap"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Flag names bound over file and environment values.
const (
	FlagConfig   = "config"
	FlagAddress  = "address"
	FlagLogLevel = "log-level"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type TapDefaults struct {
	BindHost string `mapstructure:"bind_host"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether a key pair is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// TapConfig describes a tap created at startup.
type TapConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Label   string `mapstructure:"label"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Tap     TapDefaults   `mapstructure:"tap"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Taps    []TapConfig   `mapstructure:"taps"`
}

// Load reads config.yaml from ./config or the working directory, or the file
// named by the --config flag, then applies environment variables and flags.
// flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("tap.bind_host", "127.0.0.1")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	explicitFile := false
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
		if path, err := flags.GetString(FlagConfig); err == nil && path != "" {
			v.SetConfigFile(path)
			explicitFile = true
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"server.address": FlagAddress,
		"logging.level":  FlagLogLevel,
	}

	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Tap,
			validation.By(func(value interface{}) error {
				td, ok := value.(TapDefaults)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TapDefaults")
				}
				return validation.ValidateStruct(&td,
					validation.Field(&td.BindHost, validation.Required, is.Host),
				)
			}),
		),
		validation.Field(&c.TLS, validation.By(validateTLSPair)),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Taps,
			validation.Each(validation.By(validateTapConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateTLSPair(value interface{}) error {
	tc, ok := value.(TLSConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TLSConfig")
	}

	if (tc.CertFile == "") != (tc.KeyFile == "") {
		return validation.NewError("validation_incomplete_tls", "cert_file and key_file must be set together")
	}

	return nil
}

func validateTapConfig(value interface{}) error {
	t, ok := value.(TapConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a TapConfig")
	}

	if _, err := tap.ParseAddress(t.Address); err != nil {
		return validation.NewError("validation_invalid_url", err.Error())
	}

	if t.Port < 0 || t.Port > 65535 {
		return validation.NewError("validation_invalid_port", "port must be between 0 and 65535")
	}

	return nil
}
