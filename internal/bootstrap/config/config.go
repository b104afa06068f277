package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"licenselink/internal/bootstrap/logging"
	"licenselink/internal/errs"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Linking   LinkingConfig   `mapstructure:"linking"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LinkingConfig struct {
	ToleranceDays     int    `mapstructure:"tolerance_days"`
	PendingCutoffDays int    `mapstructure:"pending_cutoff_days"`
	Timezone          string `mapstructure:"timezone"`
	Workers           int    `mapstructure:"workers"`
	// PolicyFile points at a TOML pass/data-gap table. Empty uses the
	// built-in policy.
	PolicyFile string `mapstructure:"policy_file"`
}

// Location resolves Timezone.
func (c LinkingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errs.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

type MessagingConfig struct {
	// NATSURL empty disables the bus.
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

func (c MessagingConfig) Enabled() bool {
	return strings.TrimSpace(c.NATSURL) != ""
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("tolerance_days", cfg.Linking.ToleranceDays),
		slog.Bool("messaging", cfg.Messaging.Enabled()),
	)

	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Database.DSN == "":
		return errors.New("database.dsn is required")
	case c.Linking.ToleranceDays < 0:
		return fmt.Errorf("linking.tolerance_days must not be negative, got %d", c.Linking.ToleranceDays)
	case c.Linking.PendingCutoffDays < 0:
		return fmt.Errorf("linking.pending_cutoff_days must not be negative, got %d", c.Linking.PendingCutoffDays)
	case c.Linking.Workers < 1:
		return fmt.Errorf("linking.workers must be at least 1, got %d", c.Linking.Workers)
	}
	if _, err := c.Linking.Location(); err != nil {
		return err
	}
	if c.Messaging.Enabled() && (c.Messaging.Subject == "" || c.Messaging.Queue == "") {
		return errors.New("messaging.subject and messaging.queue are required when messaging.nats_url is set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "licenselink")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/licenselink.sqlite")
	v.SetDefault("linking.tolerance_days", 7)
	v.SetDefault("linking.pending_cutoff_days", 180)
	v.SetDefault("linking.timezone", "America/Los_Angeles")
	v.SetDefault("linking.workers", 4)
	v.SetDefault("linking.policy_file", "")
	v.SetDefault("messaging.nats_url", "")
	v.SetDefault("messaging.subject", "licensing.records.inserted")
	v.SetDefault("messaging.queue", "linker")
	v.SetDefault("metrics.addr", "")
}
