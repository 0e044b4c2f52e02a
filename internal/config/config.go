package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// RTConfig holds the application configuration
type RTConfig struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Scheduler struct {
		TickCron string `mapstructure:"tick_cron"`
	} `mapstructure:"scheduler"`

	Queue struct {
		Host     string `mapstructure:"host"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"queue"`

	Pipeline struct {
		MaxAttempts          int `mapstructure:"max_attempts"`
		BackoffBaseSec       int `mapstructure:"backoff_base_sec"`
		BatchSize            int `mapstructure:"batch_size"`
		BatchRatePerSec      int `mapstructure:"batch_rate_per_sec"`
		HeartbeatIntervalSec int `mapstructure:"heartbeat_interval_sec"`
	} `mapstructure:"pipeline"`

	Provider struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		TimeoutSec int    `mapstructure:"timeout_sec"`
	} `mapstructure:"provider"`

	Poll struct {
		InitialDelaySec   int     `mapstructure:"initial_delay_sec"`
		MaxDelaySec       int     `mapstructure:"max_delay_sec"`
		BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
		ChecksPerStage    int     `mapstructure:"checks_per_stage"`
		MaxWaitMinutes    int     `mapstructure:"max_wait_minutes"`
	} `mapstructure:"poll"`

	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig reads the configuration from a file or environment variables
func LoadConfig(configPaths ...string) (*RTConfig, error) {
	// can specify config path from environment
	if path, exists := os.LookupEnv("RT_CONFIG_PATH"); exists {
		configPaths = append(configPaths, path)
	}
	for _, path := range configPaths {
		fi, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, err
		}
		mode := fi.Mode()
		switch {
		case mode.IsRegular():
			v := newViper()
			v.SetConfigFile(path)
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil

		case mode.IsDir():
			v := newViper()
			v.AddConfigPath(path)
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			config, err := readConfig(v, path)
			if err != nil {
				continue
			}
			return config, nil
		}
	}

	v := newViper()
	// finally read from current working directory
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	cwd, _ := os.Getwd()

	config, err := readConfig(v, cwd)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// newViper creates a viper instance with all configuration defaults set
func newViper() *viper.Viper {
	v := viper.New()

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "ranktracker")
	v.SetDefault("database.sslmode", "disable")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Scheduler defaults. Schedules are minute-level ("HH:MM") so an hourly scan is
	// enough resolution for the trigger tick
	v.SetDefault("scheduler.tick_cron", "0 * * * *")

	v.SetDefault("queue.host", "localhost:6379")
	v.SetDefault("queue.password", "redis")
	v.SetDefault("queue.db", 0)

	// Pipeline defaults
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_base_sec", 5)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.batch_rate_per_sec", 2)
	v.SetDefault("pipeline.heartbeat_interval_sec", 60)

	// Provider defaults
	v.SetDefault("provider.base_url", "http://localhost:9090")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout_sec", 30)

	// Poll defaults
	v.SetDefault("poll.initial_delay_sec", 5)
	v.SetDefault("poll.max_delay_sec", 60)
	v.SetDefault("poll.backoff_multiplier", 2.0)
	v.SetDefault("poll.checks_per_stage", 3)
	v.SetDefault("poll.max_wait_minutes", 10)

	// Log level default
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("RT")                               // Prefix for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env vars
	v.AutomaticEnv()                                   // Read environment variables

	return v
}

func readConfig(v *viper.Viper, path string) (*RTConfig, error) {
	var config RTConfig

	if err := v.ReadInConfig(); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not read config file")
		return nil, err
	}
	if err := v.Unmarshal(&config); err != nil {
		log.Warn().
			Str("path", path).
			Msg("Could not unmarshall config")
		return nil, err
	}

	return &config, nil
}

// GetDatabaseURL returns a formatted database connection string
func (c *RTConfig) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// ZerologLevel parses the configured log level, falling back to info on bad input
func (c *RTConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
