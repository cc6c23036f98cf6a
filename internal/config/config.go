package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	EstimatorKalman     = "kalman"
	EstimatorRollingOLS = "ols"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pair      PairConfig      `mapstructure:"pair"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type BridgeConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type PairConfig struct {
	// Target is Y, the dependent leg; Reference is X.
	Target    string `mapstructure:"target"`
	Reference string `mapstructure:"reference"`
}

type AnalyticsConfig struct {
	Frequency      time.Duration `mapstructure:"frequency"`
	Window         int           `mapstructure:"window"`
	Estimator      string        `mapstructure:"estimator"`
	KalmanDelta    float64       `mapstructure:"kalman_delta"`
	KalmanVariance float64       `mapstructure:"kalman_variance"`
	Refresh        time.Duration `mapstructure:"refresh"`
	// BarLimit caps how many bars per symbol a refresh cycle reads.
	BarLimit int `mapstructure:"bar_limit"`
}

type StrategyConfig struct {
	EntryZ float64 `mapstructure:"entry_z"`
	ExitZ  float64 `mapstructure:"exit_z"`
	// Optional alert bounds; nil when not configured.
	CustomUpper *float64 `mapstructure:"custom_upper"`
	CustomLower *float64 `mapstructure:"custom_lower"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/statarb")
	}

	v.SetEnvPrefix("STATARB")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Analytics.Window < 2 {
		return fmt.Errorf("analytics window must be >= 2, got %d", c.Analytics.Window)
	}
	if c.Analytics.Frequency <= 0 {
		return fmt.Errorf("bar frequency must be positive, got %v", c.Analytics.Frequency)
	}
	switch c.Analytics.Estimator {
	case EstimatorKalman, EstimatorRollingOLS:
	default:
		return fmt.Errorf("unknown estimator %q", c.Analytics.Estimator)
	}
	if c.Strategy.EntryZ <= 0 {
		return fmt.Errorf("entry threshold must be positive, got %v", c.Strategy.EntryZ)
	}
	if c.Pair.Target == "" || c.Pair.Reference == "" {
		return fmt.Errorf("both pair symbols must be set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("bridge.port", 8765)

	v.SetDefault("database.path", "./data/market_data.db")

	v.SetDefault("pair.target", "ETHUSDT")
	v.SetDefault("pair.reference", "BTCUSDT")

	v.SetDefault("analytics.frequency", "1s")
	v.SetDefault("analytics.window", 60)
	v.SetDefault("analytics.estimator", EstimatorKalman)
	v.SetDefault("analytics.kalman_delta", 1e-5)
	v.SetDefault("analytics.kalman_variance", 1e-3)
	v.SetDefault("analytics.refresh", "1s")
	v.SetDefault("analytics.bar_limit", 300)

	v.SetDefault("strategy.entry_z", 2.0)
	v.SetDefault("strategy.exit_z", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func overrideFromEnv(config *Config) {
	if path := os.Getenv("STATARB_DATABASE_PATH"); path != "" {
		config.Database.Path = path
	}
	if port := os.Getenv("STATARB_BRIDGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Bridge.Port = p
		}
	}
	if port := os.Getenv("STATARB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
