package config

import (
	"log"
	"sync"

	"github.com/spf13/viper"
)

// ChainConfig describes one chain's data source endpoint.
type ChainConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIURL       string `mapstructure:"api_url"`
	NativeSymbol string `mapstructure:"native_symbol"`
	ExplorerURL  string `mapstructure:"explorer_url"`
}

// ScannerConfig tunes the monitoring pass.
type ScannerConfig struct {
	IntervalSeconds    int     `mapstructure:"interval_seconds"`
	Workers            int     `mapstructure:"workers"`
	ItemTimeoutSeconds int     `mapstructure:"item_timeout_seconds"`
	PassTimeoutSeconds int     `mapstructure:"pass_timeout_seconds"`
	SweepSeconds       int     `mapstructure:"sweep_seconds"`
	WhaleThreshold     float64 `mapstructure:"whale_threshold"`
}

// Config defines the global configuration structure.
type Config struct {
	App struct {
		Port        string `mapstructure:"port"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"app"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Scanner ScannerConfig `mapstructure:"scanner"`

	Chains map[string]ChainConfig `mapstructure:"chains"`
}

var (
	globalConfig *Config
	configLock   sync.RWMutex
)

// LoadConfig loads configuration from the specified file path and merges
// it with environment variables.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	viper.BindEnv("app.port", "PORT")
	viper.BindEnv("app.environment", "ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("scanner.interval_seconds", "SCAN_INTERVAL_SECONDS")
	viper.BindEnv("scanner.workers", "SCAN_WORKERS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file %s: %v", path, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling configuration: %v", err)
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 60
	}
	if cfg.Scanner.Workers <= 0 {
		cfg.Scanner.Workers = 4
	}
	if cfg.Scanner.ItemTimeoutSeconds <= 0 {
		cfg.Scanner.ItemTimeoutSeconds = 20
	}
	if cfg.Scanner.PassTimeoutSeconds <= 0 {
		cfg.Scanner.PassTimeoutSeconds = 300
	}
	if cfg.Scanner.SweepSeconds <= 0 {
		cfg.Scanner.SweepSeconds = 120
	}
	if cfg.Scanner.WhaleThreshold <= 0 {
		cfg.Scanner.WhaleThreshold = 100
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// SetGlobalConfig sets the loaded configuration globally.
func SetGlobalConfig(cfg *Config) {
	configLock.Lock()
	defer configLock.Unlock()
	globalConfig = cfg
}

// GetGlobalConfig retrieves the globally set configuration.
func GetGlobalConfig() *Config {
	configLock.RLock()
	defer configLock.RUnlock()
	return globalConfig
}

// GetChainConfig retrieves the configuration for a specific chain.
func GetChainConfig(chain string) (ChainConfig, bool) {
	cfg := GetGlobalConfig()
	if cfg == nil {
		log.Println("GetChainConfig: Global configuration is nil. Ensure LoadConfig is called first.")
		return ChainConfig{}, false
	}
	chainCfg, exists := cfg.Chains[chain]
	return chainCfg, exists
}
