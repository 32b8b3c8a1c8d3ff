// Package config loads engine settings from a YAML file with viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type GraniteConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		DataDir  string `mapstructure:"data_dir"`
		FileName string `mapstructure:"file_name"`
	} `mapstructure:"storage"`

	Buffer struct {
		PoolSize int `mapstructure:"pool_size"`
	} `mapstructure:"buffer"`

	Index struct {
		LeafMaxSize     int `mapstructure:"leaf_max_size"`
		InternalMaxSize int `mapstructure:"internal_max_size"`
	} `mapstructure:"index"`

	Lock struct {
		DetectionIntervalMs int `mapstructure:"detection_interval_ms"`
	} `mapstructure:"lock"`
}

// DetectionInterval converts the configured milliseconds, zero meaning
// "use the default".
func (c *GraniteConfig) DetectionInterval() time.Duration {
	return time.Duration(c.Lock.DetectionIntervalMs) * time.Millisecond
}

// Default returns the settings used when no config file is given.
func Default() *GraniteConfig {
	var cfg GraniteConfig
	cfg.AppName = "granitedb"
	cfg.Storage.DataDir = "data"
	cfg.Storage.FileName = "granite.db"
	cfg.Buffer.PoolSize = 64
	cfg.Lock.DetectionIntervalMs = 50
	return &cfg
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*GraniteConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app_name", "granitedb")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.file_name", "granite.db")
	v.SetDefault("buffer.pool_size", 64)
	v.SetDefault("lock.detection_interval_ms", 50)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg GraniteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
