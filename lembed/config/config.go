package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/venthic/localembed/lembed"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Localembed LocalembedConfig `mapstructure:"localembed"`
}

// LocalembedConfig groups the application's own settings.
type LocalembedConfig struct {
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
}

// EmbedderConfig stores encoding pipeline settings.
type EmbedderConfig struct {
	Provider          string `mapstructure:"provider"`
	ModelID           string `mapstructure:"modelId"`
	Dimensions        int    `mapstructure:"dimensions"`
	MaxSeqLen         int    `mapstructure:"maxSeqLen"`
	BatchSize         int    `mapstructure:"batchSize"`
	Pooling           string `mapstructure:"pooling"`
	Normalize         bool   `mapstructure:"normalize"`
	ExecutionProvider string `mapstructure:"executionProvider"`
	DeviceID          int    `mapstructure:"deviceId"`
}

// CacheConfig stores embedding cache connection details.
type CacheConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DSN       string `mapstructure:"dsn"`
	AuthToken string `mapstructure:"authToken"`
}

// FetchConfig stores model download settings.
type FetchConfig struct {
	BaseURL    string `mapstructure:"baseUrl"`
	ModelDir   string `mapstructure:"modelDir"`
	MaxRetries int    `mapstructure:"maxRetries"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("localembed.embedder.provider", "local")
	viper.SetDefault("localembed.embedder.modelId", internal.DefaultModelID)
	viper.SetDefault("localembed.embedder.dimensions", internal.DefaultDimensions)
	viper.SetDefault("localembed.embedder.maxSeqLen", internal.DefaultMaxSeqLen)
	viper.SetDefault("localembed.embedder.batchSize", internal.DefaultBatchSize)
	viper.SetDefault("localembed.embedder.pooling", "mean")
	viper.SetDefault("localembed.embedder.normalize", true)

	viper.SetDefault("localembed.cache.enabled", true)
	viper.SetDefault("localembed.cache.dsn", internal.DefaultCacheDSN)

	viper.SetDefault("localembed.fetch.baseUrl", internal.DefaultModelBaseURL)
	viper.SetDefault("localembed.fetch.modelDir", internal.DefaultModelDir)
	viper.SetDefault("localembed.fetch.maxRetries", 4)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. localembed.embedder.provider becomes LOCALEMBED_EMBEDDER_PROVIDER

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not
			// an error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
