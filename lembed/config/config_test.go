package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/venthic/localembed/lembed"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	// The package-level viper instance keeps SetConfigFile state across
	// calls, so each test starts from a clean slate.
	viper.Reset()

	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "localembed-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	embedder := cfg.Localembed.Embedder
	assert.Equal(suite.T(), "local", embedder.Provider)
	assert.Equal(suite.T(), internal.DefaultModelID, embedder.ModelID)
	assert.Equal(suite.T(), internal.DefaultDimensions, embedder.Dimensions)
	assert.Equal(suite.T(), internal.DefaultMaxSeqLen, embedder.MaxSeqLen)
	assert.Equal(suite.T(), internal.DefaultBatchSize, embedder.BatchSize)
	assert.Equal(suite.T(), "mean", embedder.Pooling)
	assert.True(suite.T(), embedder.Normalize)

	assert.True(suite.T(), cfg.Localembed.Cache.Enabled)
	assert.Equal(suite.T(), internal.DefaultCacheDSN, cfg.Localembed.Cache.DSN)

	assert.Equal(suite.T(), internal.DefaultModelBaseURL, cfg.Localembed.Fetch.BaseURL)
	assert.Equal(suite.T(), internal.DefaultModelDir, cfg.Localembed.Fetch.ModelDir)
	assert.Equal(suite.T(), 4, cfg.Localembed.Fetch.MaxRetries)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
localembed:
  embedder:
    provider: "onnx"
    modelId: "custom/model"
    dimensions: 512
    maxSeqLen: 128
    batchSize: 8
    pooling: "cls"
    normalize: false
    executionProvider: "cuda"
    deviceId: 1
  cache:
    enabled: false
    dsn: "test.db"
  fetch:
    baseUrl: "https://mirror.example.com"
    maxRetries: 2
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	embedder := cfg.Localembed.Embedder
	assert.Equal(suite.T(), "onnx", embedder.Provider)
	assert.Equal(suite.T(), "custom/model", embedder.ModelID)
	assert.Equal(suite.T(), 512, embedder.Dimensions)
	assert.Equal(suite.T(), 128, embedder.MaxSeqLen)
	assert.Equal(suite.T(), 8, embedder.BatchSize)
	assert.Equal(suite.T(), "cls", embedder.Pooling)
	assert.False(suite.T(), embedder.Normalize)
	assert.Equal(suite.T(), "cuda", embedder.ExecutionProvider)
	assert.Equal(suite.T(), 1, embedder.DeviceID)

	assert.False(suite.T(), cfg.Localembed.Cache.Enabled)
	assert.Equal(suite.T(), "test.db", cfg.Localembed.Cache.DSN)

	assert.Equal(suite.T(), "https://mirror.example.com", cfg.Localembed.Fetch.BaseURL)
	assert.Equal(suite.T(), 2, cfg.Localembed.Fetch.MaxRetries)

	// Unlisted keys keep their defaults.
	assert.Equal(suite.T(), internal.DefaultModelDir, cfg.Localembed.Fetch.ModelDir)
}

func (suite *ConfigTestSuite) TestLoadConfigFromEnvironment() {
	suite.T().Setenv("LOCALEMBED_EMBEDDER_PROVIDER", "hash")
	suite.T().Setenv("LOCALEMBED_EMBEDDER_DIMENSIONS", "128")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "hash", cfg.Localembed.Embedder.Provider)
	assert.Equal(suite.T(), 128, cfg.Localembed.Embedder.Dimensions)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	// An explicit path that does not exist should error rather than
	// fall back to defaults.
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
localembed:
  embedder:
    provider: "onnx"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Localembed.Embedder.ModelID, AppConfig.Localembed.Embedder.ModelID)
	assert.Equal(suite.T(), cfg.Localembed.Cache.DSN, AppConfig.Localembed.Cache.DSN)
}

// TestConfigTypes tests the configuration type definitions
func TestConfigTypes(t *testing.T) {
	config := Config{}
	assert.IsType(t, LocalembedConfig{}, config.Localembed)

	appConfig := LocalembedConfig{}
	assert.IsType(t, EmbedderConfig{}, appConfig.Embedder)
	assert.IsType(t, CacheConfig{}, appConfig.Cache)
	assert.IsType(t, FetchConfig{}, appConfig.Fetch)

	embedder := EmbedderConfig{}
	assert.IsType(t, "", embedder.Provider)
	assert.IsType(t, "", embedder.ModelID)
	assert.IsType(t, 0, embedder.Dimensions)
	assert.IsType(t, false, embedder.Normalize)

	cache := CacheConfig{}
	assert.IsType(t, false, cache.Enabled)
	assert.IsType(t, "", cache.DSN)

	fetch := FetchConfig{}
	assert.IsType(t, "", fetch.BaseURL)
	assert.IsType(t, 0, fetch.MaxRetries)
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	viper.Reset()
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
