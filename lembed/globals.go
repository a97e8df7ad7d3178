package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// Default filesystem locations
	DefaultAppName    = "localembed"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir   = filepath.Join(DefaultConfigPath, ".cache")
	DefaultModelDir   = filepath.Join(DefaultCacheDir, "models")
	DefaultCacheDSN   = filepath.Join(DefaultConfigPath, "embeddings.db")

	// Default embedder settings
	DefaultModelID      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultModelBaseURL = "https://huggingface.co"
	DefaultDimensions   = 384
	DefaultMaxSeqLen    = 256
	DefaultBatchSize    = 32
)

// getHomeDir resolves the user home directory, falling back to the
// working directory and finally /tmp so path defaults never panic.
func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return home
	}
	if cwd, cwdErr := os.Getwd(); cwdErr == nil {
		log.Printf("home directory unavailable, using working directory: %v", err)
		return cwd
	}
	log.Printf("home and working directory unavailable, using /tmp: %v", err)
	return "/tmp"
}

// GetLogger returns the zerolog logger used across the module.
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("app", DefaultAppName).Logger()
}
