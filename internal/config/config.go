// Package config loads process-wide configuration for the memory engine
// daemon and CLI from environment variables, with an optional YAML overlay
// for deployments that prefer a file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all process-wide configuration values. Only the embedding
// model handle and this struct are process-wide global state; everything
// else lives under a per-user owner.
type Config struct {
	// Port is the bind port of the HTTP collaborator (the engine itself
	// does not listen on it; carried through for the collaborator to read).
	Port int

	// StoragePath is the root directory of persisted per-user state.
	StoragePath string

	LogLevel slog.Level
	LogFile  string

	// EmbedDim must match the loaded embedding model.
	EmbedDim int

	// Vamana/DiskANN parameters.
	ANNMaxDegree   int     // R
	ANNSearchList  int     // L
	ANNAlphaSlack  float64 // alpha

	// ModelPath, when set, selects the ONNX backend (build tag "onnx");
	// when empty the deterministic hashing embedder is used.
	ModelPath     string
	TokenizerPath string
}

// Default returns the configuration defaults from spec §6's table.
func Default() Config {
	return Config{
		Port:          3030,
		StoragePath:   "./shodh_memory_data",
		LogLevel:      slog.LevelInfo,
		LogFile:       "./shodh_memory_data/shodh.log",
		EmbedDim:      384,
		ANNMaxDegree:  32,
		ANNSearchList: 64,
		ANNAlphaSlack: 1.2,
	}
}

// Load reads configuration from environment variables, then applies a YAML
// overlay if SHODH_CONFIG_FILE points at a readable file. Env vars take
// precedence when both are set, matching the teacher's getEnv-first style.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SHODH_CONFIG_FILE"); path != "" {
		if err := applyYAMLOverlay(&cfg, path); err != nil {
			return cfg, fmt.Errorf("load yaml overlay: %w", err)
		}
	}

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.StoragePath = getEnv("STORAGE_PATH", cfg.StoragePath)
	cfg.LogLevel = parseLogLevel(getEnv("LOG_LEVEL", cfg.LogLevel.String()))
	cfg.LogFile = getEnv("SHODH_LOG_FILE", cfg.LogFile)
	cfg.EmbedDim = getEnvInt("EMBED_DIM", cfg.EmbedDim)
	cfg.ANNMaxDegree = getEnvInt("ANN_R", cfg.ANNMaxDegree)
	cfg.ANNSearchList = getEnvInt("ANN_L", cfg.ANNSearchList)
	cfg.ANNAlphaSlack = getEnvFloat("ANN_ALPHA", cfg.ANNAlphaSlack)
	cfg.ModelPath = getEnv("SHODH_MODEL_PATH", cfg.ModelPath)
	cfg.TokenizerPath = getEnv("SHODH_TOKENIZER_PATH", cfg.TokenizerPath)

	if cfg.EmbedDim <= 0 {
		return cfg, fmt.Errorf("EMBED_DIM must be positive, got %d", cfg.EmbedDim)
	}
	return cfg, nil
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overlay struct {
		Port          *int     `yaml:"port"`
		StoragePath   *string  `yaml:"storage_path"`
		LogLevel      *string  `yaml:"log_level"`
		LogFile       *string  `yaml:"log_file"`
		EmbedDim      *int     `yaml:"embed_dim"`
		ANNMaxDegree  *int     `yaml:"ann_r"`
		ANNSearchList *int     `yaml:"ann_l"`
		ANNAlphaSlack *float64 `yaml:"ann_alpha"`
		ModelPath     *string  `yaml:"model_path"`
		TokenizerPath *string  `yaml:"tokenizer_path"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}
	if overlay.Port != nil {
		cfg.Port = *overlay.Port
	}
	if overlay.StoragePath != nil {
		cfg.StoragePath = *overlay.StoragePath
	}
	if overlay.LogLevel != nil {
		cfg.LogLevel = parseLogLevel(*overlay.LogLevel)
	}
	if overlay.LogFile != nil {
		cfg.LogFile = *overlay.LogFile
	}
	if overlay.EmbedDim != nil {
		cfg.EmbedDim = *overlay.EmbedDim
	}
	if overlay.ANNMaxDegree != nil {
		cfg.ANNMaxDegree = *overlay.ANNMaxDegree
	}
	if overlay.ANNSearchList != nil {
		cfg.ANNSearchList = *overlay.ANNSearchList
	}
	if overlay.ANNAlphaSlack != nil {
		cfg.ANNAlphaSlack = *overlay.ANNAlphaSlack
	}
	if overlay.ModelPath != nil {
		cfg.ModelPath = *overlay.ModelPath
	}
	if overlay.TokenizerPath != nil {
		cfg.TokenizerPath = *overlay.TokenizerPath
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
