package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/arnodel/arraystream/decompress"
	"github.com/arnodel/arraystream/pump"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Names of the environment variables that override the configuration file.
const (
	EnvChunkSize         = "UNARRAY_CHUNK_SIZE"
	EnvMaxBufferMultiple = "UNARRAY_MAX_BUFFER_MULTIPLE"
	EnvCompression       = "UNARRAY_COMPRESSION"
)

// Config represents the complete configuration of the unarray command
type Config struct {
	ChunkSize         int    `yaml:"chunk_size"`
	MaxBufferMultiple int    `yaml:"max_buffer_multiple"`
	ProgressEvery     int    `yaml:"progress_every"`
	Compression       string `yaml:"compression"`
	Strict            bool   `yaml:"strict"`
	Color             string `yaml:"color"`
	LogLevel          string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is specified
func Default() *Config {
	return &Config{
		ChunkSize:         pump.DefaultChunkSize,
		MaxBufferMultiple: pump.DefaultMaxBufferMultiple,
		ProgressEvery:     pump.DefaultProgressEvery,
		Compression:       "auto",
		Color:             "auto",
		LogLevel:          "info",
	}
}

// LoadFromFile loads configuration from a YAML file with environment variable
// substitution.  Keys missing from the file keep their default value.
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	content := substituteEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return config, nil
}

// LoadEnvFiles loads environment variables from .env files.  Variables
// already set are not overridden, so the first file has the highest
// priority.  Missing files are skipped.
func LoadEnvFiles(envFiles ...string) error {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			fiberlog.Debugf("Skipping env file %s: %s", envFile, err)
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		fiberlog.Debugf("Loaded environment variables from %s", envFile)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// ApplyEnv overrides the configuration with the UNARRAY_* environment
// variables that are set.
func (c *Config) ApplyEnv() error {
	if err := envInt(EnvChunkSize, &c.ChunkSize); err != nil {
		return err
	}
	if err := envInt(EnvMaxBufferMultiple, &c.MaxBufferMultiple); err != nil {
		return err
	}
	if value, ok := os.LookupEnv(EnvCompression); ok && value != "" {
		c.Compression = value
	}
	return nil
}

func envInt(name string, dst *int) error {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", name, value)
	}
	*dst = n
	return nil
}

// CompressionFormat returns the parsed compression setting
func (c *Config) CompressionFormat() (decompress.Format, error) {
	return decompress.ParseFormat(c.Compression)
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// FiberLogLevel returns the logger level matching the log_level setting
func (c *Config) FiberLogLevel() (fiberlog.Level, error) {
	switch c.GetNormalizedLogLevel() {
	case "debug":
		return fiberlog.LevelDebug, nil
	case "info", "":
		return fiberlog.LevelInfo, nil
	case "warn", "warning":
		return fiberlog.LevelWarn, nil
	case "error":
		return fiberlog.LevelError, nil
	default:
		return fiberlog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
}

// PumpConfig returns the settings of the stream pump.  A zero progress
// interval disables progress messages.
func (c *Config) PumpConfig() pump.Config {
	progress := c.ProgressEvery
	if progress == 0 {
		progress = -1
	}
	return pump.Config{
		ChunkSize:         c.ChunkSize,
		MaxBufferMultiple: c.MaxBufferMultiple,
		ProgressEvery:     progress,
		Strict:            c.Strict,
	}
}

// Validate checks that all configuration values are usable
func (c *Config) Validate() error {
	var invalid []string

	if c.ChunkSize <= 0 {
		invalid = append(invalid, fmt.Sprintf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.MaxBufferMultiple < 1 {
		invalid = append(invalid, fmt.Sprintf("max_buffer_multiple must be at least 1, got %d", c.MaxBufferMultiple))
	}
	if c.ProgressEvery < 0 {
		invalid = append(invalid, fmt.Sprintf("progress_every must not be negative, got %d", c.ProgressEvery))
	}
	if _, err := c.CompressionFormat(); err != nil {
		invalid = append(invalid, err.Error())
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		invalid = append(invalid, fmt.Sprintf("color must be auto, always or never, got %q", c.Color))
	}
	if _, err := c.FiberLogLevel(); err != nil {
		invalid = append(invalid, err.Error())
	}

	if len(invalid) > 0 {
		return &ValidationError{Problems: invalid}
	}
	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}
