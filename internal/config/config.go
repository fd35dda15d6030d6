package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file
const (
	EnvPort                  = "PORT"
	EnvUploadDir             = "UPLOAD_DIR"
	EnvTranscriptionEndpoint = "TRANSCRIPTION_ENDPOINT"
	EnvTranscriptionAPIKey   = "TRANSCRIPTION_API_KEY"
	EnvTranscriptionTimeout  = "TRANSCRIPTION_TIMEOUT"
	EnvTranscriptionProvider = "TRANSCRIPTION_PROVIDER"
	EnvLogLevel              = "LOG_LEVEL"
	EnvLogFormat             = "LOG_FORMAT"
)

const dotEnvFile = ".env"

// Transcription provider implementations
const (
	ProviderMultipart = "multipart"
	ProviderOpenAI    = "openai"
)

// Config represents the complete service configuration. It is loaded once at
// startup and never modified afterwards.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Logging       LoggingConfig       `yaml:"logging"`
	History       HistoryConfig       `yaml:"history"`
}

// ServerConfig contains the HTTP/WebSocket listener configuration
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig contains the recording storage configuration
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// TranscriptionConfig contains speech-to-text provider configuration
type TranscriptionConfig struct {
	Provider       string        `yaml:"provider"`
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Language       string        `yaml:"language"`
	ResponseFormat string        `yaml:"response_format"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig bounds the in-memory list of recent broadcasts
type HistoryConfig struct {
	Size int `yaml:"size"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 3009},
		Storage: StorageConfig{UploadDir: "uploads"},
		Transcription: TranscriptionConfig{
			Provider:       ProviderMultipart,
			Endpoint:       "https://api.whisper.ai/v1/audio/transcriptions",
			Model:          "whisper-1",
			Language:       "en",
			ResponseFormat: "verbose_json",
			Timeout:        30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		History: HistoryConfig{Size: 100},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file if present, and the process environment, in that order
// of increasing precedence.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadDotEnv loads path into the environment if it exists. Variables that
// are already set win over the file.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvUploadDir); v != "" {
		c.Storage.UploadDir = v
	}
	if v := os.Getenv(EnvTranscriptionEndpoint); v != "" {
		c.Transcription.Endpoint = v
	}
	if v := os.Getenv(EnvTranscriptionAPIKey); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv(EnvTranscriptionTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTranscriptionTimeout, v, err)
		}
		c.Transcription.Timeout = timeout
	}
	if v := os.Getenv(EnvTranscriptionProvider); v != "" {
		c.Transcription.Provider = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	return nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.History.Size < 1 {
		return fmt.Errorf("history config: size must be at least 1, got %d", c.History.Size)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.UploadDir == "" {
		return fmt.Errorf("upload_dir cannot be empty")
	}
	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Provider != ProviderMultipart && t.Provider != ProviderOpenAI {
		return fmt.Errorf("provider must be '%s' or '%s', got '%s'", ProviderMultipart, ProviderOpenAI, t.Provider)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set %s)", EnvTranscriptionAPIKey)
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", t.Timeout)
	}

	validFormats := map[string]bool{"json": true, "verbose_json": true}
	if !validFormats[t.ResponseFormat] {
		return fmt.Errorf("response_format must be 'json' or 'verbose_json', got '%s'", t.ResponseFormat)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Addr returns the listen address for the HTTP server
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
