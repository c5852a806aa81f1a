// Package config provides configuration management for aura using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/auralabs/aura/pkg/bytesize"
)

// Default configuration values.
const (
	defaultServerPort       = 8791
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 30 * time.Second
	defaultKillGrace        = 5 * time.Second
	defaultHeartbeat        = 30 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryBaseDelay   = 2 * time.Second
	defaultAvailabilityTTL  = 30 * time.Second
	defaultRetentionPerType = 50
	defaultScriptTimeout    = 15 * time.Minute
	defaultNarrationTimeout = 10 * time.Minute
	defaultImageTimeout     = 5 * time.Minute
	defaultVisualsTimeout   = 20 * time.Minute
	defaultRenderTimeout    = 30 * time.Minute
	defaultClientMargin     = 5 * time.Minute
	defaultEncoderMinMajor  = 4
	maxAutoWorkers          = 4
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration. The server binds to
// loopback by default; this is a local tool, not a network service.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the job history database configuration.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"` // empty = {storage.data_dir}/aura.db
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// OutputDir is where finished videos and job artifacts land.
	// Empty = {user documents}/AuraVideos.
	OutputDir string `mapstructure:"output_dir"`

	// DataDir holds server state (database, logs). Empty = ./data.
	DataDir string `mapstructure:"data_dir"`

	// WorkDir holds in-flight job scratch space. Empty = {data_dir}/work.
	WorkDir string `mapstructure:"work_dir"`

	// MinFreeDisk is the free-space floor checked before admission.
	MinFreeDisk bytesize.Size `mapstructure:"min_free_disk"`

	// RetentionCron is a 6-field cron expression for the artifact sweep.
	RetentionCron string `mapstructure:"retention_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// EncoderConfig holds ffmpeg binary configuration.
type EncoderConfig struct {
	BinaryPath      string        `mapstructure:"binary_path"` // empty = auto-detect
	ProbePath       string        `mapstructure:"probe_path"`  // empty = auto-detect
	MinMajorVersion int           `mapstructure:"min_major_version"`
	KillGrace       time.Duration `mapstructure:"kill_grace"`
	HWAccelPriority []string      `mapstructure:"hwaccel_priority"`
}

// ProvidersConfig holds provider connectivity and credentials.
type ProvidersConfig struct {
	// Offline forbids all network providers when true.
	Offline bool `mapstructure:"offline"`

	// AvailabilityTTL caches provider availability probe results.
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`

	// ClientMargin is added to the stage timeout to derive the outbound
	// HTTP client timeout, so the stage deadline always fires first.
	ClientMargin time.Duration `mapstructure:"client_margin"`

	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Azure      AzureConfig      `mapstructure:"azure"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	PlayHT     PlayHTConfig     `mapstructure:"playht"`
	Mimic3     Mimic3Config     `mapstructure:"mimic3"`
	Piper      PiperConfig      `mapstructure:"piper"`
	Stability  StabilityConfig  `mapstructure:"stability"`
	Runway     RunwayConfig     `mapstructure:"runway"`
	LocalSD    LocalSDConfig    `mapstructure:"localsd"`
	Stock      StockConfig      `mapstructure:"stock"`
}

// OpenAIConfig configures the OpenAI script provider.
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AzureConfig configures the Azure OpenAI script provider.
type AzureConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	Deployment string `mapstructure:"deployment"`
}

// GeminiConfig configures the Gemini script provider.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// OllamaConfig configures the local Ollama script provider.
type OllamaConfig struct {
	Host  string `mapstructure:"host"`
	Model string `mapstructure:"model"`
}

// ElevenLabsConfig configures the ElevenLabs narration provider.
type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
}

// PlayHTConfig configures the PlayHT narration provider.
type PlayHTConfig struct {
	APIKey string `mapstructure:"api_key"`
	UserID string `mapstructure:"user_id"`
}

// Mimic3Config configures the local Mimic3 narration server.
type Mimic3Config struct {
	Host  string `mapstructure:"host"`
	Voice string `mapstructure:"voice"`
}

// PiperConfig configures the local Piper narration binary.
type PiperConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	VoicesDir  string `mapstructure:"voices_dir"`
}

// StabilityConfig configures the Stability image provider.
type StabilityConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// RunwayConfig configures the Runway image provider.
type RunwayConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LocalSDConfig configures a local Stable Diffusion server. Disabled
// unless a host is configured.
type LocalSDConfig struct {
	Host string `mapstructure:"host"`
}

// StockConfig configures the stock image search provider.
type StockConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// JobsConfig holds queue and runner configuration.
type JobsConfig struct {
	// Workers is the worker pool size. 0 = min(NumCPU, 4).
	Workers int `mapstructure:"workers"`

	// RetentionPerType caps retained terminal jobs per job type.
	RetentionPerType int `mapstructure:"retention_per_type"`

	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`

	Timeouts StageTimeouts `mapstructure:"timeouts"`
}

// StageTimeouts holds per-stage execution deadlines.
type StageTimeouts struct {
	Script       time.Duration `mapstructure:"script"`
	Narration    time.Duration `mapstructure:"narration"`
	VisualsImage time.Duration `mapstructure:"visuals_image"`
	VisualsTotal time.Duration `mapstructure:"visuals_total"`
	Render       time.Duration `mapstructure:"render"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with AURA_, with underscores for nesting.
// Example: AURA_SERVER_PORT=8791.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aura")
		v.AddConfigPath("/etc/aura")
	}

	v.SetEnvPrefix("AURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars cover everything.
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDerivedPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", 0) // SSE streams must not be cut
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"http://localhost:*"})

	// Database defaults
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.output_dir", "")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.work_dir", "")
	v.SetDefault("storage.min_free_disk", "1GiB")
	v.SetDefault("storage.retention_cron", "0 0 4 * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Encoder defaults
	v.SetDefault("encoder.binary_path", "")
	v.SetDefault("encoder.probe_path", "")
	v.SetDefault("encoder.min_major_version", defaultEncoderMinMajor)
	v.SetDefault("encoder.kill_grace", defaultKillGrace)
	v.SetDefault("encoder.hwaccel_priority", []string{"vaapi", "nvenc", "qsv", "amf"})

	// Provider defaults
	v.SetDefault("providers.offline", false)
	v.SetDefault("providers.availability_ttl", defaultAvailabilityTTL)
	v.SetDefault("providers.client_margin", defaultClientMargin)
	v.SetDefault("providers.ollama.host", "http://127.0.0.1:11434")
	v.SetDefault("providers.ollama.model", "llama3.2")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	v.SetDefault("providers.mimic3.host", "")
	v.SetDefault("providers.stock.base_url", "https://api.pexels.com/v1")

	// Jobs defaults
	v.SetDefault("jobs.workers", 0)
	v.SetDefault("jobs.retention_per_type", defaultRetentionPerType)
	v.SetDefault("jobs.retry_attempts", defaultRetryAttempts)
	v.SetDefault("jobs.retry_base_delay", defaultRetryBaseDelay)
	v.SetDefault("jobs.heartbeat", defaultHeartbeat)
	v.SetDefault("jobs.timeouts.script", defaultScriptTimeout)
	v.SetDefault("jobs.timeouts.narration", defaultNarrationTimeout)
	v.SetDefault("jobs.timeouts.visuals_image", defaultImageTimeout)
	v.SetDefault("jobs.timeouts.visuals_total", defaultVisualsTimeout)
	v.SetDefault("jobs.timeouts.render", defaultRenderTimeout)
}

// applyDerivedPaths fills in path fields that default relative to others.
func (c *Config) applyDerivedPaths() {
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = defaultOutputDir()
	}
	if c.Storage.WorkDir == "" {
		c.Storage.WorkDir = filepath.Join(c.Storage.DataDir, "work")
	}
	if c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.Storage.DataDir, "aura.db")
	}
}

// defaultOutputDir returns {user documents}/AuraVideos, falling back to the
// home directory or the working directory when those cannot be resolved.
func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "AuraVideos")
	}
	return filepath.Join(home, "Documents", "AuraVideos")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.MinFreeDisk < 0 {
		return fmt.Errorf("storage.min_free_disk must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Encoder.MinMajorVersion < 1 {
		return fmt.Errorf("encoder.min_major_version must be at least 1")
	}
	if c.Encoder.KillGrace <= 0 {
		return fmt.Errorf("encoder.kill_grace must be positive")
	}

	if c.Jobs.Workers < 0 {
		return fmt.Errorf("jobs.workers must not be negative")
	}
	if c.Jobs.RetentionPerType < 1 {
		return fmt.Errorf("jobs.retention_per_type must be at least 1")
	}
	if c.Jobs.RetryAttempts < 0 {
		return fmt.Errorf("jobs.retry_attempts must not be negative")
	}
	if c.Jobs.Heartbeat <= 0 {
		return fmt.Errorf("jobs.heartbeat must be positive")
	}
	for name, d := range map[string]time.Duration{
		"script":        c.Jobs.Timeouts.Script,
		"narration":     c.Jobs.Timeouts.Narration,
		"visuals_image": c.Jobs.Timeouts.VisualsImage,
		"visuals_total": c.Jobs.Timeouts.VisualsTotal,
		"render":        c.Jobs.Timeouts.Render,
	} {
		if d <= 0 {
			return fmt.Errorf("jobs.timeouts.%s must be positive", name)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WorkerCount resolves the effective worker pool size.
func (c *JobsConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU()
	if n > maxAutoWorkers {
		n = maxAutoWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ClientTimeout derives the outbound HTTP client timeout for a stage: the
// stage timeout plus the configured margin, never below the margin itself.
func (c *ProvidersConfig) ClientTimeout(stageTimeout time.Duration) time.Duration {
	if stageTimeout <= 0 {
		return c.ClientMargin
	}
	return stageTimeout + c.ClientMargin
}
