package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// HistoryConfig controls the track load history database
type HistoryConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether loads are recorded
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG data path)
}

// Config represents stemdeck configuration
type Config struct {
	OutputChannels int                `json:"output_channels"`        // 1 (mono) or 2 (stereo)
	SampleRate     int                `json:"sample_rate"`            // Output stream rate in Hz
	PeriodFrames   int                `json:"period_frames"`          // Frames per callback (0 = device default)
	AudioBackend   string             `json:"audio_backend"`          // auto, malgo, oto, null
	PanLaw         string             `json:"pan_law"`                // balance, linear, constant_power
	DefaultGain    float64            `json:"default_gain"`           // Gain applied to newly loaded tracks
	LogLevel       string             `json:"log_level"`              // debug, info, warn, error
	FileLogging    *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	History        *HistoryConfig     `json:"history,omitempty"`      // Load history configuration
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validAudioBackends = []string{"auto", "malgo", "oto", "null"}
	validPanLaws       = []string{"balance", "linear", "constant_power"}
)

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetDataPath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager that reads
// and writes through fs
func NewConfigManagerWithFilesystem(fs afero.Fs) *ConfigManager {
	return &ConfigManager{
		xdg: NewXDGDirsWithFilesystem(fs),
		fs:  fs,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	return &Config{
		OutputChannels: 2,
		SampleRate:     44100,
		PeriodFrames:   0,
		AudioBackend:   "auto",
		PanLaw:         "balance",
		DefaultGain:    1.0,
		LogLevel:       "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		History: &HistoryConfig{
			Enabled:      true,
			DatabasePath: "", // Empty = XDG data path
		},
	}
}

// LoadFromFile loads configuration from a specific file. Missing fields keep
// their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := cm.GetDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cm.ValidateConfig(config); err != nil {
		return nil, err
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"output_channels", config.OutputChannels,
		"sample_rate", config.SampleRate,
		"audio_backend", config.AudioBackend)

	return config, nil
}

// SaveToFile saves configuration to a specific file
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	if err := cm.ValidateConfig(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(cm.fs, filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	configPaths := cm.xdg.GetConfigPaths("config.json")

	for _, configPath := range configPaths {
		if exists, _ := afero.Exists(cm.fs, configPath); exists {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults", "searched", configPaths)
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	if config.OutputChannels != 1 && config.OutputChannels != 2 {
		errors = append(errors, fmt.Sprintf("output_channels must be 1 or 2, got %d", config.OutputChannels))
	}

	if config.SampleRate < 8000 || config.SampleRate > 384000 {
		errors = append(errors, fmt.Sprintf("sample_rate must be between 8000 and 384000, got %d", config.SampleRate))
	}

	if config.PeriodFrames < 0 {
		errors = append(errors, fmt.Sprintf("period_frames must be >= 0, got %d", config.PeriodFrames))
	}

	if config.DefaultGain < 0.0 || config.DefaultGain > 4.0 {
		errors = append(errors, fmt.Sprintf("default_gain must be between 0.0 and 4.0, got %f", config.DefaultGain))
	}

	if config.LogLevel != "" && !slices.Contains(validLogLevels, config.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
			config.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	if !cm.IsValidAudioBackend(config.AudioBackend) {
		errors = append(errors, fmt.Sprintf("invalid audio backend '%s', must be one of: %s",
			config.AudioBackend, strings.Join(validAudioBackends, ", ")))
	}

	if config.PanLaw != "" && !slices.Contains(validPanLaws, config.PanLaw) {
		errors = append(errors, fmt.Sprintf("invalid pan law '%s', must be one of: %s",
			config.PanLaw, strings.Join(validPanLaws, ", ")))
	}

	if fileLogging := config.FileLogging; fileLogging != nil {
		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	return nil
}

// ApplyEnvironmentOverrides applies STEMDECK_* environment variables
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config

	envInt := func(name string, dst *int) {
		if s := os.Getenv(name); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				*dst = v
				slog.Debug("applied override from environment", "variable", name, "value", v)
			} else {
				slog.Warn("invalid integer environment variable", "variable", name, "value", s, "error", err)
			}
		}
	}

	envInt("STEMDECK_OUTPUT_CHANNELS", &result.OutputChannels)
	envInt("STEMDECK_SAMPLE_RATE", &result.SampleRate)
	envInt("STEMDECK_PERIOD_FRAMES", &result.PeriodFrames)

	if s := os.Getenv("STEMDECK_DEFAULT_GAIN"); s != "" {
		if gain, err := strconv.ParseFloat(s, 64); err == nil {
			result.DefaultGain = gain
		} else {
			slog.Warn("invalid STEMDECK_DEFAULT_GAIN environment variable", "value", s, "error", err)
		}
	}

	if logLevel := os.Getenv("STEMDECK_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
	}

	if audioBackend := os.Getenv("STEMDECK_AUDIO_BACKEND"); audioBackend != "" {
		if cm.IsValidAudioBackend(audioBackend) {
			result.AudioBackend = audioBackend
		} else {
			slog.Warn("invalid STEMDECK_AUDIO_BACKEND environment variable", "value", audioBackend)
		}
	}

	if panLaw := os.Getenv("STEMDECK_PAN_LAW"); panLaw != "" {
		result.PanLaw = panLaw
	}

	if s := os.Getenv("STEMDECK_HISTORY"); s != "" {
		if enabled, err := strconv.ParseBool(s); err == nil {
			history := HistoryConfig{}
			if result.History != nil {
				history = *result.History
			}
			history.Enabled = enabled
			result.History = &history
		} else {
			slog.Warn("invalid STEMDECK_HISTORY environment variable", "value", s, "error", err)
		}
	}

	return &result
}

// ParseLogLevel maps a configured level name to a slog.Level
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level '%s', must be one of: %s",
			logLevel, strings.Join(validLogLevels, ", "))
	}
}

// ApplyLogLevelWithWriter configures the default slog logger at logLevel,
// writing to writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	level, err := ParseLogLevel(logLevel)
	if err != nil {
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "stemdeck.log")
}

// ResolveHistoryPath resolves the history database path using the XDG data
// directory when path is empty
func (cm *ConfigManager) ResolveHistoryPath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(cm.xdg.GetDataPath(""), "history.db")
}

// EnsureLogDir creates the default log directory
func (cm *ConfigManager) EnsureLogDir() error {
	return cm.xdg.CreateCacheDir("logs")
}

// GetSupportedAudioBackends returns a list of all supported audio backend types
func (cm *ConfigManager) GetSupportedAudioBackends() []string {
	return validAudioBackends
}

// IsValidAudioBackend checks if an audio backend type is supported
func (cm *ConfigManager) IsValidAudioBackend(backend string) bool {
	// empty defaults to auto
	return backend == "" || slices.Contains(validAudioBackends, backend)
}
