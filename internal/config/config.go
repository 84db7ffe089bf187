// Package config provides configuration management for tvget using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8099
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 5
	defaultMaxIdleConns       = 5
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultMaxDownloads       = 3
	defaultConcurrentFrags    = 6
	defaultFragmentRetries    = 10
	defaultExtractInfoTimeout = 30 * time.Second
	defaultBinaryCheckEvery   = 12 * time.Hour
	defaultShutdownDrain      = 5 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Settings SettingsConfig `mapstructure:"settings"`
	Binaries BinariesConfig `mapstructure:"binaries"`
}

// ServerConfig holds the minimal status HTTP endpoint configuration. No
// other HTTP API is exposed; presentation lives in an external collaborator.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the sqlite connection used by the History Store and
// the Binary Manager's version bookkeeping table.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite only
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds the per-user data directory layout.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	BinDir  string `mapstructure:"bin_dir"`
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SettingsConfig is the configuration record consumed by workers and
// the downloader wrapper.
// A per-task snapshot of this struct is stored on the task at creation time.
type SettingsConfig struct {
	DownloadFolder  string `mapstructure:"download_folder"`
	Format          string `mapstructure:"format"`        // mp4, mkv, webm, mp3, m4a, wav
	VideoQuality    string `mapstructure:"video_quality"` // best, worst, 1080p, 720p, 480p, 360p
	AudioQuality    string `mapstructure:"audio_quality"` // best, 320k, 256k, 192k, 128k, worst
	MaxDownloads    int    `mapstructure:"max_downloads"` // [1,10]
	NormalizeAudio  bool   `mapstructure:"normalize_audio"`
	// UseAcceleration, when true, tells the downloader to split into
	// ConcurrentFragmentDownloads parallel fragment fetches; the worker
	// pool is clamped to 1 to avoid amplifying total outbound
	// concurrency. When false, ConcurrentFragmentDownloads is never
	// passed to the downloader.
	UseAcceleration             bool   `mapstructure:"use_acceleration"`
	ConcurrentFragmentDownloads int    `mapstructure:"concurrent_fragment_downloads"`
	Language                    string `mapstructure:"language"` // opaque, consumed by the UI collaborator only
}

// BinariesConfig holds the Binary Manager's upstream release-feed
// coordinates and update cadence.
type BinariesConfig struct {
	DownloaderRepo    string        `mapstructure:"downloader_repo"` // e.g. "yt-dlp/yt-dlp"
	MuxerRepo         string        `mapstructure:"muxer_repo"`      // e.g. "BtbN/FFmpeg-Builds"
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	ExtractInfoTimeout time.Duration `mapstructure:"extract_info_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TVGET_ and use underscores for nesting.
// Example: TVGET_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tvget")
		v.AddConfigPath("$HOME/.tvget")
	}

	// Environment variable settings
	v.SetEnvPrefix("TVGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "history.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.bin_dir", "bin")
	v.SetDefault("storage.temp_dir", "temp")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Settings defaults
	v.SetDefault("settings.download_folder", "./downloads")
	v.SetDefault("settings.format", "mp4")
	v.SetDefault("settings.video_quality", "best")
	v.SetDefault("settings.audio_quality", "best")
	v.SetDefault("settings.max_downloads", defaultMaxDownloads)
	v.SetDefault("settings.normalize_audio", false)
	v.SetDefault("settings.use_acceleration", false)
	v.SetDefault("settings.concurrent_fragment_downloads", defaultConcurrentFrags)
	v.SetDefault("settings.language", "en")

	// Binary manager defaults
	v.SetDefault("binaries.downloader_repo", "yt-dlp/yt-dlp")
	v.SetDefault("binaries.muxer_repo", "BtbN/FFmpeg-Builds")
	v.SetDefault("binaries.check_interval", defaultBinaryCheckEvery)
	v.SetDefault("binaries.extract_info_timeout", defaultExtractInfoTimeout)
}

var (
	validFormats = map[string]bool{
		"mp4": true, "mkv": true, "webm": true,
		"mp3": true, "m4a": true, "wav": true,
	}
	validVideoQualities = map[string]bool{
		"best": true, "worst": true, "1080p": true, "720p": true, "480p": true, "360p": true,
	}
	validAudioQualities = map[string]bool{
		"best": true, "320k": true, "256k": true, "192k": true, "128k": true, "worst": true,
	}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be sqlite")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats2 := map[string]bool{"json": true, "text": true}
	if !validFormats2[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Settings.DownloadFolder == "" {
		return fmt.Errorf("settings.download_folder is required")
	}
	if !validFormats[c.Settings.Format] {
		return fmt.Errorf("settings.format must be one of mp4, mkv, webm, mp3, m4a, wav")
	}
	if !validVideoQualities[c.Settings.VideoQuality] {
		return fmt.Errorf("settings.video_quality must be one of best, worst, 1080p, 720p, 480p, 360p")
	}
	if !validAudioQualities[c.Settings.AudioQuality] {
		return fmt.Errorf("settings.audio_quality must be one of best, 320k, 256k, 192k, 128k, worst")
	}
	if c.Settings.MaxDownloads < 1 || c.Settings.MaxDownloads > 10 {
		return fmt.Errorf("settings.max_downloads must be between 1 and 10")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BinPath returns the full path to the binaries directory.
func (c *StorageConfig) BinPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.BinDir)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.TempDir)
}

// IsAudioFormat reports whether format names an audio-only output.
func (s SettingsConfig) IsAudioFormat() bool {
	switch s.Format {
	case "mp3", "m4a", "wav":
		return true
	default:
		return false
	}
}
