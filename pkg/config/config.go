package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/pvs/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Input resolution
	Source SourceConfig

	// Preview pipeline defaults and limits
	Preview PreviewConfig

	// Preview store and janitor
	Store StoreConfig

	// Office converter transport
	Office OfficeConfig

	// External conversion engines
	Engines EnginesConfig

	// Icon fallback
	Icons IconsConfig

	// Path-resolver plugins
	Plugins PluginsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// SourceConfig controls how inputs are resolved to local files
type SourceConfig struct {
	// FileRoot is the shared directory server-local paths resolve under.
	// Files below it are visible to external converter processes.
	FileRoot string

	// MaxFileSize rejects inputs larger than this many bytes; 0 = unbounded.
	MaxFileSize int64

	// MaxUpload caps request bodies.
	MaxUpload int64
}

// PreviewConfig holds pipeline defaults and limits
type PreviewConfig struct {
	DefaultFormat string
	DefaultWidth  int
	DefaultHeight int
	MaxWidth      int
	MaxHeight     int

	// MaxPages caps the page count of a single request; 0 = unbounded.
	MaxPages int

	// MaxWorkers bounds concurrent conversions on the shared pool.
	MaxWorkers int

	// Timeout bounds one pooled conversion's wall clock, engines included.
	Timeout time.Duration

	// FilmOverlay is the strip image composited over video frames.
	FilmOverlay string
}

// StoreConfig holds preview store and janitor configuration
type StoreConfig struct {
	// BasePath is the store root; empty disables the store entirely.
	BasePath string

	// CacheControl sets the success-response max-age; zero omits the header.
	CacheControl time.Duration

	// XAccelRedirect, when set, makes store hits answer with this path
	// prefix in an X-Accel-Redirect header instead of streaming.
	XAccelRedirect string

	CleanupInterval time.Duration
	CleanupMaxSize  int64
	CleanupMaxAge   time.Duration
}

// Enabled reports whether the store is configured.
func (s StoreConfig) Enabled() bool { return s.BasePath != "" }

// OfficeConfig holds the office converter transport configuration
type OfficeConfig struct {
	Command string
	Addr    string
	Port    int
	Timeout time.Duration
	Retry   int

	// MaxWorkers bounds concurrent office conversions on a dedicated pool;
	// 0 shares the default pool.
	MaxWorkers int
}

// Endpoint returns the converter listener address.
func (o OfficeConfig) Endpoint() string {
	return net.JoinHostPort(o.Addr, strconv.Itoa(o.Port))
}

// EnginesConfig names the external conversion binaries
type EnginesConfig struct {
	Magick      string
	Ghostscript string
	FFmpeg      string
	FFprobe     string
}

// IconsConfig holds icon fallback configuration
type IconsConfig struct {
	Root     string
	Redirect string
	Resize   bool
}

// PluginsConfig holds plugin discovery configuration
type PluginsConfig struct {
	// Dirs are scanned for plugin manifests.
	Dirs []string

	// ProxyCacheURL is the default redis URL for proxy-plugin path caches.
	ProxyCacheURL string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel     observability.LogLevel
	HTTPLogLevel observability.LogLevel

	// Metrics endpoint gate
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Source:        loadSourceConfig(),
		Preview:       loadPreviewConfig(),
		Store:         loadStoreConfig(),
		Office:        loadOfficeConfig(),
		Engines:       loadEnginesConfig(),
		Icons:         loadIconsConfig(),
		Plugins:       loadPluginsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PVS_HOST", "0.0.0.0"),
		Port:            getEnv("PVS_PORT", "3000"),
		ReadTimeout:     getEnvDuration("PVS_READ_TIMEOUT", 5*time.Minute),
		WriteTimeout:    getEnvDuration("PVS_WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:     getEnvDuration("PVS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PVS_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadSourceConfig() SourceConfig {
	return SourceConfig{
		FileRoot:    getEnv("PVS_FILES", "/mnt/files"),
		MaxFileSize: getEnvBytesize("PVS_MAX_FILE_SIZE", 0),
		MaxUpload:   getEnvBytesize("PVS_MAX_UPLOAD", 800*1024*1024),
	}
}

func loadPreviewConfig() PreviewConfig {
	return PreviewConfig{
		DefaultFormat: getEnv("PVS_DEFAULT_FORMAT", "image"),
		DefaultWidth:  getEnvInt("PVS_DEFAULT_WIDTH", 320),
		DefaultHeight: getEnvInt("PVS_DEFAULT_HEIGHT", 240),
		MaxWidth:      getEnvInt("PVS_MAX_WIDTH", 800),
		MaxHeight:     getEnvInt("PVS_MAX_HEIGHT", 600),
		MaxPages:      getEnvInt("PVS_MAX_PAGES", 10),
		MaxWorkers:    getEnvInt("PVS_MAX_WORKERS", 40),
		Timeout:       getEnvInterval("PVS_CONVERSION_TIMEOUT", 5*time.Minute),
		FilmOverlay:   getEnv("PVS_FILM_OVERLAY", "images/film-overlay.png"),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		BasePath:        getEnv("PVS_STORE", ""),
		CacheControl:    loadCacheControl(),
		XAccelRedirect:  getEnv("PVS_X_ACCEL_REDIRECT", ""),
		CleanupInterval: getEnvInterval("PVS_CLEANUP_INTERVAL", 60*time.Second),
		CleanupMaxSize:  getEnvBytesize("PVS_CLEANUP_MAX_SIZE", 0),
		CleanupMaxAge:   getEnvInterval("PVS_CLEANUP_MAX_AGE", 0),
	}
}

// loadCacheControl reads PVS_CACHE_CONTROL. A bare number means minutes, a
// unit suffix is honored.
func loadCacheControl() time.Duration {
	raw := getEnv("PVS_CACHE_CONTROL", "")
	if raw == "" {
		return 0
	}
	if minutes, err := strconv.Atoi(raw); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	d, err := Interval(raw)
	if err != nil {
		return 0
	}
	return d
}

func loadOfficeConfig() OfficeConfig {
	return OfficeConfig{
		Command:    getEnv("PVS_SOFFICE_COMMAND", "unoconvert"),
		Addr:       getEnv("PVS_SOFFICE_ADDR", "127.0.0.1"),
		Port:       getEnvInt("PVS_SOFFICE_PORT", 2002),
		Timeout:    getEnvInterval("PVS_SOFFICE_TIMEOUT", 12*time.Second),
		Retry:      getEnvInt("PVS_SOFFICE_RETRY", 3),
		MaxWorkers: getEnvInt("PVS_MAX_OFFICE_WORKERS", 0),
	}
}

func loadEnginesConfig() EnginesConfig {
	return EnginesConfig{
		Magick:      getEnv("PVS_MAGICK_COMMAND", "magick"),
		Ghostscript: getEnv("PVS_GS_COMMAND", "gs"),
		FFmpeg:      getEnv("PVS_FFMPEG_COMMAND", "ffmpeg"),
		FFprobe:     getEnv("PVS_FFPROBE_COMMAND", "ffprobe"),
	}
}

func loadIconsConfig() IconsConfig {
	return IconsConfig{
		Root:     getEnv("PVS_ICONS", ""),
		Redirect: getEnv("PVS_ICON_REDIRECT", ""),
		Resize:   Boolean(getEnv("PVS_ICON_RESIZE", "")),
	}
}

func loadPluginsConfig() PluginsConfig {
	cfg := PluginsConfig{
		ProxyCacheURL: getEnv("PVS_PROXY_CACHE_URL", ""),
	}
	if dirs := getEnv("PVS_PLUGINS", ""); dirs != "" {
		for _, d := range strings.Split(dirs, ";") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Dirs = append(cfg.Dirs, d)
			}
		}
	}
	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("PVS_LOGLEVEL", "warning")),
		HTTPLogLevel:       parseLogLevel(getEnv("PVS_HTTP_LOGLEVEL", "info")),
		MetricsEnabled:     Boolean(getEnv("PVS_METRICS", "")),
		OTelEnabled:        getEnvBool("PVS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PVS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PVS_OTEL_SERVICE_NAME", "pvs"),
		OTelServiceVersion: getEnv("PVS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PVS_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	if c.Source.FileRoot == "" {
		return fmt.Errorf("file root is required")
	}

	if c.Preview.DefaultFormat != "image" && c.Preview.DefaultFormat != "pdf" {
		return fmt.Errorf("invalid default format: %s (must be image or pdf)", c.Preview.DefaultFormat)
	}
	if c.Preview.DefaultWidth < 1 || c.Preview.DefaultHeight < 1 {
		return fmt.Errorf("default dimensions must be positive")
	}
	if c.Preview.MaxWidth < c.Preview.DefaultWidth || c.Preview.MaxHeight < c.Preview.DefaultHeight {
		return fmt.Errorf("maximum dimensions must not be below the defaults")
	}
	if c.Preview.MaxPages < 0 {
		return fmt.Errorf("max pages must not be negative")
	}
	if c.Preview.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be positive")
	}
	if c.Preview.Timeout <= 0 {
		return fmt.Errorf("conversion timeout must be positive")
	}

	if c.Store.Enabled() && c.Store.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive when the store is enabled")
	}

	if c.Office.Port < 1 || c.Office.Port > 65535 {
		return fmt.Errorf("invalid office converter port: %d", c.Office.Port)
	}
	if c.Office.Retry < 0 {
		return fmt.Errorf("office retry count must not be negative")
	}
	if c.Office.Timeout <= 0 {
		return fmt.Errorf("office timeout must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return Boolean(value)
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvInterval returns an interval environment variable or a default.
// Unlike getEnvDuration it accepts bare seconds and case-insensitive s/m
// suffixes, the format operators already use for this service.
func getEnvInterval(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := Interval(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBytesize returns a byte size environment variable or a default
func getEnvBytesize(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := Bytesize(value); err == nil {
			return n
		}
	}
	return defaultValue
}
