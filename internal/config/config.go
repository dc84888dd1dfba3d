package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all daemon configuration loaded from environment variables.
type Config struct {
	Log       LogConfig
	Server    ServerConfig
	RateLimit RateLimitConfig
	ADB       ADBConfig
	Docker    DockerConfig
	Ingest    IngestConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	PrefsPath string
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  zerolog.Level
	Format string // "json" or "text"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// RateLimitConfig bounds API requests per client IP.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// ADBConfig locates the adb client.
type ADBConfig struct {
	Path string
}

// DockerConfig holds the docker exec bridge settings. An empty Host disables
// the bridge.
type DockerConfig struct {
	Host  string
	Label string
}

// IngestConfig tunes the ingestion sessions.
type IngestConfig struct {
	FlushDelay     time.Duration
	HistoryBytes   int
	WatchInterval  time.Duration
	AutoStart      bool
	PackageEntries int
}

// RedisConfig holds the record mirror settings. An empty Addr disables the
// mirror.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// DatabaseConfig holds the record archive settings. An empty DSN disables
// the archive.
type DatabaseConfig struct {
	DSN      string //nolint:gosec // G117: DB connection config
	MaxConns int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := zerolog.ParseLevel(getEnv("LOGCAT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("config.Load: parsing LOGCAT_LOG_LEVEL: %w", err)
	}

	readTimeout, err := getEnvDuration("LOGCAT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("LOGCAT_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("LOGCAT_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("LOGCAT_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	flushDelay, err := getEnvDuration("LOGCAT_FLUSH_DELAY", 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	historyBytes, err := getEnvInt("LOGCAT_HISTORY_BYTES", 256*1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	watchInterval, err := getEnvDuration("LOGCAT_WATCH_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	autoStart, err := getEnvBool("LOGCAT_AUTO_START", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	packageEntries, err := getEnvInt("LOGCAT_PACKAGE_CACHE_ENTRIES", 1<<16)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("LOGCAT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("LOGCAT_DB_MAX_CONNS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  level,
			Format: getEnv("LOGCAT_LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Addr:         getEnv("LOGCAT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("LOGCAT_CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		ADB: ADBConfig{
			Path: getEnv("LOGCAT_ADB_PATH", "adb"),
		},
		Docker: DockerConfig{
			Host:  getEnv("LOGCAT_DOCKER_HOST", ""),
			Label: getEnv("LOGCAT_DOCKER_LABEL", "logcatd.emulator"),
		},
		Ingest: IngestConfig{
			FlushDelay:     flushDelay,
			HistoryBytes:   historyBytes,
			WatchInterval:  watchInterval,
			AutoStart:      autoStart,
			PackageEntries: packageEntries,
		},
		Redis: RedisConfig{
			Addr:     getEnv("LOGCAT_REDIS_ADDR", ""),
			Password: getEnv("LOGCAT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Database: DatabaseConfig{
			DSN:      getEnv("LOGCAT_DB_DSN", ""),
			MaxConns: dbMaxConns,
		},
		PrefsPath: getEnv("LOGCAT_PREFS_PATH", "~/.config/logcatd/prefs.toml"),
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks value bounds.
func (c *Config) validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOGCAT_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("LOGCAT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("LOGCAT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("LOGCAT_RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("LOGCAT_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimit.Burst)
	}
	if c.ADB.Path == "" {
		return errors.New("LOGCAT_ADB_PATH must not be empty")
	}
	if c.Ingest.FlushDelay <= 0 {
		return fmt.Errorf("LOGCAT_FLUSH_DELAY must be positive, got %s", c.Ingest.FlushDelay)
	}
	if c.Ingest.HistoryBytes < 1 {
		return fmt.Errorf("LOGCAT_HISTORY_BYTES must be >= 1, got %d", c.Ingest.HistoryBytes)
	}
	if c.Ingest.WatchInterval <= 0 {
		return fmt.Errorf("LOGCAT_WATCH_INTERVAL must be positive, got %s", c.Ingest.WatchInterval)
	}
	if c.Ingest.PackageEntries < 1 {
		return fmt.Errorf("LOGCAT_PACKAGE_CACHE_ENTRIES must be >= 1, got %d", c.Ingest.PackageEntries)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("LOGCAT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
