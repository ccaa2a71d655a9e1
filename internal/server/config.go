// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the ConvoHub service.
package server

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/convohub/internal/flagx"
)

// Authentication modes.
const (
	AuthModeSession = "session"
	AuthModeJWT     = "jwt"
)

// MemoryDSN selects the in-process stores instead of PostgreSQL.
const MemoryDSN = "memory"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	DatabaseDSN  string
	RedisAddr    string
	AuthMode     string
	SecretKey    string
	TokenTTL     time.Duration
	Rooms        []string
	HistoryLimit int
	LogLevel     string
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		DatabaseDSN:  MemoryDSN,
		AuthMode:     AuthModeSession,
		TokenTTL:     24 * time.Hour,
		Rooms:        []string{"General", "Tech Talk", "Random"},
		HistoryLimit: 100,
		LogLevel:     "info",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the transport settings of cfg (port, origins, frame
// size, rate limit). Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitized.Rooms = append([]string(nil), cfg.Rooms...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.Rooms = append([]string(nil), cfg.Rooms...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.DatabaseDSN = dsn
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	if mode := os.Getenv("AUTH_MODE"); mode != "" {
		cfg.AuthMode = strings.ToLower(strings.TrimSpace(mode))
	}

	if key := os.Getenv("SECRET_KEY"); key != "" {
		cfg.SecretKey = key
	}

	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		cfg.TokenTTL = parseDuration(ttl, cfg.TokenTTL)
	}

	if rooms := os.Getenv("CHAT_ROOMS"); rooms != "" {
		cfg.Rooms = parseList(rooms)
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg
}

// LoadConfig resolves the configuration from defaults, then the environment,
// then command-line flags. Unknown flags in args are ignored.
func LoadConfig(args []string) (*Config, error) {
	cfg := NewConfigFromEnv()

	fs := flag.NewFlagSet("convohub", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "a", cfg.Port, "listen address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "PostgreSQL DSN, or \"memory\"")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "Redis address for the session and user cache")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "JWT signing secret")
	fs.StringVar(&cfg.AuthMode, "m", cfg.AuthMode, "auth mode: session or jwt")
	rooms := fs.String("rooms", strings.Join(cfg.Rooms, ","), "comma-separated room catalog")

	filtered := flagx.FilterArgs(args, []string{"-a", "-d", "-r", "-s", "-m", "-rooms"})
	if err := fs.Parse(filtered); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	cfg.Rooms = parseList(*rooms)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeSession:
	case AuthModeJWT:
		if c.SecretKey == "" {
			return errors.New("auth mode jwt requires a secret key")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}
	if len(c.Rooms) == 0 {
		return errors.New("room catalog is empty")
	}
	if c.DatabaseDSN == "" {
		return errors.New("database dsn is empty")
	}
	return nil
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration accepts Go durations ("12h") and bare seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseRefillInterval(value, defaultValue)
}
