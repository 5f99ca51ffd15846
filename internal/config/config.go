// Package config centraliza o carregamento de configurações da aplicação.
// A configuração é lida uma vez na inicialização e não muda depois disso.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JeanGrijp/identity-gate/internal/core/domain"
	"github.com/JeanGrijp/identity-gate/internal/core/services"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port               string
	AdminPort          string
	TrustProxy         bool
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	DiagnosticsEnabled bool
	ShutdownTimeout    time.Duration
}

type StorageConfig struct {
	Redis RedisConfig
}

type RedisConfig struct {
	URL         string
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Addr devolve host:port quando não há URL configurada.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RateLimiterConfig struct {
	Global        domain.TokenBucketRule
	Sensitive     domain.FixedWindowRule
	FailurePolicy services.FailurePolicy
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig é o formato do arquivo YAML opcional (CONFIG_FILE).
// Campos ausentes mantêm o valor padrão; variáveis de ambiente têm precedência.
type fileConfig struct {
	Server struct {
		Port               string   `yaml:"port"`
		AdminPort          string   `yaml:"admin_port"`
		TrustProxy         *bool    `yaml:"trust_proxy"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		MaxBodyBytes       int64    `yaml:"max_body_bytes"`
		DiagnosticsEnabled *bool    `yaml:"diagnostics_enabled"`
	} `yaml:"server"`
	Redis struct {
		URL      string `yaml:"url"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	RateLimit struct {
		Global struct {
			KeyPrefix       string `yaml:"key_prefix"`
			Points          int    `yaml:"points"`
			DurationSeconds int    `yaml:"duration_seconds"`
		} `yaml:"global"`
		Sensitive struct {
			KeyPrefix   string `yaml:"key_prefix"`
			WindowMs    int    `yaml:"window_ms"`
			MaxRequests int    `yaml:"max"`
		} `yaml:"sensitive"`
		FailurePolicy string `yaml:"failure_policy"`
	} `yaml:"rate_limit"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:               "3001",
			AdminPort:          "9090",
			CORSAllowedOrigins: []string{"*"},
			MaxBodyBytes:       1 << 20,
			ShutdownTimeout:    10 * time.Second,
		},
		Storage: StorageConfig{Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DialTimeout: 2 * time.Second,
			IOTimeout:   time.Second,
		}},
		RateLimiter: RateLimiterConfig{
			Global: domain.TokenBucketRule{
				KeyPrefix: "middleware",
				Capacity:  10,
				Duration:  time.Second,
			},
			Sensitive: domain.FixedWindowRule{
				KeyPrefix:   "rl",
				Window:      15 * time.Minute,
				MaxRequests: 100,
			},
			FailurePolicy: services.FailOpen,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	if fc.Server.Port != "" {
		cfg.Server.Port = fc.Server.Port
	}
	if fc.Server.AdminPort != "" {
		cfg.Server.AdminPort = fc.Server.AdminPort
	}
	if fc.Server.TrustProxy != nil {
		cfg.Server.TrustProxy = *fc.Server.TrustProxy
	}
	if len(fc.Server.CORSAllowedOrigins) > 0 {
		cfg.Server.CORSAllowedOrigins = fc.Server.CORSAllowedOrigins
	}
	if fc.Server.MaxBodyBytes > 0 {
		cfg.Server.MaxBodyBytes = fc.Server.MaxBodyBytes
	}
	if fc.Server.DiagnosticsEnabled != nil {
		cfg.Server.DiagnosticsEnabled = *fc.Server.DiagnosticsEnabled
	}

	redis := &cfg.Storage.Redis
	if fc.Redis.URL != "" {
		redis.URL = fc.Redis.URL
	}
	if fc.Redis.Host != "" {
		redis.Host = fc.Redis.Host
	}
	if fc.Redis.Port != 0 {
		redis.Port = fc.Redis.Port
	}
	if fc.Redis.Password != "" {
		redis.Password = fc.Redis.Password
	}
	if fc.Redis.DB != 0 {
		redis.DB = fc.Redis.DB
	}

	rl := &cfg.RateLimiter
	if fc.RateLimit.Global.KeyPrefix != "" {
		rl.Global.KeyPrefix = fc.RateLimit.Global.KeyPrefix
	}
	if fc.RateLimit.Global.Points != 0 {
		rl.Global.Capacity = fc.RateLimit.Global.Points
	}
	if fc.RateLimit.Global.DurationSeconds != 0 {
		rl.Global.Duration = time.Duration(fc.RateLimit.Global.DurationSeconds) * time.Second
	}
	if fc.RateLimit.Sensitive.KeyPrefix != "" {
		rl.Sensitive.KeyPrefix = fc.RateLimit.Sensitive.KeyPrefix
	}
	if fc.RateLimit.Sensitive.WindowMs != 0 {
		rl.Sensitive.Window = time.Duration(fc.RateLimit.Sensitive.WindowMs) * time.Millisecond
	}
	if fc.RateLimit.Sensitive.MaxRequests != 0 {
		rl.Sensitive.MaxRequests = fc.RateLimit.Sensitive.MaxRequests
	}
	if fc.RateLimit.FailurePolicy != "" {
		policy, err := services.ParseFailurePolicy(fc.RateLimit.FailurePolicy)
		if err != nil {
			return fmt.Errorf("invalid rate_limit.failure_policy: %w", err)
		}
		rl.FailurePolicy = policy
	}

	if fc.Log.Level != "" {
		cfg.Log.Level = fc.Log.Level
	}
	if fc.Log.Format != "" {
		cfg.Log.Format = fc.Log.Format
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnv("SERVER_PORT", getEnv("PORT", cfg.Server.Port))
	cfg.Server.AdminPort = getEnv("ADMIN_PORT", cfg.Server.AdminPort)

	var err error
	if cfg.Server.TrustProxy, err = getBool("TRUST_PROXY", cfg.Server.TrustProxy); err != nil {
		return err
	}
	if cfg.Server.DiagnosticsEnabled, err = getBool("DIAGNOSTICS_ENABLED", cfg.Server.DiagnosticsEnabled); err != nil {
		return err
	}
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.Server.CORSAllowedOrigins = splitList(origins)
	}
	if raw := getEnv("MAX_BODY_BYTES", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_BODY_BYTES: %w", err)
		}
		cfg.Server.MaxBodyBytes = n
	}

	redis := &cfg.Storage.Redis
	redis.URL = getEnv("REDIS_URL", redis.URL)
	redis.Host = getEnv("REDIS_HOST", redis.Host)
	if redis.Port, err = getInt("REDIS_PORT", redis.Port); err != nil {
		return err
	}
	if redis.DB, err = getInt("REDIS_DB", redis.DB); err != nil {
		return err
	}
	redis.Password = getEnv("REDIS_PASSWORD", redis.Password)
	if redis.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", redis.DialTimeout); err != nil {
		return err
	}
	if redis.IOTimeout, err = getDuration("REDIS_IO_TIMEOUT", redis.IOTimeout); err != nil {
		return err
	}

	rl := &cfg.RateLimiter
	rl.Global.KeyPrefix = getEnv("RATE_LIMIT_GLOBAL_PREFIX", rl.Global.KeyPrefix)
	if rl.Global.Capacity, err = getInt("RATE_LIMIT_GLOBAL_POINTS", rl.Global.Capacity); err != nil {
		return err
	}
	seconds, err := getInt("RATE_LIMIT_GLOBAL_DURATION_SECONDS", int(rl.Global.Duration/time.Second))
	if err != nil {
		return err
	}
	rl.Global.Duration = time.Duration(seconds) * time.Second

	rl.Sensitive.KeyPrefix = getEnv("RATE_LIMIT_SENSITIVE_PREFIX", rl.Sensitive.KeyPrefix)
	windowMs, err := getInt("RATE_LIMIT_SENSITIVE_WINDOW_MS", int(rl.Sensitive.Window/time.Millisecond))
	if err != nil {
		return err
	}
	rl.Sensitive.Window = time.Duration(windowMs) * time.Millisecond
	if rl.Sensitive.MaxRequests, err = getInt("RATE_LIMIT_SENSITIVE_MAX", rl.Sensitive.MaxRequests); err != nil {
		return err
	}

	if raw := getEnv("RATE_LIMIT_FAILURE_POLICY", ""); raw != "" {
		policy, err := services.ParseFailurePolicy(raw)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_FAILURE_POLICY: %w", err)
		}
		rl.FailurePolicy = policy
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("admin port must differ from server port")
	}
	if c.Storage.Redis.URL == "" && c.Storage.Redis.Host == "" {
		return fmt.Errorf("redis url or host is required")
	}
	g := c.RateLimiter.Global
	if g.Capacity <= 0 || g.Duration <= 0 {
		return fmt.Errorf("%w: global limiter needs positive points and duration", domain.ErrInvalidRule)
	}
	s := c.RateLimiter.Sensitive
	if s.MaxRequests <= 0 || s.Window <= 0 {
		return fmt.Errorf("%w: sensitive limiter needs positive max and window", domain.ErrInvalidRule)
	}
	if g.KeyPrefix == s.KeyPrefix {
		return fmt.Errorf("%w: limiters must use distinct key prefixes", domain.ErrInvalidRule)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
