package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/infra/setup"
)

// Config 存储从环境变量或 .env 文件加载的配置
type Config struct {
	DB setup.DBOptions

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string // Redis Key 前缀

	JWTSecret  string
	ServerPort string
	LogLevel   string
	AppEnv     string // development / production

	FlushInterval    time.Duration
	DocumentCacheTTL time.Duration
	VersionKeep      int
	VersionPruneCron string

	RateLimitMax         int
	RateLimitWindow      time.Duration
	WSMessagesPerSecond  float64
	WSBurst              int
	CORSAllowedOrigin    string
	ShutdownFlushTimeout time.Duration
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		DB: setup.DBOptions{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			User:       os.Getenv("DB_USER"),
			Password:   os.Getenv("DB_PASSWORD"),
			Host:       getEnv("DB_HOST", "127.0.0.1"),
			Port:       getEnv("DB_PORT", "3306"),
			Name:       os.Getenv("DB_NAME"),
			SQLitePath: getEnv("SQLITE_PATH", "./data/editor.db"),
		},
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:            getEnv("REDIS_KEY_PREFIX", "ce:"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AppEnv:               getEnv("APP_ENV", "development"),
		VersionPruneCron:     getEnv("VERSION_PRUNE_SCHEDULE", "@every 1h"),
		CORSAllowedOrigin:    getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RateLimitWindow:      time.Second,
		ShutdownFlushTimeout: 30 * time.Second,
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.FlushInterval, err = getDuration("FLUSH_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DocumentCacheTTL, err = getDuration("DOCUMENT_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.VersionKeep, err = getInt("VERSION_KEEP", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	perSecond, err := getInt("WS_MESSAGES_PER_SECOND", 100)
	if err != nil {
		return nil, err
	}
	cfg.WSMessagesPerSecond = float64(perSecond)
	cfg.WSBurst = perSecond * 2

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.DB.Driver != "mysql" && cfg.DB.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if cfg.DB.Driver == "mysql" && cfg.DB.Name == "" {
		return nil, fmt.Errorf("environment variable DB_NAME must be set for mysql")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("FLUSH_INTERVAL must be positive")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
