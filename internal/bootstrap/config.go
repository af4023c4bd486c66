package bootstrap

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"team-meetings/internal/infra/setup"
)

// Config 存储从环境变量 (以及可选的 .env 文件) 加载的配置
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"mysql"`
	DBDSN      string `envconfig:"DB_DSN"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"3306"`
	DBName     string `envconfig:"DB_NAME" default:"team_meetings"`

	RedisAddr     string `envconfig:"REDIS_ADDR" required:"true"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"tm:"`

	JWTSecret      string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiryHours int    `envconfig:"JWT_EXPIRY_HOURS" default:"24"`

	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1s"`

	AllowedOrigins   []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	PresenceInterval time.Duration `envconfig:"PRESENCE_INTERVAL" default:"30s"`

	ReapSchedule      string        `envconfig:"REAP_SCHEDULE" default:"@every 1m"`
	ReapGrace         time.Duration `envconfig:"REAP_GRACE" default:"2m"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"10"`
}

// LoadConfig 从环境变量加载配置，存在 .env 时先加载它
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 允许只使用环境变量

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.JWTSecret == "" || cfg.RedisAddr == "" {
		return nil, fmt.Errorf("JWT_SECRET and REDIS_ADDR must not be empty")
	}
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", cfg.DBDriver)
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.PresenceInterval <= 0 {
		return nil, fmt.Errorf("PRESENCE_INTERVAL must be positive")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// DBOptions 转换为 setup.InitDB 的参数
func (c *Config) DBOptions() setup.DBOptions {
	return setup.DBOptions{
		Driver:   c.DBDriver,
		DSN:      c.DBDSN,
		User:     c.DBUser,
		Password: c.DBPassword,
		Host:     c.DBHost,
		Port:     c.DBPort,
		Name:     c.DBName,
	}
}

func (c *Config) isProduction() bool { return c.AppEnv == "production" }
