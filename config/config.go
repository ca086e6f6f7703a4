package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Scene    SceneConfig
	Limits   LimitsConfig
	Store    StoreConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings. Empty URL and Host
// disables the history and attendee log features.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings for attendee sessions.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the bucket logos are mirrored to.
// An empty LogosBucket disables mirroring.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	LogosBucket     string
}

// SceneConfig tunes the activity engine of one auditorium scene.
type SceneConfig struct {
	ID               string
	TickInterval     time.Duration
	ZonePollDuration time.Duration
	DoorsDelay       time.Duration
	QueuePageSize    int
	IdentityTimeout  time.Duration
	RelayRetention   time.Duration
	RelayCompactCron string
	VoteMemorySize   int
	VoteMemoryTTL    time.Duration
	StatusClearAfter time.Duration
	DefaultLogoURL   string
}

// LimitsConfig bounds the input of activity creation and questions.
type LimitsConfig struct {
	PollQuestionMax int
	OptionMax       int
	MinOptions      int
	MaxOptions      int
	TitleMax        int
	MinRatings      int
	MaxRatings      int
	QuestionTextMax int
}

// StoreConfig selects the replicated store: "redis" shares state between
// instances, "memory" keeps it in-process.
type StoreConfig struct {
	Driver string
	Prefix string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "auditorium"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:        getEnvInt("DB_MAX_CONNS", 8),
			MinConns:        getEnvInt("DB_MIN_CONNS", 1),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			LogosBucket:     getEnv("AWS_S3_LOGOS_BUCKET", ""),
		},
		Scene: SceneConfig{
			ID:               getEnv("SCENE_ID", "main"),
			TickInterval:     getEnvDuration("SCENE_TICK_INTERVAL", 100*time.Millisecond),
			ZonePollDuration: getEnvDuration("ZONE_POLL_DURATION", 30*time.Second),
			DoorsDelay:       getEnvDuration("ZONE_POLL_DOORS_DELAY", 800*time.Millisecond),
			QueuePageSize:    getEnvInt("QA_QUEUE_PAGE_SIZE", 3),
			IdentityTimeout:  getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
			RelayRetention:   getEnvDuration("RELAY_RETENTION", 10*time.Minute),
			RelayCompactCron: getEnv("RELAY_COMPACT_CRON", "@every 1m"),
			VoteMemorySize:   getEnvInt("VOTE_MEMORY_SIZE", 10000),
			VoteMemoryTTL:    getEnvDuration("VOTE_MEMORY_TTL", 24*time.Hour),
			StatusClearAfter: getEnvDuration("CUSTOMIZATION_STATUS_TTL", 3*time.Second),
			DefaultLogoURL:   getEnv("DEFAULT_LOGO_URL", "https://cryptologos.cc/logos/decentraland-mana-logo.png?v=040"),
		},
		Limits: LimitsConfig{
			PollQuestionMax: getEnvInt("LIMIT_POLL_QUESTION", 30),
			OptionMax:       getEnvInt("LIMIT_OPTION", 20),
			MinOptions:      getEnvInt("LIMIT_MIN_OPTIONS", 2),
			MaxOptions:      getEnvInt("LIMIT_MAX_OPTIONS", 4),
			TitleMax:        getEnvInt("LIMIT_TITLE", 50),
			MinRatings:      getEnvInt("LIMIT_MIN_RATINGS", 2),
			MaxRatings:      getEnvInt("LIMIT_MAX_RATINGS", 5),
			QuestionTextMax: getEnvInt("LIMIT_QUESTION_TEXT", 140),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", "redis"),
			Prefix: getEnv("STORE_PREFIX", "auditorium"),
		},
	}
	if cfg.Store.Driver != "redis" && cfg.Store.Driver != "memory" {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// ScenePrefix returns the key prefix of one scene's replicated records.
func (c StoreConfig) ScenePrefix(sceneID string) string {
	return c.Prefix + ":" + sceneID
}

// SplitOrigins returns the configured CORS origins.
func (c ServerConfig) SplitOrigins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
