package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Token         TokenConfig
	Scheduler     SchedulerConfig
	Attendance    AttendanceConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig signs both access tokens handed in by the identity layer and
// the short-lived attendance tokens embedded in QR codes.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TokenConfig governs attendance token issuance.
type TokenConfig struct {
	TTL        time.Duration
	MaxUses    int
	QRCodeSize int
}

// SchedulerConfig controls the auto-end loop for expired sessions.
type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration
}

// AttendanceConfig tunes marking policy.
type AttendanceConfig struct {
	LateThreshold time.Duration
	StatsCacheTTL time.Duration
}

// NotificationsConfig sizes the fan-out pipeline. Delivery runs on a single
// worker so events reach each student's channel in emission order.
type NotificationsConfig struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Token = TokenConfig{
		TTL:        parseDuration(v.GetString("ATTENDANCE_TOKEN_TTL"), 10*time.Minute),
		MaxUses:    v.GetInt("ATTENDANCE_TOKEN_MAX_USES"),
		QRCodeSize: v.GetInt("ATTENDANCE_QR_SIZE"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:       v.GetBool("ENABLE_AUTO_END_SCHEDULER"),
		CheckInterval: parseDuration(v.GetString("AUTO_END_CHECK_INTERVAL"), time.Minute),
	}

	cfg.Attendance = AttendanceConfig{
		LateThreshold: parseDuration(v.GetString("ATTENDANCE_LATE_THRESHOLD"), 15*time.Minute),
		StatsCacheTTL: parseDuration(v.GetString("ATTENDANCE_STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "geo_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_TOKEN_TTL", "10m")
	v.SetDefault("ATTENDANCE_TOKEN_MAX_USES", 0)
	v.SetDefault("ATTENDANCE_QR_SIZE", 256)

	v.SetDefault("ENABLE_AUTO_END_SCHEDULER", true)
	v.SetDefault("AUTO_END_CHECK_INTERVAL", "60s")

	v.SetDefault("ATTENDANCE_LATE_THRESHOLD", "15m")
	v.SetDefault("ATTENDANCE_STATS_CACHE_TTL", "1m")

	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 1)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
