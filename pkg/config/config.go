package config

import (
	"errors"
	"strconv"
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
	Booking       BookingConfig
	Credits       CreditsConfig
	Notifications NotificationsConfig
	Cron          CronConfig
	Storage       StorageConfig
	Dashboard     DashboardConfig
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

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig tunes the booking lifecycle and late-cancellation policy.
type BookingConfig struct {
	// CancellationWindow is how far ahead of class start a cancellation
	// stops being free of charge.
	CancellationWindow time.Duration
	// MonthlyTolerance maps a frequency code to the number of late
	// cancellations forgiven per calendar month.
	MonthlyTolerance map[string]int
	// DefaultTolerance applies when a frequency code has no entry.
	DefaultTolerance int
}

// CreditsConfig governs the credit ledger.
type CreditsConfig struct {
	// ValidityDays is how long a purchased credit batch stays usable.
	ValidityDays int
}

// NotificationsConfig configures reminder sweeps and delivery channels.
type NotificationsConfig struct {
	Enabled           bool
	EmailEnabled      bool
	WhatsAppEnabled   bool
	SendGridAPIKey    string
	FromEmail         string
	FromName          string
	WhatsAppGateway   string
	WhatsAppToken     string
	ReminderFirst     time.Duration
	ReminderSecond    time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// CronConfig secures the endpoints hit by the external scheduler.
type CronConfig struct {
	Secret string
}

// StorageConfig controls payment-proof file storage.
type StorageConfig struct {
	ProofsDir       string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxFileSize     int64
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		CancellationWindow: parseDuration(v.GetString("CANCELLATION_WINDOW"), 24*time.Hour),
		MonthlyTolerance:   parseToleranceTable(v.GetString("LATE_CANCELLATION_TOLERANCE")),
		DefaultTolerance:   v.GetInt("LATE_CANCELLATION_DEFAULT_TOLERANCE"),
	}

	cfg.Credits = CreditsConfig{
		ValidityDays: v.GetInt("CREDIT_VALIDITY_DAYS"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:           v.GetBool("ENABLE_NOTIFICATIONS"),
		EmailEnabled:      v.GetBool("ENABLE_EMAIL_NOTIFICATIONS"),
		WhatsAppEnabled:   v.GetBool("ENABLE_WHATSAPP_NOTIFICATIONS"),
		SendGridAPIKey:    v.GetString("SENDGRID_API_KEY"),
		FromEmail:         v.GetString("NOTIFICATIONS_FROM_EMAIL"),
		FromName:          v.GetString("NOTIFICATIONS_FROM_NAME"),
		WhatsAppGateway:   v.GetString("WHATSAPP_GATEWAY_URL"),
		WhatsAppToken:     v.GetString("WHATSAPP_GATEWAY_TOKEN"),
		ReminderFirst:     parseDuration(v.GetString("REMINDER_FIRST_OFFSET"), 24*time.Hour),
		ReminderSecond:    parseDuration(v.GetString("REMINDER_SECOND_OFFSET"), 2*time.Hour),
		WorkerConcurrency: v.GetInt("NOTIFICATIONS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFICATIONS_WORKER_RETRIES"),
	}

	cfg.Cron = CronConfig{
		Secret: v.GetString("CRON_SECRET"),
	}

	maxProofSize := v.GetInt64("PROOFS_MAX_FILE_SIZE")
	if maxProofSize <= 0 {
		maxProofSize = 5 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		ProofsDir:       v.GetString("PROOFS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("PROOFS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("PROOFS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSize:     maxProofSize,
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "personal_trainer")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CANCELLATION_WINDOW", "24h")
	v.SetDefault("LATE_CANCELLATION_TOLERANCE", "3x:2,2x:1,1x:1")
	v.SetDefault("LATE_CANCELLATION_DEFAULT_TOLERANCE", 1)
	v.SetDefault("CREDIT_VALIDITY_DAYS", 60)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("ENABLE_EMAIL_NOTIFICATIONS", true)
	v.SetDefault("ENABLE_WHATSAPP_NOTIFICATIONS", true)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFICATIONS_FROM_EMAIL", "no-reply@localhost")
	v.SetDefault("NOTIFICATIONS_FROM_NAME", "Personal Trainer")
	v.SetDefault("WHATSAPP_GATEWAY_URL", "")
	v.SetDefault("WHATSAPP_GATEWAY_TOKEN", "")
	v.SetDefault("REMINDER_FIRST_OFFSET", "24h")
	v.SetDefault("REMINDER_SECOND_OFFSET", "2h")
	v.SetDefault("NOTIFICATIONS_WORKER_CONCURRENCY", 2)
	v.SetDefault("NOTIFICATIONS_WORKER_RETRIES", 3)

	v.SetDefault("CRON_SECRET", "dev_cron_secret")

	v.SetDefault("PROOFS_STORAGE_DIR", "./proofs")
	v.SetDefault("PROOFS_SIGNED_URL_SECRET", "dev_proofs_secret")
	v.SetDefault("PROOFS_SIGNED_URL_TTL", "30m")
	v.SetDefault("PROOFS_MAX_FILE_SIZE", 5*1024*1024)

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
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

// parseToleranceTable reads "3x:2,2x:1,1x:1" style pairs.
func parseToleranceTable(raw string) map[string]int {
	table := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		code := strings.TrimSpace(parts[0])
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if code != "" && err == nil && n >= 0 {
			table[code] = n
		}
	}
	return table
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
