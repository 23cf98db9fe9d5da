package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string
	Port       string

	Environment string

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Shared secret guarding the worker trigger endpoints.
	WorkerTriggerToken string

	// HMAC secrets for inbound webhook signature verification, per provider.
	CalendarWebhookSecret string
	ATSWebhookSecret      string

	// Retry policy for queued jobs.
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter float64

	// Lock TTLs per periodic worker. Each must exceed the worst-case run
	// duration for its worker; an expired lock is reclaimable.
	NotificationLockTTL time.Duration
	WebhookLockTTL      time.Duration
	ReconcileLockTTL    time.Duration

	// Claim batch sizes per worker run.
	NotificationBatchSize int
	WebhookBatchSize      int
	ReconcileBatchSize    int

	// Grace period after which a claimed-but-unfinished job becomes
	// re-eligible for claiming.
	StaleClaimGrace time.Duration

	// Reminder offsets before the interview start time.
	ReminderOffsets []time.Duration

	// Digest frequency flag carried over from the notification settings
	// surface. There is no digest flush job, so the queue refuses to
	// suppress sends when this is set; it only logs.
	NotificationDigestMode bool

	// Intervals for the in-process periodic triggers.
	NotificationInterval time.Duration
	WebhookInterval      time.Duration
	ReconcileInterval    time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "talentflow-core"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Port:        getenv("PORT", "8080"),
		Environment: getenv("ENVIRONMENT", "development"),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "talentflow"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     10,
		DBMaxOpenConn:     100,
		DBConnMaxLifetime: 3600,
		DBConnMaxIdleTime: 60,

		WorkerTriggerToken:    strings.TrimSpace(getenv("WORKER_TRIGGER_TOKEN", "")),
		CalendarWebhookSecret: strings.TrimSpace(getenv("CALENDAR_WEBHOOK_SECRET", "")),
		ATSWebhookSecret:      strings.TrimSpace(getenv("ATS_WEBHOOK_SECRET", "")),

		MaxAttempts:   getenvInt("JOB_MAX_ATTEMPTS", 5),
		BackoffBase:   getenvDuration("JOB_BACKOFF_BASE", 30*time.Second),
		BackoffCap:    getenvDuration("JOB_BACKOFF_CAP", 15*time.Minute),
		BackoffJitter: getenvFloat("JOB_BACKOFF_JITTER", 0.2),

		NotificationLockTTL: getenvDuration("NOTIFICATION_LOCK_TTL", 5*time.Minute),
		WebhookLockTTL:      getenvDuration("WEBHOOK_LOCK_TTL", 5*time.Minute),
		ReconcileLockTTL:    getenvDuration("RECONCILE_LOCK_TTL", 10*time.Minute),

		NotificationBatchSize: getenvInt("NOTIFICATION_BATCH_SIZE", 50),
		WebhookBatchSize:      getenvInt("WEBHOOK_BATCH_SIZE", 50),
		ReconcileBatchSize:    getenvInt("RECONCILE_BATCH_SIZE", 100),

		StaleClaimGrace: getenvDuration("STALE_CLAIM_GRACE", 10*time.Minute),

		ReminderOffsets: []time.Duration{24 * time.Hour, 2 * time.Hour},

		NotificationDigestMode: getenvBool("NOTIFICATION_DIGEST_MODE", false),

		NotificationInterval: getenvDuration("NOTIFICATION_INTERVAL", time.Minute),
		WebhookInterval:      getenvDuration("WEBHOOK_INTERVAL", 30*time.Second),
		ReconcileInterval:    getenvDuration("RECONCILE_INTERVAL", 10*time.Minute),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
