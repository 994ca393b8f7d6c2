package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ticketgate/internal/database"
	"ticketgate/internal/messaging"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// "postgres" or "memory"
	StoreDriver string
	// SeedUsers are "email:password" accounts created at start in the
	// memory store
	SeedUsers []string

	MetricsEnabled    bool
	ReconcileInterval time.Duration

	Database      database.Config
	NATS          messaging.Config
	Valkey        ValkeyConfig
	Elasticsearch ElasticsearchConfig
	PubNub        PubNubConfig
	Credential    CredentialConfig
}

// ValkeyConfig содержит настройки кеша
type ValkeyConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	UsersHashKey string
	QRCacheTTL   time.Duration
}

// PubNubConfig содержит ключи для push-уведомлений владельцам билетов
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// Enabled reports whether push delivery is configured.
func (c PubNubConfig) Enabled() bool {
	return c.PublishKey != "" && c.SubscribeKey != ""
}

// CredentialConfig содержит параметры подписи QR credential
type CredentialConfig struct {
	Secret string
	// Grace extends credential validity beyond the event end
	Grace  time.Duration
	QRSize int
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		SeedUsers:   getEnvList("SEED_USERS"),

		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "ticketgate"),
			Password:           getEnv("DB_PASSWORD", "ticketgate"),
			DBName:             getEnv("DB_NAME", "ticketgate"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			Enabled:   getEnvBool("NATS_ENABLED", true),
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "ticketgate"),
			ClientID:  getEnv("NATS_CLIENT_ID", "ticketgate-api"),
		},

		Valkey: ValkeyConfig{
			Enabled:      getEnvBool("VALKEY_ENABLED", true),
			Addr:         getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:     os.Getenv("VALKEY_PASSWORD"),
			UsersHashKey: getEnv("VALKEY_USERS_HASH_KEY", "users:auth"),
			QRCacheTTL:   getEnvDuration("QR_CACHE_TTL", 24*time.Hour),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		PubNub: PubNubConfig{
			PublishKey:   os.Getenv("PUBNUB_PUBLISH_KEY"),
			SubscribeKey: os.Getenv("PUBNUB_SUBSCRIBE_KEY"),
			SecretKey:    os.Getenv("PUBNUB_SECRET_KEY"),
			UserID:       getEnv("PUBNUB_USER_ID", "ticketgate-server"),
		},

		Credential: CredentialConfig{
			Secret: os.Getenv("CREDENTIAL_SECRET"),
			Grace:  getEnvDuration("CREDENTIAL_GRACE", 24*time.Hour),
			QRSize: getEnvInt("QR_SIZE", 256),
		},
	}
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
