// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	rediskey "pharmacy_inventory/pkg/redis"
)

// DevJWTSecret is the JWT_SECRET fallback. Tokens signed with it can be
// forged by anyone who has read this file.
const DevJWTSecret = "dev-jwt-secret"

// AppConfig holds every runtime setting; all of them come from environment
// variables so nothing is hardcoded per deployment.
type AppConfig struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string
	DBDebug  bool

	// empty RedisAddr turns off rate limiting and the event outbox
	RedisAddr string
	RedisDB   int

	// comma separated broker list, topic and consumer group
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox drained by the relay into Kafka
	EventsEnabled       bool
	StockEventStream    string
	StockEventGroup     string
	StockEventConsumer  string
	StockEventStreamMax int64

	WriteRateLimit  int
	WriteRateWindow time.Duration

	JWTSecret string
	JWTTTL    time.Duration

	// failed logins per username before a lockout, and its length
	LoginMaxFailures int
	LoginLockout     time.Duration

	SeedOnStart     bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// RedisEnabled reports whether a Redis address was configured.
func (c AppConfig) RedisEnabled() bool { return c.RedisAddr != "" }

// UsesDevJWTSecret reports whether JWT_SECRET was left at DevJWTSecret.
func (c AppConfig) UsesDevJWTSecret() bool { return c.JWTSecret == DevJWTSecret }

var defaults = map[string]any{
	"HTTP_ADDR":              ":8080",
	"DB_DRIVER":              "sqlite",
	"DB_PATH":                "inventory.db",
	"DB_DSN":                 "",
	"DB_DEBUG":               "false",
	"REDIS_ADDR":             "",
	"REDIS_DB":               "0",
	"KAFKA_BROKERS":          "localhost:9092",
	"KAFKA_TOPIC":            "pharmacy-stock-events",
	"KAFKA_GROUP_ID":         "pharmacy-stock-auditor",
	"EVENTS_ENABLED":         "true",
	"STOCK_EVENT_STREAM":     rediskey.DefaultStockEventStream,
	"STOCK_EVENT_GROUP":      "pharmacy-relay-group",
	"STOCK_EVENT_CONSUMER":   "pharmacy-relay-1",
	"STOCK_EVENT_STREAM_MAX": "100000",
	"WRITE_RATE_LIMIT":       "100",
	"WRITE_RATE_WINDOW_SEC":  "1",
	"JWT_SECRET":             DevJWTSecret,
	"JWT_TTL_MIN":            "60",
	"LOGIN_MAX_FAILURES":     "5",
	"LOGIN_LOCKOUT_MIN":      "15",
	"SEED_ON_START":          "true",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "text",
	"SHUTDOWN_TIMEOUT_SEC":   "10",
}

// NewViper returns a viper instance that resolves every known key from the
// environment, falling back to the defaults above.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}
	return v
}

// Load reads and validates the configuration from the environment.
func Load() (AppConfig, error) {
	return LoadFrom(NewViper())
}

// LoadFrom reads from v, which may carry bound command line flags.
func LoadFrom(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           getString(v, "HTTP_ADDR"),
		DBDriver:           strings.ToLower(getString(v, "DB_DRIVER")),
		DBDSN:              getString(v, "DB_DSN"),
		RedisAddr:          getString(v, "REDIS_ADDR"),
		KafkaBrokers:       splitCSV(getString(v, "KAFKA_BROKERS")),
		KafkaTopic:         getString(v, "KAFKA_TOPIC"),
		KafkaGroupID:       getString(v, "KAFKA_GROUP_ID"),
		StockEventStream:   getString(v, "STOCK_EVENT_STREAM"),
		StockEventGroup:    getString(v, "STOCK_EVENT_GROUP"),
		StockEventConsumer: getString(v, "STOCK_EVENT_CONSUMER"),
		JWTSecret:          getString(v, "JWT_SECRET"),
		LogLevel:           getString(v, "LOG_LEVEL"),
		LogFormat:          strings.ToLower(getString(v, "LOG_FORMAT")),
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = getString(v, "DB_PATH")
	}

	var err error
	if cfg.DBDebug, err = getBool(v, "DB_DEBUG"); err != nil {
		return AppConfig{}, err
	}
	if cfg.EventsEnabled, err = getBool(v, "EVENTS_ENABLED"); err != nil {
		return AppConfig{}, err
	}
	if cfg.SeedOnStart, err = getBool(v, "SEED_ON_START"); err != nil {
		return AppConfig{}, err
	}

	if cfg.RedisDB, err = getInt(v, "REDIS_DB"); err != nil {
		return AppConfig{}, err
	}
	if cfg.RedisDB < 0 {
		return AppConfig{}, fmt.Errorf("REDIS_DB must be >= 0")
	}

	streamMax, err := getInt(v, "STOCK_EVENT_STREAM_MAX")
	if err != nil {
		return AppConfig{}, err
	}
	if streamMax < 0 {
		return AppConfig{}, fmt.Errorf("STOCK_EVENT_STREAM_MAX must be >= 0")
	}
	cfg.StockEventStreamMax = int64(streamMax)

	if cfg.WriteRateLimit, err = getInt(v, "WRITE_RATE_LIMIT"); err != nil {
		return AppConfig{}, err
	}
	if cfg.WriteRateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}

	if cfg.WriteRateWindow, err = getDuration(v, "WRITE_RATE_WINDOW_SEC", time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.JWTTTL, err = getDuration(v, "JWT_TTL_MIN", time.Minute); err != nil {
		return AppConfig{}, err
	}
	if cfg.LoginMaxFailures, err = getInt(v, "LOGIN_MAX_FAILURES"); err != nil {
		return AppConfig{}, err
	}
	if cfg.LoginMaxFailures <= 0 {
		return AppConfig{}, fmt.Errorf("LOGIN_MAX_FAILURES must be > 0")
	}
	if cfg.LoginLockout, err = getDuration(v, "LOGIN_LOCKOUT_MIN", time.Minute); err != nil {
		return AppConfig{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration(v, "SHUTDOWN_TIMEOUT_SEC", time.Second); err != nil {
		return AppConfig{}, err
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be one of sqlite, postgres, mysql")
	}
	if cfg.DBDSN == "" {
		return AppConfig{}, fmt.Errorf("DB_PATH or DB_DSN must not be empty")
	}
	if cfg.JWTSecret == "" {
		return AppConfig{}, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return AppConfig{}, fmt.Errorf("LOG_FORMAT must be text or json")
	}

	if cfg.EventsEnabled && cfg.RedisEnabled() {
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
		if cfg.StockEventStream == "" {
			return AppConfig{}, fmt.Errorf("STOCK_EVENT_STREAM must not be empty")
		}
		if cfg.StockEventGroup == "" {
			return AppConfig{}, fmt.Errorf("STOCK_EVENT_GROUP must not be empty")
		}
		if cfg.StockEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("STOCK_EVENT_CONSUMER must not be empty")
		}
	}

	return cfg, nil
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func ConfigureLogging(cfg AppConfig) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(getString(v, key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	b, err := strconv.ParseBool(getString(v, key))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDuration reads a positive integer count of unit.
func getDuration(v *viper.Viper, key string, unit time.Duration) (time.Duration, error) {
	n, err := getInt(v, key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return time.Duration(n) * unit, nil
}

// splitCSV parses a comma separated list, skipping blanks.
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
