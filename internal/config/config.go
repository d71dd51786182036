package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds process-level configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL string

	SnowflakeNode int64

	// EngineAccount is the custody account that pulls subscriber funds
	// before splitting them between merchant and fee collector.
	EngineAccount   string
	FeeCollector    string
	BootstrapAdmins []string

	SchedulerEnabled    bool
	ProcessDueSchedule  string
	AutoResolveSchedule string
	OutboxRelaySchedule string
	SchedulerBatchSize  int
	EngineConfigPath    string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewEngineConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "recurra"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "recurra"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "recurra.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		AMQPURL: strings.TrimSpace(getenv("AMQP_URL", "")),

		SnowflakeNode: int64(getenvInt("SNOWFLAKE_NODE", 1)),

		EngineAccount:   strings.TrimSpace(getenv("ENGINE_ACCOUNT", "engine")),
		FeeCollector:    strings.TrimSpace(getenv("FEE_COLLECTOR", "fee-collector")),
		BootstrapAdmins: parseList(getenv("BOOTSTRAP_ADMINS", "")),

		SchedulerEnabled:    getenvBool("SCHEDULER_ENABLED", false),
		ProcessDueSchedule:  getenv("SCHEDULE_PROCESS_DUE", "@every 1m"),
		AutoResolveSchedule: getenv("SCHEDULE_AUTO_RESOLVE", "@every 10m"),
		OutboxRelaySchedule: getenv("SCHEDULE_OUTBOX_RELAY", "@every 5s"),
		SchedulerBatchSize:  getenvInt("SCHEDULER_BATCH_SIZE", 50),
		EngineConfigPath:    strings.TrimSpace(getenv("ENGINE_CONFIG_PATH", "")),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
