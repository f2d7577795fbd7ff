package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the api and the reconcile tool read from the environment.
type Config struct {
	Port string

	DBDriver   string // postgres | sqlite
	DBURL      string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBTimezone string
	DBTracing  bool

	LogLevel  string
	LogFormat string

	JWTSecret   string
	JWTTTLHours int

	AdminUsername     string
	AdminPassword     string
	AdminPasswordHash string

	// StrictInDelete rejects deletion of IN documents whose line items
	// are already drawn on by OUT allocations.
	StrictInDelete bool
	Location       *time.Location

	// EnvFileLoaded is false when no .env file was found.
	EnvFileLoaded bool
}

// Load reads .env (if any) and then the process environment.
func Load() *Config {
	envErr := godotenv.Load()

	cfg := &Config{
		EnvFileLoaded:     envErr == nil,
		Port:              getEnv("PORT", "3000"),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBURL:             os.Getenv("DATABASE_URL"),
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		DBTimezone:        getEnv("DB_TIMEZONE", "Asia/Jakarta"),
		DBTracing:         getBool("DB_TRACING", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTTTLHours:       getInt("JWT_TTL_HOURS", 8),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		StrictInDelete:    getBool("LEDGER_STRICT_IN_DELETE", true),
	}
	cfg.Location = LoadLocation(getEnv("LEDGER_TIMEZONE", cfg.DBTimezone))
	return cfg
}

// LoadLocation falls back to UTC+7 when tz data is not available.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
