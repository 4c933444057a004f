package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	JWTSecret   string
	CORSOrigins []string

	DBDriver   string
	DBDSN      string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	CompanyName     string
	CompanyCurrency string

	// EnforceStockOnDelivery rejects outgoing deliveries that would drive
	// on-hand quantity below zero.
	EnforceStockOnDelivery bool

	Replication ReplicationConfig
}

// ReplicationConfig configures the push of snapshots to the remote authority.
type ReplicationConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	Debounce      time.Duration
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
}

// Enabled reports whether a remote authority is configured.
func (r ReplicationConfig) Enabled() bool {
	return r.RedisAddr != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("COMPANY_NAME", "My Company")
	v.SetDefault("COMPANY_CURRENCY", "MAD")
	v.SetDefault("ENFORCE_STOCK_ON_DELIVERY", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REPLICATION_KEY_PREFIX", "bizledger")
	v.SetDefault("REPLICATION_DEBOUNCE", "2s")
	v.SetDefault("REPLICATION_TIMEOUT", "10s")
	v.SetDefault("REPLICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("REPLICATION_BACKOFF", "500ms")
}

// Load reads configs/.env when present, then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		// A missing file is fine: the environment alone may be enough.
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Port:                   v.GetString("PORT"),
		GinMode:                v.GetString("GIN_MODE"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		CORSOrigins:            splitList(v.GetString("CORS_ORIGINS")),
		DBDriver:               v.GetString("DB_DRIVER"),
		DBDSN:                  v.GetString("DB_DSN"),
		DBHost:                 v.GetString("DB_HOST"),
		DBPort:                 v.GetString("DB_PORT"),
		DBUser:                 v.GetString("DB_USER"),
		DBPassword:             v.GetString("DB_PASSWORD"),
		DBName:                 v.GetString("DB_NAME"),
		DBSSLMode:              v.GetString("DB_SSLMODE"),
		CompanyName:            v.GetString("COMPANY_NAME"),
		CompanyCurrency:        v.GetString("COMPANY_CURRENCY"),
		EnforceStockOnDelivery: v.GetBool("ENFORCE_STOCK_ON_DELIVERY"),
		Replication: ReplicationConfig{
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			KeyPrefix:     v.GetString("REPLICATION_KEY_PREFIX"),
			Debounce:      v.GetDuration("REPLICATION_DEBOUNCE"),
			Timeout:       v.GetDuration("REPLICATION_TIMEOUT"),
			MaxAttempts:   v.GetInt("REPLICATION_MAX_ATTEMPTS"),
			Backoff:       v.GetDuration("REPLICATION_BACKOFF"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.GinMode == "release" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in release mode")
	}
	if c.Replication.MaxAttempts < 1 {
		return errors.New("REPLICATION_MAX_ATTEMPTS must be at least 1")
	}
	if c.Replication.Timeout <= 0 {
		return errors.New("REPLICATION_TIMEOUT must be positive")
	}
	return nil
}

// DSN returns DB_DSN verbatim or builds a postgres URL from the DB_* parts.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Secret returns the JWT signing secret, with a development fallback.
func (c Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte("default_super_secret_key") // development only
	}
	return []byte(c.JWTSecret)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
