package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port                  string `yaml:"port"`
	AllowedOrigin         string `yaml:"allowed_origin"`
	DatabaseURL           string `yaml:"database_url"`
	AutoMigrate           bool   `yaml:"auto_migrate"`
	RedisAddr             string `yaml:"redis_addr"`
	RedisPassword         string `yaml:"redis_password"`
	RedisDB               int    `yaml:"redis_db"`
	AuthSecret            string `yaml:"auth_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	ReportCacheTTLSeconds int    `yaml:"report_cache_ttl_seconds"`
	Timezone              string `yaml:"timezone"`
	SettlementUpdateMode  string `yaml:"settlement_update_mode"`
	LockTTLSeconds        int    `yaml:"lock_ttl_seconds"`
	LogLevel              string `yaml:"log_level"`
	LogFormat             string `yaml:"log_format"`
}

func defaults() Config {
	return Config{
		Port:                  "8080",
		AllowedOrigin:         "http://127.0.0.1:3000",
		AccessTokenTTLMinutes: 480,
		ReportCacheTTLSeconds: 60,
		Timezone:              "UTC",
		SettlementUpdateMode:  "additive",
		LockTTLSeconds:        10,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.AutoMigrate = getBool("AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getInt("REDIS_DB", cfg.RedisDB, 0)
	cfg.AuthSecret = strings.TrimSpace(getEnv("AUTH_SECRET", cfg.AuthSecret))
	cfg.AccessTokenTTLMinutes = getInt("ACCESS_TOKEN_TTL_MINUTES", cfg.AccessTokenTTLMinutes, 1)
	cfg.ReportCacheTTLSeconds = getInt("REPORT_CACHE_TTL_SECONDS", cfg.ReportCacheTTLSeconds, 0)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.SettlementUpdateMode = strings.ToLower(getEnv("SETTLEMENT_UPDATE_MODE", cfg.SettlementUpdateMode))
	cfg.LockTTLSeconds = getInt("LOCK_TTL_SECONDS", cfg.LockTTLSeconds, 1)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves Timezone; an empty value means UTC.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NewLogger returns a logrus logger configured from LOG_LEVEL and LOG_FORMAT.
// An unknown level falls back to info.
func NewLogger(c Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if c.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, floor int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < floor {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
