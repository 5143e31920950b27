/*
config.go - Environment configuration

PURPOSE:
  Loads configuration from a .env file (development convenience, absent
  in production) and the process environment. Command-line flags in
  main.go override these values.

VARIABLES:
  ENV            development | production (default development)
  PORT           HTTP port (default 8080)
  LOG_LEVEL      debug | info | warn | error (default info)
  DATABASE_PATH  SQLite file, ":memory:" allowed (default cycles.db)
  POINT_VALUE    currency units per point (default 0.10)
*/
package main

import (
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type config struct {
	Env          string
	Port         int
	LogLevel     string
	DatabasePath string
	PointValue   decimal.Decimal
}

func newConfig() *config {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	return &config{
		Env:          getEnv("ENV", "development"),
		Port:         getEnvInt("PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "cycles.db"),
		PointValue:   getEnvDecimal("POINT_VALUE", decimal.RequireFromString("0.10")),
	}
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return fallback
}
