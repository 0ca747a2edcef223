// Package config loads the settings every service shares.
package config

import (
	"errors"
	"os"
	"strings"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig
}

// IsProduction reports whether in-memory fallbacks must be refused.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		Env:         strings.TrimSpace(os.Getenv("APP_ENV")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	return cfg, nil
}
