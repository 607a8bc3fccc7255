// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса кошелька.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	PagBankAddress string `env:"PAGBANK_ADDRESS"`
	PagBankToken   string `env:"PAGBANK_TOKEN"`
	WebhookURL     string `env:"WEBHOOK_URL"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	PushAddress    string `env:"PUSH_ADDRESS"`
	PushAPIKey     string `env:"PUSH_API_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Значения из окружения имеют приоритет; секреты задаются только
// через окружение.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPagBankAddress := cfg.PagBankAddress
	envPushAddress := cfg.PushAddress
	envWebhookURL := cfg.WebhookURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PagBankAddress, "p", "", "PagBank API address")
	flag.StringVar(&cfg.PushAddress, "n", "", "push notification provider address")
	flag.StringVar(&cfg.WebhookURL, "w", "", "public URL of the PagBank webhook endpoint")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPagBankAddress != "" {
		cfg.PagBankAddress = envPagBankAddress
	}
	if envPushAddress != "" {
		cfg.PushAddress = envPushAddress
	}
	if envWebhookURL != "" {
		cfg.WebhookURL = envWebhookURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI is required")
	}

	return cfg, nil
}
