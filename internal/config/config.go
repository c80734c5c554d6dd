package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	HTTP_PORT string `env:"HTTP_PORT"`
	DB_STRING string `env:"DB_STRING"`

	KAFKA_BROKERS  string `env:"KAFKA_BROKERS"`
	KAFKA_TOPIC    string `env:"KAFKA_TOPIC"`
	KAFKA_GROUP_ID string `env:"KAFKA_GROUP_ID"`

	VENDOR_BASE_URL    string `env:"VENDOR_BASE_URL"`
	VENDOR_PHONE       string `env:"VENDOR_PHONE"`
	VENDOR_PASSWORD    string `env:"VENDOR_PASSWORD"`
	VENDOR_SIGN_SECRET string `env:"VENDOR_SIGN_SECRET"`

	WEBHOOK_HMAC_SECRET string `env:"WEBHOOK_HMAC_SECRET"`
	ENCRYPTION_KEY      string `env:"ENCRYPTION_KEY"`

	WORKER_CONCURRENCY  int `env:"WORKER_CONCURRENCY"`
	WORKER_MAX_ATTEMPTS int `env:"WORKER_MAX_ATTEMPTS"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTP_PORT:           os.Getenv("HTTP_PORT"),
		DB_STRING:           os.Getenv("DB_STRING"),
		KAFKA_BROKERS:       os.Getenv("KAFKA_BROKERS"),
		KAFKA_TOPIC:         os.Getenv("KAFKA_TOPIC"),
		KAFKA_GROUP_ID:      os.Getenv("KAFKA_GROUP_ID"),
		VENDOR_BASE_URL:     os.Getenv("VENDOR_BASE_URL"),
		VENDOR_PHONE:        os.Getenv("VENDOR_PHONE"),
		VENDOR_PASSWORD:     os.Getenv("VENDOR_PASSWORD"),
		VENDOR_SIGN_SECRET:  os.Getenv("VENDOR_SIGN_SECRET"),
		WEBHOOK_HMAC_SECRET: os.Getenv("WEBHOOK_HMAC_SECRET"),
		ENCRYPTION_KEY:      os.Getenv("ENCRYPTION_KEY"),
		WORKER_CONCURRENCY:  intEnv("WORKER_CONCURRENCY", 4),
		WORKER_MAX_ATTEMPTS: intEnv("WORKER_MAX_ATTEMPTS", 5),
	}

	if cfg.HTTP_PORT == "" {
		cfg.HTTP_PORT = "8080"
	}
	if cfg.KAFKA_TOPIC == "" {
		cfg.KAFKA_TOPIC = "esim-provisioning"
	}
	if cfg.KAFKA_GROUP_ID == "" {
		cfg.KAFKA_GROUP_ID = "esim-fulfillment"
	}

	// Без секретов стартовать нельзя — падаем сразу, а не на первом запросе.
	required := map[string]string{
		"DB_STRING":           cfg.DB_STRING,
		"KAFKA_BROKERS":       cfg.KAFKA_BROKERS,
		"VENDOR_BASE_URL":     cfg.VENDOR_BASE_URL,
		"VENDOR_PHONE":        cfg.VENDOR_PHONE,
		"VENDOR_PASSWORD":     cfg.VENDOR_PASSWORD,
		"VENDOR_SIGN_SECRET":  cfg.VENDOR_SIGN_SECRET,
		"WEBHOOK_HMAC_SECRET": cfg.WEBHOOK_HMAC_SECRET,
		"ENCRYPTION_KEY":      cfg.ENCRYPTION_KEY,
	}
	for name, v := range required {
		if v == "" {
			return nil, fmt.Errorf("config: %s is required", name)
		}
	}

	return cfg, nil
}

func intEnv(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
