package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPPort string
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
}

type DBConfig struct {
	DSN string
}

type RedisConfig struct {
	Addrs      []string
	Password   string
	UseCluster bool
}

type JWTConfig struct {
	PrivateKeyPath string
	Issuer         string
	Audience       string
	KeyID          string
	TTL            time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	cfg := &AppConfig{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		DB: DBConfig{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addrs:      strings.Split(getEnv("REDIS_ADDRS", "localhost:6379"), ","),
			Password:   os.Getenv("REDIS_PASSWORD"),
			UseCluster: getEnvBool("REDIS_CLUSTER", false),
		},
		JWT: JWTConfig{
			PrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
			Issuer:         getEnv("JWT_ISSUER", "payauth-service"),
			Audience:       getEnv("JWT_AUDIENCE", "payauth-clients"),
			KeyID:          getEnv("JWT_KEY_ID", "payauth-key-1"),
			TTL:            getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TRANSACTIONS_TOPIC", "payauth.transactions"),
		},
		Gateway: GatewayConfig{
			BaseURL: os.Getenv("SETTLEMENT_GATEWAY_URL"),
			APIKey:  os.Getenv("SETTLEMENT_GATEWAY_KEY"),
			Timeout: getEnvDuration("SETTLEMENT_GATEWAY_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
