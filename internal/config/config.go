package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is assembled from environment variables. Gateway credentials have no
// defaults and must be present; everything else falls back to local-dev values.
type Config struct {
	HTTPAddr       string
	MySQLDSN       string
	MigrationsPath string
	RedisAddr      string
	WorkerCount    int
	EventQueueSize int

	Gateway GatewayConfig
}

// GatewayConfig holds the ZaloPay-style gateway credentials. key1 signs
// outbound payment orders, key2 authenticates inbound callbacks.
type GatewayConfig struct {
	AppID       int
	Key1        string
	Key2        string
	Endpoint    string
	RedirectURL string
	CallbackURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		MySQLDSN:       getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
	}

	var err error
	if cfg.WorkerCount, err = getEnvInt("NOTIFY_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.EventQueueSize, err = getEnvInt("EVENT_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}

	appID := os.Getenv("GATEWAY_APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("config: GATEWAY_APP_ID must be specified")
	}
	cfg.Gateway.AppID, err = strconv.Atoi(appID)
	if err != nil {
		return nil, fmt.Errorf("config: invalid GATEWAY_APP_ID %q: %w", appID, err)
	}

	for _, req := range []struct {
		name string
		dst  *string
	}{
		{"GATEWAY_KEY1", &cfg.Gateway.Key1},
		{"GATEWAY_KEY2", &cfg.Gateway.Key2},
		{"GATEWAY_ENDPOINT", &cfg.Gateway.Endpoint},
		{"GATEWAY_REDIRECT_URL", &cfg.Gateway.RedirectURL},
		{"GATEWAY_CALLBACK_URL", &cfg.Gateway.CallbackURL},
	} {
		*req.dst = os.Getenv(req.name)
		if *req.dst == "" {
			return nil, fmt.Errorf("config: %s must be specified", req.name)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
