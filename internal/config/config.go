package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	WhatsApp  WhatsAppConfig
	Broadcast BroadcastConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// WhatsAppConfig holds every Cloud API setting the relay needs. The relay core
// receives this struct at construction; nothing reads the environment after
// startup.
type WhatsAppConfig struct {
	AccessToken        string
	PhoneNumberID      string
	WebhookVerifyToken string
	BaseURL            string
	APIVersion         string
	UseMockMode        bool
	AutoMockOnExpiry   bool
	MaxMessageLength   int
	RetentionDays      int
}

type BroadcastConfig struct {
	ChannelPrefix string
}

func LoadAll() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: mustEnv("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:        os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			PhoneNumberID:      os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			WebhookVerifyToken: mustEnv("WHATSAPP_WEBHOOK_VERIFY_TOKEN"),
			BaseURL:            getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:         getEnv("WHATSAPP_API_VERSION", "v18.0"),
			UseMockMode:        getEnvBool("WHATSAPP_USE_MOCK_MODE", true),
			AutoMockOnExpiry:   getEnvBool("WHATSAPP_AUTO_MOCK_ON_TOKEN_EXPIRY", true),
			MaxMessageLength:   getEnvInt("WHATSAPP_MAX_MESSAGE_LENGTH", 4096),
			RetentionDays:      getEnvInt("WHATSAPP_RETENTION_DAYS", 0),
		},
		Broadcast: BroadcastConfig{
			ChannelPrefix: getEnv("WHATSAPP_CHANNEL_PREFIX", "whatsapp"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.WhatsApp.MaxMessageLength <= 0 {
		return fmt.Errorf("WHATSAPP_MAX_MESSAGE_LENGTH must be > 0")
	}
	if cfg.WhatsApp.RetentionDays < 0 {
		return fmt.Errorf("WHATSAPP_RETENTION_DAYS must be >= 0")
	}
	if cfg.Broadcast.ChannelPrefix == "" {
		return fmt.Errorf("WHATSAPP_CHANNEL_PREFIX must not be empty")
	}
	return nil
}

func mustEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("missing required env var: %s", key))
	}
	return val
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("invalid int for env %s: %s", key, v))
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Sprintf("invalid bool for env %s: %s", key, v))
	}
	return b
}
