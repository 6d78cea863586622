package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	// AppURL is the public base URL used to build notify and return URLs.
	AppURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TelegramBotToken     string
	TelegramAdminChatIDs []string
	TelegramAPIURL       string

	// Credentials the billing panel presents on service routes.
	InternalSecretKey string
	ServiceJWTSecret  string
}

func LoadConfig() *Config {
	cfg := load()

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:               os.Getenv("DB_HOST"),
		DBUser:               os.Getenv("DB_USER"),
		DBPassword:           os.Getenv("DB_PASSWORD"),
		DBName:               os.Getenv("DB_NAME"),
		DBPort:               os.Getenv("DB_PORT"),
		AppPort:              os.Getenv("APP_PORT"),
		AppEnv:               os.Getenv("APP_ENV"),
		AppURL:               strings.TrimRight(os.Getenv("APP_URL"), "/"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAdminChatIDs: splitList(os.Getenv("TELEGRAM_ADMIN_CHAT_IDS")),
		TelegramAPIURL:       os.Getenv("TELEGRAM_API_URL"),
		InternalSecretKey:    os.Getenv("INTERNAL_SECRET_KEY"),
		ServiceJWTSecret:     os.Getenv("SERVICE_JWT_SECRET"),
	}

	if cfg.AppPort == "" {
		cfg.AppPort = "8080"
	}
	if cfg.TelegramAPIURL == "" {
		cfg.TelegramAPIURL = "https://api.telegram.org"
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}

	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
