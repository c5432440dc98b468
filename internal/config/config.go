package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	DiscountCacheTTLSeconds int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	DefaultPartition        string
	CostMethod              domain.CostMethod
	DefaultMarkupPercent    decimal.Decimal
	DefaultVATRate          decimal.Decimal
	TelegramBotToken        string
	TelegramChatID          int64
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("DISCOUNT_CACHE_TTL_SECONDS", "300"))
	if err != nil || ttl < 1 {
		ttl = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "720"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 720
	}
	chatID, _ := strconv.ParseInt(strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")), 10, 64)

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		DiscountCacheTTLSeconds: ttl,
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
		DefaultPartition:        getEnv("DEFAULT_PARTITION", "default"),
		CostMethod:              parseCostMethod(os.Getenv("COST_METHOD")),
		DefaultMarkupPercent:    getDecimal("DEFAULT_MARKUP_PERCENT", decimal.NewFromInt(30)),
		DefaultVATRate:          getDecimal("DEFAULT_VAT_RATE", decimal.NewFromInt(20)),
		TelegramBotToken:        strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:          chatID,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// TelegramEnabled reports whether both the bot token and chat id are present.
func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func parseCostMethod(raw string) domain.CostMethod {
	if domain.CostMethod(strings.ToLower(strings.TrimSpace(raw))) == domain.CostWeighted {
		return domain.CostWeighted
	}
	return domain.CostLast
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil || value.IsNegative() {
		log.Printf("[config] WARN: ignoring invalid %s=%q", key, raw)
		return fallback
	}
	return value
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
