package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// Payment rails
	Card   CardConfig
	Wallet WalletConfig
}

// CardConfig holds the card rail's API configuration
type CardConfig struct {
	BaseURL   string
	SecretKey string
}

// WalletConfig holds the wallet rail's API configuration
type WalletConfig struct {
	BaseURL         string
	TokenURL        string
	ClientID        string
	ClientSecret    string
	SubscriptionKey string
	MerchantSerial  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:         getEnv("ENV", "development"),
		Card: CardConfig{
			BaseURL:   getEnv("CARD_API_BASE_URL", "https://api.stripe.com"),
			SecretKey: getEnv("CARD_API_SECRET_KEY", ""),
		},
		Wallet: WalletConfig{
			BaseURL:         getEnv("WALLET_API_BASE_URL", "https://api.vipps.no"),
			TokenURL:        getEnv("WALLET_TOKEN_URL", "https://api.vipps.no/accesstoken/get"),
			ClientID:        getEnv("WALLET_CLIENT_ID", ""),
			ClientSecret:    getEnv("WALLET_CLIENT_SECRET", ""),
			SubscriptionKey: getEnv("WALLET_SUBSCRIPTION_KEY", ""),
			MerchantSerial:  getEnv("WALLET_MERCHANT_SERIAL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Card.SecretKey == "" {
		return fmt.Errorf("CARD_API_SECRET_KEY is required")
	}
	if c.Wallet.ClientID == "" {
		return fmt.Errorf("WALLET_CLIENT_ID is required")
	}
	if c.Wallet.ClientSecret == "" {
		return fmt.Errorf("WALLET_CLIENT_SECRET is required")
	}
	if c.Wallet.SubscriptionKey == "" {
		return fmt.Errorf("WALLET_SUBSCRIPTION_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
