package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Credentials carries brokerage API keys. The value is constructed once at
// startup and handed to the broker and data adapters; core logic never reads
// the environment itself.
type Credentials struct {
	APIKey    string
	APISecret string
}

// LoadCredentials reads ALPACA_API_KEY / ALPACA_SECRET_KEY, consulting a local
// .env file first when present.
func LoadCredentials() (Credentials, error) {
	_ = godotenv.Load()
	creds := Credentials{
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		APISecret: os.Getenv("ALPACA_SECRET_KEY"),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return creds, fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY must be set")
	}
	return creds, nil
}
