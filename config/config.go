package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	BinanceAPIKey    string
	BinanceSecretKey string
	UseTestnet       bool
	UseEmulator      bool
	EmulatorBalance  float64
	Port             string
	TelegramToken    string
	AuthorizedUserID int64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	emulatorBalance := 5000.0
	if v := os.Getenv("EMULATOR_BALANCE"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			emulatorBalance = val
		}
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	var userID int64
	if token != "" {
		id, err := strconv.ParseInt(os.Getenv("AUTHORIZED_USER_ID"), 10, 64)
		if err != nil {
			log.Fatal("Invalid AUTHORIZED_USER_ID")
		}
		userID = id
	}

	return &Config{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		UseTestnet:       os.Getenv("USE_TESTNET") == "true",
		UseEmulator:      os.Getenv("USE_EMULATOR") == "true",
		EmulatorBalance:  emulatorBalance,
		Port:             port,
		TelegramToken:    token,
		AuthorizedUserID: userID,
	}
}
