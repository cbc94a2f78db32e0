package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"futures_control/config"
	"futures_control/internal/engine"
	"futures_control/internal/exchange"
	"futures_control/internal/telegram"
	"futures_control/internal/web"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("🚀 Starting Futures Control Bot...")

	cfg := config.Load()

	var exchangeClient exchange.ExchangeClient
	exchangeClient = exchange.NewFuturesClient(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.UseTestnet)
	if cfg.UseEmulator {
		log.Printf("📊 Emulator mode, starting balance %.2f USDT", cfg.EmulatorBalance)
		exchangeClient = exchange.NewEmulatorClient(cfg.EmulatorBalance, exchangeClient)
	}

	controlEngine := engine.NewEngine(exchangeClient)

	// Telegram is optional; without a token the bot runs panel-only.
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.AuthorizedUserID, controlEngine)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
		controlEngine.SetCallbacks(
			bot.SendPositionOpen,
			bot.SendAdd,
			bot.SendPositionClosed,
		)
		go bot.Start()
	} else {
		log.Println("📱 TELEGRAM_BOT_TOKEN not set, running without Telegram")
	}

	webServer := web.NewServer(controlEngine, cfg.Port)
	webServer.Start()

	log.Println("✅ All systems initialized")
	log.Printf("🌐 Control panel: http://localhost:%s\n", cfg.Port)

	// Positions stay on the exchange across restarts; protective stops keep
	// working server-side, so shutdown closes nothing.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down...")
	log.Println("👋 Goodbye!")
}
