// Command hotdog serves the HotDog page: a Sign up button that connects the
// visitor's injected wallet and shows its ETH balance, next to a dog viewer.
//
// Usage:
//
//	hotdog [--config config.yaml] serve    (default)
//	hotdog --rpc-url http://localhost:8545 connect
//	hotdog setup
//
// Settings can also come from HOTDOG_* environment variables or a .env file.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/hotdog/config"
	"github.com/vadiminshakov/hotdog/internal"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := internal.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := internal.NewApp(cfg, logger, os.Stdout)
	if err := app.Run(ctx); err != nil {
		logger.Error("hotdog stopped", zap.String("command", cfg.Command), zap.Error(err))
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
