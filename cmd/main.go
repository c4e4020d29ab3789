// Command tribeca runs a market making bot for a single pair on a single exchange.
// Settings come from a YAML file that environment variables override.
//
// Usage:
//
//	tribeca -config tribeca.yaml
//	tribeca -setup (interactive wizard, then start)
//
// Exchange credentials:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET (optional, paper trading)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal"
	"github.com/vadiminshakov/tribeca/internal/setup"
)

func main() {
	flags, cfg, err := config.Get(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
		p, err := config.NewProvider(flags.ConfigPath)
		if err != nil {
			log.Fatal(err)
		}
		if cfg, err = config.Load(p); err != nil {
			log.Fatal(err)
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting tribeca",
		zap.String("exchange", cfg.Exchange.String()),
		zap.String("pair", cfg.Pair.String()),
		zap.String("environment", cfg.Environment()))

	if err := internal.Run(ctx, logger, cfg); err != nil {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("bot stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Mode == config.ModeDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
