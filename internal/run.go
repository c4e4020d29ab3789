package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal/clients"
	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/broker"
	"github.com/vadiminshakov/tribeca/internal/web"
)

const (
	hubClientBuffer = 256
	exitHookTimeout = 5 * time.Second
)

// Run starts the bot described by cfg and blocks until ctx is done or a component fails.
// On the way out the exit hook runs while the gateway is still connected.
func Run(ctx context.Context, l *zap.Logger, cfg config.Config) error {
	loop := clock.NewLoop(l)
	hub := messaging.NewHub(l, loop, hubClientBuffer)
	defer hub.Close()

	stores, err := OpenWALStores(l, cfg.WALDir, cfg.Quoting)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			l.Error("failed to close stores", zap.Error(err))
		}
	}()

	var mirror *messaging.KafkaMirror
	if len(cfg.KafkaBrokers) > 0 {
		mirror = messaging.NewKafkaMirror(l, cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		defer func() {
			if err := mirror.Close(); err != nil {
				l.Warn("failed to close kafka mirror", zap.Error(err))
			}
		}()
	}

	gw, err := clients.NewGateway(l, loop, cfg)
	if err != nil {
		return err
	}

	bot, err := NewTradingBot(ctx, l, cfg, loop, gw, stores.Stores, Transport{Hub: hub, Mirror: mirror})
	if err != nil {
		return errors.Wrap(err, "failed to create trading bot")
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	var loopErr error
	loopStopped := make(chan struct{})
	go func() {
		loopErr = loop.Run(loopCtx)
		close(loopStopped)
	}()

	runCtx, stopRunners := context.WithCancel(context.Background())
	defer stopRunners()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		select {
		case <-loopStopped:
			return errors.Wrap(loopErr, "event loop stopped")
		case <-gctx.Done():
			return nil
		}
	})

	server := web.NewServer(l, cfg.WebListenAddr, hub, stores.Data())
	g.Go(func() error {
		if len(cfg.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.TLSDomains, cfg.TLSCacheDir)
		}
		return server.Start(gctx)
	})

	for _, r := range gw.Runners() {
		g.Go(func() error { return r.Run(gctx) })
	}
	for _, run := range stores.Runners() {
		g.Go(func() error { return run(gctx) })
	}

	select {
	case <-ctx.Done():
		l.Info("shutdown requested")
	case <-gctx.Done():
		l.Error("component failed, shutting down")
	}

	runExitHook(l, loop, bot)

	stopRunners()
	err = g.Wait()

	stopLoop()
	<-loopStopped

	return err
}

func runExitHook(l *zap.Logger, loop *clock.Loop, bot *TradingBot) {
	ctx, cancel := context.WithTimeout(context.Background(), exitHookTimeout)
	defer cancel()

	var h *broker.CancelAll
	if err := loop.Call(ctx, func() { h = bot.ExitHook(ctx) }); err != nil {
		l.Error("exit hook did not run", zap.Error(err))
		return
	}

	n, err := h.Wait(ctx)
	if err != nil {
		l.Warn("not every open order was cancelled", zap.Int("cancelled", n), zap.Error(err))
		return
	}
	l.Info("cancelled open orders", zap.Int("cancelled", n))
}
