// Package clients builds exchange SDK clients and the gateway selected in the config.
package clients

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
)

// ErrUnsupportedExchange is returned for exchanges without a gateway.
var ErrUnsupportedExchange = errors.New("unsupported exchange")

const (
	binanceMakeFee = 0.001
	binanceTakeFee = 0.001

	paperFillProbability = 0.1
)

// NewGateway creates the gateway for cfg.Exchange. Binance needs API keys.
func NewGateway(l *zap.Logger, c clock.Clock, cfg config.Config) (gateway.Gateway, error) {
	switch cfg.Exchange {
	case domain.ExchangeNull:
		return gateway.NewNull(l, c, cfg.Pair, gateway.NullOptions{
			MinTick:         cfg.NullGatewayTick,
			FillProbability: paperFillProbability,
			Seed:            time.Now().UnixNano(),
		}), nil
	case domain.ExchangeBinance:
		if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
			return gateway.Gateway{}, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		}
		client := NewBinanceClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
		return gateway.NewBinance(l, c, client, cfg.Pair, gateway.BinanceOptions{
			MinTick:      cfg.MinTick,
			MakeFee:      binanceMakeFee,
			TakeFee:      binanceTakeFee,
			PollInterval: cfg.BinancePollInterval,
		}).AsGateway(), nil
	case domain.ExchangeBybit:
		client := NewBybitClient(cfg.BybitAPIKey, cfg.BybitAPISecret)
		return gateway.NewBybitPaper(l, c, client, cfg.Pair, gateway.BybitOptions{
			MinTick:         cfg.MinTick,
			PollInterval:    cfg.BinancePollInterval,
			FillProbability: paperFillProbability,
		}), nil
	default:
		return gateway.Gateway{}, errors.Wrap(ErrUnsupportedExchange, cfg.Exchange.String())
	}
}
