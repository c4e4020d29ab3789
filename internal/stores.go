package internal

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// Stores every persisted collection of the bot.
type Stores struct {
	Orders       storage.Persister[domain.OrderStatusReport]
	Trades       storage.Persister[domain.Trade]
	FairValue    storage.Persister[domain.FairValue]
	MarketTrades storage.Persister[domain.MarketTrade]
	Positions    storage.Persister[domain.PositionReport]
	Messages     storage.Persister[domain.Message]
	RegularFV    storage.Persister[domain.RegularFairValue]
	TargetBase   storage.Persister[domain.TargetBasePositionValue]
	TradeSafety  storage.Persister[domain.TradeSafety]
	MarketData   storage.Persister[domain.Market]
	Active       storage.Repository[domain.SerializedQuotesActive]
	Params       storage.Repository[domain.QuotingParameters]
}

// NewMemoryStores keeps everything in process. params seeds the parameters default.
func NewMemoryStores(params domain.QuotingParameters) Stores {
	return Stores{
		Orders:       storage.NewMemoryStore(domain.OrderStatusReport{}),
		Trades:       storage.NewMemoryStore(domain.Trade{}),
		FairValue:    storage.NewMemoryStore(domain.FairValue{}),
		MarketTrades: storage.NewMemoryStore(domain.MarketTrade{}),
		Positions:    storage.NewMemoryStore(domain.PositionReport{}),
		Messages:     storage.NewMemoryStore(domain.Message{}),
		RegularFV:    storage.NewMemoryStore(domain.RegularFairValue{}),
		TargetBase:   storage.NewMemoryStore(domain.TargetBasePositionValue{}),
		TradeSafety:  storage.NewMemoryStore(domain.TradeSafety{}),
		MarketData:   storage.NewMemoryStore(domain.Market{}),
		Active:       storage.NewMemoryStore(domain.SerializedQuotesActive{}),
		Params:       storage.NewMemoryStore(params),
	}
}

type walCollection interface {
	storage.RawLoader
	Run(ctx context.Context) error
	Close() error
}

// WALStores Stores backed by one write-ahead log per collection.
type WALStores struct {
	Stores

	byTopic     map[string]storage.RawLoader
	collections []walCollection
}

// OpenWALStores opens (or creates) every collection under dir.
func OpenWALStores(l *zap.Logger, dir string, params domain.QuotingParameters) (*WALStores, error) {
	w := &WALStores{byTopic: make(map[string]storage.RawLoader)}

	var err error
	w.Orders, err = openWAL(w, l, dir, storage.CollectionOrders, messaging.TopicOrderStatusReports, domain.OrderStatusReport{})
	if err == nil {
		w.Trades, err = openWAL(w, l, dir, storage.CollectionTrades, messaging.TopicTrades, domain.Trade{})
	}
	if err == nil {
		w.FairValue, err = openWAL(w, l, dir, storage.CollectionFairValue, messaging.TopicFairValue, domain.FairValue{})
	}
	if err == nil {
		w.MarketTrades, err = openWAL(w, l, dir, storage.CollectionMarketTrades, messaging.TopicMarketTrade, domain.MarketTrade{})
	}
	if err == nil {
		w.Positions, err = openWAL(w, l, dir, storage.CollectionPositions, messaging.TopicPosition, domain.PositionReport{})
	}
	if err == nil {
		w.Messages, err = openWAL(w, l, dir, storage.CollectionMessages, messaging.TopicMessage, domain.Message{})
	}
	if err == nil {
		w.RegularFV, err = openWAL(w, l, dir, storage.CollectionRegularFairValue, "", domain.RegularFairValue{})
	}
	if err == nil {
		w.TargetBase, err = openWAL(w, l, dir, storage.CollectionTargetBase, messaging.TopicTargetBasePosition, domain.TargetBasePositionValue{})
	}
	if err == nil {
		w.TradeSafety, err = openWAL(w, l, dir, storage.CollectionTradeSafety, messaging.TopicTradeSafetyValue, domain.TradeSafety{})
	}
	if err == nil {
		w.MarketData, err = openWAL(w, l, dir, storage.CollectionMarketData, messaging.TopicMarketData, domain.Market{})
	}
	if err == nil {
		w.Active, err = openWAL(w, l, dir, storage.CollectionActive, "", domain.SerializedQuotesActive{})
	}
	if err == nil {
		w.Params, err = openWAL(w, l, dir, storage.CollectionQuotingParameters, "", params)
	}
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	return w, nil
}

func openWAL[T any](w *WALStores, l *zap.Logger, dir, collection, topic string, def T) (*storage.WALStore[T], error) {
	s, err := storage.NewWALStore(l, dir, collection, def)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s collection", collection)
	}
	w.collections = append(w.collections, s)
	if topic != "" {
		w.byTopic[topic] = s
	}
	return s, nil
}

// Data persisted rows by topic, served on /data/{topic}.
func (w *WALStores) Data() map[string]storage.RawLoader { return w.byTopic }

// Runners periodic flushers of every collection.
func (w *WALStores) Runners() []func(ctx context.Context) error {
	out := make([]func(ctx context.Context) error, 0, len(w.collections))
	for _, c := range w.collections {
		out = append(out, c.Run)
	}
	return out
}

// Close flushes and closes every collection.
func (w *WALStores) Close() error {
	var first error
	for _, c := range w.collections {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
