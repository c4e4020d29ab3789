package internal

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/broker"
	"github.com/vadiminshakov/tribeca/internal/services/fairvalue"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/services/params"
	"github.com/vadiminshakov/tribeca/internal/services/position"
	"github.com/vadiminshakov/tribeca/internal/services/quoter"
	"github.com/vadiminshakov/tribeca/internal/services/quotesender"
	"github.com/vadiminshakov/tribeca/internal/services/quoting"
	"github.com/vadiminshakov/tribeca/internal/services/quoting/styles"
	"github.com/vadiminshakov/tribeca/internal/services/safety"
	"github.com/vadiminshakov/tribeca/internal/services/statistics"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// Startup load limits.
const (
	initOrdersLimit       = 10000
	initTradesLimit       = 10000
	initMarketTradesLimit = 100
	initMessagesLimit     = 50
	initRegularFVLimit    = 50
)

// Transport where topics are published and received.
type Transport struct {
	Hub *messaging.Hub
	// Mirror copies trades, orders, market trades and messages to Kafka. Nil disables it.
	Mirror *messaging.KafkaMirror
}

// TradingBot one market maker: a single pair on a single exchange.
// Everything except construction runs on the event loop behind the clock.
type TradingBot struct {
	Config config.Config

	l *zap.Logger

	Messages    *broker.Messages
	Exchange    *broker.ExchangeBroker
	Orders      *broker.OrderBroker
	MarketData  *broker.MarketDataBroker
	Positions   *broker.PositionBroker
	Trades      *broker.MarketTradeBroker
	Params      *params.QuotingParametersRepository
	Active      *params.ActiveRepository
	Quoter      *quoter.Quoter
	FairValue   *fairvalue.Engine
	Safety      *safety.Calculator
	Lean        *position.Manager
	TargetBase  *position.TargetBasePositionManager
	Quoting     *quoting.Engine
	QuoteSender *quotesender.Sender
}

// NewTradingBot loads the persisted state and wires every component around gw.
// It must be called before the event loop starts or on the loop itself.
func NewTradingBot(
	ctx context.Context,
	l *zap.Logger,
	cfg config.Config,
	c clock.Clock,
	gw gateway.Gateway,
	stores Stores,
	t Transport,
) (*TradingBot, error) {
	l = l.With(zap.String("pair", cfg.Pair.String()), zap.String("exchange", cfg.Exchange.String()))
	b := &TradingBot{Config: cfg, l: l}

	var orderFilter func(domain.OrderStatusReport) bool
	if !cfg.ShowAllOrders {
		orderFilter = func(o domain.OrderStatusReport) bool { return o.Source >= domain.OrderSourceOrderTicket }
	}
	initOrders, err := stores.Orders.LoadAll(ctx, initOrdersLimit, orderFilter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load orders")
	}
	initTrades, err := stores.Trades.LoadAll(ctx, initTradesLimit, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load trades")
	}
	initMarketTrades, err := stores.MarketTrades.LoadAll(ctx, initMarketTradesLimit, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load market trades")
	}
	initMessages, err := stores.Messages.LoadAll(ctx, initMessagesLimit, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load messages")
	}
	initRfv, err := stores.RegularFV.LoadAll(ctx, initRegularFVLimit, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load regular fair values")
	}
	initParams, err := loadParams(ctx, cfg, stores.Params)
	if err != nil {
		return nil, err
	}
	savedActive, err := stores.Active.LoadLatest(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load quoting state")
	}

	advert := domain.ProductAdvertisement{
		Exchange:    gw.Details.Exchange(),
		Pair:        cfg.Pair,
		Environment: cfg.Environment(),
		MinTick:     gw.Details.MinTickIncrement(),
	}
	advertPub := messaging.NewPublisher[domain.ProductAdvertisement](t.Hub, messaging.TopicProductAdvertisement)
	advertPub.RegisterSnapshot(func() []domain.ProductAdvertisement { return []domain.ProductAdvertisement{advert} })
	advertPub.Publish(advert)

	b.Messages = broker.NewMessages(c, mirrored[domain.Message](t, messaging.TopicMessage, nil), stores.Messages, initMessages)
	b.Messages.Publish("start up")

	b.Exchange = broker.NewExchangeBroker(l, cfg.Pair, gw.MD, gw.OE, gw.Details,
		messaging.NewPublisher[domain.ConnectivityStatus](t.Hub, messaging.TopicExchangeConnectivity))

	b.Orders = broker.NewOrderBroker(l, c, b.Exchange, gw.OE, b.Messages, broker.OrderBrokerOptions{
		OrderPersister:    stores.Orders,
		TradePersister:    stores.Trades,
		OrderPublisher:    mirrored(t, messaging.TopicOrderStatusReports, func(o domain.OrderStatusReport) string { return o.OrderID }),
		TradePublisher:    mirrored(t, messaging.TopicTrades, func(tr domain.Trade) string { return tr.TradeID }),
		SubmitReceiver:    messaging.NewReceiver[domain.OrderRequestFromUI](t.Hub, messaging.TopicSubmitNewOrder),
		CancelReceiver:    messaging.NewReceiver[domain.CancelOrderRequest](t.Hub, messaging.TopicCancelOrder),
		CancelAllReceiver: messaging.NewReceiver[domain.CancelAllOrdersRequest](t.Hub, messaging.TopicCancelAllOrders),
		InitOrders:        initOrders,
		InitTrades:        initTrades,
		PublishAllOrders:  cfg.ShowAllOrders,
	})

	b.MarketData = broker.NewMarketDataBroker(l, c, gw.MD,
		messaging.NewPublisher[domain.Market](t.Hub, messaging.TopicMarketData),
		stores.MarketData, b.Messages)

	b.Positions = broker.NewPositionBroker(l, c, b.Exchange, gw.Pos,
		messaging.NewPublisher[domain.PositionReport](t.Hub, messaging.TopicPosition),
		stores.Positions, b.MarketData)

	b.Params = params.NewQuotingParametersRepository(l,
		messaging.NewPublisher[domain.QuotingParameters](t.Hub, messaging.TopicQuotingParametersChange),
		messaging.NewReceiver[domain.QuotingParameters](t.Hub, messaging.TopicQuotingParametersChange),
		stores.Params, initParams)

	b.Safety = safety.NewCalculator(l, c, b.Params, b.Orders,
		messaging.NewPublisher[domain.TradeSafety](t.Hub, messaging.TopicTradeSafetyValue),
		stores.TradeSafety)

	startQuoting := params.ShouldStartQuoting(savedActive, c.Now(), cfg.StartActive)
	b.Active = params.NewActiveRepository(l, c, startQuoting, b.Exchange,
		messaging.NewPublisher[bool](t.Hub, messaging.TopicActiveChange),
		messaging.NewReceiver[bool](t.Hub, messaging.TopicActiveChange),
		stores.Active)

	b.Quoter = quoter.New(l, b.Orders, b.Exchange)
	filtration := fairvalue.NewMarketFiltration(b.Exchange, clock.NewScheduler(c), b.Quoter, b.MarketData)
	b.FairValue = fairvalue.NewEngine(l, c, b.Exchange, filtration, b.Params,
		messaging.NewPublisher[domain.FairValue](t.Hub, messaging.TopicFairValue),
		stores.FairValue)
	quotingEwma := statistics.NewObservableEWMA(l, c, b.FairValue, initParams.QuotingEwma)

	rfvValues := make([]float64, 0, len(initRfv))
	for _, r := range initRfv {
		rfvValues = append(rfvValues, r.Value)
	}
	shortEwma := statistics.NewEwmaCalculator(initParams.ShortEwma)
	shortEwma.Initialize(rfvValues)
	longEwma := statistics.NewEwmaCalculator(initParams.LongEwma)
	longEwma.Initialize(rfvValues)

	b.Lean = position.NewManager(l, c, b.Exchange, stores.RegularFV, b.FairValue, initRfv, shortEwma, longEwma)
	b.TargetBase = position.NewTargetBasePositionManager(l, c, b.Lean, b.Params, b.Positions,
		messaging.NewPublisher[domain.TargetBasePositionValue](t.Hub, messaging.TopicTargetBasePosition),
		stores.TargetBase)

	b.Quoting = quoting.NewEngine(l, c, quoting.Inputs{
		Registry:       styles.NewRegistry(styles.All()...),
		FilteredMarket: filtration,
		FairValue:      b.FairValue,
		Params:         b.Params,
		Publisher:      messaging.NewPublisher[domain.TwoSidedQuote](t.Hub, messaging.TopicQuote),
		Trades:         b.Orders,
		Positions:      b.Positions,
		Details:        b.Exchange,
		Ewma:           quotingEwma,
		TargetPosition: b.TargetBase,
		Safety:         b.Safety,
	})

	b.QuoteSender = quotesender.New(l, c, b.Quoting, b.Quoter, b.Active, b.Positions, b.Exchange,
		messaging.NewPublisher[domain.TwoSidedQuoteStatus](t.Hub, messaging.TopicQuoteStatus))

	b.Trades = broker.NewMarketTradeBroker(l, gw.MD, b.Exchange, b.MarketData, b.Quoting,
		mirrored[domain.MarketTrade](t, messaging.TopicMarketTrade, nil),
		stores.MarketTrades, initMarketTrades)

	l.Info("trading bot wired",
		zap.Bool("startQuoting", startQuoting),
		zap.Stringer("mode", initParams.Mode),
		zap.Int("orders", len(initOrders)),
		zap.Int("trades", len(initTrades)))

	return b, nil
}

// ExitHook persists the quoting switch, stops quoting and cancels every open order.
// Must run on the event loop.
func (b *TradingBot) ExitHook(ctx context.Context) *broker.CancelAll {
	b.l.Info("running exit hook", zap.Bool("savedActive", b.Active.SavedQuotingMode()))
	b.Active.Persist()
	b.Active.Halt()
	b.Lean.Stop()
	return b.Orders.CancelOpenOrders(ctx)
}

func loadParams(ctx context.Context, cfg config.Config, repo storage.Repository[domain.QuotingParameters]) (domain.QuotingParameters, error) {
	if id := strings.TrimSpace(cfg.ParamsID); id != "" {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return domain.QuotingParameters{}, errors.Wrapf(err, "incorrect %s param in config", config.KeyParamsID)
		}
		p, err := repo.FindByID(ctx, n)
		if err != nil {
			return domain.QuotingParameters{}, errors.Wrapf(err, "failed to load quoting parameters %d", n)
		}
		return p, nil
	}

	p, err := repo.LoadLatest(ctx)
	if err != nil {
		return domain.QuotingParameters{}, errors.Wrap(err, "failed to load quoting parameters")
	}
	return p, nil
}

func mirrored[T any](t Transport, topic string, key func(T) string) messaging.Publisher[T] {
	p := messaging.NewPublisher[T](t.Hub, topic)
	if t.Mirror == nil {
		return p
	}
	return messaging.Tee[T]{p, messaging.NewKafkaPublisher(t.Mirror, topic, key)}
}
