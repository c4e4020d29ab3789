package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
)

var testPair = domain.CurrencyPair{Base: "BTC", Quote: "USD"}

func newTestNull(t *testing.T, fillProb float64) (*clock.Manual, Gateway, *[]domain.OrderStatusUpdate) {
	t.Helper()

	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	gw := NewNull(zap.NewNop(), c, testPair, NullOptions{MinTick: 0.01, FillProbability: fillProb, Seed: 42})

	var updates []domain.OrderStatusUpdate
	gw.OE.OrderUpdate().On(func(u domain.OrderStatusUpdate) {
		if u.OrderStatus != nil {
			updates = append(updates, u)
		}
	})
	return c, gw, &updates
}

func testOrder(id string, c clock.Clock) domain.OrderStatusReport {
	return domain.OrderStatusReport{
		OrderID:     id,
		Side:        domain.SideBid,
		Price:       999.5,
		Quantity:    0.5,
		TimeInForce: domain.TimeInForceGTC,
		Time:        c.Now(),
	}
}

func TestNull_AckAndFill(t *testing.T) {
	c, gw, updates := newTestNull(t, 1)

	gw.OE.SendOrder(testOrder("A", c))
	c.Advance(10 * time.Millisecond)

	require.Len(t, *updates, 1)
	ack := (*updates)[0]
	assert.Equal(t, domain.OrderStatusWorking, *ack.OrderStatus)
	assert.Equal(t, "null-A", ack.ExchangeID)
	assert.Equal(t, 0.5, *ack.LeavesQuantity)

	c.Advance(time.Second)

	require.Len(t, *updates, 2)
	fill := (*updates)[1]
	assert.Equal(t, domain.OrderStatusComplete, *fill.OrderStatus)
	assert.Equal(t, 0.5, *fill.LastQuantity)
	assert.Equal(t, 999.5, *fill.LastPrice)
	require.NotNil(t, fill.Liquidity)
}

func TestNull_NoFill(t *testing.T) {
	c, gw, updates := newTestNull(t, 0)

	gw.OE.SendOrder(testOrder("A", c))
	c.Advance(5 * time.Second)

	require.Len(t, *updates, 1)
	assert.Equal(t, domain.OrderStatusWorking, *(*updates)[0].OrderStatus)
}

func TestNull_RejectsIOC(t *testing.T) {
	c, gw, updates := newTestNull(t, 1)

	o := testOrder("A", c)
	o.TimeInForce = domain.TimeInForceIOC
	gw.OE.SendOrder(o)
	c.Advance(time.Second)

	require.Len(t, *updates, 1)
	assert.Equal(t, domain.OrderStatusRejected, *(*updates)[0].OrderStatus)
	assert.Equal(t, "cannot send IOCs", (*updates)[0].RejectMessage)
}

func TestNull_Cancel(t *testing.T) {
	c, gw, updates := newTestNull(t, 0)

	gw.OE.CancelOrder(testOrder("A", c))
	c.Advance(10 * time.Millisecond)

	require.Len(t, *updates, 1)
	assert.Equal(t, domain.OrderStatusCancelled, *(*updates)[0].OrderStatus)
}

func TestNull_LatencyIsReportedSynchronously(t *testing.T) {
	c, gw, _ := newTestNull(t, 0)

	var latency []domain.OrderStatusUpdate
	gw.OE.OrderUpdate().On(func(u domain.OrderStatusUpdate) {
		if u.OrderStatus == nil {
			latency = append(latency, u)
		}
	})

	gw.OE.SendOrder(testOrder("A", c))
	require.Len(t, latency, 1)
	assert.Equal(t, "A", latency[0].OrderID)
}

func TestNull_ConnectsAndStreams(t *testing.T) {
	c, gw, _ := newTestNull(t, 0)

	var (
		mdStatus  []domain.ConnectivityStatus
		oeStatus  []domain.ConnectivityStatus
		markets   []domain.Market
		positions []domain.CurrencyPosition
		trades    []domain.GatewayMarketTrade
	)
	gw.MD.ConnectChanged().On(func(s domain.ConnectivityStatus) { mdStatus = append(mdStatus, s) })
	gw.OE.ConnectChanged().On(func(s domain.ConnectivityStatus) { oeStatus = append(oeStatus, s) })
	gw.MD.MarketData().On(func(m domain.Market) { markets = append(markets, m) })
	gw.MD.MarketTrade().On(func(tr domain.GatewayMarketTrade) { trades = append(trades, tr) })
	gw.Pos.PositionUpdate().On(func(p domain.CurrencyPosition) { positions = append(positions, p) })

	c.Advance(400 * time.Millisecond)
	assert.Empty(t, mdStatus)

	c.Advance(100 * time.Millisecond)
	assert.Equal(t, []domain.ConnectivityStatus{domain.Connected}, mdStatus)
	assert.Equal(t, []domain.ConnectivityStatus{domain.Connected}, oeStatus)

	c.Advance(500 * time.Millisecond)
	require.Len(t, markets, 1)
	m := markets[0]
	require.Len(t, m.Bids, nullDepth)
	require.Len(t, m.Asks, nullDepth)
	for i := 1; i < nullDepth; i++ {
		assert.GreaterOrEqual(t, m.Bids[i-1].Price, m.Bids[i].Price)
		assert.LessOrEqual(t, m.Asks[i-1].Price, m.Asks[i].Price)
	}
	assert.LessOrEqual(t, m.Bids[0].Price, 1000.0)
	assert.GreaterOrEqual(t, m.Asks[0].Price, 1000.0)

	c.Advance(1500 * time.Millisecond)
	require.Len(t, positions, 2)
	assert.Equal(t, domain.CurrencyPosition{Amount: 500, HeldAmount: 50, Currency: "BTC"}, positions[0])
	assert.Equal(t, domain.Currency("USD"), positions[1].Currency)

	c.Advance(15 * time.Second)
	assert.Len(t, trades, 1)
}

func TestGateway_Runners(t *testing.T) {
	c := clock.NewManual(time.Now())

	null := NewNull(zap.NewNop(), c, testPair, NullOptions{})
	assert.Empty(t, null.Runners())

	b := NewBinance(zap.NewNop(), c, binance.NewClient("", ""), testPair, BinanceOptions{MinTick: 0.01, MakeFee: 0.001})
	gw := b.AsGateway()
	require.Len(t, gw.Runners(), 1)
	assert.Equal(t, 0.01, gw.Details.MinTickIncrement())
	assert.Equal(t, 0.001, gw.Details.MakeFee())
	assert.Equal(t, domain.ExchangeBinance, gw.Details.Exchange())
	assert.True(t, gw.OE.SupportsCancelAllOpenOrders())

	paper := NewBybitPaper(zap.NewNop(), c, bybit.NewClient(), testPair, BybitOptions{})
	require.Len(t, paper.Runners(), 1)
	assert.Equal(t, domain.ExchangeBybit, paper.Details.Exchange())
}

func TestBinance_PollMarketTrades(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":10,"price":"100.50","qty":"0.25","quoteQty":"25.125","time":1704067200000,"isBuyerMaker":true,"isBestMatch":true},
			{"id":11,"price":"100.60","qty":"1.00","quoteQty":"100.6","time":1704067201000,"isBuyerMaker":false,"isBestMatch":true}
		]`))
	}))
	defer srv.Close()

	client := binance.NewClient("", "")
	client.BaseURL = srv.URL
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewBinance(zap.NewNop(), c, client, testPair, BinanceOptions{MinTick: 0.01})

	var trades []domain.GatewayMarketTrade
	b.AsGateway().MD.MarketTrade().On(func(t domain.GatewayMarketTrade) { trades = append(trades, t) })

	require.NoError(t, b.pollMarketTrades(context.Background()))
	c.Flush()

	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "/api/v3/trades")
	assert.Contains(t, paths[0], "symbol="+testPair.Symbol())
	require.Len(t, trades, 2)
	assert.Equal(t, 100.5, trades[0].Price)
	assert.Equal(t, 0.25, trades[0].Size)
	assert.Equal(t, domain.SideBid, trades[0].MakeSide)
	assert.Equal(t, domain.SideAsk, trades[1].MakeSide)
	assert.True(t, trades[0].OnStartup)

	t.Run("already seen trades are skipped", func(t *testing.T) {
		require.NoError(t, b.pollMarketTrades(context.Background()))
		c.Flush()
		assert.Len(t, trades, 2)
	})
}

func TestToMarketSides(t *testing.T) {
	type level struct{ px, sz string }
	get := func(l level) (string, string) { return l.px, l.sz }

	sides, err := toMarketSides([]level{{"100.10", "1.5"}, {"100.00", "0.25"}}, get)
	require.NoError(t, err)
	assert.Equal(t, []domain.MarketSide{{Price: 100.1, Size: 1.5}, {Price: 100, Size: 0.25}}, sides)

	_, err = toMarketSides([]level{{"abc", "1"}}, get)
	assert.Error(t, err)
}

func TestBinanceMappings(t *testing.T) {
	tests := []struct {
		in   binance.OrderStatusType
		want domain.OrderStatus
	}{
		{binance.OrderStatusTypeNew, domain.OrderStatusWorking},
		{binance.OrderStatusTypePartiallyFilled, domain.OrderStatusWorking},
		{binance.OrderStatusTypeFilled, domain.OrderStatusComplete},
		{binance.OrderStatusTypeCanceled, domain.OrderStatusCancelled},
		{binance.OrderStatusTypeExpired, domain.OrderStatusCancelled},
		{binance.OrderStatusTypeRejected, domain.OrderStatusRejected},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, fromBinanceStatus(tt.in))
		})
	}

	assert.Equal(t, binance.SideTypeBuy, toBinanceSide(domain.SideBid))
	assert.Equal(t, binance.SideTypeSell, toBinanceSide(domain.SideAsk))
	assert.Equal(t, binance.TimeInForceTypeGTC, toBinanceTimeInForce(domain.TimeInForceGTC))
	assert.Equal(t, binance.TimeInForceTypeIOC, toBinanceTimeInForce(domain.TimeInForceIOC))
	assert.Equal(t, "0.1", formatDecimal(0.1))
	assert.Equal(t, "1001.25", formatDecimal(1001.25))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("connection reset")))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(errors.Wrap(&common.APIError{Code: -2010, Message: "insufficient balance"}, "create order")))
	assert.True(t, isRetryable(&common.APIError{Code: -1003, Message: "too many requests"}))
}

func TestTickerToMarket(t *testing.T) {
	m, err := tickerToMarket("99.5", "2", "100.5", "3")
	require.NoError(t, err)
	assert.Equal(t, []domain.MarketSide{{Price: 99.5, Size: 2}}, m.Bids)
	assert.Equal(t, []domain.MarketSide{{Price: 100.5, Size: 3}}, m.Asks)

	m, err = tickerToMarket("", "", "100.5", "3")
	require.NoError(t, err)
	assert.Empty(t, m.Bids)
	assert.False(t, m.HasBothSides())

	_, err = tickerToMarket("x", "1", "100", "1")
	assert.Error(t, err)
}
