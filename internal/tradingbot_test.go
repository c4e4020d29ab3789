package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/services/gateway"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) { fn() }

func (inlineExecutor) Call(_ context.Context, fn func()) error {
	fn()
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Mode:            config.ModeDev,
		Exchange:        domain.ExchangeNull,
		Pair:            domain.CurrencyPair{Base: "BTC", Quote: "USD"},
		ShowAllOrders:   true,
		NullGatewayTick: 0.01,
		Quoting:         domain.DefaultQuotingParameters(),
	}
}

func newTestBot(t *testing.T, c *clock.Manual, cfg config.Config, stores Stores) *TradingBot {
	t.Helper()

	l := zap.NewNop()
	gw := gateway.NewNull(l, c, cfg.Pair, gateway.NullOptions{
		MinTick:         cfg.NullGatewayTick,
		FillProbability: 0.1,
		Seed:            42,
	})
	hub := messaging.NewHub(l, inlineExecutor{}, 16)
	t.Cleanup(hub.Close)

	bot, err := NewTradingBot(context.Background(), l, cfg, c, gw, stores, Transport{Hub: hub})
	require.NoError(t, err)
	return bot
}

func memory[T any](t *testing.T, p storage.Sink[T]) *storage.MemoryStore[T] {
	t.Helper()
	m, ok := p.(*storage.MemoryStore[T])
	require.True(t, ok)
	return m
}

func TestTradingBot_QuotesOnNullGateway(t *testing.T) {
	c := clock.NewManual(t0)
	cfg := testConfig()
	cfg.StartActive = true
	stores := NewMemoryStores(cfg.Quoting)

	bot := newTestBot(t, c, cfg, stores)

	msgs := memory(t, stores.Messages).Rows()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "start up", msgs[0].Text)
	assert.False(t, bot.Active.Latest(), "not quoting before the gateway connects")

	for range 10 {
		c.Advance(time.Second)
	}

	assert.Equal(t, domain.Connected, bot.Exchange.ConnectStatus())
	assert.True(t, bot.Active.Latest())
	require.NotNil(t, bot.FairValue.LatestFairValue())
	require.NotNil(t, bot.Positions.LatestReport())

	q := bot.Quoting.LatestQuote()
	require.NotNil(t, q)
	assert.Nil(t, q.Bid, "holding far more base than the target position")
	require.NotNil(t, q.Ask)
	assert.Greater(t, q.Ask.Price, bot.FairValue.LatestFairValue().Price)

	orders := memory(t, stores.Orders).Rows()
	require.NotEmpty(t, orders)
	assert.Equal(t, domain.SideAsk, orders[0].Side)
	assert.Equal(t, domain.OrderSourceQuote, orders[0].Source)
	assert.NotEmpty(t, memory(t, stores.FairValue).Rows())

	t.Run("exit hook", func(t *testing.T) {
		h := bot.ExitHook(context.Background())
		c.Advance(time.Second)

		select {
		case <-h.Done():
		default:
			t.Fatal("open orders were not cancelled")
		}

		assert.False(t, bot.Active.Latest())
		active := memory(t, stores.Active).Rows()
		require.NotEmpty(t, active)
		assert.True(t, active[len(active)-1].Active, "the saved switch survives shutdown")

		last := map[string]domain.OrderStatusReport{}
		for _, o := range memory(t, stores.Orders).Rows() {
			last[o.OrderID] = o
		}
		for id, o := range last {
			assert.True(t, domain.OrderIsDone(o.OrderStatus), "order %s is %s", id, o.OrderStatus)
		}
	})

	t.Run("restart resumes from the stores", func(t *testing.T) {
		c.Advance(time.Minute)
		cfg.StartActive = false
		restarted := newTestBot(t, c, cfg, stores)

		assert.True(t, restarted.Active.SavedQuotingMode(), "recently saved switch is honoured")

		msgs := memory(t, stores.Messages).Rows()
		assert.Equal(t, "start up", msgs[len(msgs)-1].Text)
		assert.Len(t, msgs, 2)
	})
}

func TestTradingBot_StaysQuietWhenInactive(t *testing.T) {
	c := clock.NewManual(t0)
	cfg := testConfig()
	stores := NewMemoryStores(cfg.Quoting)

	bot := newTestBot(t, c, cfg, stores)
	for range 5 {
		c.Advance(time.Second)
	}

	assert.Equal(t, domain.Connected, bot.Exchange.ConnectStatus())
	assert.False(t, bot.Active.Latest())
	assert.NotNil(t, bot.Quoting.LatestQuote())
	assert.Empty(t, memory(t, stores.Orders).Rows())
	assert.Equal(t, domain.QuoteStatusHeld, bot.QuoteSender.LatestStatus().AskStatus)
}

func TestLoadParams(t *testing.T) {
	defaults := domain.DefaultQuotingParameters()
	wide := defaults
	wide.Width = 2
	narrow := defaults
	narrow.Width = 0.1

	tests := []struct {
		name     string
		paramsID string
		rows     []domain.QuotingParameters
		want     float64
		wantErr  bool
	}{
		{name: "defaults when nothing saved", want: defaults.Width},
		{name: "latest saved", rows: []domain.QuotingParameters{wide, narrow}, want: narrow.Width},
		{name: "by id", paramsID: "1", rows: []domain.QuotingParameters{wide, narrow}, want: wide.Width},
		{name: "unknown id", paramsID: "3", rows: []domain.QuotingParameters{wide}, wantErr: true},
		{name: "malformed id", paramsID: "first", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ParamsID = tt.paramsID

			p, err := loadParams(context.Background(), cfg, storage.NewMemoryStore(defaults, tt.rows...))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Width)
		})
	}
}
