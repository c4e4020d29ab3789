package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrencyPair(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CurrencyPair
		wantErr bool
	}{
		{name: "slash", input: "BTC/USDT", want: CurrencyPair{Base: "BTC", Quote: "USDT"}},
		{name: "underscore lowercase", input: "eth_usd", want: CurrencyPair{Base: "ETH", Quote: "USD"}},
		{name: "missing quote", input: "BTC/", wantErr: true},
		{name: "no separator", input: "BTCUSDT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrencyPair(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrencyPairFormatting(t *testing.T) {
	p := CurrencyPair{Base: "BTC", Quote: "USDT"}
	assert.Equal(t, "BTC/USDT", p.String())
	assert.Equal(t, "BTCUSDT", p.Symbol())
}

func TestOrderIsDone(t *testing.T) {
	assert.False(t, OrderIsDone(OrderStatusNew))
	assert.False(t, OrderIsDone(OrderStatusWorking))
	assert.False(t, OrderIsDone(OrderStatusOther))
	assert.True(t, OrderIsDone(OrderStatusComplete))
	assert.True(t, OrderIsDone(OrderStatusCancelled))
	assert.True(t, OrderIsDone(OrderStatusRejected))
}

func TestSide(t *testing.T) {
	assert.Equal(t, SideAsk, SideBid.Opposite())
	assert.Equal(t, SideBid, SideAsk.Opposite())
	assert.Equal(t, SideUnknown, SideUnknown.Opposite())
	assert.Equal(t, SideBid, ParseSide("Buy"))
	assert.Equal(t, SideAsk, ParseSide("ask"))
	assert.Equal(t, SideUnknown, ParseSide("hold"))
}

func TestMarket(t *testing.T) {
	t.Run("mid and crossed", func(t *testing.T) {
		m := &Market{
			Bids: []MarketSide{{Price: 100, Size: 1}},
			Asks: []MarketSide{{Price: 101, Size: 1}},
		}
		mid, ok := m.Mid()
		require.True(t, ok)
		assert.Equal(t, 100.5, mid)
		assert.False(t, m.Crossed())

		m.Asks[0].Price = 100
		assert.True(t, m.Crossed())
	})

	t.Run("one sided", func(t *testing.T) {
		m := &Market{Bids: []MarketSide{{Price: 100, Size: 1}}}
		_, ok := m.Mid()
		assert.False(t, ok)
		assert.False(t, m.Crossed())

		var nilMarket *Market
		assert.False(t, nilMarket.HasBothSides())
	})

	t.Run("top copies", func(t *testing.T) {
		m := &Market{
			Bids: []MarketSide{{Price: 3, Size: 1}, {Price: 2, Size: 1}, {Price: 1, Size: 1}},
			Asks: []MarketSide{{Price: 4, Size: 1}},
		}
		top := m.Top(2)
		require.Len(t, top.Bids, 2)
		require.Len(t, top.Asks, 1)
		top.Bids[0].Size = 99
		assert.Equal(t, 1.0, m.Bids[0].Size)
	})
}

func TestQuotingParametersValid(t *testing.T) {
	assert.True(t, DefaultQuotingParameters().Valid())
	assert.True(t, QuotingParameters{Width: 1}.Valid())
	assert.True(t, QuotingParameters{Size: 1}.Valid())
	assert.False(t, QuotingParameters{}.Valid())
}

func TestParseExchange(t *testing.T) {
	e, err := ParseExchange("binance")
	require.NoError(t, err)
	assert.Equal(t, ExchangeBinance, e)
	assert.Equal(t, "Binance", e.String())

	_, err = ParseExchange("mtgox")
	assert.Error(t, err)
}
