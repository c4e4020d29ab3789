package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tribeca/internal/domain"
)

const sample = `
EXCHANGE: binance
TRADED_PAIR: BTC/USDT
TRIBECA_MODE: dev
SHOW_ALL_ORDERS: false
NULL_GATEWAY_TICK: "0.5"
KAFKA_BROKERS:
  - kafka-1:9092
  - kafka-2:9092
BINANCE_POLL_INTERVAL: 2s
TLS_DOMAINS: "mm.example.com, "
quoting:
  width: 0.5
  size: 0.1
  mode: 3
`

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestProvider(t *testing.T) {
	p, err := ParseProvider([]byte(sample), env(map[string]string{"TRADED_PAIR": "ETH/USD"}))
	require.NoError(t, err)

	t.Run("file value", func(t *testing.T) {
		v, err := p.GetString(KeyExchange)
		require.NoError(t, err)
		assert.Equal(t, "binance", v)
	})

	t.Run("environment wins", func(t *testing.T) {
		v, err := p.GetString(KeyPair)
		require.NoError(t, err)
		assert.Equal(t, "ETH/USD", v)
	})

	t.Run("number", func(t *testing.T) {
		n, err := p.GetNumber(KeyNullGatewayTick)
		require.NoError(t, err)
		assert.Equal(t, "0.5", n.String())
	})

	t.Run("boolean", func(t *testing.T) {
		b, err := p.GetBoolean(KeyShowAllOrders)
		require.NoError(t, err)
		assert.False(t, b)

		_, err = p.GetBoolean(KeyExchange)
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		assert.False(t, p.Has("NOPE"))
		_, err := p.GetString("NOPE")
		assert.True(t, errors.Is(err, ErrMissingConfig))
		_, err = p.GetNumber("NOPE")
		assert.True(t, errors.Is(err, ErrMissingConfig))
	})

	t.Run("sequence joined", func(t *testing.T) {
		v, err := p.GetString(KeyKafkaBrokers)
		require.NoError(t, err)
		assert.Equal(t, "kafka-1:9092,kafka-2:9092", v)
	})
}

func TestLoad(t *testing.T) {
	p, err := ParseProvider([]byte(sample), nil)
	require.NoError(t, err)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, domain.ExchangeBinance, cfg.Exchange)
	assert.Equal(t, domain.CurrencyPair{Base: "BTC", Quote: "USDT"}, cfg.Pair)
	assert.Equal(t, ModeDev, cfg.Mode)
	assert.Equal(t, "Dev", cfg.Environment())
	assert.False(t, cfg.ShowAllOrders)
	assert.Equal(t, 0.5, cfg.NullGatewayTick)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.BinancePollInterval)
	assert.Equal(t, ":3000", cfg.WebListenAddr)
	assert.Equal(t, []string{"mm.example.com"}, cfg.TLSDomains)
	assert.Empty(t, cfg.TLSCacheDir)

	want := domain.DefaultQuotingParameters()
	want.Width = 0.5
	want.Size = 0.1
	want.Mode = domain.QuotingModeInverseJoin
	assert.Equal(t, want, cfg.Quoting)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		missing bool
	}{
		{"no exchange", "TRADED_PAIR: BTC/USD", true},
		{"no pair", "EXCHANGE: null", true},
		{"unknown exchange", "EXCHANGE: kraken\nTRADED_PAIR: BTC/USD", false},
		{"bad pair", "EXCHANGE: null\nTRADED_PAIR: BTCUSD", false},
		{"bad mode", "EXCHANGE: null\nTRADED_PAIR: BTC/USD\nTRIBECA_MODE: staging", false},
		{"bad tick", "EXCHANGE: null\nTRADED_PAIR: BTC/USD\nNULL_GATEWAY_TICK: -1", false},
		{"bad interval", "EXCHANGE: null\nTRADED_PAIR: BTC/USD\nBINANCE_POLL_INTERVAL: soon", false},
		{"invalid quoting", "EXCHANGE: null\nTRADED_PAIR: BTC/USD\nquoting:\n  width: 0\n  size: 0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProvider([]byte(tt.yaml), nil)
			require.NoError(t, err)

			_, err = Load(p)
			require.Error(t, err)
			assert.Equal(t, tt.missing, errors.Is(err, ErrMissingConfig))
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	p, err := ParseProvider(nil, env(map[string]string{"EXCHANGE": "null", "TRADED_PAIR": "btc_usd"}))
	require.NoError(t, err)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, domain.ExchangeNull, cfg.Exchange)
	assert.Equal(t, domain.CurrencyPair{Base: "BTC", Quote: "USD"}, cfg.Pair)
	assert.Equal(t, ModeProd, cfg.Mode)
	assert.True(t, cfg.ShowAllOrders)
	assert.Equal(t, domain.DefaultQuotingParameters(), cfg.Quoting)
}

func TestGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tribeca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, cfg, err := Get([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, path, f.ConfigPath)
	assert.False(t, f.Setup)
	assert.Equal(t, domain.ExchangeBinance, cfg.Exchange)

	f, _, err = Get([]string{"-setup"})
	require.NoError(t, err)
	assert.True(t, f.Setup)

	_, _, err = Get([]string{"-config", filepath.Join(dir, "missing.yaml")})
	assert.True(t, errors.Is(err, ErrMissingConfig), "a missing file falls back to the environment")
}
