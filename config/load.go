package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/tribeca/internal/domain"
)

// Keys read from the file or the environment.
const (
	KeyMode                = "TRIBECA_MODE"
	KeyExchange            = "EXCHANGE"
	KeyPair                = "TRADED_PAIR"
	KeyWALDir              = "WAL_DIR"
	KeyWebListenAddr       = "WEB_LISTEN_ADDR"
	KeyShowAllOrders       = "SHOW_ALL_ORDERS"
	KeyNullGatewayTick     = "NULL_GATEWAY_TICK"
	KeyMinTick             = "MIN_TICK"
	KeyParamsID            = "PARAMS_ID"
	KeyKafkaBrokers        = "KAFKA_BROKERS"
	KeyKafkaTopicPrefix    = "KAFKA_TOPIC_PREFIX"
	KeyBinancePollInterval = "BINANCE_POLL_INTERVAL"
	KeyStartActive         = "START_ACTIVE"
	KeyBinanceAPIKey       = "BINANCE_API_KEY"
	KeyBinanceAPISecret    = "BINANCE_API_SECRET"
	KeyBybitAPIKey         = "BYBIT_API_KEY"
	KeyBybitAPISecret      = "BYBIT_API_SECRET"
	KeyTLSDomains          = "TLS_DOMAINS"
	KeyTLSCacheDir         = "TLS_CACHE_DIR"
)

const (
	ModeProd = "prod"
	ModeDev  = "dev"
)

// Config settings of a single bot, built once at startup.
type Config struct {
	Mode                string
	Exchange            domain.Exchange
	Pair                domain.CurrencyPair
	WALDir              string
	WebListenAddr       string
	ShowAllOrders       bool
	NullGatewayTick     float64
	MinTick             float64
	ParamsID            string
	KafkaBrokers        []string
	KafkaTopicPrefix    string
	BinancePollInterval time.Duration
	StartActive         bool

	// TLSDomains switches the web server to HTTPS with ACME certificates.
	TLSDomains  []string
	TLSCacheDir string

	BinanceAPIKey    string
	BinanceAPISecret string
	BybitAPIKey      string
	BybitAPISecret   string

	// Quoting defaults used when no parameters were persisted.
	Quoting domain.QuotingParameters
}

// Load validates and converts the provider values. EXCHANGE and TRADED_PAIR are required.
func Load(p *Provider) (Config, error) {
	cfg := Config{
		Mode:                ModeProd,
		WALDir:              "data",
		WebListenAddr:       ":3000",
		ShowAllOrders:       true,
		NullGatewayTick:     0.01,
		MinTick:             0.01,
		KafkaTopicPrefix:    "tribeca",
		BinancePollInterval: time.Second,
		Quoting:             domain.DefaultQuotingParameters(),
	}

	exch, err := p.GetString(KeyExchange)
	if err != nil {
		return Config{}, err
	}
	if cfg.Exchange, err = domain.ParseExchange(exch); err != nil {
		return Config{}, errors.Wrapf(err, "incorrect %s param in config", KeyExchange)
	}

	pair, err := p.GetString(KeyPair)
	if err != nil {
		return Config{}, err
	}
	if cfg.Pair, err = domain.ParseCurrencyPair(pair); err != nil {
		return Config{}, errors.Wrapf(err, "incorrect %s param in config", KeyPair)
	}

	if p.Has(KeyMode) {
		mode, _ := p.GetString(KeyMode)
		switch mode = strings.ToLower(strings.TrimSpace(mode)); mode {
		case ModeProd, ModeDev:
			cfg.Mode = mode
		default:
			return Config{}, errors.Errorf("incorrect %s param in config: %q (prod or dev)", KeyMode, mode)
		}
	}

	optionalString(p, KeyWALDir, &cfg.WALDir)
	optionalString(p, KeyWebListenAddr, &cfg.WebListenAddr)
	optionalString(p, KeyParamsID, &cfg.ParamsID)
	optionalString(p, KeyKafkaTopicPrefix, &cfg.KafkaTopicPrefix)
	optionalString(p, KeyBinanceAPIKey, &cfg.BinanceAPIKey)
	optionalString(p, KeyBinanceAPISecret, &cfg.BinanceAPISecret)
	optionalString(p, KeyBybitAPIKey, &cfg.BybitAPIKey)
	optionalString(p, KeyBybitAPISecret, &cfg.BybitAPISecret)

	optionalString(p, KeyTLSCacheDir, &cfg.TLSCacheDir)
	cfg.KafkaBrokers = optionalList(p, KeyKafkaBrokers)
	cfg.TLSDomains = optionalList(p, KeyTLSDomains)

	for key, dst := range map[string]*bool{KeyShowAllOrders: &cfg.ShowAllOrders, KeyStartActive: &cfg.StartActive} {
		if !p.Has(key) {
			continue
		}
		if *dst, err = p.GetBoolean(key); err != nil {
			return Config{}, err
		}
	}

	for key, dst := range map[string]*float64{KeyNullGatewayTick: &cfg.NullGatewayTick, KeyMinTick: &cfg.MinTick} {
		if !p.Has(key) {
			continue
		}
		tick, err := p.GetNumber(key)
		if err != nil {
			return Config{}, err
		}
		if !tick.IsPositive() {
			return Config{}, errors.Errorf("incorrect %s param in config: must be positive", key)
		}
		*dst = tick.InexactFloat64()
	}

	if p.Has(KeyBinancePollInterval) {
		v, _ := p.GetString(KeyBinancePollInterval)
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect %s param in config (duration, e.g. 1s)", KeyBinancePollInterval)
		}
		cfg.BinancePollInterval = d
	}

	if p.quoting != nil {
		if err := p.quoting.Decode(&cfg.Quoting); err != nil {
			return Config{}, errors.Wrap(err, "incorrect quoting section in config")
		}
		if !cfg.Quoting.Valid() {
			return Config{}, errors.New("incorrect quoting section in config: width or size must be positive")
		}
	}

	return cfg, nil
}

// Environment returns the environment name advertised to clients.
func (c Config) Environment() string {
	if c.Mode == ModeDev {
		return "Dev"
	}
	return "Prod"
}

func optionalList(p *Provider, key string) []string {
	v, err := p.GetString(key)
	if err != nil {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func optionalString(p *Provider, key string, dst *string) {
	if v, err := p.GetString(key); err == nil {
		*dst = v
	}
}
