package fairvalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type tick float64

func (t tick) MinTickIncrement() float64 { return float64(t) }

type fakeMD struct {
	book *domain.Market
	ev   evt.Event[*domain.Market]
}

func (f *fakeMD) CurrentBook() *domain.Market            { return f.book }
func (f *fakeMD) MarketData() *evt.Event[*domain.Market] { return &f.ev }

func (f *fakeMD) set(m *domain.Market) {
	f.book = m
	f.ev.Trigger(m)
}

type fakeQuotes map[domain.Side][]domain.QuoteOrder

func (f fakeQuotes) QuotesSent(s domain.Side) []domain.QuoteOrder { return f[s] }

type fakeParams struct {
	p  domain.QuotingParameters
	ev evt.Event[domain.QuotingParameters]
}

func (f *fakeParams) Latest() domain.QuotingParameters                    { return f.p }
func (f *fakeParams) NewParameters() *evt.Event[domain.QuotingParameters] { return &f.ev }

func (f *fakeParams) set(p domain.QuotingParameters) {
	f.p = p
	f.ev.Trigger(p)
}

func levels(pxs ...float64) []domain.MarketSide {
	out := make([]domain.MarketSide, 0, len(pxs)/2)
	for i := 0; i+1 < len(pxs); i += 2 {
		out = append(out, domain.MarketSide{Price: pxs[i], Size: pxs[i+1]})
	}
	return out
}

func TestMarketFiltration_NoOwnQuotesIsIdentity(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	f := NewMarketFiltration(tick(0.01), clock.NewScheduler(c), fakeQuotes{}, md)

	book := &domain.Market{Bids: levels(100, 1, 99, 2), Asks: levels(101, 1, 102, 3), Time: t0}
	md.set(book)
	c.Flush()

	require.NotNil(t, f.LatestFilteredMarket())
	assert.Equal(t, *book, *f.LatestFilteredMarket())
}

func TestMarketFiltration_SubtractsOwnQuotes(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	quotes := fakeQuotes{
		domain.SideBid: {{Quote: domain.Quote{Price: 100.004, Size: 0.4}, OrderID: "b"}},
		domain.SideAsk: {{Quote: domain.Quote{Price: 101, Size: 1}, OrderID: "a"}},
	}
	f := NewMarketFiltration(tick(0.01), clock.NewScheduler(c), quotes, md)

	md.set(&domain.Market{Bids: levels(100, 1, 99, 2), Asks: levels(101, 1.0005, 102, 3), Time: t0})
	c.Flush()

	m := f.LatestFilteredMarket()
	require.NotNil(t, m)
	assert.InDelta(t, 0.6, m.Bids[0].Size, 1e-9)
	assert.Equal(t, levels(102, 3), m.Asks, "remaining size under the floor drops the level")

	t.Run("a side filtered away leaves no market", func(t *testing.T) {
		md.set(&domain.Market{Bids: levels(100, 1), Asks: levels(101, 1), Time: t0})
		c.Flush()
		assert.Nil(t, f.LatestFilteredMarket())
	})
}

func TestMarketFiltration_CoalescesBursts(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	f := NewMarketFiltration(tick(0.01), clock.NewScheduler(c), fakeQuotes{}, md)

	runs := 0
	f.FilteredMarketChanged().On(func(*domain.Market) { runs++ })

	for i := 0; i < 10; i++ {
		md.set(&domain.Market{Bids: levels(100-float64(i), 1), Asks: levels(101, 1)})
	}
	assert.Zero(t, runs)

	c.Flush()
	assert.Equal(t, 1, runs)
	assert.Equal(t, 91.0, f.LatestFilteredMarket().Bids[0].Price, "computed from the latest book")
}

func TestMarketFiltration_EmptyBook(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	f := NewMarketFiltration(tick(0.01), clock.NewScheduler(c), fakeQuotes{}, md)

	md.set(&domain.Market{Bids: levels(100, 1)})
	c.Flush()
	assert.Nil(t, f.LatestFilteredMarket())
}

func TestComputeFV(t *testing.T) {
	ask := domain.MarketSide{Price: 101, Size: 3}
	bid := domain.MarketSide{Price: 100, Size: 1}

	tests := []struct {
		name  string
		model domain.FairValueModel
		tick  float64
		want  float64
	}{
		{"bbo", domain.FairValueModelBBO, 0.01, 100.5},
		{"bbo tie rounds up", domain.FairValueModelBBO, 1, 101},
		{"wbbo", domain.FairValueModelWBBO, 0.01, 100.75},
		{"wbbo coarse tick", domain.FairValueModelWBBO, 0.5, 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComputeFV(ask, bid, tt.model, tt.tick), 1e-9)
		})
	}
}

func TestEngine(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	f := NewMarketFiltration(tick(0.5), clock.NewScheduler(c), fakeQuotes{}, md)
	params := &fakeParams{p: domain.DefaultQuotingParameters()}
	pub := &messaging.Recorder[domain.FairValue]{}
	store := storage.NewMemoryStore(domain.FairValue{})
	e := NewEngine(zap.NewNop(), c, tick(0.5), f, params, pub, store)

	var changes []*domain.FairValue
	e.FairValueChanged().On(func(fv *domain.FairValue) { changes = append(changes, fv) })

	assert.Nil(t, e.LatestFairValue())
	assert.Empty(t, pub.Snapshot())

	md.set(&domain.Market{Bids: levels(100, 1), Asks: levels(101, 3), Time: t0})
	c.Flush()
	require.NotNil(t, e.LatestFairValue())
	assert.Equal(t, domain.FairValue{Price: 100.5, Time: t0}, *e.LatestFairValue())
	assert.Len(t, store.Rows(), 1)

	t.Run("moves under a tick are ignored", func(t *testing.T) {
		md.set(&domain.Market{Bids: levels(100.2, 1), Asks: levels(101, 3), Time: t0})
		c.Flush()
		assert.Len(t, changes, 1)
		assert.Len(t, pub.Messages, 1)
	})

	t.Run("model change recalculates", func(t *testing.T) {
		p := params.p
		p.FvModel = domain.FairValueModelWBBO
		params.set(p)
		assert.Equal(t, 101.0, e.LatestFairValue().Price)
		assert.Len(t, store.Rows(), 2)
	})

	t.Run("lost book clears the value", func(t *testing.T) {
		md.set(nil)
		c.Flush()
		assert.Nil(t, e.LatestFairValue())
		assert.Nil(t, changes[len(changes)-1])
		assert.Len(t, pub.Messages, 2)
	})
}
