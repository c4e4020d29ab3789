package broker

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
	"github.com/vadiminshakov/tribeca/internal/services/fairvalue"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

type fakePos struct {
	update evt.Event[domain.CurrencyPosition]
}

func (f *fakePos) PositionUpdate() *evt.Event[domain.CurrencyPosition] { return &f.update }

type staticBook struct{ book *domain.Market }

func (s *staticBook) CurrentBook() *domain.Market { return s.book }

type staticQuote struct{ q *domain.TwoSidedQuote }

func (s *staticQuote) LatestQuote() *domain.TwoSidedQuote { return s.q }

func book(bid, ask float64) *domain.Market {
	return &domain.Market{
		Bids: []domain.MarketSide{{Price: bid, Size: 1}},
		Asks: []domain.MarketSide{{Price: ask, Size: 1}},
	}
}

func TestExchangeBroker_ConnectedOnlyWhenBothAre(t *testing.T) {
	md, oe := &fakeMD{}, &fakeOE{}
	pub := &messaging.Recorder[domain.ConnectivityStatus]{}
	b := NewExchangeBroker(zap.NewNop(), testPair, md, oe, fakeInfo{tick: 0.5, makeFee: -0.0001}, pub)

	var changes []domain.ConnectivityStatus
	b.ConnectChanged().On(func(s domain.ConnectivityStatus) { changes = append(changes, s) })

	assert.Equal(t, []domain.ConnectivityStatus{domain.Disconnected}, pub.Snapshot())

	md.connect.Trigger(domain.Connected)
	assert.Equal(t, domain.Disconnected, b.ConnectStatus())

	md.connect.Trigger(domain.Connected)
	assert.Len(t, changes, 1)

	oe.connect.Trigger(domain.Connected)
	assert.Equal(t, domain.Connected, b.ConnectStatus())

	md.connect.Trigger(domain.Disconnected)
	assert.Equal(t, domain.Disconnected, b.ConnectStatus())

	assert.Equal(t, []domain.ConnectivityStatus{domain.Disconnected, domain.Connected, domain.Disconnected}, changes)
	assert.Equal(t, changes, pub.Messages)

	assert.Equal(t, 0.5, b.MinTickIncrement())
	assert.Equal(t, -0.0001, b.MakeFee())
	assert.Equal(t, testPair, b.Pair())
}

func TestMarketDataBroker(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	pub := &messaging.Recorder[domain.Market]{}
	persisted := storage.NewMemoryStore(domain.Market{})
	msgs := &messaging.Recorder[domain.Message]{}
	b := NewMarketDataBroker(zap.NewNop(), c, md, pub, persisted, NewMessages(c, msgs, storage.NewMemoryStore(domain.Message{}), nil))

	var seen []*domain.Market
	b.MarketData().On(func(m *domain.Market) { seen = append(seen, m) })

	assert.Nil(t, b.CurrentBook())
	assert.Empty(t, pub.Snapshot())

	deep := domain.Market{Time: t0}
	for i := 0; i < 5; i++ {
		deep.Bids = append(deep.Bids, domain.MarketSide{Price: 100 - float64(i), Size: 1})
		deep.Asks = append(deep.Asks, domain.MarketSide{Price: 101 + float64(i), Size: 1})
	}
	md.market.Trigger(deep)

	require.Len(t, seen, 1)
	require.NotNil(t, b.CurrentBook())
	assert.Len(t, b.CurrentBook().Bids, 5)
	assert.Empty(t, pub.Messages)

	c.Advance(time.Second)
	require.Len(t, pub.Messages, 1)
	rows := persisted.Rows()
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Bids, persistedDepth)
	assert.Len(t, rows[0].Asks, persistedDepth)

	t.Run("crossed book is dropped", func(t *testing.T) {
		md.market.Trigger(*book(101, 100))
		assert.Nil(t, b.CurrentBook())
		assert.Nil(t, seen[len(seen)-1])
	})

	t.Run("disconnect clears the book", func(t *testing.T) {
		md.market.Trigger(*book(100, 101))
		require.NotNil(t, b.CurrentBook())

		md.connect.Trigger(domain.Disconnected)
		assert.Nil(t, b.CurrentBook())
		msg, ok := msgs.Last()
		require.True(t, ok)
		assert.Equal(t, "MD gw Disconnected", msg.Text)

		before := len(pub.Messages)
		c.Advance(time.Second)
		assert.Len(t, pub.Messages, before)
	})
}

type noQuotes struct{}

func (noQuotes) QuotesSent(domain.Side) []domain.QuoteOrder { return nil }

type fixedParams struct {
	ev evt.Event[domain.QuotingParameters]
}

func (f *fixedParams) Latest() domain.QuotingParameters                    { return domain.DefaultQuotingParameters() }
func (f *fixedParams) NewParameters() *evt.Event[domain.QuotingParameters] { return &f.ev }

func TestMarketDataBroker_DisconnectClearsFairValue(t *testing.T) {
	c := clock.NewManual(t0)
	md := &fakeMD{}
	b := NewMarketDataBroker(zap.NewNop(), c, md, &messaging.Recorder[domain.Market]{}, storage.NewMemoryStore(domain.Market{}),
		NewMessages(c, &messaging.Recorder[domain.Message]{}, storage.NewMemoryStore(domain.Message{}), nil))

	info := fakeInfo{tick: 0.01}
	filtration := fairvalue.NewMarketFiltration(info, clock.NewScheduler(c), noQuotes{}, b)
	fv := fairvalue.NewEngine(zap.NewNop(), c, info, filtration, &fixedParams{},
		&messaging.Recorder[domain.FairValue]{}, storage.NewMemoryStore(domain.FairValue{}))

	var changes []*domain.FairValue
	fv.FairValueChanged().On(func(v *domain.FairValue) { changes = append(changes, v) })

	md.market.Trigger(*book(100, 101))
	c.Flush()
	require.NotNil(t, filtration.LatestFilteredMarket())
	require.NotNil(t, fv.LatestFairValue())
	assert.Equal(t, 100.5, fv.LatestFairValue().Price)

	md.connect.Trigger(domain.Disconnected)
	c.Flush()
	assert.Nil(t, filtration.LatestFilteredMarket())
	assert.Nil(t, fv.LatestFairValue())
	require.Len(t, changes, 2)
	assert.Nil(t, changes[1])

	t.Run("reconnect with a book quotes again", func(t *testing.T) {
		md.connect.Trigger(domain.Connected)
		md.market.Trigger(*book(99, 100))
		c.Flush()
		require.NotNil(t, fv.LatestFairValue())
		assert.Equal(t, 99.5, fv.LatestFairValue().Price)
	})
}

func TestPositionBroker(t *testing.T) {
	c := clock.NewManual(t0)
	pos := &fakePos{}
	books := &staticBook{}
	pub := &messaging.Recorder[domain.PositionReport]{}
	b := NewPositionBroker(zap.NewNop(), c, fakeInfo{tick: 0.01}, pos, pub, storage.NewMemoryStore(domain.PositionReport{}), books)

	var reports []domain.PositionReport
	b.NewReport().On(func(r domain.PositionReport) { reports = append(reports, r) })

	t.Run("no report without a book", func(t *testing.T) {
		pos.update.Trigger(domain.CurrencyPosition{Amount: 2, HeldAmount: 0.5, Currency: "BTC"})
		pos.update.Trigger(domain.CurrencyPosition{Amount: 1000, HeldAmount: 100, Currency: "USD"})
		assert.Empty(t, reports)
		assert.Nil(t, b.LatestReport())
	})

	t.Run("report once the mid is known", func(t *testing.T) {
		books.book = book(99, 101)
		pos.update.Trigger(domain.CurrencyPosition{Amount: 1000, HeldAmount: 100, Currency: "USD"})

		require.Len(t, reports, 1)
		r := reports[0]
		assert.Equal(t, 2.0, r.BaseAmount)
		assert.Equal(t, 1000.0, r.QuoteAmount)
		assert.InDelta(t, 2+10+0.5+1, r.Value, 1e-9)
		assert.InDelta(t, 200+1000+50+100, r.QuoteValue, 1e-9)
		assert.Equal(t, testPair, r.Pair)
		assert.Equal(t, []domain.PositionReport{r}, pub.Snapshot())
	})

	t.Run("small changes are suppressed", func(t *testing.T) {
		pos.update.Trigger(domain.CurrencyPosition{Amount: 2.01, HeldAmount: 0.5, Currency: "BTC"})
		assert.Len(t, reports, 1)

		pos.update.Trigger(domain.CurrencyPosition{Amount: 2.5, HeldAmount: 0.5, Currency: "BTC"})
		assert.Len(t, reports, 2)
		assert.Equal(t, 2.5, b.LatestReport().BaseAmount)
	})
}

func TestMarketTradeBroker(t *testing.T) {
	md := &fakeMD{}
	books := &staticBook{book: book(99, 101)}
	quotes := &staticQuote{q: &domain.TwoSidedQuote{Bid: &domain.Quote{Price: 98, Size: 1}}}
	pub := &messaging.Recorder[domain.MarketTrade]{}

	initial := []domain.MarketTrade{{Price: 100, Size: 0.3, Time: t0}}
	b := NewMarketTradeBroker(zap.NewNop(), md, fakeInfo{tick: 0.5}, books, quotes, pub, storage.NewMemoryStore(domain.MarketTrade{}), initial)

	md.trades.Trigger(domain.GatewayMarketTrade{Price: 100.2, Size: 0.3, Time: t0.Add(20 * time.Second), OnStartup: true})
	assert.Empty(t, pub.Messages, "startup replay of a known print")

	md.trades.Trigger(domain.GatewayMarketTrade{Price: 100.2, Size: 0.7, Time: t0.Add(time.Minute), MakeSide: domain.SideAsk})
	require.Len(t, pub.Messages, 1)
	mt := pub.Messages[0]
	assert.Equal(t, 100.0, mt.Price)
	require.NotNil(t, mt.Quote)
	assert.Equal(t, 98.0, mt.Quote.Bid.Price)
	require.NotNil(t, mt.Bid)
	assert.Equal(t, 99.0, mt.Bid.Price)
	assert.Equal(t, 101.0, mt.Ask.Price)
	assert.Equal(t, domain.SideAsk, mt.MakeSide)

	for i := 0; i < 60; i++ {
		md.trades.Trigger(domain.GatewayMarketTrade{Price: 100, Size: float64(i), Time: t0})
	}
	assert.Len(t, b.MarketTrades(), marketTradesKept)
	assert.Len(t, pub.Snapshot(), marketTradesKept)
}

func TestMessages(t *testing.T) {
	c := clock.NewManual(t0)
	pub := &messaging.Recorder[domain.Message]{}
	store := storage.NewMemoryStore(domain.Message{})

	initial := make([]domain.Message, 60)
	m := NewMessages(c, pub, store, initial)
	m.Publish("start up")

	msg, ok := pub.Last()
	require.True(t, ok)
	assert.Equal(t, domain.Message{Text: "start up", Time: t0}, msg)
	assert.Len(t, store.Rows(), 1)

	snap := pub.Snapshot()
	require.Len(t, snap, messagesSnapshotSize)
	assert.Equal(t, "start up", snap[len(snap)-1].Text)
}
