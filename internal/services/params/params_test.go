package params

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

func TestQuotingParametersRepository(t *testing.T) {
	pub := &messaging.Recorder[domain.QuotingParameters]{}
	rec := &messaging.ManualReceiver[domain.QuotingParameters]{}
	store := storage.NewMemoryStore(domain.QuotingParameters{})
	initial := domain.DefaultQuotingParameters()

	r := NewQuotingParametersRepository(zap.NewNop(), pub, rec, store, initial)

	var changes []domain.QuotingParameters
	r.NewParameters().On(func(p domain.QuotingParameters) { changes = append(changes, p) })

	assert.Equal(t, []domain.QuotingParameters{initial}, pub.Snapshot())

	tests := []struct {
		name     string
		mutate   func(p *domain.QuotingParameters)
		accepted bool
	}{
		{"same parameters", func(p *domain.QuotingParameters) {}, false},
		{"new width", func(p *domain.QuotingParameters) { p.Width = 0.5 }, true},
		{"invalid", func(p *domain.QuotingParameters) { p.Width, p.Size = 0, 0 }, false},
		{"only size", func(p *domain.QuotingParameters) { p.Width, p.Size = 0, 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := r.Latest()
			p := before
			tt.mutate(&p)

			published := len(pub.Messages)
			rec.Send(p)

			assert.Len(t, pub.Messages, published+1, "latest is republished on every request")
			if tt.accepted {
				assert.Equal(t, p, r.Latest())
			} else {
				assert.Equal(t, before, r.Latest())
			}
		})
	}

	require.Len(t, changes, 2)
	assert.Equal(t, changes, store.Rows())
}

type fakeConn struct {
	status  domain.ConnectivityStatus
	changed evt.Event[domain.ConnectivityStatus]
}

func (f *fakeConn) ConnectStatus() domain.ConnectivityStatus { return f.status }
func (f *fakeConn) ConnectChanged() *evt.Event[domain.ConnectivityStatus] {
	return &f.changed
}

func (f *fakeConn) set(s domain.ConnectivityStatus) {
	f.status = s
	f.changed.Trigger(s)
}

func TestActiveRepository(t *testing.T) {
	c := clock.NewManual(t0)
	conn := &fakeConn{status: domain.Disconnected}
	pub := &messaging.Recorder[bool]{}
	rec := &messaging.ManualReceiver[bool]{}
	store := storage.NewMemoryStore(domain.SerializedQuotesActive{})

	r := NewActiveRepository(zap.NewNop(), c, true, conn, pub, rec, store)

	var flips []bool
	r.Changed().On(func(v bool) { flips = append(flips, v) })

	assert.True(t, r.SavedQuotingMode())
	assert.False(t, r.Latest(), "not effective while disconnected")

	conn.set(domain.Connected)
	assert.True(t, r.Latest())

	rec.Send(false)
	assert.False(t, r.Latest())
	assert.False(t, r.SavedQuotingMode())
	require.Len(t, store.Rows(), 1)
	assert.Equal(t, domain.SerializedQuotesActive{Active: false, Time: t0}, store.Rows()[0])

	rec.Send(false)
	assert.Len(t, store.Rows(), 1)

	rec.Send(true)
	conn.set(domain.Disconnected)

	assert.Equal(t, []bool{true, false, true, false}, flips)
	assert.Equal(t, []bool{false}, pub.Snapshot())

	c.Advance(time.Minute)
	r.Persist()
	last := store.Rows()[len(store.Rows())-1]
	assert.True(t, last.Active)
	assert.Equal(t, t0.Add(time.Minute), last.Time)

	conn.set(domain.Connected)
	require.True(t, r.Latest())
	r.Halt()
	assert.False(t, r.Latest())
	assert.True(t, r.SavedQuotingMode(), "halting keeps the saved switch")
	conn.set(domain.Disconnected)
	conn.set(domain.Connected)
	assert.False(t, r.Latest(), "halted until restart")
}

func TestShouldStartQuoting(t *testing.T) {
	now := t0

	tests := []struct {
		name  string
		saved domain.SerializedQuotesActive
		force bool
		want  bool
	}{
		{"fresh active", domain.SerializedQuotesActive{Active: true, Time: now.Add(-time.Minute)}, false, true},
		{"stale active", domain.SerializedQuotesActive{Active: true, Time: now.Add(-5 * time.Minute)}, false, false},
		{"fresh inactive", domain.SerializedQuotesActive{Active: false, Time: now}, false, false},
		{"never saved", domain.SerializedQuotesActive{}, false, false},
		{"forced", domain.SerializedQuotesActive{}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldStartQuoting(tt.saved, now, tt.force))
		})
	}
}
