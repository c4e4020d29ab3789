package params

import (
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/clock"
	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// activeFreshness a saved active state older than this is not resumed.
const activeFreshness = 3 * time.Minute

// Connectivity exchange connection state.
type Connectivity interface {
	ConnectStatus() domain.ConnectivityStatus
	ConnectChanged() *evt.Event[domain.ConnectivityStatus]
}

// ShouldStartQuoting decides whether quoting resumes after a restart.
func ShouldStartQuoting(saved domain.SerializedQuotesActive, now time.Time, forceActive bool) bool {
	if forceActive {
		return true
	}
	return saved.Active && now.Sub(saved.Time) < activeFreshness
}

// ActiveRepository operator quoting switch. Quoting is effective only while the exchange is connected.
type ActiveRepository struct {
	l         *zap.Logger
	c         clock.Clock
	exch      Connectivity
	pub       messaging.Publisher[bool]
	persister storage.Sink[domain.SerializedQuotesActive]

	saved  bool
	latest bool
	halted bool

	changed evt.Event[bool]
}

// NewActiveRepository starts with the saved switch set to startQuoting.
func NewActiveRepository(
	l *zap.Logger,
	c clock.Clock,
	startQuoting bool,
	exch Connectivity,
	pub messaging.Publisher[bool],
	rec messaging.Receiver[bool],
	persister storage.Sink[domain.SerializedQuotesActive],
) *ActiveRepository {
	r := &ActiveRepository{
		l:         l.With(zap.String("component", "active")),
		c:         c,
		exch:      exch,
		pub:       pub,
		persister: persister,
		saved:     startQuoting,
	}
	r.l.Info("starting saved quoting state", zap.Bool("active", startQuoting))

	pub.RegisterSnapshot(func() []bool { return []bool{r.latest} })
	rec.RegisterReceiver(r.handleChangeRequest)
	exch.ConnectChanged().On(func(domain.ConnectivityStatus) { r.reevaluate() })
	r.reevaluate()

	return r
}

func (r *ActiveRepository) handleChangeRequest(v bool) {
	if v != r.saved {
		r.saved = v
		r.l.Info("changed saved quoting state", zap.Bool("active", v))
		r.Persist()
		r.reevaluate()
	}
	r.pub.Publish(r.latest)
}

func (r *ActiveRepository) reevaluate() {
	mode := !r.halted && r.saved && r.exch.ConnectStatus() == domain.Connected
	if mode == r.latest {
		return
	}
	r.latest = mode
	r.l.Info("changed quoting mode", zap.Bool("active", mode))
	r.changed.Trigger(mode)
	r.pub.Publish(mode)
}

// Persist stores the saved switch with the current time.
func (r *ActiveRepository) Persist() {
	r.persister.Persist(domain.SerializedQuotesActive{Active: r.saved, Time: r.c.Now()})
}

// Halt turns quoting off for the rest of the process without touching the saved switch.
func (r *ActiveRepository) Halt() {
	r.halted = true
	r.reevaluate()
}

// Latest reports whether quotes should be live.
func (r *ActiveRepository) Latest() bool { return r.latest }

// SavedQuotingMode the operator's switch regardless of connectivity.
func (r *ActiveRepository) SavedQuotingMode() bool { return r.saved }

// Changed fires when the effective mode flips.
func (r *ActiveRepository) Changed() *evt.Event[bool] { return &r.changed }
