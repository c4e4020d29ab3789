// Package params holds the operator-controlled settings: quoting parameters and the quoting switch.
package params

import (
	"go.uber.org/zap"

	"github.com/vadiminshakov/tribeca/internal/domain"
	"github.com/vadiminshakov/tribeca/internal/evt"
	"github.com/vadiminshakov/tribeca/internal/messaging"
	"github.com/vadiminshakov/tribeca/internal/storage"
)

// QuotingParametersRepository keeps the latest accepted quoting parameters.
// Invalid or unchanged submissions are ignored and the current value is republished.
type QuotingParametersRepository struct {
	l         *zap.Logger
	pub       messaging.Publisher[domain.QuotingParameters]
	persister storage.Sink[domain.QuotingParameters]
	latest    domain.QuotingParameters

	newParameters evt.Event[domain.QuotingParameters]
}

// NewQuotingParametersRepository starts from initial and listens on rec.
func NewQuotingParametersRepository(
	l *zap.Logger,
	pub messaging.Publisher[domain.QuotingParameters],
	rec messaging.Receiver[domain.QuotingParameters],
	persister storage.Sink[domain.QuotingParameters],
	initial domain.QuotingParameters,
) *QuotingParametersRepository {
	r := &QuotingParametersRepository{
		l:         l.With(zap.String("component", "qpr")),
		pub:       pub,
		persister: persister,
		latest:    initial,
	}
	r.l.Info("starting parameters", zap.Any("params", initial))

	pub.RegisterSnapshot(func() []domain.QuotingParameters { return []domain.QuotingParameters{r.latest} })
	rec.RegisterReceiver(func(p domain.QuotingParameters) { r.Update(p) })

	return r
}

// Update replaces the parameters when p is valid and different. It reports whether p was accepted.
func (r *QuotingParametersRepository) Update(p domain.QuotingParameters) bool {
	accepted := p.Valid() && p != r.latest
	if accepted {
		r.latest = p
		r.l.Info("changed parameters", zap.Any("params", p))
		r.newParameters.Trigger(p)
		r.persister.Persist(p)
	}
	r.pub.Publish(r.latest)
	return accepted
}

// Latest returns the parameters in force.
func (r *QuotingParametersRepository) Latest() domain.QuotingParameters {
	return r.latest
}

// NewParameters fires after an accepted change.
func (r *QuotingParametersRepository) NewParameters() *evt.Event[domain.QuotingParameters] {
	return &r.newParameters
}
