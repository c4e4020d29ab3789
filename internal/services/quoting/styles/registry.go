package styles

import "github.com/vadiminshakov/tribeca/internal/domain"

type nullStyle struct{}

func (nullStyle) Mode() domain.QuotingMode { return -1 }

func (nullStyle) GenerateQuote(Input) (GeneratedQuote, bool) { return GeneratedQuote{}, false }

// Registry looks styles up by mode.
type Registry struct {
	styles map[domain.QuotingMode]Style
}

// NewRegistry registers styles. A later style replaces an earlier one with the same mode.
func NewRegistry(styles ...Style) *Registry {
	r := &Registry{styles: make(map[domain.QuotingMode]Style, len(styles))}
	for _, s := range styles {
		r.styles[s.Mode()] = s
	}
	return r
}

// Get returns the style of mode, or one that never quotes.
func (r *Registry) Get(mode domain.QuotingMode) Style {
	if s, ok := r.styles[mode]; ok {
		return s
	}
	return nullStyle{}
}
