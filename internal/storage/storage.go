// Package storage persists the bot's collections as append-only logs.
package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNoData is returned when a lookup finds nothing.
var ErrNoData = errors.New("no data")

// Collection names.
const (
	CollectionOrders            = "osr"
	CollectionTrades            = "trades"
	CollectionFairValue         = "fv"
	CollectionMarketTrades      = "mt"
	CollectionPositions         = "pos"
	CollectionMessages          = "msg"
	CollectionRegularFairValue  = "rfv"
	CollectionTargetBase        = "tbp"
	CollectionTradeSafety       = "tsv"
	CollectionMarketData        = "md"
	CollectionActive            = "ac"
	CollectionQuotingParameters = "qp-sub"
)

// Sink accepts values for asynchronous persistence.
type Sink[T any] interface {
	Persist(v T)
}

// Persister queued writer plus bounded reads, oldest first.
type Persister[T any] interface {
	Sink[T]
	// LoadAll returns up to limit most recent values accepted by filter (nil accepts all).
	LoadAll(ctx context.Context, limit int, filter func(T) bool) ([]T, error)
}

// Repository persister whose reads fall back to a default value.
type Repository[T any] interface {
	Persister[T]
	LoadLatest(ctx context.Context) (T, error)
	FindByID(ctx context.Context, id uint64) (T, error)
}

// RawLoader type-erased read access used by the data endpoint.
type RawLoader interface {
	LoadRaw(ctx context.Context, limit int) ([]json.RawMessage, error)
}
