// Package media resolves cosmetic artwork for the dashboard: book covers,
// podcast artwork and newsletter logos. Each kind of lookup is an ordered
// chain of third-party sources tried until one answers.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"personalos/internal/cache"
	"personalos/internal/core"
	"personalos/internal/log"
)

// Strategy is one named source in a lookup chain. Lookup returns an error
// wrapping core.ErrNotFound when the source has no answer.
type Strategy[Q, T any] struct {
	Name   string
	Lookup func(ctx context.Context, q Q) (T, error)
	// Fallback results are returned but never cached, so the real
	// sources are asked again on the next lookup.
	Fallback bool
}

// Found is a chain result together with the strategy that produced it.
type Found[T any] struct {
	Value  T
	Source string
}

// Chain tries strategies in order and returns the first success.
//
// A failing source never stops the chain. When nothing succeeds the chain
// reports core.ErrNotFound if at least one source answered "not found",
// and a core.FetchErrors only when every source failed.
type Chain[Q, T any] struct {
	kind       string
	key        func(Q) string
	strategies []Strategy[Q, T]
	cache      *cache.LRUCache[Found[T]]
}

// NewChain builds a chain. key derives the cache key from a query; a nil
// cache disables caching.
func NewChain[Q, T any](kind string, key func(Q) string, c *cache.LRUCache[Found[T]], strategies ...Strategy[Q, T]) *Chain[Q, T] {
	return &Chain[Q, T]{
		kind:       kind,
		key:        key,
		strategies: strategies,
		cache:      c,
	}
}

// Lookup runs the chain for q.
func (c *Chain[Q, T]) Lookup(ctx context.Context, q Q) (Found[T], error) {
	key := c.key(q)
	if c.cache != nil {
		if f, ok := c.cache.Get(key); ok {
			return f, nil
		}
	}

	sl := log.NewStructuredLogger(log.FromContext(ctx))

	var (
		failed   core.FetchErrors
		notFound bool
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Found[T]{}, err
		}

		v, err := s.Lookup(ctx, q)
		switch {
		case err == nil:
			f := Found[T]{Value: v, Source: s.Name}
			if c.cache != nil && !s.Fallback {
				c.cache.Set(key, f)
			}
			sl.LogLookup(ctx, c.kind, key, s.Name)
			return f, nil
		case errors.Is(err, core.ErrNotFound):
			notFound = true
		default:
			slog.WarnContext(ctx, "Media source failed",
				log.FieldComponent, log.ComponentMedia,
				log.FieldLookupSource, s.Name,
				log.FieldLookupKey, key,
				log.FieldError, err)
			failed = append(failed, &core.UpstreamFetchError{Resource: c.kind + ":" + s.Name, Err: err})
		}
	}

	sl.LogLookup(ctx, c.kind, key, "")
	if notFound || len(failed) == 0 {
		return Found[T]{}, fmt.Errorf("%s %q: %w", c.kind, key, core.ErrNotFound)
	}
	return Found[T]{}, failed
}
