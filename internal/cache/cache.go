// Package cache selects where authentication cache entries live and hides
// the choice behind one Handle contract.
//
// Callers never branch on the strategy: an ephemeral in-memory store, the
// shared primary store and the disabled NullStore all read, write and close
// the same way.
package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Failure404/xmpp-cloud-auth/internal/store"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Handle is the live authentication cache.
type Handle interface {
	// Get returns the entry for jid, or an error wrapping types.ErrNotFound.
	Get(ctx context.Context, jid string) (types.AuthCacheRecord, error)

	// Put inserts or replaces the entry for rec.JID.
	Put(ctx context.Context, rec types.AuthCacheRecord) error

	// Close releases resources owned by the handle. Close is idempotent.
	Close() error
}

// Selector builds the Handle for one cache strategy. The strategy is fixed
// at construction and stays the same for the life of the process.
type Selector struct {
	strategy types.CacheStrategy
	log      zerolog.Logger
}

// NewSelector returns a Selector for strategy.
func NewSelector(strategy types.CacheStrategy, log zerolog.Logger) *Selector {
	return &Selector{strategy: strategy, log: log}
}

// Strategy returns the configured strategy.
func (s *Selector) Strategy() types.CacheStrategy { return s.strategy }

// Select returns the cache handle for the configured strategy. Whatever the
// strategy, the persistent authcache table is ensured on primary first, so
// that switching strategies later needs no further upgrade.
func (s *Selector) Select(ctx context.Context, primary *store.Store) (Handle, error) {
	if err := primary.CreateAuthCacheSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensuring persistent cache table: %w", err)
	}

	switch s.strategy {
	case types.CacheEphemeral:
		mem, err := store.OpenMemory(ctx)
		if err != nil {
			return nil, fmt.Errorf("opening in-memory cache: %w", err)
		}
		// The in-memory database starts empty every time.
		if err := mem.CreateAuthCacheSchema(ctx); err != nil {
			mem.Close()
			return nil, fmt.Errorf("creating in-memory cache table: %w", err)
		}
		s.log.Debug().Msg("auth cache kept in memory")
		return &storeHandle{store: mem, owned: true}, nil
	case types.CacheShared:
		s.log.Debug().Str("store", primary.String()).Msg("auth cache shared with primary database")
		return &storeHandle{store: primary}, nil
	default:
		s.log.Debug().Msg("auth cache disabled")
		return NullStore{}, nil
	}
}

// storeHandle serves the cache from a relational store. It closes the store
// only if it owns it; the shared primary store is closed by its opener.
type storeHandle struct {
	store *store.Store
	owned bool
}

func (h *storeHandle) Get(ctx context.Context, jid string) (types.AuthCacheRecord, error) {
	return h.store.AuthCache(ctx, jid)
}

func (h *storeHandle) Put(ctx context.Context, rec types.AuthCacheRecord) error {
	return h.store.PutAuthCache(ctx, rec)
}

func (h *storeHandle) Close() error {
	if !h.owned {
		return nil
	}
	return h.store.Close()
}

// NullStore is the Handle of a disabled cache. Put discards the entry, Get
// never finds anything, and Close does nothing. None of them fail.
type NullStore struct{}

// Get always reports types.ErrNotFound.
func (NullStore) Get(_ context.Context, jid string) (types.AuthCacheRecord, error) {
	return types.AuthCacheRecord{}, fmt.Errorf("authcache %q: %w", jid, types.ErrNotFound)
}

// Put discards rec.
func (NullStore) Put(context.Context, types.AuthCacheRecord) error { return nil }

// Close is a no-op.
func (NullStore) Close() error { return nil }
