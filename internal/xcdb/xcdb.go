// Package xcdb opens the xcauth database: the primary relational store, the
// auth cache handle in front of it and, when the target lacks any of its
// tables, the upgrade of the legacy databases into it.
package xcdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Failure404/xmpp-cloud-auth/internal/cache"
	"github.com/Failure404/xmpp-cloud-auth/internal/legacy"
	"github.com/Failure404/xmpp-cloud-auth/internal/migrate"
	"github.com/Failure404/xmpp-cloud-auth/internal/store"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Conn is an open xcauth database.
type Conn struct {
	Store *store.Store
	Cache cache.Handle

	// Report describes the legacy upgrade run while connecting. It is nil
	// when no upgrade ran.
	Report *migrate.Report
}

// UpgradeError is returned when the legacy upgrade stopped on a schema
// failure. Report lists the families handled before it.
type UpgradeError struct {
	Report *migrate.Report
	Err    error
}

func (e *UpgradeError) Error() string { return "upgrading legacy databases: " + e.Err.Error() }

func (e *UpgradeError) Unwrap() error { return e.Err }

// Connect opens the database described by cfg. A target missing any table
// of the schema, or an in-memory one, receives the schema and the contents
// of the configured legacy databases before Connect returns. Families whose
// tables were already populated by an earlier run are left alone.
func Connect(ctx context.Context, cfg types.Config, log zerolog.Logger) (*Conn, error) {
	return connect(ctx, cfg, log, false)
}

// Upgrade is Connect, except that the upgrade runs even when the schema is
// complete. Families left empty by a skipped or failed run are migrated
// again from the configured sources.
func Upgrade(ctx context.Context, cfg types.Config, log zerolog.Logger) (*Conn, error) {
	return connect(ctx, cfg, log, true)
}

func connect(ctx context.Context, cfg types.Config, log zerolog.Logger, force bool) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	fresh, err := isFresh(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	strategy := cfg.Strategy()
	handle, err := cache.NewSelector(strategy, log).Select(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	conn := &Conn{Store: st, Cache: handle}

	log.Info().
		Str("db", st.String()).
		Str("domain_db", cfg.DomainDB).
		Str("shared_roster_db", cfg.SharedRosterDB).
		Str("cache_db", cfg.CacheDB).
		Stringer("cache_storage", strategy).
		Bool("fresh", fresh).
		Msg("initializing database")

	if !fresh && !force {
		return conn, nil
	}

	report, err := migrate.New(st, strategy, log).Upgrade(ctx, migrate.Sources{
		Domain: legacy.Path(cfg.DomainDB),
		Roster: legacy.Path(cfg.SharedRosterDB),
		Cache:  legacy.Path(cfg.CacheDB),
	})
	conn.Report = report
	if err != nil {
		uerr := &UpgradeError{Report: report, Err: err}
		if cerr := conn.Close(); cerr != nil {
			return nil, errors.Join(uerr, cerr)
		}
		return nil, uerr
	}
	return conn, nil
}

func isFresh(ctx context.Context, st *store.Store) (bool, error) {
	if st.IsMemory() {
		return true, nil
	}
	return migrate.Needed(ctx, st)
}

// Close closes the cache handle and then the primary store.
func (c *Conn) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	errs = append(errs, c.Store.Close())
	return errors.Join(errs...)
}
