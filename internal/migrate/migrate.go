// Package migrate upgrades the legacy hashed key-value databases into the
// relational schema.
//
// The upgrade runs once, on a freshly created target. Each family is
// migrated independently: a family whose source cannot be opened is
// skipped, a malformed record is logged and skipped, and an insert conflict
// rolls back only that family's transaction. Only a schema failure aborts
// the whole run.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Failure404/xmpp-cloud-auth/internal/decode"
	"github.com/Failure404/xmpp-cloud-auth/internal/legacy"
	"github.com/Failure404/xmpp-cloud-auth/internal/store"
	"github.com/Failure404/xmpp-cloud-auth/internal/textenc"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Sources locates the three legacy databases. A nil Ref means there is
// nothing to migrate for that family.
type Sources struct {
	Domain legacy.Ref
	Roster legacy.Ref
	Cache  legacy.Ref
}

// Migrator upgrades legacy databases into one target store.
type Migrator struct {
	store    *store.Store
	strategy types.CacheStrategy
	log      zerolog.Logger
	now      func() time.Time
}

// New returns a Migrator writing into st. The cache strategy decides whether
// legacy auth-cache entries are copied into the primary store.
func New(st *store.Store, strategy types.CacheStrategy, log zerolog.Logger) *Migrator {
	return &Migrator{
		store:    st,
		strategy: strategy,
		log:      log,
		now:      time.Now,
	}
}

// Upgrade creates the schema and migrates every family. The returned report
// is never nil. The error is non-nil only when schema creation failed; it
// then wraps types.ErrSchemaCreation and the report lists the families that
// ran before the failure, ending with the one whose tables could not be
// created.
//
// A family whose tables already hold rows is left untouched and reported as
// present, so running Upgrade again on a partly upgraded target resumes it.
func (m *Migrator) Upgrade(ctx context.Context, src Sources) (*Report, error) {
	report := &Report{
		RunID:    newRunID(),
		Target:   m.store.String(),
		Strategy: m.strategy,
		Started:  m.now().UTC(),
	}
	log := m.log.With().Str("run_id", report.RunID).Logger()
	defer func() { report.Finished = m.now().UTC() }()

	// The persistent cache table exists whatever the strategy, so that a
	// later strategy change needs no further upgrade.
	if err := m.store.CreateAuthCacheSchema(ctx); err != nil {
		return report, m.schemaFailed(log, report, FamilyAuthCache, src.Cache, err)
	}

	if err := m.store.CreateDomainSchema(ctx); err != nil {
		return report, m.schemaFailed(log, report, FamilyDomains, src.Domain, err)
	}
	report.Families = append(report.Families, m.migrateDomains(ctx, log, src.Domain))

	if err := m.store.CreateRosterSchema(ctx); err != nil {
		return report, m.schemaFailed(log, report, FamilyRoster, src.Roster, err)
	}
	report.Families = append(report.Families, m.migrateRoster(ctx, log, src.Roster))

	if m.strategy == types.CacheShared {
		report.Families = append(report.Families, m.migrateAuthCache(ctx, log, src.Cache))
	} else {
		out := Outcome{Family: FamilyAuthCache, Status: StatusDeferred}
		if src.Cache != nil {
			out.Source = src.Cache.String()
		}
		log.Info().Str("family", string(FamilyAuthCache)).Stringer("strategy", m.strategy).
			Msg("auth cache not stored in primary database, leaving table empty")
		report.Families = append(report.Families, out)
	}

	return report, nil
}

// schemaFailed records the family whose tables could not be created and
// returns the fatal error.
func (m *Migrator) schemaFailed(log zerolog.Logger, report *Report, family Family, ref legacy.Ref, err error) error {
	out := Outcome{Family: family}
	if ref != nil {
		out.Source = ref.String()
	}
	err = fmt.Errorf("creating %s tables: %w", family, err)
	out.setErr(StatusFailed, err)
	report.Families = append(report.Families, out)
	log.Error().Err(err).Str("family", string(family)).Msg("schema creation failed, aborting upgrade")
	return err
}

// Needed reports whether st lacks any table of the upgrade, either because
// it was never upgraded or because an earlier upgrade stopped on a schema
// failure.
func Needed(ctx context.Context, st *store.Store) (bool, error) {
	for _, table := range types.Tables {
		ok, err := st.HasTable(ctx, table)
		if err != nil {
			return false, fmt.Errorf("inspecting schema: %w", err)
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}

// populated reports whether any of tables already holds rows.
func (m *Migrator) populated(ctx context.Context, tables ...string) (bool, error) {
	for _, table := range tables {
		n, err := m.store.Count(ctx, table)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// insertFunc decodes one normalized pair and inserts it. Errors wrapping
// types.ErrRecordDecode skip the record; any other error aborts the family.
type insertFunc func(ctx context.Context, tx *store.Tx, key, value string) error

func (m *Migrator) migrateDomains(ctx context.Context, log zerolog.Logger, ref legacy.Ref) Outcome {
	return m.stream(ctx, log, FamilyDomains, ref, []string{types.TableDomains}, func(ctx context.Context, tx *store.Tx, key, value string) error {
		rec, err := decode.Domain(key, value)
		if err != nil {
			return err
		}
		return tx.InsertDomain(ctx, rec)
	})
}

func (m *Migrator) migrateAuthCache(ctx context.Context, log zerolog.Logger, ref legacy.Ref) Outcome {
	return m.stream(ctx, log, FamilyAuthCache, ref, []string{types.TableAuthCache}, func(ctx context.Context, tx *store.Tx, key, value string) error {
		rec, err := decode.AuthCache(key, value)
		if err != nil {
			return err
		}
		return tx.InsertAuthCache(ctx, rec)
	})
}

// stream decodes and inserts every pair of one source inside a single
// transaction.
func (m *Migrator) stream(ctx context.Context, log zerolog.Logger, family Family, ref legacy.Ref, tables []string, insert insertFunc) Outcome {
	out, src, ok := m.open(ctx, log, family, ref, tables)
	if !ok {
		return out
	}
	defer closeSource(log, family, src)
	log = log.With().Str("family", string(family)).Logger()

	var read, inserted, decodeErrors int
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		return src.Each(func(k, v []byte) error {
			read++
			key, value := textenc.Normalize(k), textenc.Normalize(v)
			err := insert(ctx, tx, key, value)
			if errors.Is(err, types.ErrRecordDecode) {
				decodeErrors++
				log.Error().Err(err).Str("key", key).Msg("skipping malformed record")
				return nil
			}
			if err != nil {
				return err
			}
			inserted++
			return nil
		})
	})

	out.Read, out.DecodeErrors = read, decodeErrors
	return m.finish(log, out, inserted, err)
}

func (m *Migrator) migrateRoster(ctx context.Context, log zerolog.Logger, ref legacy.Ref) Outcome {
	out, src, ok := m.open(ctx, log, FamilyRoster, ref, []string{types.TableRosterGroups, types.TableRosterInfo})
	if !ok {
		return out
	}
	defer closeSource(log, FamilyRoster, src)
	log = log.With().Str("family", string(FamilyRoster)).Logger()

	set := decode.NewRosterSet()
	err := src.Each(func(k, v []byte) error {
		out.Read++
		key := textenc.Normalize(k)
		if set.Add(key, textenc.Normalize(v)) == decode.FamilyUnknown {
			log.Debug().Str("key", key).Msg("ignoring roster key outside the known families")
		}
		return nil
	})
	out.Ignored, out.Dropped = set.Ignored, set.Dropped
	if set.Dropped > 0 {
		log.Info().Int("dropped", set.Dropped).Msg("dropped full-name entries without a domain")
	}
	if err != nil {
		return m.finish(log, out, 0, err)
	}

	groups, users := set.Join()
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertRosterGroups(ctx, groups); err != nil {
			return err
		}
		return tx.InsertRosterUsers(ctx, users)
	})
	log.Debug().Int("groups", len(groups)).Int("users", len(users)).Msg("joined roster families")
	return m.finish(log, out, len(groups)+len(users), err)
}

// open opens a family source. ok is false when there is nothing to migrate;
// out then holds the final outcome.
func (m *Migrator) open(ctx context.Context, log zerolog.Logger, family Family, ref legacy.Ref, tables []string) (out Outcome, src legacy.Source, ok bool) {
	out = Outcome{Family: family}
	if ref == nil {
		out.Status = StatusAbsent
		log.Debug().Str("family", string(family)).Msg("no legacy source configured")
		return out, nil, false
	}
	out.Source = ref.String()

	done, err := m.populated(ctx, tables...)
	if err != nil {
		out.setErr(StatusFailed, err)
		log.Error().Err(err).Str("family", string(family)).Msg("inspecting target tables")
		return out, nil, false
	}
	if done {
		out.Status = StatusPresent
		log.Info().Str("family", string(family)).Msg("tables already populated by an earlier run, leaving them untouched")
		return out, nil, false
	}
	log.Debug().Str("family", string(family)).Str("source", out.Source).Msg("upgrading")

	src, err = ref.Open()
	if err != nil {
		out.setErr(StatusSkipped, err)
		log.Error().Err(err).Str("family", string(family)).Str("source", out.Source).Msg("trouble converting legacy database")
		return out, nil, false
	}
	return out, src, true
}

// finish sets the final status of a family that was opened.
func (m *Migrator) finish(log zerolog.Logger, out Outcome, inserted int, err error) Outcome {
	switch {
	case err == nil && out.DecodeErrors > 0:
		out.Status = StatusPartial
		out.Inserted = inserted
	case err == nil:
		out.Status = StatusSucceeded
		out.Inserted = inserted
	case errors.Is(err, types.ErrSourceUnavailable):
		out.setErr(StatusSkipped, err)
	default:
		out.setErr(StatusFailed, err)
	}

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("status", string(out.Status)).
		Int("read", out.Read).
		Int("inserted", out.Inserted).
		Int("decode_errors", out.DecodeErrors).
		Msg("family upgrade finished")
	return out
}

func closeSource(log zerolog.Logger, family Family, src legacy.Source) {
	if err := src.Close(); err != nil {
		log.Warn().Err(err).Str("family", string(family)).Msg("closing legacy source")
	}
}
