package migrate

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Failure404/xmpp-cloud-auth/internal/legacy"
	"github.com/Failure404/xmpp-cloud-auth/internal/store"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

func setupTarget(t *testing.T) *store.Store {
	t.Helper()
	s, _ := setupTargetFile(t)
	return s
}

func setupTargetFile(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xcauth.sqlite3")
	s, err := store.Open(context.Background(), types.StoreConfig{
		Driver: types.DriverSQLite,
		DSN:    path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// execRaw runs statements on the target file through a separate connection.
func execRaw(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func newTestMigrator(t *testing.T, s *store.Store, strategy types.CacheStrategy) (*Migrator, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(s, strategy, zerolog.New(&buf)), &buf
}

func count(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	n, err := s.Count(context.Background(), table)
	require.NoError(t, err)
	return n
}

func outcome(t *testing.T, r *Report, f Family) Outcome {
	t.Helper()
	o, ok := r.Outcome(f)
	require.True(t, ok, "no outcome for %s", f)
	return o
}

// logLines returns the decoded JSON log entries whose message equals msg.
func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == msg {
			out = append(out, entry)
		}
	}
	return out
}

func TestUpgradeSingleDomain(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheDisabled)

	report, err := m.Upgrade(ctx, Sources{
		Domain: legacy.Map(map[string]string{
			"example.org": "s3cr3t\thttp://auth\tauth.example.org",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, s, types.TableDomains))
	rec, err := s.Domain(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", rec.AuthSecret)
	assert.Equal(t, "http://auth", rec.AuthURL)
	assert.Equal(t, "auth.example.org", rec.AuthDomain)
	assert.WithinDuration(t, time.Now().UTC(), rec.RegFirst, time.Minute)
	assert.WithinDuration(t, time.Now().UTC(), rec.RegLatest, time.Minute)

	o := outcome(t, report, FamilyDomains)
	assert.Equal(t, StatusSucceeded, o.Status)
	assert.Equal(t, 1, o.Read)
	assert.Equal(t, 1, o.Inserted)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Finished.Before(report.Started))
	assert.True(t, report.Complete())
}

func TestUpgradeSkipsMalformedDomain(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, logs := newTestMigrator(t, s, types.CacheDisabled)

	report, err := m.Upgrade(ctx, Sources{
		Domain: legacy.Map(map[string]string{
			"example.org": "s3cr3t\thttp://auth\tauth.example.org",
			"broken.org":  "s3cr3t\thttp://auth",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, s, types.TableDomains))
	_, err = s.Domain(ctx, "broken.org")
	assert.ErrorIs(t, err, types.ErrNotFound)

	o := outcome(t, report, FamilyDomains)
	assert.Equal(t, StatusPartial, o.Status)
	assert.Equal(t, 2, o.Read)
	assert.Equal(t, 1, o.Inserted)
	assert.Equal(t, 1, o.DecodeErrors)

	lines := logLines(t, logs, "skipping malformed record")
	require.Len(t, lines, 1)
	assert.Equal(t, "broken.org", lines[0]["key"])
	assert.Equal(t, "error", lines[0]["level"])
}

func TestUpgradeWithoutSources(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheShared)

	report, err := m.Upgrade(ctx, Sources{})
	require.NoError(t, err)

	for _, table := range types.Tables {
		ok, err := s.HasTable(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
		assert.Equal(t, 0, count(t, s, table))
	}
	for _, f := range []Family{FamilyDomains, FamilyRoster, FamilyAuthCache} {
		assert.Equal(t, StatusAbsent, outcome(t, report, f).Status, f)
	}
	assert.True(t, report.Complete())
}

func TestUpgradeUnavailableSourceIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheDisabled)

	report, err := m.Upgrade(ctx, Sources{
		Domain: legacy.Path(filepath.Join(t.TempDir(), "missing.db")),
		Roster: legacy.Map(map[string]string{"FNC:alice:example.org": "Alice"}),
	})
	require.NoError(t, err)

	o := outcome(t, report, FamilyDomains)
	assert.Equal(t, StatusSkipped, o.Status)
	assert.ErrorIs(t, o.Err(), types.ErrSourceUnavailable)
	assert.NotEmpty(t, o.Error)

	assert.Equal(t, StatusSucceeded, outcome(t, report, FamilyRoster).Status)
	assert.Equal(t, 1, count(t, s, types.TableRosterInfo))
	assert.False(t, report.Complete())
}

func TestUpgradeConflictRollsBackOnlyThatFamily(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheDisabled)

	// Latin-1 and UTF-8 spellings of the same domain normalize to one key.
	report, err := m.Upgrade(ctx, Sources{
		Domain: legacy.Map(map[string]string{
			"m\xfcller.example": "a\tb\tc",
			"müller.example":    "d\te\tf",
			"example.org":       "g\th\ti",
		}),
		Roster: legacy.Map(map[string]string{"RGC:staff": "alice@example.org"}),
	})
	require.NoError(t, err)

	o := outcome(t, report, FamilyDomains)
	assert.Equal(t, StatusFailed, o.Status)
	assert.ErrorIs(t, o.Err(), types.ErrInsertConflict)
	assert.Equal(t, 0, o.Inserted)
	assert.Equal(t, 0, count(t, s, types.TableDomains))

	assert.Equal(t, StatusSucceeded, outcome(t, report, FamilyRoster).Status)
	assert.Equal(t, 1, count(t, s, types.TableRosterGroups))
}

func TestUpgradeRoster(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheDisabled)

	report, err := m.Upgrade(ctx, Sources{
		Roster: legacy.Map(map[string]string{
			"FNC:alice:example.org": "Alice",
			"FNC:nodomain":          "Broken",
			"LIG:alice:example.org": "staff",
			"RH:bob:example.org":    "cafe",
			"RGC:staff":             "alice@example.org",
			"XXX:other":             "ignored",
		}),
	})
	require.NoError(t, err)

	o := outcome(t, report, FamilyRoster)
	assert.Equal(t, StatusSucceeded, o.Status)
	assert.Equal(t, 6, o.Read)
	assert.Equal(t, 3, o.Inserted, "one group and two users")
	assert.Equal(t, 1, o.Ignored, "unknown prefix")
	assert.Equal(t, 1, o.Dropped, "full name without a domain")

	assert.Equal(t, 2, count(t, s, types.TableRosterInfo))
	alice, err := s.RosterUser(ctx, "alice@example.org")
	require.NoError(t, err)
	require.NotNil(t, alice.FullName)
	assert.Equal(t, "Alice", *alice.FullName)
	require.NotNil(t, alice.GroupList)
	assert.Equal(t, "staff", *alice.GroupList)
	assert.Nil(t, alice.ResponseHash)

	_, err = s.RosterUser(ctx, "nodomain")
	assert.ErrorIs(t, err, types.ErrNotFound)

	groups, err := s.RosterGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.RosterGroup{{GroupName: "staff", UserList: "alice@example.org"}}, groups)
}

func TestUpgradeAuthCacheDependsOnStrategy(t *testing.T) {
	cache := map[string]string{
		"alice@example.org": "$hash$\t3600\t7200\t10800\t",
		"bob@example.org":   "$hash$\tsoon\t7200\t10800\t",
	}

	t.Run("shared strategy copies entries", func(t *testing.T) {
		ctx := context.Background()
		s := setupTarget(t)
		m, _ := newTestMigrator(t, s, types.CacheShared)

		report, err := m.Upgrade(ctx, Sources{Cache: legacy.Map(cache)})
		require.NoError(t, err)

		o := outcome(t, report, FamilyAuthCache)
		assert.Equal(t, StatusPartial, o.Status)
		assert.Equal(t, 1, o.Inserted)
		assert.Equal(t, 1, o.DecodeErrors)

		rec, err := s.AuthCache(ctx, "alice@example.org")
		require.NoError(t, err)
		assert.True(t, time.Date(1970, 1, 1, 1, 0, 0, 0, time.UTC).Equal(rec.FirstAuth))
		assert.True(t, time.Date(1970, 1, 1, 2, 0, 0, 0, time.UTC).Equal(rec.RemoteAuth))
		assert.True(t, time.Date(1970, 1, 1, 3, 0, 0, 0, time.UTC).Equal(rec.AnyAuth))
	})

	for _, strategy := range []types.CacheStrategy{types.CacheEphemeral, types.CacheDisabled} {
		t.Run(strategy.String()+" strategy leaves table empty", func(t *testing.T) {
			ctx := context.Background()
			s := setupTarget(t)
			m, _ := newTestMigrator(t, s, strategy)

			report, err := m.Upgrade(ctx, Sources{Cache: legacy.Map(cache)})
			require.NoError(t, err)

			assert.Equal(t, StatusDeferred, outcome(t, report, FamilyAuthCache).Status)
			ok, err := s.HasTable(ctx, types.TableAuthCache)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 0, count(t, s, types.TableAuthCache))
		})
	}
}

func TestUpgradeSchemaFailureIsFatal(t *testing.T) {
	s := setupTarget(t)
	require.NoError(t, s.Close())
	m, _ := newTestMigrator(t, s, types.CacheShared)

	report, err := m.Upgrade(context.Background(), Sources{
		Domain: legacy.Map(map[string]string{"example.org": "a\tb\tc"}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSchemaCreation)
	require.NotNil(t, report)
	require.Len(t, report.Families, 1)
	assert.Equal(t, FamilyAuthCache, report.Families[0].Family)
	assert.Equal(t, StatusFailed, report.Families[0].Status)
	assert.False(t, report.Complete())
}

func TestUpgradeSchemaFailureKeepsReportAndResumes(t *testing.T) {
	ctx := context.Background()
	s, path := setupTargetFile(t)
	// An index holding the name of a roster table blocks its creation.
	execRaw(t, path, "CREATE TABLE squatter (a TEXT)", "CREATE INDEX rosterinfo ON squatter (a)")

	src := Sources{
		Domain: legacy.Map(map[string]string{"example.org": "a\tb\tc"}),
		Roster: legacy.Map(map[string]string{"FNC:alice:example.org": "Alice"}),
	}
	m, _ := newTestMigrator(t, s, types.CacheDisabled)
	report, err := m.Upgrade(ctx, src)
	require.ErrorIs(t, err, types.ErrSchemaCreation)

	require.Len(t, report.Families, 2)
	assert.Equal(t, StatusSucceeded, outcome(t, report, FamilyDomains).Status)
	roster := outcome(t, report, FamilyRoster)
	assert.Equal(t, StatusFailed, roster.Status)
	assert.ErrorIs(t, roster.Err(), types.ErrSchemaCreation)
	assert.Contains(t, roster.Error, "rosterinfo")
	assert.False(t, report.Complete())

	needed, err := Needed(ctx, s)
	require.NoError(t, err)
	assert.True(t, needed, "a stopped upgrade does not look finished")

	execRaw(t, path, "DROP INDEX rosterinfo")
	report, err = m.Upgrade(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, StatusPresent, outcome(t, report, FamilyDomains).Status)
	assert.Equal(t, StatusSucceeded, outcome(t, report, FamilyRoster).Status)
	assert.Equal(t, 1, count(t, s, types.TableDomains))
	assert.Equal(t, 1, count(t, s, types.TableRosterInfo))
	assert.True(t, report.Complete())

	needed, err = Needed(ctx, s)
	require.NoError(t, err)
	assert.False(t, needed)
}

func TestUpgradeRerunFillsEmptyFamilies(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheDisabled)

	report, err := m.Upgrade(ctx, Sources{
		Domain: legacy.Map(map[string]string{"m\xfcller.example": "a\tb\tc", "müller.example": "d\te\tf"}),
		Roster: legacy.Map(map[string]string{"RGC:staff": "alice@example.org"}),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome(t, report, FamilyDomains).Status)

	report, err = m.Upgrade(ctx, Sources{
		Domain: legacy.Map(map[string]string{"müller.example": "d\te\tf"}),
		Roster: legacy.Map(map[string]string{"RGC:other": "bob@example.org"}),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, outcome(t, report, FamilyDomains).Status)
	assert.Equal(t, StatusPresent, outcome(t, report, FamilyRoster).Status)

	groups, err := s.RosterGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.RosterGroup{{GroupName: "staff", UserList: "alice@example.org"}}, groups)
}

func TestUpgradeSkipsOutOfRangeTimestamps(t *testing.T) {
	ctx := context.Background()
	s := setupTarget(t)
	m, logs := newTestMigrator(t, s, types.CacheShared)

	report, err := m.Upgrade(ctx, Sources{Cache: legacy.Map(map[string]string{
		"alice@example.org": "$hash$\t3600\t7200\t10800\t",
		"bob@example.org":   "$hash$\t99999999999999\t1\t1\t",
		"carol@example.org": "$hash$\t1\t1e20\t1\t",
	})})
	require.NoError(t, err)

	o := outcome(t, report, FamilyAuthCache)
	assert.Equal(t, StatusPartial, o.Status)
	assert.Equal(t, 1, o.Inserted)
	assert.Equal(t, 2, o.DecodeErrors)
	assert.Len(t, logLines(t, logs, "skipping malformed record"), 2)

	_, err = s.AuthCache(ctx, "bob@example.org")
	assert.ErrorIs(t, err, types.ErrNotFound)
	rec, err := s.AuthCache(ctx, "alice@example.org")
	require.NoError(t, err)
	assert.True(t, time.Unix(10800, 0).Equal(rec.AnyAuth))
}

func TestReportRendering(t *testing.T) {
	s := setupTarget(t)
	m, _ := newTestMigrator(t, s, types.CacheShared)
	report, err := m.Upgrade(context.Background(), Sources{
		Domain: legacy.Map(map[string]string{"example.org": "a\tb"}),
	})
	require.NoError(t, err)

	var y bytes.Buffer
	require.NoError(t, report.WriteYAML(&y))
	assert.Contains(t, y.String(), "cache_strategy: shared")
	assert.Contains(t, y.String(), "status: partial")
	assert.Contains(t, y.String(), "decode_errors: 1")

	var j bytes.Buffer
	require.NoError(t, report.WriteJSON(&j))
	var decoded struct {
		RunID    string `json:"run_id"`
		Strategy string `json:"cache_strategy"`
		Families []struct {
			Family string `json:"family"`
			Status string `json:"status"`
		} `json:"families"`
	}
	require.NoError(t, json.Unmarshal(j.Bytes(), &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Equal(t, "shared", decoded.Strategy)
	require.Len(t, decoded.Families, 3)
	assert.Equal(t, "domains", decoded.Families[0].Family)
	assert.Equal(t, "partial", decoded.Families[0].Status)
}
