// Package store implements the relational target of the legacy upgrade and
// the persistent auth-cache table.
//
// SQLite (modernc.org/sqlite) is the default engine; PostgreSQL is reached
// through the pgx stdlib driver. Both speak the same schema, and every
// statement is written once with '?' placeholders.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Store is an open target database.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	d      dialect
	dsn    string
	memory bool
}

// Open connects to the store described by cfg. SQLite connections are
// limited to one so that ":memory:" databases keep a single shared state and
// writers never contend for the file lock.
func Open(ctx context.Context, cfg types.StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := dialectFor(cfg.DriverOrDefault())
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	memory := d == sqliteDialect && dsn == types.MemoryDSN
	if d == sqliteDialect {
		dsn = sqliteDSN(dsn, memory)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", d.name, err)
	}
	if d == sqliteDialect {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s store: %w", d.name, err)
	}

	return &Store{db: db, d: d, dsn: cfg.DSN, memory: memory}, nil
}

// sqliteDSN appends driver parameters: times are written in SQLite's own
// text format, and file databases wait on a busy lock instead of failing.
func sqliteDSN(dsn string, memory bool) string {
	params := []string{"_time_format=sqlite"}
	if !memory {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// OpenMemory opens a transient in-memory SQLite store. Its contents vanish
// on Close.
func OpenMemory(ctx context.Context) (*Store, error) {
	return Open(ctx, types.StoreConfig{Driver: types.DriverSQLite, DSN: types.MemoryDSN})
}

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.d.name }

// IsMemory reports whether the store is a transient in-memory database.
func (s *Store) IsMemory() bool { return s.memory }

// String returns the store location.
func (s *Store) String() string { return s.d.name + ":" + s.dsn }

// Close releases the connection pool. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the live pool or ErrStoreClosed. The caller must hold s.mu.
func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	return s.db, nil
}

// createTables runs DDL statements; failures are schema errors.
func (s *Store) createTables(ctx context.Context, ddl ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrSchemaCreation, err)
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, s.d.schema(stmt)); err != nil {
			return fmt.Errorf("%w: %w", types.ErrSchemaCreation, err)
		}
	}
	return nil
}

// CreateAuthCacheSchema creates the authcache table if it does not exist.
func (s *Store) CreateAuthCacheSchema(ctx context.Context) error {
	return s.createTables(ctx, createAuthCache)
}

// CreateDomainSchema creates the domains table if it does not exist.
func (s *Store) CreateDomainSchema(ctx context.Context) error {
	return s.createTables(ctx, createDomains)
}

// CreateRosterSchema creates the rosterinfo and rostergroups tables if they
// do not exist.
func (s *Store) CreateRosterSchema(ctx context.Context) error {
	return s.createTables(ctx, createRosterInfo, createRosterGroups)
}

// HasTable reports whether the named table exists.
func (s *Store) HasTable(ctx context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	if err := db.QueryRowContext(ctx, s.d.hasTableQuery(), table).Scan(&n); err != nil {
		return false, fmt.Errorf("checking for table %s: %w", table, err)
	}
	return n > 0, nil
}

// WithTx runs fn inside one explicit transaction. The transaction commits
// when fn returns nil and rolls back on error or panic; panics are rethrown.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, d: s.d, stmts: make(map[string]*sql.Stmt)}

	defer func() {
		tx.closeStmts()
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
	}()

	return fn(tx)
}
