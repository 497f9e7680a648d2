package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name       string
	driverName string
	dollar     bool
}

var (
	sqliteDialect   = dialect{name: types.DriverSQLite, driverName: "sqlite"}
	postgresDialect = dialect{name: types.DriverPostgres, driverName: "pgx", dollar: true}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case types.DriverSQLite, "":
		return sqliteDialect, nil
	case types.DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, types.ErrDriverUnknown
	}
}

// rebind rewrites '?' placeholders as $1, $2, ... for PostgreSQL. None of
// the statements in this package contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// schema adapts a DDL statement. PostgreSQL stores timestamps as
// TIMESTAMPTZ so that CURRENT_TIMESTAMP defaults keep their zone and read
// back as the same instant.
func (d dialect) schema(ddl string) string {
	if !d.dollar {
		return ddl
	}
	return strings.ReplaceAll(ddl, " TIMESTAMP ", " TIMESTAMPTZ ")
}

func (d dialect) hasTableQuery() string {
	if d.dollar {
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// isConflict reports whether err is a primary key or unique violation.
func (d dialect) isConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
