package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Dump calls fn with the column names and the text of every row of table.
// NULL is rendered as "NULL" and times as RFC 3339 in UTC.
func (s *Store) Dump(ctx context.Context, table string, fn func(columns, row []string) error) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %q", types.ErrUnknownTable, table)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY 1")
	if err != nil {
		return fmt.Errorf("dumping %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("dumping %s: %w", table, err)
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning %s row: %w", table, err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		if err := fn(columns, row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
