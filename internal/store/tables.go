package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Tx is a write transaction opened by Store.WithTx. Statements are prepared
// once per transaction and reused for every row.
type Tx struct {
	tx    *sql.Tx
	d     dialect
	stmts map[string]*sql.Stmt
}

func (t *Tx) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := t.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, t.d.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	t.stmts[query] = stmt
	return stmt, nil
}

func (t *Tx) closeStmts() {
	for _, stmt := range t.stmts {
		stmt.Close()
	}
	t.stmts = nil
}

func (t *Tx) exec(ctx context.Context, table, key, query string, args ...any) error {
	stmt, err := t.prepare(ctx, query)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		if t.d.isConflict(err) {
			return fmt.Errorf("%w: %s %q: %v", types.ErrInsertConflict, table, key, err)
		}
		return fmt.Errorf("inserting into %s %q: %w", table, key, err)
	}
	return nil
}

// InsertDomain inserts one domains row. Zero registration times fall back to
// the current time.
func (t *Tx) InsertDomain(ctx context.Context, rec types.DomainCredential) error {
	return t.exec(ctx, types.TableDomains, rec.XMPPDomain, insertDomain,
		rec.XMPPDomain, rec.AuthSecret, rec.AuthURL, rec.AuthDomain,
		nullString(rec.RegContact), nullTime(rec.RegFirst), nullTime(rec.RegLatest))
}

// InsertAuthCache inserts one authcache row.
func (t *Tx) InsertAuthCache(ctx context.Context, rec types.AuthCacheRecord) error {
	return t.exec(ctx, types.TableAuthCache, rec.JID, insertAuthCache,
		rec.JID, rec.PWHash, rec.FirstAuth.UTC(), rec.RemoteAuth.UTC(), rec.AnyAuth.UTC())
}

// InsertRosterGroups inserts every group with one prepared statement.
func (t *Tx) InsertRosterGroups(ctx context.Context, groups []types.RosterGroup) error {
	for _, g := range groups {
		if err := t.exec(ctx, types.TableRosterGroups, g.GroupName, insertRosterGroup, g.GroupName, g.UserList); err != nil {
			return err
		}
	}
	return nil
}

// InsertRosterUsers inserts every user with one prepared statement. Nil
// fields are stored as NULL.
func (t *Tx) InsertRosterUsers(ctx context.Context, users []types.RosterUser) error {
	for _, u := range users {
		err := t.exec(ctx, types.TableRosterInfo, u.JID, insertRosterUser,
			u.JID, nullString(u.FullName), nullString(u.GroupList), nullString(u.ResponseHash))
		if err != nil {
			return err
		}
	}
	return nil
}

// Domain returns the domains row for xmppdomain or types.ErrNotFound.
func (s *Store) Domain(ctx context.Context, xmppdomain string) (types.DomainCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return types.DomainCredential{}, err
	}
	var (
		rec        types.DomainCredential
		regContact sql.NullString
	)
	err = db.QueryRowContext(ctx, s.d.rebind(selectDomain), xmppdomain).Scan(
		&rec.XMPPDomain, &rec.AuthSecret, &rec.AuthURL, &rec.AuthDomain,
		&regContact, &rec.RegFirst, &rec.RegLatest)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DomainCredential{}, fmt.Errorf("domain %q: %w", xmppdomain, types.ErrNotFound)
	}
	if err != nil {
		return types.DomainCredential{}, fmt.Errorf("reading domain %q: %w", xmppdomain, err)
	}
	rec.RegContact = stringPtr(regContact)
	return rec, nil
}

// AuthCache returns the authcache row for jid or types.ErrNotFound.
func (s *Store) AuthCache(ctx context.Context, jid string) (types.AuthCacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return types.AuthCacheRecord{}, err
	}
	var (
		rec    types.AuthCacheRecord
		pwhash sql.NullString
	)
	err = db.QueryRowContext(ctx, s.d.rebind(selectAuthCache), jid).Scan(
		&rec.JID, &pwhash, &rec.FirstAuth, &rec.RemoteAuth, &rec.AnyAuth)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AuthCacheRecord{}, fmt.Errorf("authcache %q: %w", jid, types.ErrNotFound)
	}
	if err != nil {
		return types.AuthCacheRecord{}, fmt.Errorf("reading authcache %q: %w", jid, err)
	}
	rec.PWHash = pwhash.String
	rec.FirstAuth = rec.FirstAuth.UTC()
	rec.RemoteAuth = rec.RemoteAuth.UTC()
	rec.AnyAuth = rec.AnyAuth.UTC()
	return rec, nil
}

// PutAuthCache inserts or replaces the authcache row for rec.JID.
func (s *Store) PutAuthCache(ctx context.Context, rec types.AuthCacheRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, s.d.rebind(upsertAuthCache),
		rec.JID, rec.PWHash, rec.FirstAuth.UTC(), rec.RemoteAuth.UTC(), rec.AnyAuth.UTC())
	if err != nil {
		return fmt.Errorf("writing authcache %q: %w", rec.JID, err)
	}
	return nil
}

// RosterUser returns the rosterinfo row for jid or types.ErrNotFound.
func (s *Store) RosterUser(ctx context.Context, jid string) (types.RosterUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return types.RosterUser{}, err
	}
	var (
		u                    types.RosterUser
		name, groups, rhHash sql.NullString
	)
	err = db.QueryRowContext(ctx, s.d.rebind(selectRosterUser), jid).Scan(&u.JID, &name, &groups, &rhHash)
	if errors.Is(err, sql.ErrNoRows) {
		return types.RosterUser{}, fmt.Errorf("rosterinfo %q: %w", jid, types.ErrNotFound)
	}
	if err != nil {
		return types.RosterUser{}, fmt.Errorf("reading rosterinfo %q: %w", jid, err)
	}
	u.FullName = stringPtr(name)
	u.GroupList = stringPtr(groups)
	u.ResponseHash = stringPtr(rhHash)
	return u, nil
}

// RosterGroups returns every rostergroups row ordered by name.
func (s *Store) RosterGroups(ctx context.Context) ([]types.RosterGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectRosterGroups)
	if err != nil {
		return nil, fmt.Errorf("listing rostergroups: %w", err)
	}
	defer rows.Close()

	var groups []types.RosterGroup
	for rows.Next() {
		var (
			g     types.RosterGroup
			users sql.NullString
		)
		if err := rows.Scan(&g.GroupName, &users); err != nil {
			return nil, fmt.Errorf("scanning rostergroups row: %w", err)
		}
		g.UserList = users.String
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rostergroups: %w", err)
	}
	return groups, nil
}

// Count returns the number of rows in one of the upgrade tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownTable, table)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

func knownTable(table string) bool {
	for _, t := range types.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
