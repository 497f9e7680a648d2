package store

// Schema DDL. Table and column names are the compatibility contract for
// anything reading the upgraded database; the statements are valid for both
// SQLite and PostgreSQL.
const (
	createAuthCache = `CREATE TABLE IF NOT EXISTS authcache (
    jid        TEXT PRIMARY KEY,
    pwhash     TEXT,
    firstauth  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    remoteauth TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    anyauth    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

	createDomains = `CREATE TABLE IF NOT EXISTS domains (
    xmppdomain TEXT PRIMARY KEY,
    authsecret TEXT,
    authurl    TEXT,
    authdomain TEXT,
    regcontact TEXT,
    regfirst   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    reglatest  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

	createRosterInfo = `CREATE TABLE IF NOT EXISTS rosterinfo (
    jid          TEXT PRIMARY KEY,
    fullname     TEXT,
    grouplist    TEXT,
    responsehash TEXT
)`

	createRosterGroups = `CREATE TABLE IF NOT EXISTS rostergroups (
    groupname TEXT PRIMARY KEY,
    userlist  TEXT
)`
)

// Row statements, written with '?' placeholders and rebound per dialect.
const (
	insertDomain = `INSERT INTO domains (xmppdomain, authsecret, authurl, authdomain, regcontact, regfirst, reglatest)
VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))`

	insertAuthCache = `INSERT INTO authcache (jid, pwhash, firstauth, remoteauth, anyauth)
VALUES (?, ?, ?, ?, ?)`

	upsertAuthCache = insertAuthCache + `
ON CONFLICT (jid) DO UPDATE SET
    pwhash = excluded.pwhash,
    firstauth = excluded.firstauth,
    remoteauth = excluded.remoteauth,
    anyauth = excluded.anyauth`

	insertRosterGroup = `INSERT INTO rostergroups (groupname, userlist) VALUES (?, ?)`

	insertRosterUser = `INSERT INTO rosterinfo (jid, fullname, grouplist, responsehash) VALUES (?, ?, ?, ?)`

	selectDomain = `SELECT xmppdomain, authsecret, authurl, authdomain, regcontact, regfirst, reglatest
FROM domains WHERE xmppdomain = ?`

	selectAuthCache = `SELECT jid, pwhash, firstauth, remoteauth, anyauth FROM authcache WHERE jid = ?`

	selectRosterUser = `SELECT jid, fullname, grouplist, responsehash FROM rosterinfo WHERE jid = ?`

	selectRosterGroups = `SELECT groupname, userlist FROM rostergroups ORDER BY groupname`
)
