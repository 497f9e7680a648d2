package types

import "time"

// Table names of the relational schema. Successors reading the upgraded
// database rely on these names and their column sets.
const (
	TableDomains      = "domains"
	TableAuthCache    = "authcache"
	TableRosterInfo   = "rosterinfo"
	TableRosterGroups = "rostergroups"
)

// Tables lists every table created by the upgrade, in creation order.
var Tables = []string{
	TableAuthCache,
	TableDomains,
	TableRosterInfo,
	TableRosterGroups,
}

// DomainCredential is one row of the domains table as decoded from the
// legacy domain database. RegFirst and RegLatest are left to the column
// defaults (migration time) when zero.
type DomainCredential struct {
	XMPPDomain string
	AuthSecret string
	AuthURL    string
	AuthDomain string
	RegContact *string
	RegFirst   time.Time
	RegLatest  time.Time

	// Extra holds the optional fourth legacy field. It is parsed but not
	// persisted.
	Extra *string
}

// AuthCacheRecord is one row of the authcache table.
type AuthCacheRecord struct {
	JID        string
	PWHash     string
	FirstAuth  time.Time
	RemoteAuth time.Time
	AnyAuth    time.Time
}

// RosterUser is one row of the rosterinfo table. A nil field means the
// user did not appear in the corresponding legacy key family.
type RosterUser struct {
	JID          string
	FullName     *string
	GroupList    *string
	ResponseHash *string
}

// RosterGroup is one row of the rostergroups table.
type RosterGroup struct {
	GroupName string
	UserList  string
}
