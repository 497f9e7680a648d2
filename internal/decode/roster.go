package decode

import (
	"sort"
	"strings"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Family identifies one of the key families stored in the legacy shared
// roster database.
type Family int

// Roster key families.
const (
	FamilyUnknown Family = iota
	FamilyFullName
	FamilyLoginInGroup
	FamilyReverseGroup
	FamilyResponseHash
)

var familyPrefixes = []struct {
	family Family
	prefix string
}{
	{FamilyFullName, "FNC:"},
	{FamilyLoginInGroup, "LIG:"},
	{FamilyReverseGroup, "RGC:"},
	{FamilyResponseHash, "RH:"},
}

// String returns the legacy key prefix tag of the family.
func (f Family) String() string {
	for _, p := range familyPrefixes {
		if p.family == f {
			return strings.TrimSuffix(p.prefix, ":")
		}
	}
	return "unknown"
}

// Classify returns the family of a roster key and the key with its prefix
// removed. ok is false for keys outside the four known families.
func Classify(key string) (family Family, rest string, ok bool) {
	for _, p := range familyPrefixes {
		if rest, found := strings.CutPrefix(key, p.prefix); found {
			return p.family, rest, true
		}
	}
	return FamilyUnknown, "", false
}

// JIDFromKey rebuilds a jid from a roster key remainder, where the legacy
// store wrote every '@' as ':'.
func JIDFromKey(rest string) string {
	return strings.ReplaceAll(rest, ":", "@")
}

// FullName decodes an FNC entry. Entries whose jid has no '@' were written
// by an old buggy release and are dropped (ok is false).
func FullName(rest, value string) (jid, fullName string, ok bool) {
	jid = JIDFromKey(rest)
	if !strings.Contains(jid, "@") {
		return "", "", false
	}
	return jid, value, true
}

// LoginInGroup decodes a LIG entry into the user's group list.
func LoginInGroup(rest, value string) (jid, groupList string) {
	return JIDFromKey(rest), value
}

// ResponseHash decodes an RH entry into the user's response body hash.
func ResponseHash(rest, value string) (jid, hash string) {
	return JIDFromKey(rest), value
}

// ReverseGroup decodes an RGC entry. The key remainder is the group id.
func ReverseGroup(rest, value string) types.RosterGroup {
	return types.RosterGroup{GroupName: rest, UserList: value}
}

// RosterSet accumulates the four roster key families during one pass over
// the legacy roster database. Join turns it into table rows.
type RosterSet struct {
	FullNames      map[string]string
	GroupLists     map[string]string
	ResponseHashes map[string]string
	Groups         map[string]string

	// Ignored counts keys outside the known families; Dropped counts FNC
	// entries without a usable jid.
	Ignored int
	Dropped int
}

// NewRosterSet returns an empty RosterSet.
func NewRosterSet() *RosterSet {
	return &RosterSet{
		FullNames:      make(map[string]string),
		GroupLists:     make(map[string]string),
		ResponseHashes: make(map[string]string),
		Groups:         make(map[string]string),
	}
}

// Add files one normalized legacy pair under its family and returns the
// family it was filed under. Unknown keys are counted and ignored.
func (s *RosterSet) Add(key, value string) Family {
	family, rest, ok := Classify(key)
	if !ok {
		s.Ignored++
		return FamilyUnknown
	}
	switch family {
	case FamilyFullName:
		jid, name, ok := FullName(rest, value)
		if !ok {
			s.Dropped++
			return family
		}
		s.FullNames[jid] = name
	case FamilyLoginInGroup:
		jid, groups := LoginInGroup(rest, value)
		s.GroupLists[jid] = groups
	case FamilyResponseHash:
		jid, hash := ResponseHash(rest, value)
		s.ResponseHashes[jid] = hash
	case FamilyReverseGroup:
		g := ReverseGroup(rest, value)
		s.Groups[g.GroupName] = g.UserList
	}
	return family
}

// Join returns one group row per RGC key and one user row per jid seen in
// the FNC, LIG or RH families. Both slices are sorted by key.
func (s *RosterSet) Join() ([]types.RosterGroup, []types.RosterUser) {
	groups := make([]types.RosterGroup, 0, len(s.Groups))
	for name, users := range s.Groups {
		groups = append(groups, types.RosterGroup{GroupName: name, UserList: users})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupName < groups[j].GroupName })

	seen := make(map[string]struct{}, len(s.FullNames)+len(s.GroupLists)+len(s.ResponseHashes))
	for _, m := range []map[string]string{s.FullNames, s.GroupLists, s.ResponseHashes} {
		for jid := range m {
			seen[jid] = struct{}{}
		}
	}
	jids := make([]string, 0, len(seen))
	for jid := range seen {
		jids = append(jids, jid)
	}
	sort.Strings(jids)

	users := make([]types.RosterUser, 0, len(jids))
	for _, jid := range jids {
		users = append(users, types.RosterUser{
			JID:          jid,
			FullName:     lookup(s.FullNames, jid),
			GroupList:    lookup(s.GroupLists, jid),
			ResponseHash: lookup(s.ResponseHashes, jid),
		})
	}
	return groups, users
}

func lookup(m map[string]string, key string) *string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}
