package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		key    string
		family Family
		rest   string
		ok     bool
	}{
		{"FNC:alice:example.org", FamilyFullName, "alice:example.org", true},
		{"LIG:bob:example.org", FamilyLoginInGroup, "bob:example.org", true},
		{"RGC:staff", FamilyReverseGroup, "staff", true},
		{"RH:carol:example.org", FamilyResponseHash, "carol:example.org", true},
		{"XYZ:dave:example.org", FamilyUnknown, "", false},
		{"FNC", FamilyUnknown, "", false},
		{"rh:lower:case", FamilyUnknown, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			family, rest, ok := Classify(tt.key)
			assert.Equal(t, tt.family, family)
			assert.Equal(t, tt.rest, rest)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestFamilyString(t *testing.T) {
	assert.Equal(t, "FNC", FamilyFullName.String())
	assert.Equal(t, "LIG", FamilyLoginInGroup.String())
	assert.Equal(t, "RGC", FamilyReverseGroup.String())
	assert.Equal(t, "RH", FamilyResponseHash.String())
	assert.Equal(t, "unknown", FamilyUnknown.String())
}

func TestFullName(t *testing.T) {
	jid, name, ok := FullName("alice:example.org", "Alice A.")
	require.True(t, ok)
	assert.Equal(t, "alice@example.org", jid)
	assert.Equal(t, "Alice A.", name)

	_, _, ok = FullName("nodomain", "Nobody")
	assert.False(t, ok, "jid without @ is dropped")
}

func TestRosterSetJoin(t *testing.T) {
	s := NewRosterSet()
	pairs := [][2]string{
		{"FNC:alice:example.org", "Alice"},
		{"FNC:nodomain", "Broken"},
		{"LIG:alice:example.org", "staff\tadmins"},
		{"LIG:nodomain", "staff"},
		{"RH:bob:example.org", "deadbeef"},
		{"RGC:staff", "alice@example.org\tnodomain"},
		{"RGC:admins", "alice@example.org"},
		{"VER:schema", "3"},
	}
	for _, p := range pairs {
		s.Add(p[0], p[1])
	}
	assert.Equal(t, 1, s.Ignored)
	assert.Equal(t, 1, s.Dropped)

	groups, users := s.Join()

	assert.Equal(t, []types.RosterGroup{
		{GroupName: "admins", UserList: "alice@example.org"},
		{GroupName: "staff", UserList: "alice@example.org\tnodomain"},
	}, groups)

	require.Len(t, users, 3)

	alice := users[0]
	assert.Equal(t, "alice@example.org", alice.JID)
	require.NotNil(t, alice.FullName)
	assert.Equal(t, "Alice", *alice.FullName)
	require.NotNil(t, alice.GroupList)
	assert.Equal(t, "staff\tadmins", *alice.GroupList)
	assert.Nil(t, alice.ResponseHash)

	bob := users[1]
	assert.Equal(t, "bob@example.org", bob.JID)
	assert.Nil(t, bob.FullName)
	assert.Nil(t, bob.GroupList)
	require.NotNil(t, bob.ResponseHash)
	assert.Equal(t, "deadbeef", *bob.ResponseHash)

	// The FNC entry for "nodomain" is dropped, but the LIG entry keeps
	// the user in the set.
	nd := users[2]
	assert.Equal(t, "nodomain", nd.JID)
	assert.Nil(t, nd.FullName)
	require.NotNil(t, nd.GroupList)
	assert.Equal(t, "staff", *nd.GroupList)
}

func TestRosterSetFullNameOnlyMalformed(t *testing.T) {
	s := NewRosterSet()
	assert.Equal(t, FamilyFullName, s.Add("FNC:nodomain", "x"))

	groups, users := s.Join()
	assert.Empty(t, groups)
	assert.Empty(t, users)
}
