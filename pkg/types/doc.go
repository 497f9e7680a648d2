// Package types defines the records, configuration, cache strategies, and
// standard errors shared by the xcauth database upgrade and the cache
// backends.
//
// The four record types map one to one onto the relational tables that
// replace the legacy hashed key-value stores: domains, authcache,
// rosterinfo and rostergroups.
package types
