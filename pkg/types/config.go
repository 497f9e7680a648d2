package types

import "errors"

// StoreConfig selects and locates the target relational store.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`
	DSN    string `json:"db" yaml:"db" mapstructure:"db"`
}

// Config holds everything needed to open the primary store, select the
// cache backend and, on first use, upgrade the legacy databases.
type Config struct {
	Store StoreConfig `json:"store" yaml:"store" mapstructure:",squash"`

	// Legacy sources. An empty path means there is nothing to migrate.
	DomainDB       string `json:"domain_db" yaml:"domain_db" mapstructure:"domain_db"`
	SharedRosterDB string `json:"shared_roster_db" yaml:"shared_roster_db" mapstructure:"shared_roster_db"`
	CacheDB        string `json:"cache_db" yaml:"cache_db" mapstructure:"cache_db"`

	CacheStorage string `json:"cache_storage" yaml:"cache_storage" mapstructure:"cache_storage"`
}

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MemoryDSN is the SQLite DSN of a transient in-memory database.
const MemoryDSN = ":memory:"

// Config validation errors.
var (
	ErrDriverUnknown = errors.New("unknown store driver")
	ErrDSNEmpty      = errors.New("database location must not be empty")
)

var knownDrivers = map[string]bool{
	DriverSQLite:   true,
	DriverPostgres: true,
}

// DriverOrDefault returns the configured driver, or sqlite when unset.
func (c StoreConfig) DriverOrDefault() string {
	if c.Driver == "" {
		return DriverSQLite
	}
	return c.Driver
}

// Validate checks that the StoreConfig is well-formed. It returns a sentinel
// error from this package on failure.
func (c StoreConfig) Validate() error {
	if !knownDrivers[c.DriverOrDefault()] {
		return ErrDriverUnknown
	}
	if c.DSN == "" {
		return ErrDSNEmpty
	}
	return nil
}

// Validate checks that the Config is well-formed.
func (c Config) Validate() error {
	return c.Store.Validate()
}

// Strategy returns the cache strategy named by CacheStorage.
func (c Config) Strategy() CacheStrategy {
	return ParseCacheStrategy(c.CacheStorage)
}
