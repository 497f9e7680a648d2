package types

import "strings"

// CacheStrategy selects where authentication cache entries live for the
// lifetime of the process.
type CacheStrategy int

// Cache strategies. Disabled is the zero value.
const (
	CacheDisabled CacheStrategy = iota
	CacheEphemeral
	CacheShared
)

// String returns the canonical configuration name of the strategy.
func (s CacheStrategy) String() string {
	switch s {
	case CacheEphemeral:
		return "ephemeral"
	case CacheShared:
		return "shared"
	default:
		return "disabled"
	}
}

// ParseCacheStrategy maps a configuration value onto a strategy. The legacy
// names memory, db and none are accepted as aliases. Any other value,
// including the empty string, selects CacheDisabled.
func ParseCacheStrategy(name string) CacheStrategy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ephemeral", "memory":
		return CacheEphemeral
	case "shared", "db":
		return CacheShared
	default:
		return CacheDisabled
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s CacheStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
