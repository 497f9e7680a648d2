package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "unknown driver returns ErrDriverUnknown",
			config:  Config{Store: StoreConfig{Driver: "mysql", DSN: "/tmp/x.db"}},
			wantErr: ErrDriverUnknown,
		},
		{
			name:    "empty dsn returns ErrDSNEmpty",
			config:  Config{Store: StoreConfig{Driver: DriverSQLite}},
			wantErr: ErrDSNEmpty,
		},
		{
			name:    "driver defaults to sqlite",
			config:  Config{Store: StoreConfig{DSN: "/tmp/x.db"}},
			wantErr: nil,
		},
		{
			name:    "postgres dsn is valid",
			config:  Config{Store: StoreConfig{Driver: DriverPostgres, DSN: "postgres://localhost/xcauth"}},
			wantErr: nil,
		},
		{
			name:    "in-memory sqlite is valid",
			config:  Config{Store: StoreConfig{Driver: DriverSQLite, DSN: MemoryDSN}},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseCacheStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want CacheStrategy
	}{
		{"ephemeral", CacheEphemeral},
		{"memory", CacheEphemeral},
		{"Shared", CacheShared},
		{"db", CacheShared},
		{"disabled", CacheDisabled},
		{"none", CacheDisabled},
		{"", CacheDisabled},
		{"redis", CacheDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCacheStrategy(tt.in); got != tt.want {
				t.Fatalf("ParseCacheStrategy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCacheStrategyString(t *testing.T) {
	for _, s := range []CacheStrategy{CacheDisabled, CacheEphemeral, CacheShared} {
		if got := ParseCacheStrategy(s.String()); got != s {
			t.Fatalf("round trip of %v gave %v", s, got)
		}
	}
}
