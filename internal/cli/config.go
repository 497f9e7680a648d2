package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Failure404/xmpp-cloud-auth/internal/paths"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

const (
	configFileName = "xcauth"
	configFileType = "yaml"
	configFileExt  = "xcauth.yaml"
	envPrefix      = "XCAUTH"
)

// Config keys. Each one is also a flag (with '-' for '_') and an
// XCAUTH_<KEY> environment variable.
const (
	cfgKeyDB             = "db"
	cfgKeyDriver         = "driver"
	cfgKeyDomainDB       = "domain_db"
	cfgKeySharedRosterDB = "shared_roster_db"
	cfgKeyCacheDB        = "cache_db"
	cfgKeyCacheStorage   = "cache_storage"
	cfgKeyLogLevel       = "log_level"
	cfgKeyLogFormat      = "log_format"
)

var configKeys = []string{
	cfgKeyDB,
	cfgKeyDriver,
	cfgKeyDomainDB,
	cfgKeySharedRosterDB,
	cfgKeyCacheDB,
	cfgKeyCacheStorage,
	cfgKeyLogLevel,
	cfgKeyLogFormat,
}

// defaultConfigYAML is the content written to xcauth.yaml on first run.
const defaultConfigYAML = `# xcauth database configuration

# Target database: a SQLite file (default: <data dir>/xcauth.sqlite3),
# ":memory:", or a PostgreSQL URL together with driver: postgres.
# db:
# driver: sqlite

# Legacy databases upgraded into a fresh target.
# domain_db:
# shared_roster_db:
# cache_db:

# Where the auth cache lives: ephemeral, shared or disabled.
cache_storage: ephemeral

# log_level: info
# log_format: auto
`

// flagName returns the command-line flag bound to a config key.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// bindFlags binds every config key to its persistent flag.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range configKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName(key))); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return nil
}

// loadConfig reads xcauth.yaml from configDir into v. It creates the config
// directory and a default xcauth.yaml on first run. A missing file is not
// an error.
func loadConfig(v *viper.Viper, configDir, dataDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}

	v.SetDefault(cfgKeyDB, paths.DefaultDatabase(dataDir))
	v.SetDefault(cfgKeyDriver, types.DriverSQLite)
	v.SetDefault(cfgKeyCacheStorage, types.CacheEphemeral.String())
	v.SetDefault(cfgKeyLogLevel, "info")
	v.SetDefault(cfgKeyLogFormat, "auto")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// ensureDefaultConfigFile creates a default xcauth.yaml if the file does not
// exist in configDir.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// decodeConfig builds the database configuration from v. When the target is
// the default SQLite file, its directory is created.
func decodeConfig(v *viper.Viper, dataDir string) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	if cfg.Store.DSN == paths.DefaultDatabase(dataDir) {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return types.Config{}, fmt.Errorf("create data dir: %w", err)
		}
	}
	return cfg, nil
}
