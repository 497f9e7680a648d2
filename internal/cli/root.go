// Package cli implements the xcdb command-line interface: upgrading legacy
// xcauth databases and inspecting the resulting tables and auth cache.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Failure404/xmpp-cloud-auth/internal/logging"
	"github.com/Failure404/xmpp-cloud-auth/internal/paths"
	"github.com/Failure404/xmpp-cloud-auth/internal/xcdb"
	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// errUsage marks errors caused by the invocation rather than the system.
var errUsage = errors.New("usage error")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// app carries the state shared by all subcommands of one root command.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool

	v   *viper.Viper
	log zerolog.Logger
}

// NewRootCmd creates the top-level "xcdb" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: logging.Nop()}

	root := &cobra.Command{
		Use:   "xcdb",
		Short: "Upgrade and inspect the xcauth database",
		Long: "xcdb upgrades the legacy xcauth key-value databases into the relational\n" +
			"schema and inspects the upgraded tables and the auth cache.",
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/xcauth)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory of the default database (default: $XDG_DATA_HOME/xcauth)")
	pf.BoolVar(&a.jsonMode, "json", false, "output as JSON")

	pf.String(flagName(cfgKeyDB), "", "target database file, :memory:, or PostgreSQL URL")
	pf.String(flagName(cfgKeyDriver), "", "target driver: sqlite or postgres")
	pf.String(flagName(cfgKeyDomainDB), "", "legacy domain database")
	pf.String(flagName(cfgKeySharedRosterDB), "", "legacy shared roster database")
	pf.String(flagName(cfgKeyCacheDB), "", "legacy auth cache database")
	pf.String(flagName(cfgKeyCacheStorage), "", "auth cache storage: ephemeral, shared or disabled")
	pf.String(flagName(cfgKeyLogLevel), "", "log level")
	pf.String(flagName(cfgKeyLogFormat), "", "log format: auto, json or console")
	if err := bindFlags(a.v, pf); err != nil {
		panic(err)
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newUpgradeCmd(a))
	root.AddCommand(newDumpCmd(a))
	root.AddCommand(newCacheCmd(a))

	return root
}

// load resolves the directories, reads the configuration and builds the
// logger. The version command needs none of it.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return err
	}
	dataDir, err := paths.ResolveDataDir(a.dataDir)
	if err != nil {
		return err
	}
	a.dataDir = dataDir

	if err := loadConfig(a.v, configDir, dataDir); err != nil {
		return err
	}
	a.log = logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:  a.v.GetString(cfgKeyLogLevel),
		Format: a.v.GetString(cfgKeyLogFormat),
	})
	return nil
}

// connect opens the configured database, upgrading a target that lacks
// any of its tables.
func (a *app) connect(ctx context.Context) (*xcdb.Conn, error) {
	return a.open(ctx, xcdb.Connect)
}

// upgrade opens the configured database and runs the upgrade even when the
// schema is complete.
func (a *app) upgrade(ctx context.Context) (*xcdb.Conn, error) {
	return a.open(ctx, xcdb.Upgrade)
}

func (a *app) open(ctx context.Context, connect func(context.Context, types.Config, zerolog.Logger) (*xcdb.Conn, error)) (*xcdb.Conn, error) {
	cfg, err := decodeConfig(a.v, a.dataDir)
	if err != nil {
		if errors.Is(err, types.ErrDriverUnknown) || errors.Is(err, types.ErrDSNEmpty) {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil, err
	}
	return connect(ctx, cfg, a.log)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s accepts %d arg(s), received %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, errUsage), errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrUnknownTable):
		return exitUserError
	default:
		return exitSysError
	}
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "xcdb:", err)
	}
	os.Exit(exitCode(err))
}
