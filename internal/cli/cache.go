package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

// cacheEntry is the printed form of an auth cache record.
type cacheEntry struct {
	JID        string    `json:"jid" yaml:"jid"`
	PWHash     string    `json:"pwhash" yaml:"pwhash"`
	FirstAuth  time.Time `json:"firstauth" yaml:"firstauth"`
	RemoteAuth time.Time `json:"remoteauth" yaml:"remoteauth"`
	AnyAuth    time.Time `json:"anyauth" yaml:"anyauth"`
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write the auth cache",
		Long: "Read and write the auth cache selected by cache_storage. With the\n" +
			"ephemeral strategy the cache lives only as long as the command.",
	}
	cmd.AddCommand(newCacheGetCmd(a), newCachePutCmd(a))
	return cmd
}

func newCacheGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <jid>",
		Short: "Print the cached entry of a JID",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			rec, err := conn.Cache.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entry := cacheEntry(rec)

			out := cmd.OutOrStdout()
			if a.jsonMode {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entry)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(entry); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newCachePutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <jid> <pwhash>",
		Short: "Store a password hash for a JID",
		Long:  "Store a password hash for a JID, stamping every authentication time with the current time.",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			now := time.Now().UTC().Truncate(time.Second)
			err = conn.Cache.Put(cmd.Context(), types.AuthCacheRecord{
				JID:        args[0],
				PWHash:     args[1],
				FirstAuth:  now,
				RemoteAuth: now,
				AnyAuth:    now,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %s\n", args[0])
			return nil
		},
	}
}
