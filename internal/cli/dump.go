package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Failure404/xmpp-cloud-auth/pkg/types"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "dump <table>",
		Short:     "Print every row of a table",
		Long:      "Print every row of one of the tables: " + strings.Join(types.Tables, ", ") + ".",
		Args:      exactArgs(1),
		ValidArgs: types.Tables,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			out := cmd.OutOrStdout()
			if a.jsonMode {
				rows := []map[string]string{}
				err := conn.Store.Dump(cmd.Context(), args[0], func(columns, row []string) error {
					m := make(map[string]string, len(columns))
					for i, c := range columns {
						m[c] = row[i]
					}
					rows = append(rows, m)
					return nil
				})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			header := false
			err = conn.Store.Dump(cmd.Context(), args[0], func(columns, row []string) error {
				if !header {
					fmt.Fprintln(tw, strings.Join(columns, "\t"))
					header = true
				}
				_, err := fmt.Fprintln(tw, strings.Join(row, "\t"))
				return err
			})
			if err != nil {
				return err
			}
			return tw.Flush()
		},
	}
}
