package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Failure404/xmpp-cloud-auth/internal/migrate"
	"github.com/Failure404/xmpp-cloud-auth/internal/xcdb"
)

// errFamilyFailed reports an upgrade in which a family was rolled back.
var errFamilyFailed = errors.New("legacy upgrade rolled back a family")

func newUpgradeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the legacy databases into the target",
		Long: "Open the target database, create any missing table of the relational\n" +
			"schema and fill every family whose tables are still empty from the\n" +
			"configured legacy databases. The upgrade report is printed, also when\n" +
			"the upgrade stopped on a schema failure.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			conn, err := a.upgrade(cmd.Context())
			if err != nil {
				var uerr *xcdb.UpgradeError
				if errors.As(err, &uerr) {
					if werr := a.writeReport(out, uerr.Report); werr != nil {
						return errors.Join(err, werr)
					}
				}
				return err
			}
			defer conn.Close()

			if err := a.writeReport(out, conn.Report); err != nil {
				return err
			}
			for _, o := range conn.Report.Families {
				if o.Status == migrate.StatusFailed {
					return fmt.Errorf("%w: %s: %s", errFamilyFailed, o.Family, o.Error)
				}
			}
			return nil
		},
	}
}

func (a *app) writeReport(w io.Writer, r *migrate.Report) error {
	if a.jsonMode {
		return r.WriteJSON(w)
	}
	return r.WriteYAML(w)
}
