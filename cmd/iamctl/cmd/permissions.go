package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPermissionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "Show the permission catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tRESOURCE\tACTION")
			for _, p := range sess.IAM.ListPermissions() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Resource, p.Action)
			}
			return w.Flush()
		},
	}
}
