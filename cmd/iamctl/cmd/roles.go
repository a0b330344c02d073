package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/query"
)

func newRolesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage roles and their members",
	}
	cmd.AddCommand(newRolesListCmd(opts))
	cmd.AddCommand(newRolesCreateCmd(opts))
	cmd.AddCommand(newRolesDeleteCmd(opts))
	cmd.AddCommand(newRolesAssignCmd(opts))
	return cmd
}

func newRolesListCmd(opts *rootOptions) *cobra.Command {
	var params query.Params
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roles with their member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			page, err := sess.IAM.ListRoles(params)
			if err != nil {
				return fmt.Errorf("failed to list roles: %w", err)
			}
			printRoles(cmd.OutOrStdout(), page.Items)
			return nil
		},
	}
	addPageFlags(cmd, &params)
	return cmd
}

func newRolesCreateCmd(opts *rootOptions) *cobra.Command {
	var in domain.CreateRoleInput
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			if description != "" {
				in.Description = &description
			}
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			role, err := sess.IAM.CreateRole(ctx, in)
			if err != nil {
				return fmt.Errorf("failed to create role: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created role %s (%s)\n", role.Name, role.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Role description")
	cmd.Flags().StringSliceVar(&in.Permissions, "permission", nil, "Permission id (repeatable)")
	return cmd
}

func newRolesDeleteCmd(opts *rootOptions) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "delete <role-id>",
		Short: "Delete a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.IAM.DeleteRole(ctx, args[0], cascade); err != nil {
				return fmt.Errorf("failed to delete role: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted role %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Also remove the role from every member")
	return cmd
}

func newRolesAssignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <role-id> [user-id...]",
		Short: "Replace the members of a role",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			role, err := sess.IAM.AssignRoleToUsers(ctx, args[0], args[1:])
			if err != nil {
				return fmt.Errorf("failed to assign role: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d members\n", role.Name, role.UserCount)
			return nil
		},
	}
}

func printRoles(out io.Writer, roles []domain.Role) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tUSERS\tPERMISSIONS\tSYSTEM")
	for _, r := range roles {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, r.UserCount, len(r.Permissions), strconv.FormatBool(r.IsSystem))
	}
	_ = w.Flush()
}
