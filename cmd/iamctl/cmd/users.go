package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/query"
)

func newUsersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUsersListCmd(opts))
	cmd.AddCommand(newUsersCreateCmd(opts))
	cmd.AddCommand(newUsersDeleteCmd(opts))
	cmd.AddCommand(newUsersAssignCmd(opts))
	return cmd
}

func newUsersListCmd(opts *rootOptions) *cobra.Command {
	var params query.Params
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			page, err := sess.IAM.ListUsers(params)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			printUsers(cmd.OutOrStdout(), page.Items)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\npage %d, %d of %d\n", page.Page, len(page.Items), page.Total)
			return nil
		},
	}
	addPageFlags(cmd, &params)
	return cmd
}

func newUsersCreateCmd(opts *rootOptions) *cobra.Command {
	var in domain.CreateUserInput
	var phone string
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user holding one or more roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Username = args[0]
			if phone != "" {
				in.Phone = &phone
			}
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			user, err := sess.IAM.CreateUser(ctx, in)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&in.Password, "password", "", "Initial password")
	cmd.Flags().StringSliceVar(&in.Roles, "role", nil, "Role name (repeatable)")
	return cmd
}

func newUsersDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.IAM.DeleteUser(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", args[0])
			return nil
		},
	}
}

func newUsersAssignCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-roles <user-id> [role-id...]",
		Short: "Replace the roles held by a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, sess, err := opts.session(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			user, err := sess.IAM.AssignRolesToUser(ctx, args[0], args[1:])
			if err != nil {
				return fmt.Errorf("failed to assign roles: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s now holds: %s\n", user.Username, joinOrDash(user.Roles))
			return nil
		},
	}
}

func printUsers(out io.Writer, users []domain.User) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSTATUS\tROLES")
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Status, joinOrDash(u.Roles))
	}
	_ = w.Flush()
}

func addPageFlags(cmd *cobra.Command, p *query.Params) {
	cmd.Flags().IntVar(&p.Page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 0, "Page size (0 uses the configured default)")
	cmd.Flags().StringVar(&p.Search, "search", "", "Case-insensitive substring filter")
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
