package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grafana/treeforge/auth/sqlite"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the users allowed to change the repository",
	}
	cmd.AddCommand(
		newUserAddCmd(a),
		newUserListCmd(a),
		newUserRemoveCmd(a),
		newUserActiveCmd(a, "activate", "Allow a user to act again", true),
		newUserActiveCmd(a, "deactivate", "Stop a user from acting", false),
		newUserBranchesCmd(a),
	)
	return cmd
}

// withUsers runs fn against the user database and closes it afterwards.
func (a *app) withUsers(cmd *cobra.Command, fn func(ctx context.Context, users *sqlite.Store) error) (err error) {
	ctx := cmd.Context()
	users, err := a.users(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, users.Close())
	}()
	return fn(ctx, users)
}

func newUserAddCmd(a *app) *cobra.Command {
	var (
		secret         string
		superUser      bool
		createBranches bool
		branches       []string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user",
		Long: `Add a user. The secret is stored as a bcrypt hash.

Examples:
  # A user who may change main and every release-* branch
  treeforge user add ada --secret "$SECRET" --branch main --branch 'release-*'

  # A user who may change any branch and create new ones
  treeforge user add root --secret "$SECRET" --superuser --create-branches`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(EnvSecret)
			}
			return a.withUsers(cmd, func(ctx context.Context, users *sqlite.Store) error {
				err := users.AddUser(ctx, sqlite.NewUser{
					Username:          args[0],
					Secret:            secret,
					SuperUser:         superUser,
					CanCreateBranches: createBranches,
					Branches:          branches,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Added user %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Secret of the new user (default $"+EnvSecret+")")
	cmd.Flags().BoolVar(&superUser, "superuser", false, "Allow changing any branch")
	cmd.Flags().BoolVar(&createBranches, "create-branches", false, "Allow creating branches")
	cmd.Flags().StringSliceVar(&branches, "branch", nil, "Branch name or pattern the user may change (repeatable)")
	return cmd
}

func newUserListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(ctx context.Context, users *sqlite.Store) error {
				list, err := users.Users(ctx)
				if err != nil {
					return err
				}
				return a.formatter().FormatUsers(list)
			})
		},
	}
}

func newUserRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(ctx context.Context, users *sqlite.Store) error {
				if err := users.RemoveUser(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Removed user %s\n", args[0])
				return nil
			})
		},
	}
}

func newUserActiveCmd(a *app, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(ctx context.Context, users *sqlite.Store) error {
				if err := users.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "User %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

func newUserBranchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branches <username> [branch]...",
		Short: "Replace the branches a user may change",
		Long: `Replace the branches a user may change. Patterns use shell glob syntax.
Without branches the user may change none.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withUsers(cmd, func(ctx context.Context, users *sqlite.Store) error {
				if err := users.SetBranches(ctx, args[0], args[1:]); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "User %s may change %d branch pattern(s)\n", args[0], len(args[1:]))
				return nil
			})
		},
	}
}
