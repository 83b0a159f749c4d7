package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grafana/treeforge/operations"
)

func newCopyAcrossCmd(a *app) *cobra.Command {
	var commit commitFlags

	cmd := &cobra.Command{
		Use:   "copy-across <source-branch> <target-branch> <path>...",
		Short: "Copy files or directories from one branch to another",
		Long: `Copy files or directories from one branch onto another. Files only the
target has are kept. When the target is protected and the user may not write it,
the copy lands on a scratch branch and a merge proposal is opened instead.

Examples:
  treeforge copy-across dev main src/a.tcl src/docs`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.CopyAcross(ctx, operations.CopyAcrossRequest{
					Actor:        a.actor(),
					SourceBranch: args[0],
					TargetBranch: args[1],
					Paths:        args[2:],
					Bump:         commit.bump,
					Message:      commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	return cmd
}

func newCreateBranchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-branch <source-branch> <new-branch>",
		Short: "Create a branch at the head of another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.CreateBranch(ctx, operations.CreateBranchRequest{
					Actor:        a.actor(),
					SourceBranch: args[0],
					NewBranch:    args[1],
				})
			})
		},
	}
}

func newRevertBranchCmd(a *app) *cobra.Command {
	var commit commitFlags

	cmd := &cobra.Command{
		Use:   "revert-branch <branch> <commit|tag>",
		Short: "Restore the tree of an earlier commit",
		Long: `Restore the content the branch had at an earlier commit or version tag.
A new commit with that tree is added on top of the head; history is kept.

Examples:
  treeforge revert-branch main 1.4.0
  treeforge revert-branch main 0123456789abcdef0123456789abcdef01234567`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.RevertBranch(ctx, operations.RevertBranchRequest{
					Actor:   a.actor(),
					Branch:  args[0],
					Target:  args[1],
					Bump:    commit.bump,
					Message: commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	return cmd
}

func newRetireBranchCmd(a *app) *cobra.Command {
	var archive bool

	cmd := &cobra.Command{
		Use:   "retire-branch <branch>",
		Short: "Delete a branch",
		Long: `Delete a branch. The default branch and protected branches cannot be retired.
With --archive the head is tagged retired/<branch> first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.RetireBranch(ctx, operations.RetireBranchRequest{
					Actor:   a.actor(),
					Branch:  args[0],
					Archive: archive,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&archive, "archive", false, "Tag the head with retired/<branch> before deleting")
	return cmd
}
