package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
)

func newLsTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls-tree <branch> [path]",
		Short: "List a directory",
		Long: `List the entries of a directory at the head of a branch.

Examples:
  # List the root directory
  treeforge ls-tree main

  # List a subdirectory as JSON
  treeforge ls-tree main src/docs --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			}
			return a.read(cmd, func(ctx context.Context, svc *operations.Service) error {
				entries, err := svc.List(ctx, args[0], dir)
				if err != nil {
					return err
				}
				return a.formatter().FormatEntries(entries)
			})
		},
	}
}

func newCatFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat-file <branch> <path>",
		Short: "Print a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.read(cmd, func(ctx context.Context, svc *operations.Service) error {
				blob, err := svc.ReadFile(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return a.formatter().FormatBlob(args[1], blob)
			})
		},
	}
}

func newLsRefsCmd(a *app) *cobra.Command {
	var tags bool

	cmd := &cobra.Command{
		Use:   "ls-refs",
		Short: "List branches or tags",
		Long: `List the branches of the repository, or its tags with --tags.

Examples:
  treeforge ls-refs
  treeforge ls-refs --tags --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := protocol.BranchPrefix
			if tags {
				prefix = protocol.TagPrefix
			}
			return a.read(cmd, func(ctx context.Context, svc *operations.Service) error {
				refs, err := svc.Refs(ctx, prefix)
				if err != nil {
					return err
				}
				return a.formatter().FormatRefs(refs)
			})
		},
	}
	cmd.Flags().BoolVar(&tags, "tags", false, "List tags instead of branches")
	return cmd
}

func newNextVersionCmd(a *app) *cobra.Command {
	var bump string

	cmd := &cobra.Command{
		Use:   "next-version",
		Short: "Show the version the next change would be tagged with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bump == "" {
				bump = a.cfg.Versioning.DefaultBump
			}
			b, err := treeforge.ParseBump(bump)
			if err != nil {
				return err
			}
			return a.read(cmd, func(ctx context.Context, svc *operations.Service) error {
				latest, err := svc.Tagger().Latest(ctx)
				if err != nil {
					return err
				}
				next, err := treeforge.NextVersion(latest, b)
				if err != nil {
					return err
				}
				return a.formatter().FormatVersion(latest, next)
			})
		},
	}
	cmd.Flags().StringVarP(&bump, "bump", "b", "", "Version component to increment (major, minor, patch)")
	return cmd
}
