package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/grafana/treeforge/operations"
)

// commitFlags are the flags shared by every command that makes a commit.
type commitFlags struct {
	bump    string
	message string
}

func (f *commitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.bump, "bump", "b", "", "Version component to increment (major, minor, patch)")
	cmd.Flags().StringVarP(&f.message, "message", "m", "", "Commit message")
}

func newDeleteCmd(a *app) *cobra.Command {
	var commit commitFlags

	cmd := &cobra.Command{
		Use:   "delete <branch> <path>",
		Short: "Delete a file or directory",
		Long: `Delete a file or directory. The path must lie inside a directory;
top-level entries cannot be deleted.

Examples:
  # Delete a file and tag the commit with the next patch version
  treeforge delete main src/docs/readme.md

  # Delete a directory with a minor version bump
  treeforge delete main src/legacy --bump minor`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.Delete(ctx, operations.DeleteRequest{
					Actor:   a.actor(),
					Branch:  args[0],
					Path:    args[1],
					Bump:    commit.bump,
					Message: commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	var commit commitFlags

	cmd := &cobra.Command{
		Use:   "rename <branch> <path> <new-name>",
		Short: "Rename a file or directory within its directory",
		Long: `Rename a file or directory. The new name is a single path segment;
the entry stays in the same directory.

Examples:
  treeforge rename main src/a.tcl c.tcl`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.Rename(ctx, operations.RenameRequest{
					Actor:   a.actor(),
					Branch:  args[0],
					Path:    args[1],
					NewName: args[2],
					Bump:    commit.bump,
					Message: commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	var (
		commit    commitFlags
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "copy <branch> <source> <destination>",
		Short: "Copy a file or directory within a branch",
		Long: `Copy a file or directory to a new path on the same branch. Copied files
reuse their existing blobs.

Examples:
  # Copy a directory
  treeforge copy main exp1 exp2

  # Replace an existing destination
  treeforge copy main templates/base.html site/index.html --overwrite`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.Copy(ctx, operations.CopyRequest{
					Actor:       a.actor(),
					Branch:      args[0],
					Source:      args[1],
					Destination: args[2],
					Overwrite:   overwrite,
					Bump:        commit.bump,
					Message:     commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing destination")
	return cmd
}

func newAddFileCmd(a *app) *cobra.Command {
	var (
		commit     commitFlags
		from       string
		content    string
		executable bool
	)

	cmd := &cobra.Command{
		Use:   "add-file <branch> <path>",
		Short: "Add a new file",
		Long: `Add a new file. The parent directory must exist and the path must be free.
The content is read from --from (a local file, or - for stdin) or given with --content.

Examples:
  treeforge add-file main src/c.tcl --from ./c.tcl
  echo 'puts hi' | treeforge add-file main src/hi.tcl --from -
  treeforge add-file main bin/run.sh --content '#!/bin/sh' --executable`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := fileContent(cmd.InOrStdin(), from, content, cmd.Flags().Changed("content"))
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.AddFile(ctx, operations.AddFileRequest{
					Actor:      a.actor(),
					Branch:     args[0],
					Path:       args[1],
					Content:    data,
					Executable: executable,
					Bump:       commit.bump,
					Message:    commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	cmd.Flags().StringVarP(&from, "from", "f", "", "Local file with the content, - for stdin")
	cmd.Flags().StringVar(&content, "content", "", "Content of the file")
	cmd.Flags().BoolVarP(&executable, "executable", "x", false, "Mark the file executable")
	return cmd
}

func fileContent(stdin io.Reader, from, content string, hasContent bool) ([]byte, error) {
	switch {
	case from != "" && hasContent:
		return nil, errors.New("use either --from or --content")
	case from == "-":
		return io.ReadAll(stdin)
	case from != "":
		data, err := os.ReadFile(from)
		if err != nil {
			return nil, fmt.Errorf("read content: %w", err)
		}
		return data, nil
	default:
		return []byte(content), nil
	}
}

func newAddFolderCmd(a *app) *cobra.Command {
	var commit commitFlags

	cmd := &cobra.Command{
		Use:   "add-folder <branch> <path>",
		Short: "Add an empty directory",
		Long: `Add an empty directory. It holds a placeholder file (branches.placeholder,
.gitkeep by default) so the store keeps it.

Examples:
  treeforge add-folder main src/new`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *operations.Service) (*operations.Result, error) {
				return svc.AddFolder(ctx, operations.AddFolderRequest{
					Actor:   a.actor(),
					Branch:  args[0],
					Path:    args[1],
					Bump:    commit.bump,
					Message: commit.message,
				})
			})
		},
	}
	commit.register(cmd)
	return cmd
}
