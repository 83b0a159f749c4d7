package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/auth/sqlite"
	"github.com/grafana/treeforge/cli/internal/output"
	"github.com/grafana/treeforge/config"
	internalstorage "github.com/grafana/treeforge/internal/storage"
	"github.com/grafana/treeforge/log"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/storage"
)

// Environment variables holding the acting user's credentials.
const (
	EnvUser   = "TREEFORGE_USER"
	EnvSecret = "TREEFORGE_SECRET"
)

// Exit codes for operation outcomes other than success.
const (
	ExitClientError = 1
	ExitServerError = 2
	ExitPartial     = 3
)

// exitError carries the exit code of an operation whose result was already printed.
type exitError struct {
	code   int
	status operations.Status
}

func (e *exitError) Error() string {
	return "operation finished with status " + string(e.status)
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitClientError
}

// app holds the global flags and what the pre-run builds from them.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOut    bool
	username   string
	secret     string

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand builds the treeforge command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "treeforge",
		Short: "Path-level edits of a hosted Git repository with version tags",
		Long: `treeforge changes files and directories of a hosted Git repository without
a local clone. Every change becomes one commit that advances the branch only if
nobody else moved it, and is tagged with the next semantic version.

Settings come from a YAML or TOML file (--config) and the environment:
  - TREEFORGE_STORE_URL:   repository API URL, e.g. https://api.github.com/repos/owner/repo
  - TREEFORGE_STORE_TOKEN: token for the repository API
  - TREEFORGE_AUTH_DB:     path of the user database
  - TREEFORGE_USER + TREEFORGE_SECRET: the acting user`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path of a YAML or TOML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")
	flags.BoolVar(&a.jsonOut, "json", false, "Output in JSON format")
	flags.StringVarP(&a.username, "user", "u", "", "Acting user (default $"+EnvUser+")")
	flags.StringVar(&a.secret, "secret", "", "Secret of the acting user (default $"+EnvSecret+")")

	rootCmd.AddCommand(
		newDeleteCmd(a),
		newRenameCmd(a),
		newCopyCmd(a),
		newAddFileCmd(a),
		newAddFolderCmd(a),
		newCopyAcrossCmd(a),
		newCreateBranchCmd(a),
		newRevertBranchCmd(a),
		newRetireBranchCmd(a),
		newLsTreeCmd(a),
		newCatFileCmd(a),
		newLsRefsCmd(a),
		newNextVersionCmd(a),
		newUserCmd(a),
	)

	return rootCmd
}

// Execute runs the root command against the process's streams.
func Execute() error {
	err := NewRootCommand(os.Stdout, os.Stderr).Execute()
	var exit *exitError
	if err != nil && !errors.As(err, &exit) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// setup loads the configuration and installs the logger into the command's context.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	logger, err := newLogger(a.stderr, cfg.Log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(log.ToContext(ctx, log.FromSlog(logger)))
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "text", "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    color.NoColor,
		})), nil
	default:
		return nil, fmt.Errorf("log format %q must be text or json", cfg.Format)
	}
}

// formatter returns the output formatter selected by --json.
func (a *app) formatter() output.Formatter {
	if a.jsonOut {
		return output.Get("json", a.stdout)
	}
	return output.Get("human", a.stdout)
}

// actor returns the acting user from the flags, falling back to the environment.
func (a *app) actor() operations.Actor {
	actor := operations.Actor{Username: a.username, Secret: a.secret}
	if actor.Username == "" {
		actor.Username = os.Getenv(EnvUser)
	}
	if actor.Secret == "" {
		actor.Secret = os.Getenv(EnvSecret)
	}
	return actor
}

// users opens the user database.
func (a *app) users(ctx context.Context) (*sqlite.Store, error) {
	return sqlite.Open(ctx, a.cfg.Auth.Database, sqlite.WithActivityTimeout(a.cfg.Auth.ActivityTimeout))
}

// service connects to the repository and the user database. The returned func
// releases both and must be called once the command is done.
func (a *app) service(ctx context.Context) (*operations.Service, func(), error) {
	if err := a.cfg.RequireStore(); err != nil {
		return nil, nil, err
	}

	store, err := treeforge.NewHTTPStore(a.cfg.Store.URL, a.cfg.Store.ClientOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to store: %w", err)
	}

	users, err := a.users(ctx)
	if err != nil {
		return nil, nil, err
	}

	release := func() {
		if err := users.Close(); err != nil {
			log.FromContext(ctx).Warn("Closing the user database failed", "error", err)
		}
	}
	return operations.New(store, users, a.cfg.ServiceOptions()...), release, nil
}

// run executes an operation and prints its result. Any outcome but ok turns into
// an exit code.
func (a *app) run(cmd *cobra.Command, op func(ctx context.Context, svc *operations.Service) (*operations.Result, error)) error {
	ctx := storage.WithTreeStorageFromContext(cmd.Context(), internalstorage.NewInMemoryStorage())

	svc, release, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer release()

	result, err := op(ctx, svc)
	if err != nil {
		result = operations.Report(err)
	}
	if ferr := a.formatter().FormatResult(result); ferr != nil {
		return ferr
	}

	switch result.Status {
	case operations.StatusOK:
		return nil
	case operations.StatusPartial:
		return &exitError{code: ExitPartial, status: result.Status}
	case operations.StatusServerError:
		return &exitError{code: ExitServerError, status: result.Status}
	default:
		return &exitError{code: ExitClientError, status: result.Status}
	}
}

// read executes a read-only command against the repository.
func (a *app) read(cmd *cobra.Command, op func(ctx context.Context, svc *operations.Service) error) error {
	ctx := storage.WithTreeStorageFromContext(cmd.Context(), internalstorage.NewInMemoryStorage())

	svc, release, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer release()

	return op(ctx, svc)
}
