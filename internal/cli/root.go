// Package cli implements wbpctl, the operational command set.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"wbpmisueso/internal/aimodel"
	"wbpmisueso/internal/config"
	"wbpmisueso/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// Exit codes: 1 is an error the operator can act on (bad arguments, settings,
// an unreachable model host), 2 is anything unexpected.
const (
	ExitOK         = 0
	ExitUserError  = 1
	ExitUnexpected = 2
)

// UsageError marks an invocation or setting the operator has to fix; it maps to ExitUserError.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// Run executes wbpctl with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCode(err)
}

func ExitCode(err error) int {
	var (
		uerr *UsageError
		ferr *aimodel.ModelFetchError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &uerr), errors.As(err, &ferr):
		return ExitUserError
	// cobra reports these as plain errors
	case strings.HasPrefix(err.Error(), "unknown command"),
		strings.HasPrefix(err.Error(), "unknown flag"),
		strings.HasPrefix(err.Error(), "unknown shorthand flag"):
		return ExitUserError
	default:
		return ExitUnexpected
	}
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "wbpctl",
		Short:         "Operational commands for the WBPMISUESO service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	root.AddCommand(
		newReconcileSchemaCommand(),
		newResetDatabaseCommand(),
		newCleanMediaCommand(),
		newCreateTestUsersCommand(),
		newDownloadModelCommand(),
	)
	return root
}

// args wraps a cobra validator so argument mistakes exit with ExitUserError.
func args(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := v(cmd, a); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}

// loadConfig loads settings and installs the configured logger.
func loadConfig(cmd *cobra.Command, needDB bool) (*config.Config, error) {
	load := config.LoadSettings
	if needDB {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	slog.SetDefault(cfg.NewLogger(cmd.ErrOrStderr()))
	return cfg, nil
}

func openDB(cmd *cobra.Command, cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cmd.Context(), database.Options{
		Driver:      cfg.DBDriver,
		DSN:         cfg.DBDSN,
		MaxAttempts: 3,
		Quiet:       true,
	})
}
