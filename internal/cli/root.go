// Package cli wires the operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vizmigrate/internal/config"
	"vizmigrate/internal/database"
	"vizmigrate/internal/migrateviz"
	"vizmigrate/pkg/types"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitValidation = 1
	ExitFatal      = 2
)

const skipConfig = "skip-config"

// projectDir is set at build time with -ldflags.
var projectDir string

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	cfg        *types.Config
	registry   *migrateviz.Registry
	stdout     io.Writer
	stderr     io.Writer
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		registry: migrateviz.BuildRegistry(),
		stdout:   stdout,
		stderr:   stderr,
	}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return a.fail(err)
	}
	return ExitOK
}

// fail reports err and maps it to an exit code. Fatal batch errors also dump
// the tail of the log file.
func (a *app) fail(err error) int {
	var fatal database.FatalMigrationError
	if errors.As(err, &fatal) {
		logrus.WithError(err).Error("Fatal error, changes rolled back")
		fmt.Fprintf(a.stderr, "FATAL: %v\n", fatal.Error())
		if a.cfg != nil {
			database.PrintRecentLogTail(a.cfg.Processing.LogPath, database.DefaultTailLines)
		}
		return ExitFatal
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return ExitValidation
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vizmigrate",
		Short:         "Chart params migration tool",
		Long:          "Migrates saved chart params between retired chart types and their replacements, and audits stored query contexts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			setupLogging(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file (default: config.yaml)")

	rootCmd.AddCommand(newMigrateVizCmd(a))
	rootCmd.AddCommand(newGenerateQueryContextCmd(a))
	rootCmd.AddCommand(newInfoCmd(a))

	return rootCmd
}

// fatal marks err as a runtime failure after the session was opened.
func fatal(err error) error {
	if err == nil {
		return nil
	}
	var fm database.FatalMigrationError
	if errors.As(err, &fm) {
		return err
	}
	return database.FatalMigrationError{Err: err}
}
