// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the sentry CLI commands that manage the installed binary.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/getsentry/cli/internal/config"
	"github.com/getsentry/cli/internal/issue"
	"github.com/getsentry/cli/internal/selfupdate"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging and full error chains
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// loadedConfig is populated by the root PersistentPreRunE.
	loadedConfig *config.Config

	rootCmd = &cobra.Command{
		Use:   "sentry",
		Short: "The command-line interface for Sentry",
		Long: TitleStyle.Render("sentry") + SubtitleStyle.Render(" - The command-line interface for Sentry") + `

` + SubtitleStyle.Render("Managing this installation:") + `
  sentry cli upgrade            Upgrade to the latest stable release
  sentry cli upgrade nightly    Switch to nightly builds
  sentry cli upgrade --check    Report whether an upgrade is available
  sentry cli version            Show version, channel and install method`,
		PersistentPreRunE: initRoot,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <config dir>/sentry/config.cue)")

	rootCmd.AddCommand(newCLICommand())
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRoot loads configuration, configures logging and removes a `.old`
// binary left behind by a previous Windows upgrade.
func initRoot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewProvider().Load(cmd.Context(), config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		// A broken config must not lock users out of upgrading.
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		cfg = config.DefaultConfig()
	}
	loadedConfig = cfg

	if !verbose {
		verbose = cfg.UI.Verbose
	}
	configureLogging(cmd.ErrOrStderr(), verbose)

	if execPath, err := selfupdate.ResolveExecPath(); err == nil {
		selfupdate.CleanupOldBinary(execPath)
	} else {
		log.Debug("skipping old binary cleanup", "err", err)
	}

	return nil
}

// currentConfig returns the loaded configuration, or defaults when a command
// runs without the root pre-run (tests).
func currentConfig() *config.Config {
	if loadedConfig == nil {
		return config.DefaultConfig()
	}
	return loadedConfig
}

// formatErrorForDisplay renders err for the terminal. Actionable errors get
// their suggestions, and in verbose mode the error chain plus any linked
// catalog guidance.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return err.Error()
	}
	out := ae.Format(verboseMode)
	if verboseMode {
		if guidance, renderErr := ae.Guidance("auto"); renderErr == nil && guidance != "" {
			out += "\n" + guidance
		}
	}
	return out
}
