// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/getsentry/cli/internal/config"
	"github.com/getsentry/cli/internal/issue"
	"github.com/getsentry/cli/internal/selfupdate"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// setupParams bundles the inputs of `sentry cli setup`.
type setupParams struct {
	stdout     io.Writer
	execPath   string // binary being installed (the running executable)
	install    bool
	installDir string
	binaryName string // "" installs under the platform binary name
	handoffPID int
	channel    string
	quiet      bool
	recordPath string
	version    string
	pathEnv    string
	now        func() time.Time
}

// newSetupCommand creates `sentry cli setup`. With --install it copies the
// running binary into the install directory under the install lock and
// records how it was installed. `sentry cli upgrade` runs it on the freshly
// downloaded binary, passing --handoff-pid so the child can take over the
// lock the parent holds.
func newSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install this sentry binary and record the install",
		Example: `  # Install into ~/.local/bin
  sentry cli setup --install

  # Install somewhere else on the nightly channel
  sentry cli setup --install --install-dir /opt/bin --channel nightly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			install, _ := cmd.Flags().GetBool("install")
			installDir, _ := cmd.Flags().GetString("install-dir")
			binaryName, _ := cmd.Flags().GetString("binary-name")
			handoffPID, _ := cmd.Flags().GetInt("handoff-pid")
			channel, _ := cmd.Flags().GetString("channel")
			quiet, _ := cmd.Flags().GetBool("quiet")

			if installDir == "" {
				installDir = currentConfig().Install.Dir
			}
			if installDir == "" {
				dir, err := config.DefaultInstallDir()
				if err != nil {
					return err
				}
				installDir = dir
			}

			execPath, err := selfupdate.ResolveExecPath()
			if err != nil {
				return err
			}
			recordPath, err := config.InstallRecordPath(config.LoadOptions{})
			if err != nil {
				return issue.WrapWithOperation(err, "locate install record")
			}

			return runSetup(cmd.Context(), setupParams{
				stdout:     cmd.OutOrStdout(),
				execPath:   execPath,
				install:    install,
				installDir: installDir,
				binaryName: binaryName,
				handoffPID: handoffPID,
				channel:    channel,
				quiet:      quiet,
				recordPath: recordPath,
				version:    Version,
				pathEnv:    os.Getenv("PATH"),
				now:        time.Now,
			})
		},
	}

	cmd.Flags().Bool("install", false, "Copy this binary into the install directory")
	cmd.Flags().String("install-dir", "", "Install directory (default install.dir or ~/.local/bin)")
	cmd.Flags().Int("handoff-pid", selfupdate.NoHandoff, "PID of the upgrading parent whose install lock may be taken over")
	cmd.Flags().String("channel", "", "Release channel to record (stable or nightly)")
	cmd.Flags().Bool("quiet", false, "Suppress non-error output")
	cmd.Flags().String("binary-name", "", "File name to install as (default sentry)")
	_ = cmd.Flags().MarkHidden("handoff-pid")
	_ = cmd.Flags().MarkHidden("binary-name")

	return cmd
}

func runSetup(ctx context.Context, p setupParams) error {
	channel, err := selfupdate.ParseChannel(p.channel)
	if err != nil {
		return err
	}

	if !p.install {
		if !p.quiet {
			fmt.Fprintf(p.stdout, "sentry %s at %s\n", p.version, p.execPath)
			fmt.Fprintln(p.stdout, "Pass --install to install it into "+p.installDir)
		}
		return nil
	}

	opts := []selfupdate.InstallerOption{selfupdate.WithHandoffPID(p.handoffPID)}
	if p.binaryName != "" {
		opts = append(opts, selfupdate.WithBinaryName(p.binaryName))
	}
	installer := selfupdate.NewInstaller(opts...)
	installed, err := installer.InstallBinary(ctx, p.execPath, p.installDir)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("install binary").
			WithResource(p.installDir).
			WithSuggestions(
				"Check that the install directory is writable",
				"Choose another directory with --install-dir",
			).
			WithIssue(upgradeIssue(err)).
			Wrap(err).
			BuildError()
	}

	rec := &selfupdate.InstallRecord{
		Method:      selfupdate.InstallMethodCurl.String(),
		Path:        installed,
		Version:     recordVersion(p.version),
		Channel:     channel,
		InstalledAt: p.now().UTC(),
	}
	// The binary is already in place; a missing record only costs channel
	// and method detection on the next upgrade.
	if err := selfupdate.WriteRecord(p.recordPath, rec); err != nil {
		log.Warn("could not write install record", "path", p.recordPath, "err", err)
	}

	if p.quiet {
		return nil
	}

	fmt.Fprintln(p.stdout, SuccessStyle.Render(fmt.Sprintf("Installed sentry %s to %s", p.version, installed)))
	if !onPath(p.installDir, p.pathEnv) {
		fmt.Fprintln(p.stdout, WarningStyle.Render(fmt.Sprintf("%s is not on your PATH. Add it to use sentry from any directory.", p.installDir)))
	}
	return nil
}

func recordVersion(v string) string {
	if stripped := selfupdate.StripVersionPrefix(v); stripped != "" {
		return stripped
	}
	return v
}

func onPath(dir, pathEnv string) bool {
	clean := filepath.Clean(dir)
	return slices.ContainsFunc(filepath.SplitList(pathEnv), func(entry string) bool {
		return entry != "" && filepath.Clean(entry) == clean
	})
}
