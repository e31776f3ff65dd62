// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/getsentry/cli/internal/config"
	"github.com/getsentry/cli/internal/issue"
	"github.com/getsentry/cli/internal/selfupdate"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type (
	// upgrader is the part of *selfupdate.Updater the upgrade command drives.
	upgrader interface {
		Check(ctx context.Context, req selfupdate.CheckRequest) (*selfupdate.UpgradeCheck, error)
		Apply(ctx context.Context, check *selfupdate.UpgradeCheck) error
	}

	// upgradeParams bundles the dependencies and flags for the upgrade command,
	// so runUpgrade can be tested without Cobra or live network calls.
	upgradeParams struct {
		stdout   io.Writer
		stderr   io.Writer
		updater  upgrader
		target   string // version, channel keyword, or empty for latest
		channel  string // --channel, falling back to upgrade.channel
		check    bool   // --check: report availability without installing
		yes      bool   // --yes: skip confirmation prompt
		confirm  func(title string) (bool, error)
		rendered func(markdown string) (string, error)
	}
)

// newUpgradeCommand creates `sentry cli upgrade`, which replaces the running
// binary with the latest release of a channel or a specific stable version.
func newUpgradeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade [version|stable|nightly]",
		Short: "Upgrade sentry to the latest release, a nightly build or a specific version",
		Long: `Upgrade sentry to the latest release, a nightly build or a specific version.

Stable releases are downloaded from GitHub Releases. Nightly builds are
pulled from the OCI registry. The new binary installs itself over the
current one while the install lock is held, so concurrent upgrades cannot
corrupt the installation.

Passing "stable" or "nightly" switches channels; the choice is remembered
for later upgrades. Installs managed by Homebrew, npm or go install print
the package manager command to use instead.`,
		Example: `  # Upgrade to the latest release on the current channel
  sentry cli upgrade

  # Switch to nightly builds
  sentry cli upgrade nightly

  # Install a specific stable version
  sentry cli upgrade 0.9.1

  # Check for updates without installing
  sentry cli upgrade --check`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			checkFlag, _ := cmd.Flags().GetBool("check")
			yesFlag, _ := cmd.Flags().GetBool("yes")
			channelFlag, _ := cmd.Flags().GetString("channel")

			var target string
			if len(args) > 0 {
				target = args[0]
			}

			cfg := currentConfig()
			if channelFlag == "" {
				channelFlag = cfg.Upgrade.Channel
			}

			updater, err := newUpdaterFromConfig(cfg)
			if err != nil {
				return err
			}

			p := upgradeParams{
				stdout:   cmd.OutOrStdout(),
				stderr:   cmd.ErrOrStderr(),
				updater:  updater,
				target:   target,
				channel:  channelFlag,
				check:    checkFlag,
				yes:      yesFlag,
				confirm:  confirmPrompt,
				rendered: renderMarkdown,
			}

			if err := runUpgrade(cmd.Context(), p); err != nil {
				fmt.Fprintln(p.stderr, formatUpgradeError(err, "auto"))
				return &ExitError{Code: classifyUpgradeExitCode(err), Err: err}
			}

			return nil
		},
	}

	cmd.Flags().Bool("check", false, "Check for available upgrade without installing")
	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	cmd.Flags().String("channel", "", "Release channel to upgrade on (stable or nightly)")

	return cmd
}

// newUpdaterFromConfig wires the GitHub and registry clients from cfg.
// GITHUB_TOKEN raises the GitHub API rate limit (5000/hour vs 60/hour).
func newUpdaterFromConfig(cfg *config.Config) (*selfupdate.Updater, error) {
	userAgent := "sentry/" + Version

	ghOpts := []selfupdate.ClientOption{
		selfupdate.WithBaseURL(cfg.Upgrade.GitHub.APIURL),
		selfupdate.WithDownloadURL(cfg.Upgrade.GitHub.DownloadURL),
		selfupdate.WithRepo(cfg.Upgrade.GitHub.Owner(), cfg.Upgrade.GitHub.Name()),
		selfupdate.WithUserAgent(userAgent),
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ghOpts = append(ghOpts, selfupdate.WithToken(token))
	}

	registry := selfupdate.NewRegistryClient(
		selfupdate.WithRegistryURL(cfg.Upgrade.Registry.URL),
		selfupdate.WithRegistryRepository(cfg.Upgrade.Registry.Repository),
		selfupdate.WithNightlyTag(cfg.Upgrade.Registry.Tag),
		selfupdate.WithRegistryUserAgent(userAgent),
	)

	recordPath, err := config.InstallRecordPath(config.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("locating install record: %w", err)
	}

	return selfupdate.NewUpdater(Version,
		selfupdate.WithGitHubClient(selfupdate.NewGitHubClient(ghOpts...)),
		selfupdate.WithRegistryClient(registry),
		selfupdate.WithRecordPath(recordPath),
	), nil
}

// runUpgrade is the core upgrade logic, separated from Cobra for testability.
//
// Flow:
//  1. Resolve the target (channel keyword, explicit version or latest).
//  2. Managed installs print package manager guidance and return.
//  3. Already up to date, or ahead of the latest stable: report and return.
//  4. --check: report availability and release notes, then return.
//  5. Otherwise confirm (unless --yes), download and hand off to the new binary.
func runUpgrade(ctx context.Context, p upgradeParams) error {
	check, err := p.updater.Check(ctx, selfupdate.CheckRequest{
		Target:  p.target,
		Channel: selfupdate.Channel(p.channel),
	})
	if err != nil {
		return fmt.Errorf("checking for upgrade: %w", err)
	}

	if check.InstallMethod.Managed() {
		fmt.Fprintln(p.stdout, check.Message)
		return nil
	}

	fmt.Fprintf(p.stdout, "Current version: %s\n", check.CurrentVersion)
	fmt.Fprintf(p.stdout, "Target version:  %s (%s)\n", CmdStyle.Render(check.TargetVersion), check.Channel)

	if !check.UpgradeAvailable {
		fmt.Fprintf(p.stdout, "\n%s\n", check.Message)
		return nil
	}

	if p.check {
		fmt.Fprintf(p.stdout, "\n%s\n", check.Message)
		printReleaseNotes(p, check)
		fmt.Fprintln(p.stdout, "Run 'sentry cli upgrade' to install.")
		return nil
	}

	if !p.yes {
		title := fmt.Sprintf("Upgrade sentry from %s to %s?", check.CurrentVersion, check.TargetVersion)
		if check.ChannelChanged {
			title = fmt.Sprintf("Switch sentry to the %s channel (%s)?", check.Channel, check.TargetVersion)
		}
		confirmed, confirmErr := p.confirm(title)
		if confirmErr != nil {
			return fmt.Errorf("confirmation prompt: %w", confirmErr)
		}
		if !confirmed {
			fmt.Fprintln(p.stdout, "Upgrade canceled.")
			return nil
		}
	}

	fmt.Fprintf(p.stdout, "\nDownloading sentry %s...\n", check.TargetVersion)

	if err := p.updater.Apply(ctx, check); err != nil {
		return fmt.Errorf("applying upgrade: %w", err)
	}

	fmt.Fprintln(p.stdout, SuccessStyle.Render(fmt.Sprintf("Successfully upgraded to %s (%s)", check.TargetVersion, check.Channel)))

	return nil
}

// printReleaseNotes renders stable release notes. Rendering failures only
// lose the notes, never the check result.
func printReleaseNotes(p upgradeParams, check *selfupdate.UpgradeCheck) {
	if check.Resolution == nil || strings.TrimSpace(check.Resolution.Notes) == "" || p.rendered == nil {
		return
	}
	out, err := p.rendered(check.Resolution.Notes)
	if err != nil {
		log.Debug("rendering release notes", "err", err)
		return
	}
	fmt.Fprintf(p.stdout, "\n%s\n", strings.TrimRight(out, "\n"))
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// confirmPrompt asks a yes/no question. Aborting the prompt counts as "no".
func confirmPrompt(title string) (bool, error) {
	confirmed := true
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	)).WithTheme(huh.ThemeCharm()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

// classifyUpgradeExitCode maps an upgrade error to the process exit code.
// Errors the user can correct exit 1; network, registry and contention
// failures exit 2.
func classifyUpgradeExitCode(err error) int {
	switch {
	case errors.Is(err, os.ErrPermission),
		errors.Is(err, selfupdate.ErrVersionNotFound),
		errors.Is(err, selfupdate.ErrInvalidVersion),
		errors.Is(err, selfupdate.ErrInvalidChannel),
		errors.Is(err, selfupdate.ErrManagedInstall),
		errors.Is(err, selfupdate.ErrUpgradeInProgress):
		return 1
	default:
		return 2
	}
}

// upgradeIssue maps an upgrade error to its catalog entry, or 0.
func upgradeIssue(err error) issue.Id {
	var rateLimitErr *selfupdate.RateLimitError
	switch {
	case errors.As(err, &rateLimitErr):
		return issue.GitHubRateLimitedId
	case errors.Is(err, os.ErrPermission):
		return issue.PermissionDeniedId
	case errors.Is(err, selfupdate.ErrUpgradeInProgress):
		return issue.UpgradeInProgressId
	case errors.Is(err, selfupdate.ErrManagedInstall):
		return issue.ManagedInstallId
	case errors.Is(err, selfupdate.ErrVersionNotFound):
		return issue.VersionNotFoundId
	case errors.Is(err, selfupdate.ErrRegistryConnection),
		errors.Is(err, selfupdate.ErrTokenRequest),
		errors.Is(err, selfupdate.ErrManifestRequest),
		errors.Is(err, selfupdate.ErrBlobStorageDownload):
		return issue.RegistryUnreachableId
	default:
		return 0
	}
}

// formatUpgradeError produces the error headline followed by remediation
// guidance. style is a glamour style name for catalog entries.
func formatUpgradeError(err error, style string) string {
	headline := ErrorStyle.Render("Error: ") + err.Error()

	if id := upgradeIssue(err); id != 0 {
		guidance, renderErr := issue.Get(id).Render(style)
		if renderErr == nil {
			return headline + "\n" + strings.TrimRight(guidance, "\n")
		}
		log.Debug("rendering issue guidance", "issue", id, "err", renderErr)
	}

	return headline + "\n\nCheck your network connection and try again.\nIf behind a firewall, set GITHUB_TOKEN for authenticated access."
}
