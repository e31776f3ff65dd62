// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
)

// maxBinaryBytes is the upper bound on a downloaded binary (500 MB).
const maxBinaryBytes = 500 << 20

var (
	//nolint:gochecknoglobals // Test seam for os.Executable().
	osExecutable = os.Executable

	//nolint:gochecknoglobals // Test seam for filepath.EvalSymlinks().
	evalSymlinks = filepath.EvalSymlinks
)

type (
	// SetupRunner runs the freshly downloaded binary at binaryPath with args
	// and waits for it to exit.
	SetupRunner func(ctx context.Context, binaryPath string, args []string) error

	// CheckRequest describes what the user asked to upgrade to.
	CheckRequest struct {
		// Target is an explicit version, a channel keyword or empty for the
		// latest version of Channel.
		Target string
		// Channel is the channel to resolve against when Target is not a
		// version. Empty means the recorded channel, then stable.
		Channel Channel
	}

	// UpgradeCheck holds the result of comparing the running binary against
	// the resolved target.
	UpgradeCheck struct {
		CurrentVersion   string
		TargetVersion    string
		Channel          Channel
		ChannelChanged   bool
		InstallMethod    InstallMethod
		InstallPath      string
		Resolution       *Resolution // nil for managed installs
		UpgradeAvailable bool
		Message          string
	}

	// Updater composes version resolution, download and the setup hand-off
	// into the end-to-end upgrade flow.
	Updater struct {
		github         *GitHubClient
		registry       *RegistryClient
		platform       PlatformTarget
		currentVersion string
		recordPath     string
		runSetup       SetupRunner
	}

	// UpdaterOption configures an Updater during construction.
	UpdaterOption func(*Updater)
)

// WithGitHubClient overrides the stable channel client.
func WithGitHubClient(c *GitHubClient) UpdaterOption {
	return func(u *Updater) {
		u.github = c
	}
}

// WithRegistryClient overrides the nightly channel client.
func WithRegistryClient(c *RegistryClient) UpdaterOption {
	return func(u *Updater) {
		u.registry = c
	}
}

// WithRecordPath sets where the install record is read from.
func WithRecordPath(path string) UpdaterOption {
	return func(u *Updater) {
		u.recordPath = path
	}
}

// WithSetupRunner overrides how the downloaded binary's setup is run.
func WithSetupRunner(r SetupRunner) UpdaterOption {
	return func(u *Updater) {
		u.runSetup = r
	}
}

// WithUpdaterPlatform overrides the platform whose asset is downloaded.
func WithUpdaterPlatform(p PlatformTarget) UpdaterOption {
	return func(u *Updater) {
		u.platform = p
	}
}

// NewUpdater creates an Updater for the given currentVersion.
func NewUpdater(currentVersion string, opts ...UpdaterOption) *Updater {
	u := &Updater{
		currentVersion: currentVersion,
		platform:       CurrentPlatform(),
		runSetup:       ExecSetup,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.github == nil {
		u.github = NewGitHubClient()
	}
	if u.registry == nil {
		u.registry = NewRegistryClient()
	}
	return u
}

// Check resolves the upgrade target for req without downloading anything.
//
// Managed installs (Homebrew, npm, go install) get package manager guidance
// and no network call; asking for nightly on one is ErrManagedInstall.
func (u *Updater) Check(ctx context.Context, req CheckRequest) (*UpgradeCheck, error) {
	execPath, err := resolveExecPath()
	if err != nil {
		return nil, err
	}

	rec := u.readRecord()
	method := DetectInstallMethod(execPath, rec)

	target := req.Target
	channel := req.Channel
	explicitChannel := channel != ""
	if IsChannelKeyword(target) {
		channel = Channel(target)
		explicitChannel = true
		target = ""
	}
	if channel == "" && rec != nil && rec.Channel != "" {
		channel = rec.Channel
	}
	if channel, err = ParseChannel(string(channel)); err != nil {
		return nil, err
	}

	recorded := ChannelStable
	if rec != nil && rec.Channel != "" {
		recorded = rec.Channel
	}

	check := &UpgradeCheck{
		CurrentVersion: u.currentVersion,
		Channel:        channel,
		ChannelChanged: explicitChannel && channel != recorded,
		InstallMethod:  method,
		InstallPath:    execPath,
	}

	if method.Managed() {
		if channel == ChannelNightly {
			return nil, fmt.Errorf("%w (%s): nightly builds require a standalone install", ErrManagedInstall, method)
		}
		check.Message = fmt.Sprintf("Installed via %s at %s\n\nTo upgrade, run:\n  %s",
			method, execPath, method.UpgradeCommand())
		return check, nil
	}

	resolver := NewVersionResolver(u.github, u.registry, u.platform)

	var res *Resolution
	if target != "" {
		if channel == ChannelNightly {
			return nil, fmt.Errorf("%w: nightly builds cannot be pinned to a version", ErrInvalidVersion)
		}
		res, err = resolver.Explicit(ctx, target)
	} else {
		res, err = resolver.Latest(ctx, channel)
	}
	if err != nil {
		return nil, err
	}

	check.Resolution = res
	check.TargetVersion = res.Version

	current := StripVersionPrefix(u.currentVersion)
	switch {
	case current == res.Version:
		check.Message = fmt.Sprintf("Already on %s (%s).", res.Version, channel)
	case target == "" && channel == ChannelStable && !check.ChannelChanged && IsAhead(current, res.Version):
		check.Message = fmt.Sprintf("Running %s, ahead of the latest release %s.", u.currentVersion, res.Version)
	default:
		check.UpgradeAvailable = true
		check.Message = fmt.Sprintf("Upgrade available: %s -> %s (%s)", current, res.Version, channel)
	}

	return check, nil
}

// Apply downloads the resolved binary next to the running one and hands off to
// it: the new binary runs `cli setup --install --handoff-pid <our pid>` with
// the running executable's directory and file name, takes over the install
// lock and swaps itself into place.
//
// The install lock is held from before the download until the child finishes.
// When the child succeeds it has already released the lock it took over;
// otherwise the lock is released here.
func (u *Updater) Apply(ctx context.Context, check *UpgradeCheck) (err error) {
	if check == nil || check.Resolution == nil {
		return errors.New("no upgrade target resolved")
	}
	if check.InstallMethod.Managed() {
		return fmt.Errorf("%w (%s)", ErrManagedInstall, check.InstallMethod)
	}

	paths := PathsFor(check.InstallPath)

	if err := AcquireLock(ctx, paths.LockPath, NoHandoff); err != nil {
		return err
	}
	handedOff := false
	defer func() {
		if !handedOff {
			ReleaseLock(paths.LockPath)
		}
	}()

	body, err := u.openDownload(ctx, check.Resolution)
	if err != nil {
		return err
	}
	err = writeBinary(body, paths.TempPath)
	_ = body.Close()
	if err != nil {
		return err
	}

	args := []string{
		"cli", "setup", "--install",
		"--install-dir", filepath.Dir(check.InstallPath),
		"--binary-name", filepath.Base(check.InstallPath),
		"--handoff-pid", strconv.Itoa(getpid()),
		"--channel", string(check.Resolution.Channel),
		"--quiet",
	}
	log.Debug("running setup of downloaded binary", "path", paths.TempPath, "args", args)

	if err := u.runSetup(ctx, paths.TempPath, args); err != nil {
		_ = os.Remove(paths.TempPath)
		return fmt.Errorf("installing downloaded binary: %w", err)
	}
	handedOff = true

	return nil
}

// openDownload starts the download of the platform binary for res.
func (u *Updater) openDownload(ctx context.Context, res *Resolution) (io.ReadCloser, error) {
	asset := u.platform.AssetName()

	if res.Channel == ChannelNightly {
		if res.Nightly == nil {
			return nil, errors.New("nightly resolution has no manifest")
		}
		layer, err := FindLayerByFilename(res.Nightly.Manifest, asset)
		if err != nil {
			return nil, err
		}
		return u.registry.DownloadBlob(ctx, res.Nightly.Token, layer.Digest)
	}

	return u.github.DownloadAsset(ctx, u.github.AssetURL(res.Tag, asset))
}

func (u *Updater) readRecord() *InstallRecord {
	if u.recordPath == "" {
		return nil
	}
	rec, err := ReadRecord(u.recordPath)
	if err != nil {
		log.Debug("ignoring unreadable install record", "error", err)
		return nil
	}
	return rec
}

// writeBinary streams body into path, replacing any leftover from an earlier
// attempt, and marks it executable. Bodies larger than maxBinaryBytes are
// rejected and the partial file removed.
func writeBinary(body io.Reader, path string) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing leftover download: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing download file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	n, err := io.Copy(f, io.LimitReader(body, maxBinaryBytes+1))
	if err != nil {
		return fmt.Errorf("downloading binary: %w", err)
	}
	if n > maxBinaryBytes {
		return fmt.Errorf("%w (%d bytes)", ErrBinaryTooLarge, int64(maxBinaryBytes))
	}

	if goos != goosWindows {
		if err := f.Chmod(0o755); err != nil {
			return fmt.Errorf("setting binary permissions: %w", err)
		}
	}
	return nil
}

// ExecSetup runs binaryPath with args, wired to the current stdio.
func ExecSetup(ctx context.Context, binaryPath string, args []string) error {
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ResolveExecPath returns the absolute, symlink-resolved path to the running
// binary.
func ResolveExecPath() (string, error) {
	return resolveExecPath()
}

func resolveExecPath() (string, error) {
	p, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("determining executable path: %w", err)
	}

	resolved, err := evalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks for %s: %w", p, err)
	}

	return resolved, nil
}
