// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	tempSuffix = ".download"
	oldSuffix  = ".old"
	lockSuffix = ".lock"
)

type (
	// InstallPaths are the sibling files used while replacing one binary.
	// All of them live in the binary's own directory so every rename stays
	// on one filesystem.
	InstallPaths struct {
		InstallPath string // the binary itself
		TempPath    string // staged download awaiting the swap
		OldPath     string // previous binary moved aside (Windows only)
		LockPath    string // PID lock serializing installers
	}

	// Installer stages a binary next to its install location and swaps it in
	// under the install lock.
	Installer struct {
		platform   PlatformTarget
		binaryName string
		handoffPID int
	}

	// InstallerOption configures an Installer during construction.
	InstallerOption func(*Installer)
)

// PathsFor derives the sibling paths for installPath.
func PathsFor(installPath string) InstallPaths {
	return InstallPaths{
		InstallPath: installPath,
		TempPath:    installPath + tempSuffix,
		OldPath:     installPath + oldSuffix,
		LockPath:    installPath + lockSuffix,
	}
}

// WithHandoffPID lets the installer take over a lock held by pid. The upgrade
// command passes its own PID to the setup child it spawns.
func WithHandoffPID(pid int) InstallerOption {
	return func(i *Installer) {
		i.handoffPID = pid
	}
}

// WithPlatform overrides the platform used to name the installed binary.
func WithPlatform(p PlatformTarget) InstallerOption {
	return func(i *Installer) {
		i.platform = p
	}
}

// WithBinaryName installs under name instead of the platform binary name.
// The upgrade hand-off passes the running executable's file name so parent
// and child agree on the install, lock and staging paths.
func WithBinaryName(name string) InstallerOption {
	return func(i *Installer) {
		i.binaryName = name
	}
}

// NewInstaller creates an Installer for the current platform.
func NewInstaller(opts ...InstallerOption) *Installer {
	i := &Installer{
		platform:   CurrentPlatform(),
		handoffPID: NoHandoff,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallBinary installs the binary at sourcePath into installDir and returns
// the final install path.
//
// The directory is created if needed, the install lock is acquired, the
// source is copied to the .download staging path (skipped when sourcePath
// already is that path, as for a setup child started from its staged
// download) and then swapped in. The lock is released on every exit path.
func (i *Installer) InstallBinary(ctx context.Context, sourcePath, installDir string) (_ string, err error) {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return "", fmt.Errorf("creating install directory: %w", err)
	}

	name := i.binaryName
	if name == "" {
		name = i.platform.BinaryName()
	}
	paths := PathsFor(filepath.Join(installDir, name))

	if err := AcquireLock(ctx, paths.LockPath, i.handoffPID); err != nil {
		return "", err
	}
	defer ReleaseLock(paths.LockPath)

	if samePath(sourcePath, paths.TempPath) {
		log.Debug("source already staged", "path", paths.TempPath)
	} else if err := stageBinary(sourcePath, paths.TempPath); err != nil {
		return "", err
	}

	if err := ReplaceBinary(paths.TempPath, paths.InstallPath); err != nil {
		return "", err
	}

	return paths.InstallPath, nil
}

// stageBinary copies sourcePath to tempPath, replacing any leftover from an
// interrupted attempt, and marks it executable.
func stageBinary(sourcePath, tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing leftover download: %w", err)
	}

	if err := copyFile(sourcePath, tempPath); err != nil {
		return err
	}

	if goos != goosWindows {
		if err := os.Chmod(tempPath, 0o755); err != nil {
			return fmt.Errorf("setting binary permissions: %w", err)
		}
	}
	return nil
}

// copyFile writes the contents of src to a new file at dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source binary: %w", err)
	}
	defer func() { _ = in.Close() }() // read-only

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("creating staged binary: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing staged binary: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying binary: %w", err)
	}
	return nil
}

// samePath reports whether a and b name the same file after resolving
// symlinks and relative segments.
func samePath(a, b string) bool {
	ca, errA := canonicalPath(a)
	cb, errB := canonicalPath(b)
	if errA != nil || errB != nil {
		return false
	}
	if goos == goosWindows {
		return strings.EqualFold(ca, cb)
	}
	return ca == cb
}

func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return evalSymlinks(abs)
}
