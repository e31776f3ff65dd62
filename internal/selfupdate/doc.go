// SPDX-License-Identifier: MPL-2.0

// Package selfupdate installs and upgrades the sentry CLI binary in place.
//
// The package is organized into these concerns:
//   - lock.go: cross-process PID lock file guarding an install location
//   - replace.go: atomic swap of the executable (rename on POSIX, rename-aside on Windows)
//   - install.go: InstallPaths and the Installer that stages, locks and replaces
//   - registry.go: OCI distribution client for nightly builds (token, manifest, blob)
//   - github.go: GitHub Releases client for the stable channel
//   - resolve.go: channel-aware version resolution and explicit-version checks
//   - detect.go, record.go: install method detection and the install metadata record
//   - selfupdate.go: Updater that composes the above for `sentry cli upgrade`
package selfupdate
