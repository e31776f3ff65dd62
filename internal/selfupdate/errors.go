// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
)

var (
	// ErrUpgradeInProgress is returned when a live process other than the
	// allowed hand-off parent holds the install lock.
	ErrUpgradeInProgress = errors.New("another upgrade is already in progress")

	// ErrLockContention is returned when the lock could not be acquired within
	// the bounded number of attempts (repeated create/delete races).
	ErrLockContention = errors.New("lock contention: could not acquire install lock")

	// ErrRegistryConnection wraps network-level failures talking to the registry.
	ErrRegistryConnection = errors.New("failed to connect to registry")

	// ErrNoToken indicates the registry token response carried no token field.
	ErrNoToken = errors.New("registry token response has no token")

	// ErrNoManifestVersion indicates the nightly manifest has no version annotation.
	ErrNoManifestVersion = errors.New("nightly manifest has no version")

	// ErrNoNightlyBuild indicates the nightly manifest has no layer for this platform.
	ErrNoNightlyBuild = errors.New("no nightly build for this platform")

	// ErrMissingLocation indicates a blob redirect response without a Location header.
	ErrMissingLocation = errors.New("registry redirect has no Location header")

	// ErrVersionNotFound indicates an explicitly requested version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrInvalidVersion indicates the provided version string has no version number.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidChannel indicates an unknown release channel name.
	ErrInvalidChannel = errors.New("invalid release channel")

	// ErrManagedInstall indicates the binary is owned by a package manager and
	// must not be replaced in place.
	ErrManagedInstall = errors.New("installation is managed by a package manager")

	// ErrBinaryTooLarge indicates a download exceeded the binary size limit.
	ErrBinaryTooLarge = errors.New("downloaded binary exceeds size limit")

	// ErrTokenRequest classifies non-success responses from the token endpoint.
	ErrTokenRequest = errors.New("registry token request failed")

	// ErrManifestRequest classifies non-success responses from the manifest endpoint.
	ErrManifestRequest = errors.New("nightly manifest request failed")

	// ErrUnexpectedRegistryResponse classifies blob responses that are neither
	// a body nor a redirect.
	ErrUnexpectedRegistryResponse = errors.New("unexpected registry response")

	// ErrBlobStorageDownload classifies failures fetching a blob from the
	// storage a registry redirected to.
	ErrBlobStorageDownload = errors.New("blob storage download failed")

	// ErrReleaseRequest classifies non-success responses from the releases API.
	ErrReleaseRequest = errors.New("release request failed")

	// ErrAssetDownload classifies non-success responses downloading a release asset.
	ErrAssetDownload = errors.New("release asset download failed")
)

type (
	// StatusError reports a non-success HTTP status from a specific endpoint.
	// Kind is one of the endpoint sentinels (ErrTokenRequest, ErrManifestRequest,
	// ...) so token, manifest and blob failures read and match differently.
	StatusError struct {
		Kind       error
		StatusCode int
	}

	// LockHeldError is returned when a live process holds the install lock.
	// It wraps ErrUpgradeInProgress.
	LockHeldError struct {
		LockPath string
		PID      int
	}

	// LayerNotFoundError names the filename that had no matching manifest layer.
	// It wraps ErrNoNightlyBuild.
	LayerNotFoundError struct {
		Filename string
	}

	// VersionNotFoundError names the version that has no published binary.
	// It wraps ErrVersionNotFound.
	VersionNotFoundError struct {
		Version string
	}
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.Kind, e.StatusCode)
}

// Unwrap returns the endpoint sentinel.
func (e *StatusError) Unwrap() error { return e.Kind }

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("%s (pid %d holds %s)", ErrUpgradeInProgress, e.PID, e.LockPath)
}

// Unwrap returns ErrUpgradeInProgress so callers can use errors.Is.
func (e *LockHeldError) Unwrap() error { return ErrUpgradeInProgress }

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("%s: no layer titled %q", ErrNoNightlyBuild, e.Filename)
}

// Unwrap returns ErrNoNightlyBuild so callers can use errors.Is.
func (e *LayerNotFoundError) Unwrap() error { return ErrNoNightlyBuild }

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrVersionNotFound, e.Version)
}

// Unwrap returns ErrVersionNotFound so callers can use errors.Is.
func (e *VersionNotFoundError) Unwrap() error { return ErrVersionNotFound }
