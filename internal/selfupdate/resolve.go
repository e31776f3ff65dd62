// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/mod/semver"
)

const (
	// ChannelStable tracks published GitHub releases.
	ChannelStable Channel = "stable"

	// ChannelNightly tracks the nightly tag in the OCI registry.
	ChannelNightly Channel = "nightly"
)

type (
	// Channel is a release channel.
	Channel string

	// Resolution is a resolved upgrade target.
	Resolution struct {
		Channel Channel
		// Version is the bare version, without any "v" prefix.
		Version string
		// Tag is the release tag the stable asset is published under.
		Tag string
		// Notes holds the stable release notes (markdown), if any.
		Notes string
		// Nightly is set for nightly resolutions and carries the token and
		// manifest needed to download the blob.
		Nightly *NightlyBuild
	}

	// VersionResolver decides which version to install.
	VersionResolver struct {
		github   *GitHubClient
		registry *RegistryClient
		platform PlatformTarget
	}
)

// ParseChannel converts a channel name to a Channel. The empty string means
// stable.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case "", ChannelStable:
		return ChannelStable, nil
	case ChannelNightly:
		return ChannelNightly, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidChannel, s, ChannelStable, ChannelNightly)
	}
}

// IsChannelKeyword reports whether a version argument names a channel rather
// than a version.
func IsChannelKeyword(s string) bool {
	switch Channel(strings.ToLower(s)) {
	case ChannelStable, ChannelNightly:
		return true
	}
	return false
}

// NewVersionResolver creates a resolver using the given clients.
func NewVersionResolver(gh *GitHubClient, reg *RegistryClient, platform PlatformTarget) *VersionResolver {
	return &VersionResolver{github: gh, registry: reg, platform: platform}
}

// Latest resolves the newest version on the given channel.
func (r *VersionResolver) Latest(ctx context.Context, channel Channel) (*Resolution, error) {
	switch channel {
	case ChannelNightly:
		build, err := r.registry.LatestNightly(ctx)
		if err != nil {
			return nil, err
		}
		return &Resolution{
			Channel: ChannelNightly,
			Version: StripVersionPrefix(build.Version),
			Nightly: build,
		}, nil
	default:
		rel, err := r.github.LatestRelease(ctx)
		if err != nil {
			return nil, err
		}
		return &Resolution{
			Channel: ChannelStable,
			Version: StripVersionPrefix(rel.TagName),
			Tag:     rel.TagName,
			Notes:   rel.Body,
		}, nil
	}
}

// Explicit validates that a specific stable version is published for this
// platform. Both the bare and the "v"-prefixed tag are tried; when neither
// carries the platform asset the result is a *VersionNotFoundError.
func (r *VersionResolver) Explicit(ctx context.Context, version string) (*Resolution, error) {
	bare := StripVersionPrefix(version)
	if bare == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}

	asset := r.platform.AssetName()
	for _, tag := range []string{bare, "v" + bare} {
		ok, err := r.github.AssetExists(ctx, tag, asset)
		if err != nil {
			return nil, err
		}
		if ok {
			log.Debug("explicit version found", "tag", tag, "asset", asset)
			return &Resolution{Channel: ChannelStable, Version: bare, Tag: tag}, nil
		}
	}

	return nil, &VersionNotFoundError{Version: bare}
}

// StripVersionPrefix removes any non-numeric prefix from a version or tag,
// e.g. "v1.2.3" and "release-1.2.3" both become "1.2.3".
func StripVersionPrefix(v string) string {
	v = strings.TrimSpace(v)
	return strings.TrimLeftFunc(v, func(r rune) bool {
		return r < '0' || r > '9'
	})
}

// IsAhead reports whether current is a strictly newer semantic version than
// target. Versions that are not valid semver are never ahead.
func IsAhead(current, target string) bool {
	c := "v" + StripVersionPrefix(current)
	t := "v" + StripVersionPrefix(target)
	if !semver.IsValid(c) || !semver.IsValid(t) {
		return false
	}
	return semver.Compare(c, t) > 0
}
