// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalog entry.
type Id int //nolint:revive // Id matches the catalog naming used by callers

const (
	ConfigLoadFailedId Id = iota + 1
	PermissionDeniedId
	GitHubRateLimitedId
	RegistryUnreachableId
	UpgradeInProgressId
	ManagedInstallId
	VersionNotFoundId
)

type (
	// MarkdownMsg is Markdown text rendered to the terminal with glamour.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string //nolint:revive // kept in sync with Id naming

	// Issue is long-form guidance for a failure the user can act on.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id { //nolint:revive // see Id
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the issue with the given glamour style ("dark", "light",
// "notty", "auto" or a path to a JSON style).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

const installDocs HttpLink = "https://cli.sentry.dev/getting-started/#installation"

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Could not load the sentry configuration

The config file failed to parse or does not match the schema.

## Things you can try:
- Check the file for CUE syntax errors
- Remove unknown keys; every key lives under 'upgrade', 'install' or 'ui'
- Unset any 'SENTRY_*' environment variables you do not expect`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied while replacing the binary

The directory holding the sentry binary is not writable by the current user.

## Things you can try:
- Re-run the upgrade with elevated privileges:
~~~
$ sudo sentry cli upgrade
~~~
- Or reinstall into a user-owned directory such as '~/.local/bin'`,
		docLinks: []HttpLink{installDocs},
	}

	gitHubRateLimitedIssue = &Issue{
		id: GitHubRateLimitedId,
		mdMsg: `
# GitHub API rate limit exceeded

Unauthenticated requests share a small hourly quota per IP address.

## Things you can try:
- Export a token and retry:
~~~
$ export GITHUB_TOKEN=<your token>
$ sentry cli upgrade
~~~
- Wait for the quota window to reset`,
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# Could not reach the nightly registry

Nightly builds are served from an OCI registry (ghcr.io by default).

## Things you can try:
- Check your network connection and proxy settings
- Override the registry with 'upgrade.registry.url' in config.cue
- Switch back to stable releases:
~~~
$ sentry cli upgrade stable
~~~`,
	}

	upgradeInProgressIssue = &Issue{
		id: UpgradeInProgressId,
		mdMsg: `
# Another upgrade is already running

A live sentry process holds the install lock next to the binary.

## Things you can try:
- Wait for the other upgrade to finish and retry
- If no upgrade is running, remove the stale 'sentry.lock' file next to the binary`,
	}

	managedInstallIssue = &Issue{
		id: ManagedInstallId,
		mdMsg: `
# This sentry was installed by a package manager

Upgrading in place would conflict with the package manager's bookkeeping,
and nightly builds are only available for standalone installs.

## Things you can try:
- Upgrade through the package manager that installed it
- Or install the standalone binary to use nightly builds`,
		docLinks: []HttpLink{installDocs},
	}

	versionNotFoundIssue = &Issue{
		id: VersionNotFoundId,
		mdMsg: `
# Version not found

No release with a binary for this platform matches the requested version.

## Things you can try:
- Check the version number against the published releases
- Upgrade to the latest stable release instead:
~~~
$ sentry cli upgrade
~~~`,
		docLinks: []HttpLink{"https://github.com/getsentry/cli/releases"},
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
		gitHubRateLimitedIssue.Id():   gitHubRateLimitedIssue,
		registryUnreachableIssue.Id(): registryUnreachableIssue,
		upgradeInProgressIssue.Id():   upgradeInProgressIssue,
		managedInstallIssue.Id():      managedInstallIssue,
		versionNotFoundIssue.Id():     versionNotFoundIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
