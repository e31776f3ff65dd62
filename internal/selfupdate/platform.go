// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"fmt"
	"runtime"
)

const (
	// binaryBaseName is the installed command name.
	binaryBaseName = "sentry"

	goosWindows = "windows"
)

//nolint:gochecknoglobals // Test seam so the Windows code paths run on any OS.
var goos = runtime.GOOS

// PlatformTarget identifies the operating system and CPU architecture a
// release binary is built for.
type PlatformTarget struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the target for the running process.
func CurrentPlatform() PlatformTarget {
	return PlatformTarget{OS: goos, Arch: runtime.GOARCH}
}

// AssetName returns the release asset filename for the target, following the
// `sentry-<os>-<arch>[.exe]` convention used by both the GitHub release assets
// and the nightly manifest layer titles.
func (p PlatformTarget) AssetName() string {
	name := fmt.Sprintf("%s-%s-%s", binaryBaseName, p.OS, releaseArch(p.Arch))
	if p.OS == goosWindows {
		name += ".exe"
	}
	return name
}

// BinaryName returns the filename the binary is installed under.
func (p PlatformTarget) BinaryName() string {
	if p.OS == goosWindows {
		return binaryBaseName + ".exe"
	}
	return binaryBaseName
}

func (p PlatformTarget) String() string {
	return p.OS + "/" + p.Arch
}

// releaseArch maps Go architecture names to the names used in asset filenames.
func releaseArch(arch string) string {
	switch arch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return arch
	}
}
