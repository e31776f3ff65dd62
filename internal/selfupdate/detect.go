// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Path fragments that mark a binary as managed by a package manager.
var homebrewPrefixes = []string{
	"/opt/homebrew/",              // macOS on Apple Silicon
	"/usr/local/Cellar/",          // macOS on Intel
	"/home/linuxbrew/.linuxbrew/", // Linuxbrew
}

const (
	nodeModulesDir = "node_modules"

	// modulePath confirms that a binary in GOPATH/bin came from go install.
	modulePath = "github.com/getsentry/cli"
)

const (
	// InstallMethodUnknown covers manual downloads and anything unrecognized.
	InstallMethodUnknown InstallMethod = iota

	// InstallMethodCurl is the install script, which runs
	// `sentry cli setup --install` and leaves an install record.
	InstallMethodCurl

	InstallMethodHomebrew
	InstallMethodNPM
	InstallMethodGoInstall
)

var (
	// installMethodHint lets packagers pin the method with
	// -ldflags "-X github.com/getsentry/cli/internal/selfupdate.installMethodHint=npm".
	//
	//nolint:gochecknoglobals // Set by the linker.
	installMethodHint string

	//nolint:gochecknoglobals // Test seam for debug.ReadBuildInfo.
	readBuildInfo = debug.ReadBuildInfo
)

// InstallMethod identifies how the binary was installed. Curl and unknown
// installs are replaced in place; the rest are left to their package manager.
type InstallMethod int

// String returns the install method name as stored in the install record.
func (m InstallMethod) String() string {
	switch m {
	case InstallMethodUnknown:
		return "unknown"
	case InstallMethodCurl:
		return "curl"
	case InstallMethodHomebrew:
		return "brew"
	case InstallMethodNPM:
		return "npm"
	case InstallMethodGoInstall:
		return "go"
	}
	return "unknown"
}

// Managed reports whether a package manager owns the binary.
func (m InstallMethod) Managed() bool {
	return m == InstallMethodHomebrew || m == InstallMethodNPM || m == InstallMethodGoInstall
}

// UpgradeCommand returns the package manager command that upgrades a managed
// install, or "" for self-updating installs.
func (m InstallMethod) UpgradeCommand() string {
	switch m {
	case InstallMethodHomebrew:
		return "brew upgrade sentry"
	case InstallMethodNPM:
		return "npm install -g sentry@latest"
	case InstallMethodGoInstall:
		return "go install " + modulePath + "/cmd/sentry@latest"
	case InstallMethodUnknown, InstallMethodCurl:
		return ""
	}
	return ""
}

// DetectInstallMethod determines how the binary at execPath was installed.
// Detection priority:
//  1. Build-time ldflags hint
//  2. The install record, when it describes this same path
//  3. Path heuristics: Homebrew prefixes, node_modules
//  4. GOPATH/bin confirmed by the build info module path
//  5. Unknown
func DetectInstallMethod(execPath string, rec *InstallRecord) InstallMethod {
	if installMethodHint != "" {
		return ParseInstallMethod(installMethodHint)
	}

	if rec != nil && rec.Method != "" && samePath(rec.Path, execPath) {
		return ParseInstallMethod(rec.Method)
	}

	for _, prefix := range homebrewPrefixes {
		if strings.Contains(execPath, prefix) {
			return InstallMethodHomebrew
		}
	}

	if isInNodeModules(execPath) {
		return InstallMethodNPM
	}

	// Both conditions are required: a binary copied into GOPATH/bin by hand is
	// not a go install.
	if isInGOPATHBin(execPath) && hasModulePath() {
		return InstallMethodGoInstall
	}

	return InstallMethodUnknown
}

// ParseInstallMethod converts an install method name to an InstallMethod.
func ParseInstallMethod(s string) InstallMethod {
	switch strings.ToLower(s) {
	case "curl":
		return InstallMethodCurl
	case "brew", "homebrew":
		return InstallMethodHomebrew
	case "npm":
		return InstallMethodNPM
	case "go", "goinstall":
		return InstallMethodGoInstall
	default:
		return InstallMethodUnknown
	}
}

func isInNodeModules(execPath string) bool {
	for part := range strings.SplitSeq(filepath.ToSlash(filepath.Clean(execPath)), "/") {
		if part == nodeModulesDir {
			return true
		}
	}
	return false
}

// isInGOPATHBin reports whether execPath lies under $GOPATH/bin (~/go/bin
// when GOPATH is unset).
func isInGOPATHBin(execPath string) bool {
	root := os.Getenv("GOPATH")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		root = filepath.Join(home, "go")
	}

	rel, err := filepath.Rel(filepath.Join(root, "bin"), filepath.Clean(execPath))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// hasModulePath checks whether the running binary was built from this module.
func hasModulePath() bool {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return false
	}
	return strings.HasPrefix(info.Path, modulePath)
}
