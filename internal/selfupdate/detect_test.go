// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"path/filepath"
	"runtime/debug"
	"testing"
)

// clearDetectionSeams removes the ldflags hint and build info so detection
// falls through to path heuristics.
func clearDetectionSeams(t *testing.T) {
	t.Helper()

	savedHint := installMethodHint
	savedReadBuildInfo := readBuildInfo
	t.Cleanup(func() {
		installMethodHint = savedHint
		readBuildInfo = savedReadBuildInfo
	})
	installMethodHint = ""
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
}

func TestDetectInstallMethod_LdflagsHint(t *testing.T) {
	// Not parallel: subtests mutate the package-level installMethodHint global.

	tests := []struct {
		name string
		hint string
		path string
		want InstallMethod
	}{
		{name: "brew hint overrides path heuristics", hint: "brew", path: "/usr/local/bin/sentry", want: InstallMethodHomebrew},
		{name: "npm hint", hint: "npm", path: "/usr/local/bin/sentry", want: InstallMethodNPM},
		{name: "curl hint", hint: "curl", path: "/opt/homebrew/bin/sentry", want: InstallMethodCurl},
		{name: "unknown hint value", hint: "manual", path: "/opt/homebrew/bin/sentry", want: InstallMethodUnknown},
		{name: "hint is case-insensitive", hint: "HOMEBREW", path: "/usr/local/bin/sentry", want: InstallMethodHomebrew},
		{name: "empty hint falls through", hint: "", path: "/opt/homebrew/bin/sentry", want: InstallMethodHomebrew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := installMethodHint
			t.Cleanup(func() { installMethodHint = saved })
			installMethodHint = tt.hint

			if got := DetectInstallMethod(tt.path, nil); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) with hint=%q = %v, want %v", tt.path, tt.hint, got, tt.want)
			}
		})
	}
}

func TestDetectInstallMethod_Paths(t *testing.T) {
	// Not parallel: mutates package-level detection seams.
	clearDetectionSeams(t)

	tests := []struct {
		name string
		path string
		want InstallMethod
	}{
		{name: "macOS ARM Homebrew", path: "/opt/homebrew/Cellar/sentry/1.0.0/bin/sentry", want: InstallMethodHomebrew},
		{name: "macOS Intel Homebrew", path: "/usr/local/Cellar/sentry/1.0.0/bin/sentry", want: InstallMethodHomebrew},
		{name: "Linux Homebrew", path: "/home/linuxbrew/.linuxbrew/bin/sentry", want: InstallMethodHomebrew},
		{name: "global npm package", path: "/usr/lib/node_modules/sentry/dist/sentry", want: InstallMethodNPM},
		{name: "node_modules lookalike", path: "/opt/my_node_modules/sentry", want: InstallMethodUnknown},
		{name: "manual download", path: "/usr/local/bin/sentry", want: InstallMethodUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectInstallMethod(tt.path, nil); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDetectInstallMethod_Record(t *testing.T) {
	// Not parallel: mutates package-level detection and exec seams.
	clearDetectionSeams(t)

	saved := evalSymlinks
	t.Cleanup(func() { evalSymlinks = saved })
	evalSymlinks = func(p string) (string, error) { return p, nil }

	execPath := filepath.Join(t.TempDir(), "bin", "sentry")

	tests := []struct {
		name string
		rec  *InstallRecord
		path string
		want InstallMethod
	}{
		{name: "record for this path", rec: &InstallRecord{Method: "curl", Path: execPath}, path: execPath, want: InstallMethodCurl},
		{name: "record for another path", rec: &InstallRecord{Method: "curl", Path: "/elsewhere/sentry"}, path: execPath, want: InstallMethodUnknown},
		{name: "record without method", rec: &InstallRecord{Path: execPath}, path: execPath, want: InstallMethodUnknown},
		{
			name: "record beats path heuristics",
			rec:  &InstallRecord{Method: "curl", Path: "/opt/homebrew/bin/sentry"},
			path: "/opt/homebrew/bin/sentry",
			want: InstallMethodCurl,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectInstallMethod(tt.path, tt.rec); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDetectInstallMethod_GoInstall(t *testing.T) {
	// Not parallel: subtests mutate package-level readBuildInfo and use t.Setenv.
	clearDetectionSeams(t)

	tests := []struct {
		name       string
		modulePath string
		hasBuild   bool
		want       InstallMethod
	}{
		{name: "matching module path", modulePath: "github.com/getsentry/cli/cmd/sentry", hasBuild: true, want: InstallMethodGoInstall},
		{name: "wrong module path", modulePath: "github.com/other/project", hasBuild: true, want: InstallMethodUnknown},
		{name: "no build info", hasBuild: false, want: InstallMethodUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			savedReadBuildInfo := readBuildInfo
			t.Cleanup(func() { readBuildInfo = savedReadBuildInfo })

			modPath := tt.modulePath
			hasBuild := tt.hasBuild
			readBuildInfo = func() (*debug.BuildInfo, bool) {
				if !hasBuild {
					return nil, false
				}
				return &debug.BuildInfo{Path: modPath}, true
			}

			gopath := filepath.Join(t.TempDir(), "go")
			t.Setenv("GOPATH", gopath)
			path := filepath.Join(gopath, "bin", "sentry")

			if got := DetectInstallMethod(path, nil); got != tt.want {
				t.Errorf("DetectInstallMethod(%q) = %v, want %v", path, got, tt.want)
			}
		})
	}
}

func TestInstallMethod_StringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []InstallMethod{InstallMethodCurl, InstallMethodHomebrew, InstallMethodNPM, InstallMethodGoInstall} {
		if got := ParseInstallMethod(m.String()); got != m {
			t.Errorf("ParseInstallMethod(%q) = %v, want %v", m.String(), got, m)
		}
	}
	if got := InstallMethod(99).String(); got != "unknown" {
		t.Errorf("InstallMethod(99).String() = %q, want unknown", got)
	}
}

func TestInstallMethod_Managed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method      InstallMethod
		managed     bool
		wantCommand bool
	}{
		{InstallMethodUnknown, false, false},
		{InstallMethodCurl, false, false},
		{InstallMethodHomebrew, true, true},
		{InstallMethodNPM, true, true},
		{InstallMethodGoInstall, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			t.Parallel()

			if got := tt.method.Managed(); got != tt.managed {
				t.Errorf("Managed() = %v, want %v", got, tt.managed)
			}
			if got := tt.method.UpgradeCommand() != ""; got != tt.wantCommand {
				t.Errorf("UpgradeCommand() = %q", tt.method.UpgradeCommand())
			}
		})
	}
}

func TestIsInGOPATHBin(t *testing.T) {
	// Not parallel: uses t.Setenv.
	gopath := filepath.Join(t.TempDir(), "go")
	t.Setenv("GOPATH", gopath)

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(gopath, "bin", "sentry"), true},
		{filepath.Join(gopath, "bin"), true},
		{filepath.Join(gopath, "binaries", "sentry"), false},
		{filepath.Join(filepath.Dir(gopath), "gobin", "sentry"), false},
	}

	for _, tt := range tests {
		if got := isInGOPATHBin(tt.path); got != tt.want {
			t.Errorf("isInGOPATHBin(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
