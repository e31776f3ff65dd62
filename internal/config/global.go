// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory when set. Tests
// use it because os.UserHomeDir ignores HOME on some platforms.
var configDirOverride string

// SetConfigDirOverride points ConfigDir at dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// Reset restores the platform config directory.
func Reset() {
	configDirOverride = ""
}
