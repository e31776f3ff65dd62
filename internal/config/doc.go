// SPDX-License-Identifier: MPL-2.0

// Package config handles sentry CLI configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/sentry/config.cue (or $XDG_CONFIG_HOME on Linux,
// ~/Library/Application Support/sentry/config.cue on macOS, %APPDATA%\sentry\config.cue
// on Windows). Every key can be overridden with a SENTRY_-prefixed environment variable,
// for example SENTRY_UPGRADE_CHANNEL=nightly.
//
// The file is validated against an embedded CUE schema (config_schema.cue) before it is
// merged over the built-in defaults.
package config
