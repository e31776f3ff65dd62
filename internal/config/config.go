// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/getsentry/cli/internal/issue"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName names the per-user config directory.
	AppName = "sentry"
	// ConfigFileName and ConfigFileExt make up "config.cue".
	ConfigFileName = "config"
	ConfigFileExt  = "cue"
	// EnvPrefix prefixes environment overrides: upgrade.channel is read from
	// SENTRY_UPGRADE_CHANNEL.
	EnvPrefix = "SENTRY"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the per-user sentry config directory:
// %APPDATA%\sentry on Windows, ~/Library/Application Support/sentry on macOS
// and $XDG_CONFIG_HOME/sentry (default ~/.config/sentry) elsewhere.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	base, err := platformConfigBase(runtime.GOOS, os.Getenv, os.UserHomeDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// platformConfigBase picks the config root for goos using the injected
// environment lookups.
func platformConfigBase(goos string, getenv func(string) string, homeDir func() (string, error)) (string, error) {
	fromHome := func(elem ...string) (string, error) {
		home, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(append([]string{home}, elem...)...), nil
	}

	switch goos {
	case "windows":
		if appData := getenv("APPDATA"); appData != "" {
			return appData, nil
		}
		if profile := getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Roaming"), nil
		}
		return fromHome("AppData", "Roaming")
	case "darwin":
		return fromHome("Library", "Application Support")
	default:
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			return xdg, nil
		}
		return fromHome(".config")
	}
}

// DefaultInstallDir is where `sentry cli setup --install` puts the binary
// when neither --install-dir nor install.dir is set.
func DefaultInstallDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "bin"), nil
}

// loadWithOptions layers defaults, the CUE file and SENTRY_* variables, in
// increasing precedence, and validates the result. It returns the file that
// was read, or "" when defaults and environment were enough.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := newViper()

	path, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		values, err := readCUEFile(path)
		if err != nil {
			return nil, "", loadError(path, err)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, "", loadError(path, fmt.Errorf("failed to merge config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Check SENTRY_* environment variables for typos").
			WithSuggestion("Repositories use the owner/name form and endpoints must be http(s) URLs").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

// newViper returns a viper instance holding the defaults with SENTRY_*
// environment lookups enabled.
func newViper() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	for key, value := range map[string]any{
		"upgrade.channel":             d.Upgrade.Channel,
		"upgrade.github.api_url":      d.Upgrade.GitHub.APIURL,
		"upgrade.github.download_url": d.Upgrade.GitHub.DownloadURL,
		"upgrade.github.repository":   d.Upgrade.GitHub.Repository,
		"upgrade.registry.url":        d.Upgrade.Registry.URL,
		"upgrade.registry.repository": d.Upgrade.Registry.Repository,
		"upgrade.registry.tag":        d.Upgrade.Registry.Tag,
		"install.dir":                 d.Install.Dir,
		"ui.verbose":                  d.UI.Verbose,
	} {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// resolveConfigFile returns the config file to read. An explicit path must
// exist; the default location is optional and yields "" when absent.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !isRegularFile(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check the path passed to --config").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if !isRegularFile(path) {
		return "", nil
	}
	return path, nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Fix the reported CUE error and run the command again").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// configDirWithOverride prefers an explicit LoadOptions directory over
// ConfigDir.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// readCUEFile checks the file against #Config and returns its fields as a
// nested map ready for viper. Every schema field is optional.
func readCUEFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkFileSize(data, maxConfigFileSize, path); err != nil {
		return nil, err
	}

	cctx := cuecontext.New()
	schema := cctx.CompileString(configSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", err)
	}

	user := cctx.CompileBytes(data, cue.Filename(path))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err, path)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err, path)
	}

	values := map[string]any{}
	if err := unified.Decode(&values); err != nil {
		return nil, formatCUEError(err, path)
	}
	return values, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
