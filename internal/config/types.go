// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// ChannelStable tracks published releases.
	ChannelStable = "stable"
	// ChannelNightly tracks nightly builds.
	ChannelNightly = "nightly"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidChannel is returned when upgrade.channel is not a known channel.
	ErrInvalidChannel = errors.New("invalid release channel")
	// ErrInvalidRepository is returned when a repository is not "owner/name".
	ErrInvalidRepository = errors.New("invalid repository")
	// ErrInvalidEndpoint is returned when an endpoint is not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint URL")
)

type (
	// Config holds the sentry CLI configuration relevant to installing and
	// upgrading the binary.
	Config struct {
		Upgrade UpgradeConfig `json:"upgrade" mapstructure:"upgrade"`
		Install InstallConfig `json:"install" mapstructure:"install"`
		UI      UIConfig      `json:"ui" mapstructure:"ui"`
	}

	// UpgradeConfig selects the release channel and where releases come from.
	UpgradeConfig struct {
		// Channel is "stable" or "nightly". Empty defers to the install record.
		Channel  string         `json:"channel" mapstructure:"channel"`
		GitHub   GitHubConfig   `json:"github" mapstructure:"github"`
		Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	}

	// GitHubConfig locates stable releases.
	GitHubConfig struct {
		APIURL      string `json:"api_url" mapstructure:"api_url"`
		DownloadURL string `json:"download_url" mapstructure:"download_url"`
		Repository  string `json:"repository" mapstructure:"repository"`
	}

	// RegistryConfig locates nightly builds in an OCI registry.
	RegistryConfig struct {
		URL        string `json:"url" mapstructure:"url"`
		Repository string `json:"repository" mapstructure:"repository"`
		Tag        string `json:"tag" mapstructure:"tag"`
	}

	// InstallConfig controls where `sentry cli setup --install` places the binary.
	InstallConfig struct {
		// Dir is the install directory. Empty means ~/.local/bin.
		Dir string `json:"dir" mapstructure:"dir"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables debug logging and full error chains.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// InvalidConfigError collects every field that failed validation.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by every field error, so
// errors.Is matches both the sentinel and field-specific causes.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Owner returns the owner half of the GitHub repository.
func (g GitHubConfig) Owner() string {
	owner, _, _ := strings.Cut(g.Repository, "/")
	return owner
}

// Name returns the name half of the GitHub repository.
func (g GitHubConfig) Name() string {
	_, name, _ := strings.Cut(g.Repository, "/")
	return name
}

// Validate checks the constraints the CUE schema cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Upgrade.Channel {
	case "", ChannelStable, ChannelNightly:
	default:
		errs = append(errs, fmt.Errorf("upgrade.channel: %w: %q", ErrInvalidChannel, c.Upgrade.Channel))
	}

	if err := validateRepository(c.Upgrade.GitHub.Repository); err != nil {
		errs = append(errs, fmt.Errorf("upgrade.github.repository: %w", err))
	}
	if err := validateRepository(c.Upgrade.Registry.Repository); err != nil {
		errs = append(errs, fmt.Errorf("upgrade.registry.repository: %w", err))
	}

	for field, raw := range map[string]string{
		"upgrade.github.api_url":      c.Upgrade.GitHub.APIURL,
		"upgrade.github.download_url": c.Upgrade.GitHub.DownloadURL,
		"upgrade.registry.url":        c.Upgrade.Registry.URL,
	} {
		if err := validateEndpoint(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if strings.TrimSpace(c.Upgrade.Registry.Tag) == "" {
		errs = append(errs, errors.New("upgrade.registry.tag: must not be empty"))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func validateRepository(repo string) error {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.ContainsAny(repo, " \t") {
		return fmt.Errorf("%w: %q (want owner/name)", ErrInvalidRepository, repo)
	}
	return nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Upgrade: UpgradeConfig{
			GitHub: GitHubConfig{
				APIURL:      "https://api.github.com",
				DownloadURL: "https://github.com",
				Repository:  "getsentry/cli",
			},
			Registry: RegistryConfig{
				URL:        "https://ghcr.io",
				Repository: "getsentry/cli",
				Tag:        "nightly",
			},
		},
	}
}
