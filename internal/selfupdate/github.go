// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// maxJSONResponseBytes caps JSON bodies from GitHub and the registry (10 MB).
	maxJSONResponseBytes = 10 << 20

	defaultGitHubAPIURL      = "https://api.github.com"
	defaultGitHubDownloadURL = "https://github.com"
	defaultGitHubOwner       = "getsentry"
	defaultGitHubRepo        = "cli"

	githubAcceptHeader = "application/vnd.github+json"
	githubAPIVersion   = "2022-11-28"
)

type (
	// RateLimitError reports an exhausted GitHub API quota.
	RateLimitError struct {
		Limit     int
		Remaining int
		ResetAt   time.Time
	}

	// Release describes a published stable release.
	Release struct {
		TagName string // as published, with or without a "v" prefix
		Name    string
		Body    string // Markdown release notes
		HTMLURL string
	}

	// GitHubClient reads the stable channel from GitHub Releases: the latest
	// release, asset existence and asset downloads.
	GitHubClient struct {
		httpClient  *http.Client
		owner       string
		repo        string
		baseURL     string
		downloadURL string
		token       string
		userAgent   string
	}

	// ClientOption configures a GitHubClient during construction.
	ClientOption func(*GitHubClient)
)

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded (%d remaining, resets at %s)",
		e.Remaining, e.ResetAt.UTC().Format("15:04 UTC"))
}

// WithHTTPClient replaces http.DefaultClient, for proxies or test servers.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *GitHubClient) { g.httpClient = c }
}

// WithBaseURL points API calls at base instead of api.github.com.
func WithBaseURL(base string) ClientOption {
	return func(g *GitHubClient) { g.baseURL = strings.TrimRight(base, "/") }
}

// WithDownloadURL points asset URLs at base instead of github.com.
func WithDownloadURL(base string) ClientOption {
	return func(g *GitHubClient) { g.downloadURL = strings.TrimRight(base, "/") }
}

// WithToken authenticates requests to the configured GitHub hosts, which
// lifts the anonymous rate limit.
func WithToken(token string) ClientOption {
	return func(g *GitHubClient) { g.token = token }
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(g *GitHubClient) { g.userAgent = ua }
}

// WithRepo selects the repository releases are read from.
func WithRepo(owner, repo string) ClientOption {
	return func(g *GitHubClient) {
		g.owner, g.repo = owner, repo
	}
}

// NewGitHubClient returns a client for getsentry/cli on github.com; options
// override any part of that.
func NewGitHubClient(opts ...ClientOption) *GitHubClient {
	c := &GitHubClient{
		httpClient:  http.DefaultClient,
		owner:       defaultGitHubOwner,
		repo:        defaultGitHubRepo,
		baseURL:     defaultGitHubAPIURL,
		downloadURL: defaultGitHubDownloadURL,
		userAgent:   "sentry/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestRelease returns the newest published, non-prerelease release.
func (c *GitHubClient) LatestRelease(ctx context.Context) (*Release, error) {
	endpoint := c.baseURL + "/repos/" + c.owner + "/" + c.repo + "/releases/latest"

	resp, err := c.send(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if rl := rateLimitFrom(resp.Header); rl != nil {
		return nil, rl
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Kind: ErrReleaseRequest, StatusCode: resp.StatusCode}
	}

	var payload struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
		Body    string `json:"body"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fetching latest release: decoding response: %w", err)
	}
	if payload.TagName == "" {
		return nil, fmt.Errorf("fetching latest release: %w: response has no tag_name", ErrReleaseRequest)
	}

	rel := Release(payload)
	return &rel, nil
}

// AssetURL builds the public download URL for asset in release tag.
func (c *GitHubClient) AssetURL(tag, asset string) string {
	return strings.Join([]string{
		c.downloadURL, c.owner, c.repo, "releases", "download",
		url.PathEscape(tag), url.PathEscape(asset),
	}, "/")
}

// AssetExists sends a HEAD request for the asset. A 404 means the release or
// asset does not exist; other failures are errors, so an outage is never
// reported as a missing version.
func (c *GitHubClient) AssetExists(ctx context.Context, tag, asset string) (bool, error) {
	target := c.AssetURL(tag, asset)

	resp, err := c.send(ctx, http.MethodHead, target)
	if err != nil {
		return false, fmt.Errorf("checking asset %s: %w", redactURL(target), err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, &StatusError{Kind: ErrAssetDownload, StatusCode: resp.StatusCode}
	}
	return true, nil
}

// DownloadAsset streams the asset at assetURL. The caller closes the body.
func (c *GitHubClient) DownloadAsset(ctx context.Context, assetURL string) (io.ReadCloser, error) {
	resp, err := c.send(ctx, http.MethodGet, assetURL)
	if err != nil {
		return nil, fmt.Errorf("downloading asset %s: %w", redactURL(assetURL), err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{Kind: ErrAssetDownload, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// send issues a request with the GitHub API headers. The token goes only to
// the configured GitHub hosts.
func (c *GitHubClient) send(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	h := req.Header
	h.Set("Accept", githubAcceptHeader)
	h.Set("X-GitHub-Api-Version", githubAPIVersion)
	h.Set("User-Agent", c.userAgent)
	if c.token != "" && isGitHubHost(req.URL, c.baseURL, c.downloadURL) {
		h.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// rateLimitFrom returns a RateLimitError when the X-RateLimit-Remaining
// header reports zero. Missing or malformed headers mean no rate limit.
func rateLimitFrom(h http.Header) *RateLimitError {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil || remaining > 0 {
		return nil
	}

	rl := &RateLimitError{}
	if limit, err := strconv.Atoi(h.Get("X-RateLimit-Limit")); err == nil {
		rl.Limit = limit
	}
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		rl.ResetAt = time.Unix(reset, 0)
	}
	return rl
}

// isGitHubHost reports whether reqURL's host matches one of the trusted base
// URLs, ignoring case.
func isGitHubHost(reqURL *url.URL, trusted ...string) bool {
	for _, raw := range trusted {
		if base, err := url.Parse(raw); err == nil && base.Host != "" && strings.EqualFold(reqURL.Host, base.Host) {
			return true
		}
	}
	return false
}

// redactURL drops the query and fragment, which may carry signed tokens,
// before a URL goes into an error message.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery, u.Fragment = "", ""
	return u.String()
}
