// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (
	// manifestVersionAnnotation is the manifest annotation carrying the
	// nightly build's version string.
	manifestVersionAnnotation = "version"

	defaultRegistryURL        = "https://ghcr.io"
	defaultRegistryRepository = "getsentry/cli"
	defaultNightlyTag         = "nightly"
)

type (
	// RegistryClient fetches nightly builds from an OCI distribution registry.
	//
	// A nightly check is a sequence of independent steps, each with its own
	// failure mode: anonymous token exchange, manifest fetch, version
	// annotation lookup, layer lookup by filename and blob download.
	RegistryClient struct {
		httpClient *http.Client // never follows redirects
		blobClient *http.Client // used for redirected blob storage requests
		baseURL    string
		repository string
		tag        string
		userAgent  string
	}

	// RegistryOption configures a RegistryClient during construction.
	RegistryOption func(*RegistryClient)

	// NightlyBuild is the result of resolving the nightly tag: the pull token
	// used to fetch it, its manifest and the version it announces.
	NightlyBuild struct {
		Version  string
		Token    string
		Manifest *ocispec.Manifest
	}

	tokenResponse struct {
		Token string `json:"token"`
	}
)

// WithRegistryURL overrides the registry base URL, primarily for test servers.
func WithRegistryURL(base string) RegistryOption {
	return func(c *RegistryClient) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithRegistryRepository overrides the repository holding nightly builds.
func WithRegistryRepository(repo string) RegistryOption {
	return func(c *RegistryClient) {
		c.repository = repo
	}
}

// WithNightlyTag overrides the manifest tag that tracks the latest nightly.
func WithNightlyTag(tag string) RegistryOption {
	return func(c *RegistryClient) {
		c.tag = tag
	}
}

// WithRegistryHTTPClient sets the HTTP client. Redirect following is disabled
// on a copy of it for registry requests; the original is used as-is for the
// unauthenticated blob storage follow-up.
func WithRegistryHTTPClient(hc *http.Client) RegistryOption {
	return func(c *RegistryClient) {
		c.blobClient = hc
	}
}

// WithRegistryUserAgent sets the User-Agent header sent with every request.
func WithRegistryUserAgent(ua string) RegistryOption {
	return func(c *RegistryClient) {
		c.userAgent = ua
	}
}

// NewRegistryClient creates a RegistryClient for ghcr.io/getsentry/cli:nightly
// unless overridden.
func NewRegistryClient(opts ...RegistryOption) *RegistryClient {
	c := &RegistryClient{
		blobClient: http.DefaultClient,
		baseURL:    defaultRegistryURL,
		repository: defaultRegistryRepository,
		tag:        defaultNightlyTag,
		userAgent:  "sentry/dev",
	}
	for _, opt := range opts {
		opt(c)
	}

	noRedirect := *c.blobClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.httpClient = &noRedirect

	return c
}

// LatestNightly exchanges an anonymous token, fetches the nightly manifest
// and reads its version annotation.
func (c *RegistryClient) LatestNightly(ctx context.Context) (*NightlyBuild, error) {
	token, err := c.AnonymousToken(ctx)
	if err != nil {
		return nil, err
	}

	manifest, err := c.FetchManifest(ctx, token)
	if err != nil {
		return nil, err
	}

	version, err := ManifestVersion(manifest)
	if err != nil {
		return nil, err
	}

	return &NightlyBuild{Version: version, Token: token, Manifest: manifest}, nil
}

// AnonymousToken requests a pull-scoped bearer token for the repository.
// A well-formed response without a token is a protocol error (ErrNoToken).
func (c *RegistryClient) AnonymousToken(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("scope", fmt.Sprintf("repository:%s:pull", c.repository))
	tokenURL := c.baseURL + "/token?" + q.Encode()

	resp, err := c.do(ctx, c.httpClient, tokenURL, "", "")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Kind: ErrTokenRequest, StatusCode: resp.StatusCode}
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding registry token: %w", err)
	}
	if tr.Token == "" {
		return "", ErrNoToken
	}
	return tr.Token, nil
}

// FetchManifest fetches the OCI image manifest for the nightly tag.
func (c *RegistryClient) FetchManifest(ctx context.Context, token string) (*ocispec.Manifest, error) {
	manifestURL := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, c.repository, c.tag)

	resp, err := c.do(ctx, c.httpClient, manifestURL, token, ocispec.MediaTypeImageManifest)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Kind: ErrManifestRequest, StatusCode: resp.StatusCode}
	}

	var m ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding nightly manifest: %w", err)
	}
	return &m, nil
}

// ManifestVersion returns the version annotation of a nightly manifest. The
// version is never inferred from anything else.
func ManifestVersion(m *ocispec.Manifest) (string, error) {
	if m == nil || m.Annotations == nil {
		return "", ErrNoManifestVersion
	}
	v, ok := m.Annotations[manifestVersionAnnotation]
	if !ok || v == "" {
		return "", ErrNoManifestVersion
	}
	return v, nil
}

// FindLayerByFilename returns the layer whose title annotation equals
// filename exactly. Layers without annotations are skipped.
func FindLayerByFilename(m *ocispec.Manifest, filename string) (*ocispec.Descriptor, error) {
	if m != nil {
		for i := range m.Layers {
			if m.Layers[i].Annotations == nil {
				continue
			}
			if m.Layers[i].Annotations[ocispec.AnnotationTitle] == filename {
				return &m.Layers[i], nil
			}
		}
	}
	return nil, &LayerNotFoundError{Filename: filename}
}

// DownloadBlob fetches the blob with the given digest. The caller closes the
// returned body.
//
// Registries commonly answer with a 302/307 to third-party blob storage. The
// redirect is followed exactly once and without the Authorization header so
// the registry token never reaches another origin.
func (c *RegistryClient) DownloadBlob(ctx context.Context, token string, dgst digest.Digest) (io.ReadCloser, error) {
	if err := dgst.Validate(); err != nil {
		return nil, fmt.Errorf("invalid blob digest %q: %w", dgst, err)
	}

	blobURL := fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, c.repository, dgst)

	resp, err := c.do(ctx, c.httpClient, blobURL, token, "")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusFound, http.StatusTemporaryRedirect:
		_ = resp.Body.Close()
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, ErrMissingLocation
		}
		return c.downloadFromStorage(ctx, resp.Request.URL, location)
	default:
		_ = resp.Body.Close()
		return nil, &StatusError{Kind: ErrUnexpectedRegistryResponse, StatusCode: resp.StatusCode}
	}
}

// downloadFromStorage fetches a redirected blob without credentials.
func (c *RegistryClient) downloadFromStorage(ctx context.Context, base *url.URL, location string) (io.ReadCloser, error) {
	target, err := base.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redirect location: %w", ErrBlobStorageDownload, err)
	}
	log.Debug("following blob redirect", "host", target.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.blobClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrBlobStorageDownload, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{Kind: ErrBlobStorageDownload, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// do issues a GET against the registry. Transport failures are wrapped in
// ErrRegistryConnection, except cancellation which is returned unchanged.
func (c *RegistryClient) do(ctx context.Context, hc *http.Client, reqURL, token, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRegistryConnection, err)
	}
	return resp, nil
}
