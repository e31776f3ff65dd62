// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const testBlob = "nightly-binary-bytes"

var testDigest = digest.FromString(testBlob)

func testManifest(version string) ocispec.Manifest {
	m := ocispec.Manifest{
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: "application/vnd.oci.empty.v1+json",
			Digest:    digest.FromString("{}"),
			Size:      2,
		},
		Layers: []ocispec.Descriptor{
			{
				MediaType: "application/octet-stream",
				Digest:    digest.FromString("no annotations"),
				Size:      14,
			},
			{
				MediaType:   "application/octet-stream",
				Digest:      digest.FromString("darwin"),
				Size:        6,
				Annotations: map[string]string{ocispec.AnnotationTitle: "sentry-darwin-arm64"},
			},
			{
				MediaType:   "application/octet-stream",
				Digest:      testDigest,
				Size:        int64(len(testBlob)),
				Annotations: map[string]string{ocispec.AnnotationTitle: "sentry-linux-x64"},
			},
		},
	}
	m.SchemaVersion = 2
	if version != "" {
		m.Annotations = map[string]string{manifestVersionAnnotation: version}
	}
	return m
}

// newRegistryServer serves the token, manifest and blob endpoints of a
// minimal OCI registry for getsentry/cli.
func newRegistryServer(t *testing.T, manifest ocispec.Manifest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			if got := r.URL.Query().Get("scope"); got != "repository:getsentry/cli:pull" {
				t.Errorf("token scope = %q", got)
			}
			fmt.Fprint(w, `{"token":"anon-token"}`)
		case r.URL.Path == "/v2/getsentry/cli/manifests/nightly":
			if got := r.Header.Get("Accept"); got != ocispec.MediaTypeImageManifest {
				t.Errorf("manifest Accept = %q", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer anon-token" {
				t.Errorf("manifest Authorization = %q", got)
			}
			w.Header().Set("Content-Type", ocispec.MediaTypeImageManifest)
			if err := json.NewEncoder(w).Encode(manifest); err != nil {
				t.Errorf("encoding manifest: %v", err)
			}
		case r.URL.Path == "/v2/getsentry/cli/blobs/"+testDigest.String():
			fmt.Fprint(w, testBlob)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestRegistryClient_LatestNightly(t *testing.T) {
	t.Parallel()

	srv := newRegistryServer(t, testManifest("0.6.0-dev.1740000000"))
	client := NewRegistryClient(WithRegistryURL(srv.URL))

	build, err := client.LatestNightly(context.Background())
	if err != nil {
		t.Fatalf("LatestNightly() error = %v", err)
	}
	if build.Version != "0.6.0-dev.1740000000" {
		t.Errorf("Version = %q", build.Version)
	}
	if build.Token != "anon-token" {
		t.Errorf("Token = %q", build.Token)
	}
	if len(build.Manifest.Layers) != 3 {
		t.Errorf("manifest has %d layers, want 3", len(build.Manifest.Layers))
	}
}

func TestRegistryClient_LatestNightly_NoVersion(t *testing.T) {
	t.Parallel()

	srv := newRegistryServer(t, testManifest(""))
	client := NewRegistryClient(WithRegistryURL(srv.URL))

	if _, err := client.LatestNightly(context.Background()); !errors.Is(err, ErrNoManifestVersion) {
		t.Fatalf("LatestNightly() error = %v, want ErrNoManifestVersion", err)
	}
}

func TestRegistryClient_AnonymousToken_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "missing token field", status: http.StatusOK, body: `{}`, wantErr: ErrNoToken},
		{name: "empty token", status: http.StatusOK, body: `{"token":""}`, wantErr: ErrNoToken},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: ErrTokenRequest},
		{name: "unauthorized", status: http.StatusUnauthorized, body: ``, wantErr: ErrTokenRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewRegistryClient(WithRegistryURL(srv.URL)).AnonymousToken(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AnonymousToken() error = %v, want %v", err, tt.wantErr)
			}

			var se *StatusError
			if errors.As(err, &se) && se.StatusCode != tt.status {
				t.Errorf("StatusError.StatusCode = %d, want %d", se.StatusCode, tt.status)
			}
		})
	}
}

func TestRegistryClient_FetchManifest_Status(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRegistryClient(WithRegistryURL(srv.URL)).FetchManifest(context.Background(), "tok")
	if !errors.Is(err, ErrManifestRequest) {
		t.Fatalf("FetchManifest() error = %v, want ErrManifestRequest", err)
	}
	if errors.Is(err, ErrTokenRequest) {
		t.Error("manifest failure must not match the token sentinel")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not include the status code", err)
	}
}

func TestManifestVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest *ocispec.Manifest
		want     string
		wantErr  bool
	}{
		{name: "nil manifest", manifest: nil, wantErr: true},
		{name: "no annotations", manifest: &ocispec.Manifest{}, wantErr: true},
		{
			name:     "annotations without version",
			manifest: &ocispec.Manifest{Annotations: map[string]string{"other": "x"}},
			wantErr:  true,
		},
		{
			name:     "empty version",
			manifest: &ocispec.Manifest{Annotations: map[string]string{"version": ""}},
			wantErr:  true,
		},
		{
			name:     "version present",
			manifest: &ocispec.Manifest{Annotations: map[string]string{"version": "0.6.0-dev.1"}},
			want:     "0.6.0-dev.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ManifestVersion(tt.manifest)
			if tt.wantErr {
				if !errors.Is(err, ErrNoManifestVersion) {
					t.Fatalf("ManifestVersion() error = %v, want ErrNoManifestVersion", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ManifestVersion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ManifestVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindLayerByFilename(t *testing.T) {
	t.Parallel()

	m := testManifest("1")

	layer, err := FindLayerByFilename(&m, "sentry-linux-x64")
	if err != nil {
		t.Fatalf("FindLayerByFilename() error = %v", err)
	}
	if layer.Digest != testDigest {
		t.Errorf("layer digest = %s, want %s", layer.Digest, testDigest)
	}

	_, err = FindLayerByFilename(&m, "sentry-linux")
	if !errors.Is(err, ErrNoNightlyBuild) {
		t.Fatalf("prefix match: error = %v, want ErrNoNightlyBuild", err)
	}
	var lnf *LayerNotFoundError
	if !errors.As(err, &lnf) || lnf.Filename != "sentry-linux" {
		t.Errorf("expected *LayerNotFoundError naming sentry-linux, got %v", err)
	}
	if !strings.Contains(err.Error(), "sentry-linux") {
		t.Errorf("error %q does not name the filename", err)
	}
}

func TestRegistryClient_DownloadBlob_Direct(t *testing.T) {
	t.Parallel()

	srv := newRegistryServer(t, testManifest("1"))
	body, err := NewRegistryClient(WithRegistryURL(srv.URL)).DownloadBlob(context.Background(), "anon-token", testDigest)
	if err != nil {
		t.Fatalf("DownloadBlob() error = %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != testBlob {
		t.Errorf("blob = %q, want %q", got, testBlob)
	}
}

func TestRegistryClient_DownloadBlob_RedirectDropsAuthorization(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusFound, http.StatusTemporaryRedirect} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			var storageHits atomic.Int32
			storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				storageHits.Add(1)
				if got := r.Header.Get("Authorization"); got != "" {
					t.Errorf("storage request carried Authorization %q", got)
				}
				fmt.Fprint(w, testBlob)
			}))
			defer storage.Close()

			var registryHits atomic.Int32
			registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				registryHits.Add(1)
				if got := r.Header.Get("Authorization"); got != "Bearer anon-token" {
					t.Errorf("registry request Authorization = %q", got)
				}
				w.Header().Set("Location", storage.URL+"/blob?sig=abc")
				w.WriteHeader(status)
			}))
			defer registry.Close()

			body, err := NewRegistryClient(WithRegistryURL(registry.URL)).
				DownloadBlob(context.Background(), "anon-token", testDigest)
			if err != nil {
				t.Fatalf("DownloadBlob() error = %v", err)
			}
			defer body.Close()

			got, _ := io.ReadAll(body)
			if string(got) != testBlob {
				t.Errorf("blob = %q", got)
			}
			if registryHits.Load() != 1 || storageHits.Load() != 1 {
				t.Errorf("hits registry=%d storage=%d, want 1 and 1", registryHits.Load(), storageHits.Load())
			}
		})
	}
}

func TestRegistryClient_DownloadBlob_RedirectWithoutLocation(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	_, err := NewRegistryClient(WithRegistryURL(srv.URL)).DownloadBlob(context.Background(), "tok", testDigest)
	if !errors.Is(err, ErrMissingLocation) {
		t.Fatalf("DownloadBlob() error = %v, want ErrMissingLocation", err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestRegistryClient_DownloadBlob_StorageFailure(t *testing.T) {
	t.Parallel()

	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer storage.Close()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, storage.URL+"/blob", http.StatusFound)
	}))
	defer registry.Close()

	_, err := NewRegistryClient(WithRegistryURL(registry.URL)).DownloadBlob(context.Background(), "tok", testDigest)
	if !errors.Is(err, ErrBlobStorageDownload) {
		t.Fatalf("DownloadBlob() error = %v, want ErrBlobStorageDownload", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Errorf("expected StatusError with 403, got %v", err)
	}
}

func TestRegistryClient_DownloadBlob_StorageUnreachable(t *testing.T) {
	t.Parallel()

	storage := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	storageURL := storage.URL
	storage.Close()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, storageURL+"/blob", http.StatusTemporaryRedirect)
	}))
	defer registry.Close()

	_, err := NewRegistryClient(WithRegistryURL(registry.URL)).DownloadBlob(context.Background(), "tok", testDigest)
	if !errors.Is(err, ErrBlobStorageDownload) {
		t.Fatalf("DownloadBlob() error = %v, want ErrBlobStorageDownload", err)
	}
}

func TestRegistryClient_DownloadBlob_UnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRegistryClient(WithRegistryURL(srv.URL)).DownloadBlob(context.Background(), "tok", testDigest)
	if !errors.Is(err, ErrUnexpectedRegistryResponse) {
		t.Fatalf("DownloadBlob() error = %v, want ErrUnexpectedRegistryResponse", err)
	}
}

func TestRegistryClient_DownloadBlob_InvalidDigest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := NewRegistryClient(WithRegistryURL(srv.URL)).DownloadBlob(context.Background(), "tok", "sha256:nothex")
	if err == nil {
		t.Fatal("expected error for invalid digest")
	}
	if hits.Load() != 0 {
		t.Error("request sent for an invalid digest")
	}
}

func TestRegistryClient_ConnectionErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := srv.URL
	srv.Close()

	client := NewRegistryClient(WithRegistryURL(closedURL))

	_, err := client.AnonymousToken(context.Background())
	if !errors.Is(err, ErrRegistryConnection) {
		t.Errorf("AnonymousToken() error = %v, want ErrRegistryConnection", err)
	}
	if !strings.HasPrefix(err.Error(), "failed to connect to registry") {
		t.Errorf("error message = %q", err)
	}
}

func TestRegistryClient_ContextCanceledPassesThrough(t *testing.T) {
	t.Parallel()

	srv := newRegistryServer(t, testManifest("1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRegistryClient(WithRegistryURL(srv.URL)).AnonymousToken(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("AnonymousToken() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrRegistryConnection) {
		t.Error("cancellation must not be reported as a connection failure")
	}
}

func TestRegistryClient_Options(t *testing.T) {
	t.Parallel()

	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"schemaVersion":2,"annotations":{"version":"9"}}`)
	}))
	defer srv.Close()

	client := NewRegistryClient(
		WithRegistryURL(srv.URL+"/"),
		WithRegistryRepository("acme/tool"),
		WithNightlyTag("edge"),
		WithRegistryUserAgent("sentry/1.2.3"),
		WithRegistryHTTPClient(srv.Client()),
	)

	if _, err := client.FetchManifest(context.Background(), ""); err != nil {
		t.Fatalf("FetchManifest() error = %v", err)
	}
	if gotPath != "/v2/acme/tool/manifests/edge" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUA != "sentry/1.2.3" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}
