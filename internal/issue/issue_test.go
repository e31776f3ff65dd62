// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_CoversEveryId(t *testing.T) {
	t.Parallel()

	ids := []Id{
		ConfigLoadFailedId,
		PermissionDeniedId,
		GitHubRateLimitedId,
		RegistryUnreachableId,
		UpgradeInProgressId,
		ManagedInstallId,
		VersionNotFoundId,
	}

	values := Values()
	if len(values) != len(ids) {
		t.Fatalf("Values() has %d entries, want %d", len(values), len(ids))
	}
	for i, id := range ids {
		if values[i].Id() != id {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, values[i].Id(), id)
		}
		if Get(id) == nil {
			t.Errorf("Get(%d) returned nil", id)
		}
		if strings.TrimSpace(string(Get(id).MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", id)
		}
	}

	if Get(Id(999)) != nil {
		t.Error("Get(999) should be nil")
	}
}

func TestIssue_DocLinksCloned(t *testing.T) {
	t.Parallel()

	iss := Get(PermissionDeniedId)
	links := iss.DocLinks()
	if len(links) == 0 {
		t.Fatal("expected doc links")
	}
	links[0] = "mutated"
	if iss.DocLinks()[0] == "mutated" {
		t.Error("DocLinks() should return a copy")
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()

	out, err := Get(GitHubRateLimitedId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{"rate limit", "GITHUB_TOKEN"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() output missing %q:\n%s", want, out)
		}
	}

	out, err = Get(VersionNotFoundId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "See also") || !strings.Contains(out, "github.com/getsentry/cli/releases") {
		t.Errorf("Render() should append doc links:\n%s", out)
	}
}
