package githubdocs

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// fakeRepo serves the tree and blob endpoints for a mutable set of files.
type fakeRepo struct {
	files map[string]string // path -> content
}

func (f *fakeRepo) sha(path string) string {
	// Hex like a real blob sha; must stay a single URL segment.
	return fmt.Sprintf("%x", sha1.Sum([]byte(path+"\x00"+f.files[path])))
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/docs/git/trees/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		type entry struct {
			Path string `json:"path"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
		}
		resp := struct {
			Tree []entry `json:"tree"`
		}{}
		for path := range f.files {
			resp.Tree = append(resp.Tree, entry{Path: path, Type: "blob", SHA: f.sha(path)})
		}
		resp.Tree = append(resp.Tree, entry{Path: "src", Type: "tree", SHA: "tree-sha"})
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/repos/octo/docs/git/blobs/", func(w http.ResponseWriter, r *http.Request) {
		sha := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		for path, content := range f.files {
			if f.sha(path) == sha {
				_ = json.NewEncoder(w).Encode(map[string]string{
					"content":  base64.StdEncoding.EncodeToString([]byte(content)),
					"encoding": "base64",
				})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func newTestConnector(t *testing.T, repo *fakeRepo) *Connector {
	t.Helper()
	server := httptest.NewServer(repo.handler(t))
	t.Cleanup(server.Close)
	return New(Config{ClientID: "id", ClientSecret: "secret", BaseURL: server.URL})
}

var testAuth = &domain.AuthState{AccessToken: "test-token"}

func testSettings() map[string]any {
	return map[string]any{"owner": "octo", "repo": "docs"}
}

func TestSyncDownInitial(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{
		"README.md":      "# Project Docs\n\nWelcome.",
		"guide/setup.md": "Setup steps.",
		"main.go":        "package main",
	}}
	c := newTestConnector(t, repo)

	changes, cursor, err := c.SyncDown(context.Background(), testSettings(), testAuth, "")
	if err != nil {
		t.Fatalf("SyncDown: %v", err)
	}
	if len(changes.AddedOrModified) != 2 {
		t.Fatalf("added = %d, want 2 (markdown only)", len(changes.AddedOrModified))
	}
	if len(changes.Deleted) != 0 {
		t.Errorf("deleted = %v", changes.Deleted)
	}

	first := changes.AddedOrModified[0]
	if first.ID != "README.md" {
		t.Errorf("first id = %q (order must be stable)", first.ID)
	}
	content := first.Content.(map[string]any)
	if content["title"] != "Project Docs" {
		t.Errorf("title = %v", content["title"])
	}
	if !strings.Contains(content["body"].(string), "Welcome.") {
		t.Errorf("body = %v", content["body"])
	}

	// The cursor is the path->sha mapping.
	var state map[string]string
	if err := json.Unmarshal([]byte(cursor), &state); err != nil {
		t.Fatalf("cursor not JSON: %v", err)
	}
	if len(state) != 2 {
		t.Errorf("cursor entries = %d, want 2", len(state))
	}
}

func TestSyncDownIncremental(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{
		"README.md": "# Docs",
		"old.md":    "going away",
		"same.md":   "unchanged",
	}}
	c := newTestConnector(t, repo)

	_, cursor, err := c.SyncDown(context.Background(), testSettings(), testAuth, "")
	if err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	repo.files["README.md"] = "# Docs\n\nNow longer."
	delete(repo.files, "old.md")
	repo.files["new.md"] = "# Fresh"

	changes, next, err := c.SyncDown(context.Background(), testSettings(), testAuth, cursor)
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}

	var ids []string
	for _, doc := range changes.AddedOrModified {
		ids = append(ids, doc.ID)
	}
	if len(ids) != 2 || ids[0] != "README.md" || ids[1] != "new.md" {
		t.Errorf("added = %v, want README.md and new.md", ids)
	}
	if len(changes.Deleted) != 1 || changes.Deleted[0] != "old.md" {
		t.Errorf("deleted = %v, want old.md", changes.Deleted)
	}
	if next == cursor {
		t.Error("cursor did not advance")
	}
}

func TestSyncDownPathPrefix(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{
		"docs/a.md": "# A",
		"other.md":  "# B",
	}}
	c := newTestConnector(t, repo)

	settings := testSettings()
	settings["path"] = "docs"
	changes, _, err := c.SyncDown(context.Background(), settings, testAuth, "")
	if err != nil {
		t.Fatalf("SyncDown: %v", err)
	}
	if len(changes.AddedOrModified) != 1 || changes.AddedOrModified[0].ID != "docs/a.md" {
		t.Errorf("added = %v, want docs/a.md only", changes.AddedOrModified)
	}
}

func TestSyncDownBadSettings(t *testing.T) {
	c := New(Config{ClientID: "id"})
	if _, _, err := c.SyncDown(context.Background(), map[string]any{"owner": "octo"}, testAuth, ""); err == nil {
		t.Error("missing repo accepted")
	}
	if _, _, err := c.SyncDown(context.Background(), testSettings(), testAuth, "{broken"); err == nil {
		t.Error("broken sync point accepted")
	}
}

func TestSyncDownUnauthorized(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{"a.md": "# A"}}
	c := newTestConnector(t, repo)

	_, _, err := c.SyncDown(context.Background(), testSettings(), &domain.AuthState{AccessToken: "wrong"}, "")
	if err == nil {
		t.Fatal("expected an auth failure")
	}
}

func TestAuthorizationRequestURL(t *testing.T) {
	c := New(Config{ClientID: "the-client"})
	url, err := c.AuthorizationRequestURL(nil, "nonce-1", "challenge-1", "http://127.0.0.1/cb")
	if err != nil {
		t.Fatalf("AuthorizationRequestURL: %v", err)
	}
	for _, want := range []string{
		"client_id=the-client",
		"state=nonce-1",
		"code_challenge=challenge-1",
		"code_challenge_method=S256",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("url %q misses %q", url, want)
		}
	}
}

func TestTitleOf(t *testing.T) {
	cases := []struct {
		path, body, want string
	}{
		{"guide/setup.md", "# Getting Started\n\ntext", "Getting Started"},
		{"guide/setup.md", "## Deep Heading", "Deep Heading"},
		{"guide/setup.md", "no heading here", "setup"},
		{"notes.md", "", "notes"},
	}
	for _, tc := range cases {
		if got := titleOf(tc.path, tc.body); got != tc.want {
			t.Errorf("titleOf(%q, %q) = %q, want %q", tc.path, tc.body, got, tc.want)
		}
	}
}
