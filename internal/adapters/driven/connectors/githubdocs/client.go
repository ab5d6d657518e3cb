package githubdocs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// client is a minimal GitHub API client covering what the connector needs:
// the recursive tree listing and blob content.
type client struct {
	httpClient *http.Client
	baseURL    string
}

func newClient(baseURL string) *client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// treeEntry is one file in a repository tree listing.
type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	SHA  string `json:"sha"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (c *client) do(ctx context.Context, auth *domain.AuthState, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if auth != nil && auth.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: github returned %d", domain.ErrNotAuthenticated, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// listTree fetches the recursive tree of the branch head.
func (c *client) listTree(ctx context.Context, auth *domain.AuthState, owner, repo, branch string) (*treeResponse, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, branch)
	var tree treeResponse
	if err := c.do(ctx, auth, path, &tree); err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}
	return &tree, nil
}

// getBlob fetches a blob's decoded content by sha.
func (c *client) getBlob(ctx context.Context, auth *domain.AuthState, owner, repo, sha string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/blobs/%s", owner, repo, sha)
	var blob blobResponse
	if err := c.do(ctx, auth, path, &blob); err != nil {
		return "", fmt.Errorf("get blob: %w", err)
	}
	if blob.Encoding != "base64" {
		return blob.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode blob %s: %w", sha, err)
	}
	return string(decoded), nil
}
