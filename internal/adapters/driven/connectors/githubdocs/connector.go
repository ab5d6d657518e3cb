// Package githubdocs syncs the markdown files of a GitHub repository into a
// collection. Every .md blob becomes one remote document; the blob sha is
// its remote version id.
package githubdocs

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
	"github.com/custodia-labs/docbase-core/internal/core/ports/driven"
)

// Type is the connector name used in remote bindings.
const Type = "githubdocs"

// Ensure Connector implements the Connector interface.
var _ driven.Connector = (*Connector)(nil)

// Connector pulls markdown documents from a GitHub repository.
//
// The sync point is a JSON object mapping file path to blob sha. Deletions
// are detected by diffing the previous mapping against the current tree, so
// no extra state is needed beyond the cursor itself.
type Connector struct {
	oauth  oauth2.Config
	client *client
}

// Config holds the connector's OAuth application credentials.
type Config struct {
	ClientID     string
	ClientSecret string

	// BaseURL overrides the GitHub API endpoint (tests, GitHub Enterprise).
	BaseURL string
	// AuthURL and TokenURL override the OAuth endpoints.
	AuthURL  string
	TokenURL string
}

// New creates the connector.
func New(cfg Config) *Connector {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = "https://github.com/login/oauth/authorize"
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://github.com/login/oauth/access_token"
	}
	return &Connector{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{"repo"},
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		client: newClient(cfg.BaseURL),
	}
}

func (c *Connector) Type() string { return Type }

func (c *Connector) AuthenticationStrategy() driven.AuthenticationStrategy {
	return driven.AuthStrategyOAuthPKCE
}

// SettingsSchema describes the per-binding settings: the repository to pull
// from, optionally restricted to a branch and a path prefix.
func (c *Connector) SettingsSchema() *domain.Schema {
	return &domain.Schema{
		RootType: "Settings",
		Types: map[string]*domain.TypeDefinition{
			"Settings": {
				Kind: domain.TypeKindStruct,
				Properties: map[string]domain.Property{
					"owner":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"repo":   {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"branch": {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}, Nullable: true},
					"path":   {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}, Nullable: true},
				},
				PropertyOrder: []string{"owner", "repo", "branch", "path"},
			},
		},
	}
}

// RemoteDocumentSchema describes the records SyncDown delivers.
func (c *Connector) RemoteDocumentSchema() *domain.Schema {
	return &domain.Schema{
		RootType: "MarkdownFile",
		Types: map[string]*domain.TypeDefinition{
			"MarkdownFile": {
				Kind: domain.TypeKindStruct,
				Properties: map[string]domain.Property{
					"path":  {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"title": {Type: &domain.TypeDefinition{Kind: domain.TypeKindString}},
					"body": {Type: &domain.TypeDefinition{
						Kind:   domain.TypeKindString,
						Format: domain.StringFormatMarkdown,
					}},
				},
				PropertyOrder: []string{"path", "title", "body"},
			},
		},
	}
}

// AuthorizationRequestURL builds the authorization URL carrying the state
// and the S256 code challenge.
func (c *Connector) AuthorizationRequestURL(_ map[string]any, state, codeChallenge, redirectURI string) (string, error) {
	cfg := c.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ExchangeAuthorizationCode trades the code plus verifier for tokens.
func (c *Connector) ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier, redirectURI string) (*domain.AuthState, error) {
	cfg := c.oauth
	cfg.RedirectURL = redirectURI
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return authStateFromToken(token), nil
}

// RefreshAuth obtains a fresh access token using the refresh token.
func (c *Connector) RefreshAuth(ctx context.Context, auth *domain.AuthState) (*domain.AuthState, error) {
	if auth == nil || auth.RefreshToken == "" {
		return nil, domain.ErrNotAuthenticated
	}
	source := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: auth.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	refreshed := authStateFromToken(token)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = auth.RefreshToken
	}
	return refreshed, nil
}

func authStateFromToken(token *oauth2.Token) *domain.AuthState {
	return &domain.AuthState{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
}

// SyncDown fetches the markdown delta since the given sync point.
func (c *Connector) SyncDown(ctx context.Context, settings map[string]any, auth *domain.AuthState, syncPoint string) (*domain.RemoteChanges, string, error) {
	cfg, err := parseSettings(settings)
	if err != nil {
		return nil, "", err
	}

	previous := map[string]string{}
	if syncPoint != "" {
		if err := json.Unmarshal([]byte(syncPoint), &previous); err != nil {
			return nil, "", fmt.Errorf("decode sync point: %w", err)
		}
	}

	tree, err := c.client.listTree(ctx, auth, cfg.owner, cfg.repo, cfg.branch)
	if err != nil {
		return nil, "", err
	}
	if tree.Truncated {
		return nil, "", fmt.Errorf("repository tree for %s/%s is too large", cfg.owner, cfg.repo)
	}

	current := map[string]string{}
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !strings.HasSuffix(entry.Path, ".md") {
			continue
		}
		if cfg.path != "" && !strings.HasPrefix(entry.Path, cfg.path) {
			continue
		}
		current[entry.Path] = entry.SHA
	}

	changes := &domain.RemoteChanges{}
	changed := make([]string, 0)
	for filePath, sha := range current {
		if previous[filePath] != sha {
			changed = append(changed, filePath)
		}
	}
	sort.Strings(changed)

	for _, filePath := range changed {
		body, err := c.client.getBlob(ctx, auth, cfg.owner, cfg.repo, current[filePath])
		if err != nil {
			return nil, "", err
		}
		changes.AddedOrModified = append(changes.AddedOrModified, domain.RemoteDocument{
			ID:        filePath,
			VersionID: current[filePath],
			Content: map[string]any{
				"path":  filePath,
				"title": titleOf(filePath, body),
				"body":  body,
			},
		})
	}

	for filePath := range previous {
		if _, still := current[filePath]; !still {
			changes.Deleted = append(changes.Deleted, filePath)
		}
	}
	sort.Strings(changes.Deleted)

	cursor, err := json.Marshal(current)
	if err != nil {
		return nil, "", fmt.Errorf("encode sync point: %w", err)
	}
	return changes, string(cursor), nil
}

// SupportsUpSync reports false: the connector is pull-only.
func (c *Connector) SupportsUpSync() bool { return false }

type repoSettings struct {
	owner  string
	repo   string
	branch string
	path   string
}

func parseSettings(settings map[string]any) (*repoSettings, error) {
	owner, _ := settings["owner"].(string)
	repo, _ := settings["repo"].(string)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("githubdocs settings need owner and repo")
	}
	cfg := &repoSettings{owner: owner, repo: repo, branch: "HEAD"}
	if branch, ok := settings["branch"].(string); ok && branch != "" {
		cfg.branch = branch
	}
	if prefix, ok := settings["path"].(string); ok && prefix != "" {
		cfg.path = strings.TrimSuffix(prefix, "/") + "/"
	}
	return cfg, nil
}

// titleOf takes the first markdown heading, falling back to the file name.
func titleOf(filePath, body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "#"); ok {
			if title := strings.TrimSpace(strings.TrimLeft(after, "#")); title != "" {
				return title
			}
		}
	}
	return strings.TrimSuffix(path.Base(filePath), ".md")
}
