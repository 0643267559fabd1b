package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// AuthConfig selects GitHub credentials. App credentials win when AppID is set.
type AuthConfig struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	BaseTransport  http.RoundTripper
}

// UsesApp reports whether GitHub App installation auth is configured.
func (c AuthConfig) UsesApp() bool {
	return c.AppID > 0
}

// NewAuthenticatedHTTPClient builds the HTTP client for whichever credential is configured.
func NewAuthenticatedHTTPClient(ctx context.Context, cfg AuthConfig) (*http.Client, error) {
	if cfg.UsesApp() {
		return NewInstallationHTTPClient(cfg)
	}
	return NewTokenHTTPClient(ctx, cfg)
}

// NewTokenHTTPClient creates a client that sends a personal access token as a bearer token.
func NewTokenHTTPClient(ctx context.Context, cfg AuthConfig) (*http.Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	base := &http.Client{Transport: baseTransport(cfg.BaseTransport)}
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	)
	client.Timeout = cfg.Timeout
	return client, nil
}

// NewInstallationHTTPClient creates a client authenticated as one GitHub App installation.
func NewInstallationHTTPClient(cfg AuthConfig) (*http.Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	transport, err := ghinstallation.NewKeyFromFile(baseTransport(cfg.BaseTransport), cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

func baseTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// RESTClient wraps go-github for the calls that do not need window filtering.
type RESTClient struct {
	Client  *github.Client
	perPage int
}

// NewGitHubRESTClient creates a go-github client, optionally against a GitHub Enterprise API URL.
func NewGitHubRESTClient(httpClient *http.Client, apiBaseURL string, perPage int) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	client := github.NewClient(httpClient)
	if strings.TrimSpace(apiBaseURL) != "" {
		parsed, err := parseAPIBaseURL(apiBaseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = parsed
	}
	return &RESTClient{Client: client, perPage: perPage}, nil
}

// ListOrgRepoNames returns the sorted names of every non-archived repository in org.
func (c *RESTClient) ListOrgRepoNames(ctx context.Context, org string) ([]string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, fmt.Errorf("organization is required")
	}

	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: c.perPage},
	}
	names := make([]string, 0)
	for {
		repos, resp, err := c.Client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("list repositories for %s: %w", org, err)
		}
		for _, repo := range repos {
			if repo.GetArchived() || repo.GetName() == "" {
				continue
			}
			names = append(names, repo.GetName())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Strings(names)
	return names, nil
}

// APIBaseURL returns the base URL the client talks to.
func (c *RESTClient) APIBaseURL() *url.URL {
	return c.Client.BaseURL
}
