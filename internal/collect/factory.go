package collect

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/githubapi"
	"go.uber.org/zap"
)

// NewOrgCollectorFromConfig builds an authenticated OrgCollector for the configured organization.
func NewOrgCollectorFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*OrgCollector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	auth := githubapi.AuthConfig{
		AppID:          cfg.GitHub.Auth.AppID,
		InstallationID: cfg.GitHub.Auth.InstallationID,
		PrivateKeyPath: cfg.GitHub.Auth.PrivateKeyPath,
		Timeout:        cfg.GitHub.RequestTimeout,
		BaseTransport:  http.DefaultTransport,
	}
	if !auth.UsesApp() {
		auth.Token = cfg.GitHub.Auth.Token()
		if auth.Token == "" {
			return nil, fmt.Errorf("github token not found in environment variable %s", cfg.GitHub.Auth.TokenEnv)
		}
	}

	httpClient, err := githubapi.NewAuthenticatedHTTPClient(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("create github http client: %w", err)
	}

	requestClient := githubapi.NewClient(httpClient, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	}, logger)

	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient, cfg.GitHub.PerPage)
	if err != nil {
		return nil, fmt.Errorf("create data client: %w", err)
	}

	var lister RepoLister
	if len(cfg.GitHub.Repositories) == 0 {
		restClient, err := githubapi.NewGitHubRESTClient(httpClient, cfg.GitHub.APIBaseURL, cfg.GitHub.PerPage)
		if err != nil {
			return nil, fmt.Errorf("create repository lister: %w", err)
		}
		lister = restClient
	}

	return NewOrgCollector(dataClient, lister, Config{
		Organization:            cfg.GitHub.Organization,
		Repositories:            cfg.GitHub.Repositories,
		Concurrency:             cfg.GitHub.Concurrency,
		CommitStats:             cfg.GitHub.CommitStats,
		MaxCommitDetailsPerRepo: cfg.GitHub.MaxCommitDetailsPerRepo,
		Logger:                  logger,
	}), nil
}
