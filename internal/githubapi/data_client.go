package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com/"
	maxPerPage              = 100
)

// EndpointStatus is the normalized outcome of one GitHub endpoint call.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusUnauthorized indicates missing or rejected credentials.
	EndpointStatusUnauthorized EndpointStatus = "unauthorized"
	// EndpointStatusForbidden indicates the credentials lack access or the rate limit held.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict is what GitHub returns for commits of an empty repository.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusUnavailable indicates a server-side failure that outlived retries.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// ClosedIssue is a closed issue, pull requests excluded.
type ClosedIssue struct {
	Number   int
	Assignee string
	ClosedAt time.Time
}

// IssueListResult is the typed result for closed issues in a window.
type IssueListResult struct {
	Status   EndpointStatus
	Issues   []ClosedIssue
	Metadata CallMetadata
}

// PullRequest is one pull request created inside the window.
type PullRequest struct {
	Number    int
	User      string
	CreatedAt time.Time
}

// PullRequestListResult is the typed result for pull requests in a window.
type PullRequestListResult struct {
	Status       EndpointStatus
	PullRequests []PullRequest
	Metadata     CallMetadata
}

// PullReview is one submitted pull request review.
type PullReview struct {
	ID          int64
	User        string
	State       string
	SubmittedAt time.Time
}

// PullReviewsResult is the typed result for one pull request's reviews.
type PullReviewsResult struct {
	Status   EndpointStatus
	Reviews  []PullReview
	Metadata CallMetadata
}

// RepoCommit is one commit from the commit list endpoint.
type RepoCommit struct {
	SHA         string
	Author      string
	Committer   string
	CommittedAt time.Time
}

// CommitListResult is the typed result for commits in a window.
type CommitListResult struct {
	Status    EndpointStatus
	Commits   []RepoCommit
	Truncated bool
	Metadata  CallMetadata
}

// CommitDetail carries the line stats of one commit.
type CommitDetail struct {
	Status    EndpointStatus
	SHA       string
	Author    string
	Additions int
	Deletions int
	Metadata  CallMetadata
}

// DataClient reads the contribution endpoints through the retrying request client.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
	perPage       int
}

// NewDataClient creates a data client. perPage outside 1..100 falls back to 100.
func NewDataClient(baseURL string, requestClient *Client, perPage int) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	return &DataClient{baseURL: parsed, requestClient: requestClient, perPage: perPage}, nil
}

// ListClosedIssuesWindow lists issues closed inside the window. Pull requests returned by the
// issues endpoint are skipped.
func (c *DataClient) ListClosedIssuesWindow(ctx context.Context, owner, repo string, since, until time.Time) (IssueListResult, error) {
	if err := validateRepoWindow(owner, repo, since, until); err != nil {
		return IssueListResult{}, err
	}

	query := url.Values{}
	query.Set("state", "closed")
	if !since.IsZero() {
		// closing an issue updates it, so updated_at >= since is a superset of the window
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	result := IssueListResult{}
	status, metadata, err := fetchPages(ctx, c, "closed issues", repoPath(owner, repo, "issues"), query, func(page []issuePayload) bool {
		for _, issue := range page {
			if issue.PullRequest != nil {
				continue
			}
			closedAt := parseNullableRFC3339(issue.ClosedAt)
			if !withinWindow(closedAt, since, until) {
				continue
			}
			typed := ClosedIssue{Number: issue.Number, ClosedAt: closedAt}
			if issue.Assignee != nil {
				typed.Assignee = issue.Assignee.Login
			}
			result.Issues = append(result.Issues, typed)
		}
		return true
	})
	if err != nil {
		return IssueListResult{}, err
	}
	result.Status = status
	result.Metadata = metadata
	return result, nil
}

// ListRepoPullRequestsWindow lists pull requests created inside the window. Paging stops once a
// page only holds pull requests older than since.
func (c *DataClient) ListRepoPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (PullRequestListResult, error) {
	if err := validateRepoWindow(owner, repo, since, until); err != nil {
		return PullRequestListResult{}, err
	}

	query := url.Values{}
	query.Set("state", "all")
	query.Set("sort", "created")
	query.Set("direction", "desc")

	result := PullRequestListResult{}
	status, metadata, err := fetchPages(ctx, c, "pull requests", repoPath(owner, repo, "pulls"), query, func(page []pullRequestPayload) bool {
		olderThanWindow := 0
		for _, pr := range page {
			createdAt := parseRFC3339(pr.CreatedAt)
			if !since.IsZero() && !createdAt.IsZero() && createdAt.Before(since) {
				olderThanWindow++
				continue
			}
			if !withinWindow(createdAt, since, until) {
				continue
			}
			typed := PullRequest{Number: pr.Number, CreatedAt: createdAt}
			if pr.User != nil {
				typed.User = pr.User.Login
			}
			result.PullRequests = append(result.PullRequests, typed)
		}
		return olderThanWindow < len(page)
	})
	if err != nil {
		return PullRequestListResult{}, err
	}
	result.Status = status
	result.Metadata = metadata
	return result, nil
}

// ListPullReviews lists reviews of one pull request submitted inside the window.
func (c *DataClient) ListPullReviews(ctx context.Context, owner, repo string, pullNumber int, since, until time.Time) (PullReviewsResult, error) {
	if err := validateRepoWindow(owner, repo, since, until); err != nil {
		return PullReviewsResult{}, err
	}
	if pullNumber <= 0 {
		return PullReviewsResult{}, fmt.Errorf("pull number must be > 0")
	}

	result := PullReviewsResult{}
	segments := repoPath(owner, repo, "pulls", strconv.Itoa(pullNumber), "reviews")
	status, metadata, err := fetchPages(ctx, c, "pull reviews", segments, url.Values{}, func(page []pullReviewPayload) bool {
		for _, review := range page {
			submittedAt := parseNullableRFC3339(review.SubmittedAt)
			if !withinWindow(submittedAt, since, until) {
				continue
			}
			typed := PullReview{ID: review.ID, State: review.State, SubmittedAt: submittedAt}
			if review.User != nil {
				typed.User = review.User.Login
			}
			result.Reviews = append(result.Reviews, typed)
		}
		return true
	})
	if err != nil {
		return PullReviewsResult{}, err
	}
	result.Status = status
	result.Metadata = metadata
	return result, nil
}

// ListRepoCommitsWindow lists commits inside the window, stopping after maxCommits when positive.
func (c *DataClient) ListRepoCommitsWindow(ctx context.Context, owner, repo string, since, until time.Time, maxCommits int) (CommitListResult, error) {
	if err := validateRepoWindow(owner, repo, since, until); err != nil {
		return CommitListResult{}, err
	}

	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if !until.IsZero() {
		query.Set("until", until.UTC().Format(time.RFC3339))
	}

	result := CommitListResult{}
	status, metadata, err := fetchPages(ctx, c, "commits", repoPath(owner, repo, "commits"), query, func(page []commitListPayload) bool {
		for _, commit := range page {
			typed := RepoCommit{
				SHA:         commit.SHA,
				CommittedAt: parseRFC3339(commit.Commit.Author.Date),
			}
			if commit.Author != nil {
				typed.Author = commit.Author.Login
			}
			if commit.Committer != nil {
				typed.Committer = commit.Committer.Login
			}
			result.Commits = append(result.Commits, typed)
			if maxCommits > 0 && len(result.Commits) >= maxCommits {
				result.Truncated = true
				return false
			}
		}
		return true
	})
	if err != nil {
		return CommitListResult{}, err
	}
	result.Status = status
	result.Metadata = metadata
	return result, nil
}

// GetCommit reads one commit's additions and deletions.
func (c *DataClient) GetCommit(ctx context.Context, owner, repo, sha string) (CommitDetail, error) {
	if err := validateRepoWindow(owner, repo, time.Time{}, time.Time{}); err != nil {
		return CommitDetail{}, err
	}
	sha = strings.TrimSpace(sha)
	if sha == "" {
		return CommitDetail{}, fmt.Errorf("sha is required")
	}

	resp, metadata, err := c.get(ctx, "commit detail", repoPath(owner, repo, "commits", sha), nil)
	if err != nil {
		return CommitDetail{}, err
	}

	result := CommitDetail{Status: endpointStatusFromHTTP(resp.StatusCode), Metadata: metadata}
	if result.Status != EndpointStatusOK {
		_ = resp.Body.Close()
		return result, nil
	}

	var payload commitDetailPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return CommitDetail{}, fmt.Errorf("decode commit detail response: %w", err)
	}
	result.SHA = payload.SHA
	if payload.Author != nil {
		result.Author = payload.Author.Login
	}
	result.Additions = payload.Stats.Additions
	result.Deletions = payload.Stats.Deletions
	return result, nil
}

// fetchPages walks a Link-paginated list endpoint. visit returns false to stop early.
// A non-OK status ends the walk and is returned with whatever was visited so far.
func fetchPages[T any](ctx context.Context, c *DataClient, label string, segments []string, query url.Values, visit func(page []T) bool) (EndpointStatus, CallMetadata, error) {
	var metadata CallMetadata
	for page := 1; ; page++ {
		pageQuery := url.Values{}
		for key, values := range query {
			pageQuery[key] = values
		}
		pageQuery.Set("per_page", strconv.Itoa(c.perPage))
		pageQuery.Set("page", strconv.Itoa(page))

		resp, callMetadata, err := c.get(ctx, label, segments, pageQuery)
		metadata = mergeMetadata(metadata, callMetadata)
		if err != nil {
			return "", metadata, err
		}

		status := endpointStatusFromHTTP(resp.StatusCode)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			return status, metadata, nil
		}

		var payload []T
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return "", metadata, fmt.Errorf("decode %s response: %w", label, err)
		}
		if !visit(payload) || len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			return EndpointStatusOK, metadata, nil
		}
	}
}

func (c *DataClient) get(ctx context.Context, label string, segments []string, query url.Values) (*http.Response, CallMetadata, error) {
	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, segments...)
	if query != nil {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, CallMetadata{}, fmt.Errorf("build %s request: %w", label, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return nil, metadata, fmt.Errorf("%s request failed: %w", label, err)
	}
	if resp == nil {
		return nil, metadata, fmt.Errorf("%s request failed: nil response", label)
	}
	return resp, metadata, nil
}

func validateRepoWindow(owner, repo string, since, until time.Time) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repo is required")
	}
	if !until.IsZero() && !since.IsZero() && until.Before(since) {
		return fmt.Errorf("until must not be before since")
	}
	return nil
}

func repoPath(owner, repo string, rest ...string) []string {
	segments := []string{"repos", url.PathEscape(strings.TrimSpace(owner)), url.PathEscape(strings.TrimSpace(repo))}
	for _, segment := range rest {
		segments = append(segments, url.PathEscape(segment))
	}
	return segments
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSuffix(base, "/"))
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusUnauthorized:
		return EndpointStatusUnauthorized
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

func hasNextPage(linkHeader string) bool {
	for _, part := range strings.Split(linkHeader, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullableRFC3339(raw *string) time.Time {
	if raw == nil {
		return time.Time{}
	}
	return parseRFC3339(*raw)
}

func withinWindow(ts, since, until time.Time) bool {
	if ts.IsZero() {
		return false
	}
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && ts.After(until) {
		return false
	}
	return true
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.Waited += incoming.Waited
	current.LastDecision = incoming.LastDecision
	current.LastRateHeaders = incoming.LastRateHeaders
	return current
}

type userPayload struct {
	Login string `json:"login"`
}

type issuePayload struct {
	Number      int          `json:"number"`
	Assignee    *userPayload `json:"assignee"`
	ClosedAt    *string      `json:"closed_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

type pullRequestPayload struct {
	Number    int          `json:"number"`
	User      *userPayload `json:"user"`
	CreatedAt string       `json:"created_at"`
}

type pullReviewPayload struct {
	ID          int64        `json:"id"`
	User        *userPayload `json:"user"`
	State       string       `json:"state"`
	SubmittedAt *string      `json:"submitted_at"`
}

type commitListPayload struct {
	SHA       string       `json:"sha"`
	Author    *userPayload `json:"author"`
	Committer *userPayload `json:"committer"`
	Commit    struct {
		Author struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type commitDetailPayload struct {
	SHA    string       `json:"sha"`
	Author *userPayload `json:"author"`
	Stats  struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
}
