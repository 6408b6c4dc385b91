// Package github is the typed client for the provider's REST contract.
// Every request goes through the fetch gateway, so exact URLs (query
// string included) double as cache keys.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/devrev/prboard/internal/gateway"
)

// Client issues provider API calls through the gateway.
type Client struct {
	gw      *gateway.Gateway
	baseURL string
	org     string
}

// NewClient creates a provider client. baseURL has no trailing slash.
func NewClient(gw *gateway.Gateway, baseURL, org string) *Client {
	return &Client{
		gw:      gw,
		baseURL: strings.TrimRight(baseURL, "/"),
		org:     org,
	}
}

// SearchPullRequests fetches one page of the org's pull requests in the
// given state, newest-updated first. username narrows the search to PRs
// involving that user when non-empty.
func (c *Client) SearchPullRequests(ctx context.Context, state string, username string, page, perPage int, bypassCache bool) (*SearchResult, error) {
	q := fmt.Sprintf("is:pr org:%s state:%s", c.org, state)
	if username != "" {
		q += " involves:" + username
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("sort", "updated")
	params.Set("order", "desc")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	u := c.baseURL + "/search/issues?" + params.Encode()
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &result, nil
}

// GetPullRequest fetches the full pull-request record.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int, bypassCache bool) (*PullDetail, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, number)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var detail PullDetail
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode pull request detail: %w", err)
	}
	return &detail, nil
}

// ListReviews fetches the full review list of a pull request.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int, bypassCache bool) ([]Review, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews?per_page=100", c.baseURL, owner, repo, number)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var reviews []Review
	if err := json.Unmarshal(resp.Body, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode review list: %w", err)
	}
	return reviews, nil
}

// LatestComment fetches only the newest issue comment, or nil when the
// pull request has none.
func (c *Client) LatestComment(ctx context.Context, owner, repo string, number int, bypassCache bool) (*Comment, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?direction=desc&per_page=1&sort=created",
		c.baseURL, owner, repo, number)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var comments []Comment
	if err := json.Unmarshal(resp.Body, &comments); err != nil {
		return nil, fmt.Errorf("failed to decode comment list: %w", err)
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return &comments[0], nil
}

// ListComments fetches up to perPage comments, newest first.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number, perPage int, bypassCache bool) ([]Comment, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments?direction=desc&per_page=%d&sort=created",
		c.baseURL, owner, repo, number, perPage)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var comments []Comment
	if err := json.Unmarshal(resp.Body, &comments); err != nil {
		return nil, fmt.Errorf("failed to decode comment list: %w", err)
	}
	return comments, nil
}

// ListBranches fetches one page of a repository's branches.
func (c *Client) ListBranches(ctx context.Context, owner, repo string, page, perPage int, bypassCache bool) ([]Branch, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/branches?page=%d&per_page=%d", c.baseURL, owner, repo, page, perPage)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var branches []Branch
	if err := json.Unmarshal(resp.Body, &branches); err != nil {
		return nil, fmt.Errorf("failed to decode branch list: %w", err)
	}
	return branches, nil
}

// ListPullCommits fetches the commits of a pull request.
func (c *Client) ListPullCommits(ctx context.Context, owner, repo string, number int, bypassCache bool) ([]Commit, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/commits?per_page=100", c.baseURL, owner, repo, number)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var commits []Commit
	if err := json.Unmarshal(resp.Body, &commits); err != nil {
		return nil, fmt.Errorf("failed to decode commit list: %w", err)
	}
	return commits, nil
}

// ListOrgRepos fetches one page of the org's repositories.
func (c *Client) ListOrgRepos(ctx context.Context, page, perPage int, bypassCache bool) ([]Repo, error) {
	u := fmt.Sprintf("%s/orgs/%s/repos?page=%d&per_page=%d&sort=updated", c.baseURL, c.org, page, perPage)
	resp, err := c.gw.Get(ctx, u, bypassCache)
	if err != nil {
		return nil, err
	}

	var repos []Repo
	if err := json.Unmarshal(resp.Body, &repos); err != nil {
		return nil, fmt.Errorf("failed to decode repo list: %w", err)
	}
	return repos, nil
}

// GetBranchHead resolves a branch name to its head commit SHA. The ref
// is read fresh on every call so a just-pushed commit is never missed.
func (c *Client) GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/ref/heads/%s", c.baseURL, owner, repo, branch)
	resp, err := c.gw.Get(ctx, u, true)
	if err != nil {
		return "", err
	}

	var ref gitRef
	if err := json.Unmarshal(resp.Body, &ref); err != nil {
		return "", fmt.Errorf("failed to decode git ref: %w", err)
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha. The created
// return value is false when the branch already existed; the provider
// signals that with a 422, which is not an error here.
func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (created bool, err error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/refs", c.baseURL, owner, repo)
	payload := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}
	_, err = c.gw.Do(ctx, http.MethodPost, u, payload)
	if gateway.IsUnprocessable(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreatePullRequest opens a pull request merging head into base.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*CreatedPull, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls", c.baseURL, owner, repo)
	payload := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	}
	resp, err := c.gw.Do(ctx, http.MethodPost, u, payload)
	if err != nil {
		return nil, err
	}

	var pull CreatedPull
	if err := json.Unmarshal(resp.Body, &pull); err != nil {
		return nil, fmt.Errorf("failed to decode created pull request: %w", err)
	}
	return &pull, nil
}

// RequestReviewers asks the listed users to review a pull request.
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error {
	u := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.baseURL, owner, repo, number)
	payload := map[string][]string{"reviewers": reviewers}
	_, err := c.gw.Do(ctx, http.MethodPost, u, payload)
	return err
}

// ParseRepoURL extracts owner and repo from an API repository URL such
// as https://api.github.com/repos/acme/widgets. Both return values are
// empty when the URL does not reference a repository.
func ParseRepoURL(repositoryURL string) (owner, repo string) {
	idx := strings.Index(repositoryURL, "/repos/")
	if idx < 0 {
		return "", ""
	}
	parts := strings.Split(strings.Trim(repositoryURL[idx+len("/repos/"):], "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}
