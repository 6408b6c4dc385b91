// Package service implements the operations the HTTP layer exposes:
// paginated pull-request fetching, enrichment-backed pages, branch and
// activity lookups, and cache administration.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/prboard/internal/github"
	"github.com/devrev/prboard/internal/model"
	"github.com/devrev/prboard/internal/store"
	"github.com/devrev/prboard/internal/timeutil"
)

// pageSize is the fixed page size the aggregator drives the provider with.
const pageSize = 50

// activityCap bounds the activity feed returned per pull request.
const activityCap = 15

// ProviderAPI is the slice of the provider client the service consumes.
type ProviderAPI interface {
	SearchPullRequests(ctx context.Context, state, username string, page, perPage int, bypassCache bool) (*github.SearchResult, error)
	ListBranches(ctx context.Context, owner, repo string, page, perPage int, bypassCache bool) ([]github.Branch, error)
	ListComments(ctx context.Context, owner, repo string, number, perPage int, bypassCache bool) ([]github.Comment, error)
	ListReviews(ctx context.Context, owner, repo string, number int, bypassCache bool) ([]github.Review, error)
	ListPullCommits(ctx context.Context, owner, repo string, number int, bypassCache bool) ([]github.Commit, error)
	ListOrgRepos(ctx context.Context, page, perPage int, bypassCache bool) ([]github.Repo, error)
	GetBranchHead(ctx context.Context, owner, repo, branch string) (string, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) (bool, error)
	CreatePullRequest(ctx context.Context, owner, repo, title, head, base, body string) (*github.CreatedPull, error)
	RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers []string) error
}

// Enricher turns raw search items into enriched records.
type Enricher interface {
	Enrich(ctx context.Context, raw []model.RawPullRequest, openContext bool) []model.EnrichedPullRequest
}

// PullService aggregates and enriches the team's pull requests.
type PullService struct {
	provider ProviderAPI
	enricher Enricher
	cache    *store.ResponseCache
	username string
	logger   *zap.Logger
}

// NewPullService creates a pull service. username is the identity used
// for "my pull requests" filtering; empty disables that filter.
func NewPullService(
	provider ProviderAPI,
	enricher Enricher,
	cache *store.ResponseCache,
	username string,
	logger *zap.Logger,
) *PullService {
	return &PullService{
		provider: provider,
		enricher: enricher,
		cache:    cache,
		username: username,
		logger:   logger,
	}
}

// FetchPage fetches and enriches one page of pull requests. The page's
// items come back sorted by latest activity, newest first, alongside
// the provider-reported total for the whole query.
func (s *PullService) FetchPage(ctx context.Context, state string, page int, myOnly bool, perPage int, forceRefresh bool) (*model.PageResult, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = pageSize
	}
	username := ""
	if myOnly {
		username = s.username
	}

	result, err := s.provider.SearchPullRequests(ctx, state, username, page, perPage, forceRefresh)
	if err != nil {
		return nil, fmt.Errorf("search page %d failed: %w", page, err)
	}

	items := s.enricher.Enrich(ctx, result.Items, state == "open")
	return &model.PageResult{
		Items:      items,
		TotalCount: result.TotalCount,
	}, nil
}

// FetchAll accumulates successive pages until maxItems is reached, the
// provider-reported total is exhausted, a page comes back empty, or a
// page fetch fails. A mid-run failure returns what was gathered so far;
// partial results are acceptable, not an error.
func (s *PullService) FetchAll(ctx context.Context, state string, forceRefresh bool, maxItems int) []model.EnrichedPullRequest {
	if maxItems <= 0 {
		return nil
	}

	var acc []model.EnrichedPullRequest
	for page := 1; len(acc) < maxItems; page++ {
		result, err := s.FetchPage(ctx, state, page, false, pageSize, forceRefresh)
		if err != nil {
			s.logger.Warn("aborting accumulation on page failure",
				zap.Int("page", page),
				zap.Int("gathered", len(acc)),
				zap.Error(err))
			break
		}
		acc = append(acc, result.Items...)
		if len(result.Items) == 0 || len(acc) >= result.TotalCount {
			break
		}
	}

	// Pages are individually sorted; the concatenation is not.
	sort.SliceStable(acc, func(a, b int) bool {
		return acc[a].LatestActivityMillis > acc[b].LatestActivityMillis
	})
	if len(acc) > maxItems {
		acc = acc[:maxItems]
	}
	return acc
}

// FetchProjectBranches lists up to maxBranches of a repository's branches.
func (s *PullService) FetchProjectBranches(ctx context.Context, owner, repo string, maxBranches int) ([]model.BranchRecord, error) {
	if maxBranches <= 0 {
		maxBranches = 100
	}
	perPage := maxBranches
	if perPage > 100 {
		perPage = 100
	}

	var out []model.BranchRecord
	for page := 1; len(out) < maxBranches; page++ {
		branches, err := s.provider.ListBranches(ctx, owner, repo, page, perPage, false)
		if err != nil {
			return nil, fmt.Errorf("branch list failed for %s/%s: %w", owner, repo, err)
		}
		for _, b := range branches {
			out = append(out, model.BranchRecord{
				Name:      b.Name,
				SHA:       b.Commit.SHA,
				Protected: b.Protected,
			})
		}
		if len(branches) < perPage {
			break
		}
	}
	if len(out) > maxBranches {
		out = out[:maxBranches]
	}
	return out, nil
}

// ListRepos fetches the organization's repositories, paged, up to
// maxRepos. Archived repositories are filtered out; a non-empty prefix
// further narrows the list to repository names starting with it.
func (s *PullService) ListRepos(ctx context.Context, prefix string, maxRepos int) ([]github.Repo, error) {
	if maxRepos <= 0 {
		maxRepos = 200
	}
	perPage := maxRepos
	if perPage > 100 {
		perPage = 100
	}

	var out []github.Repo
	for page := 1; len(out) < maxRepos; page++ {
		repos, err := s.provider.ListOrgRepos(ctx, page, perPage, false)
		if err != nil {
			return nil, fmt.Errorf("repo list failed: %w", err)
		}
		for _, r := range repos {
			if r.Archived {
				continue
			}
			if prefix != "" && !strings.HasPrefix(r.Name, prefix) {
				continue
			}
			out = append(out, r)
		}
		if len(repos) < perPage {
			break
		}
	}
	if len(out) > maxRepos {
		out = out[:maxRepos]
	}
	return out, nil
}

// CreateBranches creates newBranch from the head of baseBranch in each
// listed repository of owner. Repositories are handled independently:
// one repo's failure never stops the others, and a branch that already
// exists counts as "exists", not an error.
func (s *PullService) CreateBranches(ctx context.Context, owner string, repos []string, newBranch, baseBranch string) []model.BranchOutcome {
	outcomes := make([]model.BranchOutcome, len(repos))

	var g errgroup.Group
	g.SetLimit(4)
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			outcomes[i] = s.createBranch(ctx, owner, repo, newBranch, baseBranch)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (s *PullService) createBranch(ctx context.Context, owner, repo, newBranch, baseBranch string) model.BranchOutcome {
	sha, err := s.provider.GetBranchHead(ctx, owner, repo, baseBranch)
	if err != nil {
		s.logger.Warn("base branch lookup failed",
			zap.String("repo", repo),
			zap.String("base", baseBranch),
			zap.Error(err))
		return model.BranchOutcome{Repo: repo, Status: "error", Error: err.Error()}
	}

	created, err := s.provider.CreateBranch(ctx, owner, repo, newBranch, sha)
	if err != nil {
		s.logger.Warn("branch creation failed",
			zap.String("repo", repo),
			zap.String("branch", newBranch),
			zap.Error(err))
		return model.BranchOutcome{Repo: repo, Status: "error", Error: err.Error()}
	}
	if !created {
		s.logger.Info("branch already exists",
			zap.String("repo", repo),
			zap.String("branch", newBranch))
		return model.BranchOutcome{Repo: repo, Status: "exists"}
	}
	return model.BranchOutcome{Repo: repo, Status: "created"}
}

// OpenPullRequest opens a pull request and, when reviewers are given,
// requests their review. A reviewer-assignment failure is logged but
// does not undo the already-created pull request.
func (s *PullService) OpenPullRequest(ctx context.Context, owner, repo, title, head, base, body string, reviewers []string) (*model.OpenedPull, error) {
	pull, err := s.provider.CreatePullRequest(ctx, owner, repo, title, head, base, body)
	if err != nil {
		return nil, fmt.Errorf("pull request creation failed for %s/%s: %w", owner, repo, err)
	}

	if len(reviewers) > 0 {
		if err := s.provider.RequestReviewers(ctx, owner, repo, pull.Number, reviewers); err != nil {
			s.logger.Warn("reviewer assignment failed",
				zap.String("repo", repo),
				zap.Int("number", pull.Number),
				zap.Error(err))
		}
	}
	return &model.OpenedPull{Number: pull.Number, HTMLURL: pull.HTMLURL}, nil
}

// FetchActivity merges a pull request's comments, reviews, and commits
// into one feed, newest first, capped at fifteen events. A failing
// source degrades to empty rather than failing the feed.
func (s *PullService) FetchActivity(ctx context.Context, owner, repo string, number int) ([]model.ActivityEvent, error) {
	var (
		comments []github.Comment
		reviews  []github.Review
		commits  []github.Commit
	)

	var g errgroup.Group
	g.Go(func() error {
		c, err := s.provider.ListComments(ctx, owner, repo, number, activityCap, false)
		if err != nil {
			s.logger.Debug("activity comments unavailable", zap.Error(err))
			return nil
		}
		comments = c
		return nil
	})
	g.Go(func() error {
		r, err := s.provider.ListReviews(ctx, owner, repo, number, false)
		if err != nil {
			s.logger.Debug("activity reviews unavailable", zap.Error(err))
			return nil
		}
		reviews = r
		return nil
	})
	g.Go(func() error {
		c, err := s.provider.ListPullCommits(ctx, owner, repo, number, false)
		if err != nil {
			s.logger.Debug("activity commits unavailable", zap.Error(err))
			return nil
		}
		commits = c
		return nil
	})
	_ = g.Wait()

	events := make([]model.ActivityEvent, 0, len(comments)+len(reviews)+len(commits))
	for _, c := range comments {
		events = append(events, model.ActivityEvent{
			Type:       "comment",
			Actor:      c.User.Login,
			Title:      truncate(c.Body, 120),
			OccurredAt: c.CreatedAt,
			SortMillis: timeutil.EpochMillis(c.CreatedAt),
		})
	}
	for _, r := range reviews {
		events = append(events, model.ActivityEvent{
			Type:       "review",
			Actor:      r.User.Login,
			Title:      r.State,
			OccurredAt: r.SubmittedAt,
			SortMillis: timeutil.EpochMillis(r.SubmittedAt),
		})
	}
	for _, c := range commits {
		actor := c.Commit.Author.Name
		if c.Author != nil && c.Author.Login != "" {
			actor = c.Author.Login
		}
		events = append(events, model.ActivityEvent{
			Type:       "commit",
			Actor:      actor,
			Title:      truncate(firstLine(c.Commit.Message), 120),
			OccurredAt: c.Commit.Author.Date,
			SortMillis: timeutil.EpochMillis(c.Commit.Author.Date),
		})
	}

	sort.SliceStable(events, func(a, b int) bool {
		return events[a].SortMillis > events[b].SortMillis
	})
	if len(events) > activityCap {
		events = events[:activityCap]
	}
	return events, nil
}

// ClearCache wipes all cached responses immediately.
func (s *PullService) ClearCache() {
	s.cache.Clear()
	s.logger.Info("response cache cleared")
}

// CacheStats reports the cache's current size.
func (s *PullService) CacheStats() store.CacheStats {
	return s.cache.Stats()
}

// SetCompressionEnabled toggles cache blob compression.
func (s *PullService) SetCompressionEnabled(enabled bool) {
	s.cache.SetCompressionEnabled(enabled)
	s.logger.Info("cache compression toggled", zap.Bool("enabled", enabled))
}

// SetTTL overrides one cache category's TTL at runtime.
func (s *PullService) SetTTL(category string, minutes int) error {
	cat, ok := store.ParseCategory(category)
	if !ok {
		return fmt.Errorf("unknown cache category %q", category)
	}
	if minutes <= 0 {
		return fmt.Errorf("ttl minutes must be positive, got %d", minutes)
	}
	s.cache.SetTTL(cat, time.Duration(minutes)*time.Minute)
	return nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
