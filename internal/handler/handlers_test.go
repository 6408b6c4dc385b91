package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/config"
	"github.com/devrev/prboard/internal/github"
	"github.com/devrev/prboard/internal/model"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/scheduler"
	"github.com/devrev/prboard/internal/server"
	"github.com/devrev/prboard/internal/service"
	"github.com/devrev/prboard/internal/store"
)

// memKV is an in-memory KeyValueStore for tests.
type memKV struct {
	data map[string]string
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memKV) Ping(_ context.Context) error { return nil }
func (m *memKV) Close() error                 { return nil }

// stubProvider serves canned pages.
type stubProvider struct {
	items      []model.RawPullRequest
	totalCount int
	branches   []github.Branch
	comments   []github.Comment
	repos      []github.Repo

	heads    map[string]string
	existing map[string]string

	mu            sync.Mutex
	createdRefs   []string
	openedPulls   []string
	reviewerCalls []string
}

func (p *stubProvider) SearchPullRequests(_ context.Context, state, username string, page, perPage int, _ bool) (*github.SearchResult, error) {
	if page > 1 {
		return &github.SearchResult{TotalCount: p.totalCount}, nil
	}
	return &github.SearchResult{TotalCount: p.totalCount, Items: p.items}, nil
}

func (p *stubProvider) ListBranches(_ context.Context, _, _ string, page, _ int, _ bool) ([]github.Branch, error) {
	if page > 1 {
		return nil, nil
	}
	return p.branches, nil
}

func (p *stubProvider) ListComments(_ context.Context, _, _ string, _, _ int, _ bool) ([]github.Comment, error) {
	return p.comments, nil
}

func (p *stubProvider) ListReviews(_ context.Context, _, _ string, _ int, _ bool) ([]github.Review, error) {
	return nil, nil
}

func (p *stubProvider) ListPullCommits(_ context.Context, _, _ string, _ int, _ bool) ([]github.Commit, error) {
	return nil, nil
}

func (p *stubProvider) ListOrgRepos(_ context.Context, page, _ int, _ bool) ([]github.Repo, error) {
	if page > 1 {
		return nil, nil
	}
	return p.repos, nil
}

func (p *stubProvider) GetBranchHead(_ context.Context, _, repo, _ string) (string, error) {
	sha, ok := p.heads[repo]
	if !ok {
		return "", errors.New("resource not found")
	}
	return sha, nil
}

func (p *stubProvider) CreateBranch(_ context.Context, _, repo, branch, sha string) (bool, error) {
	if p.existing[repo] == branch {
		return false, nil
	}
	p.mu.Lock()
	p.createdRefs = append(p.createdRefs, repo+":"+branch+"@"+sha)
	p.mu.Unlock()
	return true, nil
}

func (p *stubProvider) CreatePullRequest(_ context.Context, _, repo, title, head, base, _ string) (*github.CreatedPull, error) {
	p.openedPulls = append(p.openedPulls, repo+":"+head+"->"+base)
	return &github.CreatedPull{Number: 77, HTMLURL: "https://example.test/" + repo + "/pull/77"}, nil
}

func (p *stubProvider) RequestReviewers(_ context.Context, _, _ string, number int, reviewers []string) error {
	p.reviewerCalls = append(p.reviewerCalls, reviewers...)
	return nil
}

// passthroughEnricher wraps raw items without upstream calls.
type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ context.Context, raw []model.RawPullRequest, _ bool) []model.EnrichedPullRequest {
	out := make([]model.EnrichedPullRequest, len(raw))
	for i, r := range raw {
		out[i] = model.EnrichedPullRequest{RawPullRequest: r}
	}
	return out
}

func newTestRouter(t *testing.T, provider *stubProvider) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	kv := newMemKV()
	cache := store.NewResponseCache(kv, store.NewTTLPolicy(nil), scheduler.NewManualScheduler(), notify.NopNotifier{}, logger, store.CacheOptions{})
	pulls := service.NewPullService(provider, passthroughEnricher{}, cache, "octocat", logger)
	visits := service.NewVisitService(kv, logger)
	notifications := notify.NewRingNotifier(10, notify.NopNotifier{})

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeout = 5 * time.Second

	srv := server.NewServer(cfg, pulls, visits, notifications, kv, nil, logger)
	srv.SetupRoutes()
	return srv.GetHandler()
}

func searchItems(n int) []model.RawPullRequest {
	items := make([]model.RawPullRequest, n)
	for i := range items {
		items[i] = model.RawPullRequest{
			ID:        int64(i + 1),
			Number:    i + 1,
			Title:     "change",
			State:     "open",
			UpdatedAt: "2026-08-20T10:00:00Z",
		}
	}
	return items
}

func TestListPullsPage(t *testing.T) {
	router := newTestRouter(t, &stubProvider{items: searchItems(3), totalCount: 3})

	req := httptest.NewRequest(http.MethodGet, "/v1/pulls/page?state=open&page=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.PageResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 3, result.TotalCount)
}

func TestListPullsPage_InvalidPage(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/pulls/page?page=zero", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPullsPage_InvalidState(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/pulls/page?state=merged", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPulls(t *testing.T) {
	router := newTestRouter(t, &stubProvider{items: searchItems(5), totalCount: 5})

	req := httptest.NewRequest(http.MethodGet, "/v1/pulls", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []model.EnrichedPullRequest `json:"items"`
		Count int                         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 5, resp.Count)
	assert.Len(t, resp.Items, 5)
}

func TestListBranches(t *testing.T) {
	provider := &stubProvider{}
	provider.branches = make([]github.Branch, 2)
	provider.branches[0].Name = "main"
	provider.branches[1].Name = "develop"

	router := newTestRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/v1/repos/acme/widgets/branches", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Branches []model.BranchRecord `json:"branches"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "main", resp.Branches[0].Name)
}

func TestListPulls_ConfiguredItemBudget(t *testing.T) {
	logger := zap.NewNop()
	kv := newMemKV()
	cache := store.NewResponseCache(kv, store.NewTTLPolicy(nil), scheduler.NewManualScheduler(), notify.NopNotifier{}, logger, store.CacheOptions{})
	pulls := service.NewPullService(&stubProvider{items: searchItems(5), totalCount: 5}, passthroughEnricher{}, cache, "", logger)
	visits := service.NewVisitService(kv, logger)

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Enrichment.MaxItems = 3

	srv := server.NewServer(cfg, pulls, visits, notify.NewRingNotifier(10, notify.NopNotifier{}), kv, nil, logger)
	srv.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/pulls", nil)
	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Count, "configured item budget must cap the full listing")
}

func TestListRepos(t *testing.T) {
	provider := &stubProvider{
		repos: []github.Repo{
			{Name: "widgets", FullName: "acme/widgets"},
			{Name: "attic", FullName: "acme/attic", Archived: true},
			{Name: "gears", FullName: "acme/gears"},
		},
	}
	router := newTestRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/v1/repos", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Repos []github.Repo `json:"repos"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "acme/widgets", resp.Repos[0].FullName)
}

func TestListRepos_PrefixQuery(t *testing.T) {
	provider := &stubProvider{
		repos: []github.Repo{
			{Name: "te-billing", FullName: "acme/te-billing"},
			{Name: "widgets", FullName: "acme/widgets"},
			{Name: "te-search", FullName: "acme/te-search"},
		},
	}
	router := newTestRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/v1/repos?prefix=te-", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Repos []github.Repo `json:"repos"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "te-billing", resp.Repos[0].Name)
	assert.Equal(t, "te-search", resp.Repos[1].Name)
}

func TestCreateBranches(t *testing.T) {
	provider := &stubProvider{
		heads:    map[string]string{"widgets": "abc123", "gears": "def456"},
		existing: map[string]string{"gears": "release-1"},
	}
	router := newTestRouter(t, provider)

	body := `{"owner":"acme","repos":["widgets","gears","missing"],"branch":"release-1","base":"main"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/branches", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Branch  string                `json:"branch"`
		Results []model.BranchOutcome `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "release-1", resp.Branch)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "created", resp.Results[0].Status)
	assert.Equal(t, "exists", resp.Results[1].Status)
	assert.Equal(t, "error", resp.Results[2].Status)
	assert.Equal(t, []string{"widgets:release-1@abc123"}, provider.createdRefs)
}

func TestCreateBranches_MissingFields(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/v1/branches", bytes.NewBufferString(`{"owner":"acme"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePull(t *testing.T) {
	provider := &stubProvider{}
	router := newTestRouter(t, provider)

	body := `{"title":"Release 1","head":"release-1","base":"main","body":"notes","reviewers":["octocat"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/repos/acme/widgets/pulls", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp model.OpenedPull
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 77, resp.Number)
	assert.Equal(t, []string{"widgets:release-1->main"}, provider.openedPulls)
	assert.Equal(t, []string{"octocat"}, provider.reviewerCalls)
}

func TestCreatePull_MissingFields(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/v1/repos/acme/widgets/pulls", bytes.NewBufferString(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPullActivity(t *testing.T) {
	provider := &stubProvider{
		comments: []github.Comment{
			{User: model.Actor{Login: "alice"}, Body: "looks good", CreatedAt: "2026-08-20T10:00:00Z"},
		},
	}
	router := newTestRouter(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/v1/repos/acme/widgets/pulls/7/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []model.ActivityEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "comment", resp.Events[0].Type)
	assert.Equal(t, "alice", resp.Events[0].Actor)
}

func TestPullActivity_InvalidNumber(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/repos/acme/widgets/pulls/-3/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCacheAdmin(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	// Stats starts empty
	req := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats store.CacheStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 0, stats.Entries)

	// Clear succeeds
	req = httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetCompression(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPut, "/v1/cache/compression", bytes.NewBufferString(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/v1/cache/compression", bytes.NewBufferString(`{}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetTTL(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPut, "/v1/cache/ttl/branch_list", bytes.NewBufferString(`{"minutes":15}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/v1/cache/ttl/bogus", bytes.NewBufferString(`{"minutes":15}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVisitsRoundTrip(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPut, "/v1/visits/acme-widgets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/visits/acme-widgets", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LastVisitMillis int64 `json:"last_visit_millis"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Positive(t, resp.LastVisitMillis)
}

func TestVisits_NeverVisited(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/visits/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LastVisitMillis int64 `json:"last_visit_millis"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Zero(t, resp.LastVisitMillis)
}

func TestFavoritesRoundTrip(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodPut, "/v1/favorites", bytes.NewBufferString(`{"favorites":["acme/widgets","acme/gears"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/favorites", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Favorites []string `json:"favorites"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"acme/widgets", "acme/gears"}, resp.Favorites)
}

func TestNotifications(t *testing.T) {
	logger := zap.NewNop()
	kv := newMemKV()
	cache := store.NewResponseCache(kv, store.NewTTLPolicy(nil), scheduler.NewManualScheduler(), notify.NopNotifier{}, logger, store.CacheOptions{})
	pulls := service.NewPullService(&stubProvider{}, passthroughEnricher{}, cache, "", logger)
	visits := service.NewVisitService(kv, logger)
	notifications := notify.NewRingNotifier(10, notify.NopNotifier{})
	notifications.Notify("quota low", notify.SeverityWarning, notify.DurationLong)

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeout = 5 * time.Second

	srv := server.NewServer(cfg, pulls, visits, notifications, kv, nil, logger)
	srv.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, "quota low", resp.Notifications[0].Message)
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
