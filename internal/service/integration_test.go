package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/enrich"
	"github.com/devrev/prboard/internal/gateway"
	"github.com/devrev/prboard/internal/github"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/scheduler"
	"github.com/devrev/prboard/internal/store"
)

var pullDetailPath = regexp.MustCompile(`^/repos/acme/widgets/pulls/(\d+)$`)

// newMockProvider serves a 10-item search page where pull request 5's
// detail endpoint always fails.
func newMockProvider(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/search/issues":
			items := ""
			for n := 1; n <= 10; n++ {
				if n > 1 {
					items += ","
				}
				items += fmt.Sprintf(`{
					"id": %d, "number": %d, "title": "pr %d", "state": "open",
					"user": {"login": "dev%d"},
					"repository_url": "%s/repos/acme/widgets",
					"updated_at": "2024-04-%02dT10:00:00Z"
				}`, 100+n, n, n, n, srv.URL, n)
			}
			fmt.Fprintf(w, `{"total_count": 42, "items": [%s]}`, items)

		case pullDetailPath.MatchString(path):
			n, _ := strconv.Atoi(pullDetailPath.FindStringSubmatch(path)[1])
			if n == 5 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `{
				"number": %d,
				"head": {"ref": "feature-%d", "sha": "sha-%d"},
				"base": {"ref": "main"},
				"mergeable": true,
				"mergeable_state": "clean"
			}`, n, n, n)

		case regexp.MustCompile(`^/repos/acme/widgets/pulls/\d+/reviews$`).MatchString(path):
			fmt.Fprint(w, `[]`)

		case regexp.MustCompile(`^/repos/acme/widgets/issues/\d+/comments$`).MatchString(path):
			fmt.Fprint(w, `[]`)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPage_EndToEnd(t *testing.T) {
	srv := newMockProvider(t)
	logger := zap.NewNop()

	cache := store.NewResponseCache(nopKV{}, store.NewTTLPolicy(nil),
		scheduler.NewManualScheduler(), notify.NopNotifier{}, logger, store.CacheOptions{})
	gw := gateway.New(&http.Client{Timeout: 5 * time.Second}, cache,
		notify.NopNotifier{}, logger, nil, gateway.Options{})
	client := github.NewClient(gw, srv.URL, "acme")
	engine := enrich.NewEngine(client, logger, nil, 0)
	svc := NewPullService(client, engine, cache, "", logger)

	result, err := svc.FetchPage(context.Background(), "open", 1, false, 10, false)
	require.NoError(t, err)

	assert.Equal(t, 42, result.TotalCount, "total reflects the provider's reported count")
	require.Len(t, result.Items, 10, "the failing item must not shrink the page")

	var degraded, enriched int
	for _, rec := range result.Items {
		if rec.Number == 5 {
			assert.True(t, rec.Fallback)
			assert.Zero(t, rec.ApprovalCount)
			assert.Empty(t, rec.SourceBranch)
			assert.Equal(t, "2024-04-05T10:00:00Z", rec.LatestActivityAt,
				"fallback keeps the item's own update time")
			degraded++
			continue
		}
		assert.False(t, rec.Fallback)
		assert.Equal(t, fmt.Sprintf("feature-%d", rec.Number), rec.SourceBranch)
		assert.Equal(t, "main", rec.TargetBranch)
		enriched++
	}
	assert.Equal(t, 1, degraded)
	assert.Equal(t, 9, enriched)

	// Post-condition: sorted by latest activity, newest first. With
	// base timestamps only, that is update time descending.
	for i := 1; i < len(result.Items); i++ {
		assert.GreaterOrEqual(t,
			result.Items[i-1].LatestActivityMillis,
			result.Items[i].LatestActivityMillis)
	}
	assert.Equal(t, 10, result.Items[0].Number)
}

func TestFetchPage_SecondCallServedFromCache(t *testing.T) {
	srv := newMockProvider(t)
	logger := zap.NewNop()

	cache := store.NewResponseCache(nopKV{}, store.NewTTLPolicy(nil),
		scheduler.NewManualScheduler(), notify.NopNotifier{}, logger, store.CacheOptions{})
	gw := gateway.New(&http.Client{Timeout: 5 * time.Second}, cache,
		notify.NopNotifier{}, logger, nil, gateway.Options{})
	client := github.NewClient(gw, srv.URL, "acme")
	engine := enrich.NewEngine(client, logger, nil, 0)
	svc := NewPullService(client, engine, cache, "", logger)

	first, err := svc.FetchPage(context.Background(), "open", 1, false, 10, false)
	require.NoError(t, err)

	srv.Close() // provider gone; only the cache can answer now

	second, err := svc.FetchPage(context.Background(), "open", 1, false, 10, false)
	require.NoError(t, err)
	assert.Equal(t, first.TotalCount, second.TotalCount)
	require.Len(t, second.Items, 10)

	// Item 5's failing detail response was never cached, so it degrades
	// again, deterministically.
	for _, rec := range second.Items {
		if rec.Number == 5 {
			assert.True(t, rec.Fallback)
		}
	}
}
