// Package gateway wraps outbound provider API calls: consults the
// response cache before any network I/O, writes fresh GET responses
// back, coalesces concurrent identical requests, and classifies
// failures for the callers to degrade on.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/devrev/prboard/internal/metrics"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/store"
)

// Response is the gateway's view of one call, cached or fresh.
type Response struct {
	Body       json.RawMessage
	Status     int
	StatusText string
	FromCache  bool
}

// Options tunes a Gateway.
type Options struct {
	// Token is the bearer token attached to every request.
	Token string
	// Accept is the media type requested from the provider.
	Accept string
	// RateWarnThreshold triggers a warning notification when the
	// provider's remaining quota drops below it.
	RateWarnThreshold int
	// MaxRequestsPerSecond throttles outbound network calls; 0 disables
	// the limiter.
	MaxRequestsPerSecond float64
}

func (o *Options) applyDefaults() {
	if o.Accept == "" {
		o.Accept = "application/vnd.github+json"
	}
	if o.RateWarnThreshold <= 0 {
		o.RateWarnThreshold = 10
	}
}

// Gateway performs provider API calls through the response cache.
type Gateway struct {
	httpClient *http.Client
	cache      *store.ResponseCache
	notifier   notify.Notifier
	logger     *zap.Logger
	metrics    *metrics.Metrics
	limiter    *rate.Limiter
	opts       Options

	// sf collapses concurrent identical GETs into one network call.
	sf singleflight.Group

	warnMu   sync.Mutex
	lastWarn time.Time
}

// New creates a Gateway. metrics may be nil (tests).
func New(
	httpClient *http.Client,
	cache *store.ResponseCache,
	notifier notify.Notifier,
	logger *zap.Logger,
	m *metrics.Metrics,
	opts Options,
) *Gateway {
	opts.applyDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	g := &Gateway{
		httpClient: httpClient,
		cache:      cache,
		notifier:   notifier,
		logger:     logger,
		metrics:    m,
		opts:       opts,
	}
	if opts.MaxRequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.MaxRequestsPerSecond), int(opts.MaxRequestsPerSecond)+1)
	}
	return g
}

// Get fetches url, serving from cache unless bypassCache is set.
func (g *Gateway) Get(ctx context.Context, url string, bypassCache bool) (*Response, error) {
	category := string(g.cache.Policy().Categorize(url))

	if !bypassCache {
		if entry, ok := g.cache.Get(url); ok {
			if g.metrics != nil {
				g.metrics.RecordCacheHit(category)
				g.metrics.RecordAPICall(category, true, 0)
			}
			return &Response{
				Body:       entry.Payload,
				Status:     entry.Status,
				StatusText: entry.StatusText,
				FromCache:  true,
			}, nil
		}
		if g.metrics != nil {
			g.metrics.RecordCacheMiss(category)
		}
	}

	v, err, _ := g.sf.Do(url, func() (any, error) {
		return g.fetch(ctx, http.MethodGet, url, category, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// Do performs a non-GET call with an optional JSON payload; never
// cached, never coalesced.
func (g *Gateway) Do(ctx context.Context, method, url string, payload any) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, &APIError{Kind: KindGeneric, URL: url, Message: err.Error()}
		}
	}
	return g.fetch(ctx, method, url, string(store.CategoryDefault), body)
}

func (g *Gateway) fetch(ctx context.Context, method, url, category string, payload []byte) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Kind: KindNetwork, URL: url, Message: err.Error()}
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &APIError{Kind: KindGeneric, URL: url, Message: err.Error()}
	}
	if g.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.opts.Token)
	}
	req.Header.Set("Accept", g.opts.Accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		apiErr := &APIError{Kind: KindNetwork, URL: url, Message: err.Error()}
		g.report(apiErr)
		return nil, apiErr
	}
	defer resp.Body.Close()

	g.watchRateLimit(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := &APIError{Kind: KindNetwork, Status: resp.StatusCode, URL: url, Message: err.Error()}
		g.report(apiErr)
		return nil, apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := g.classify(resp, url)
		g.report(apiErr)
		return nil, apiErr
	}

	if g.metrics != nil {
		g.metrics.RecordAPICall(category, false, time.Since(start).Seconds())
	}

	if method == http.MethodGet {
		g.cache.Set(url, body, resp.StatusCode, resp.Status)
	}
	return &Response{
		Body:       body,
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		FromCache:  false,
	}, nil
}

func (g *Gateway) classify(resp *http.Response, url string) *APIError {
	status := resp.StatusCode
	switch {
	case status == http.StatusNotFound:
		return &APIError{Kind: KindNotFound, Status: status, URL: url, Message: "resource not found"}
	case status == http.StatusUnauthorized:
		return &APIError{Kind: KindAuthFailed, Status: status, URL: url, Message: "authentication failed"}
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &APIError{Kind: KindRateLimited, Status: status, URL: url, Message: "rate limit exceeded"}
	case status == http.StatusUnprocessableEntity:
		return &APIError{Kind: KindUnprocessable, Status: status, URL: url, Message: "request rejected as a semantic conflict"}
	default:
		return &APIError{Kind: KindGeneric, Status: status, URL: url, Message: resp.Status}
	}
}

// report routes a failure to the notifier per the alerting taxonomy.
// Not-found stays out of the user's face but is logged.
func (g *Gateway) report(err *APIError) {
	if g.metrics != nil {
		g.metrics.RecordAPIError(string(err.Kind))
	}
	switch err.Kind {
	case KindNotFound:
		g.logger.Debug("resource not found", zap.String("url", err.URL))
	case KindUnprocessable:
		g.logger.Debug("request rejected as conflict", zap.String("url", err.URL))
	case KindRateLimited:
		g.notifier.Notify("provider rate limit exceeded, try again later", notify.SeverityError, notify.DurationLong)
	case KindAuthFailed:
		g.notifier.Notify("provider authentication failed, check the configured token", notify.SeverityError, notify.DurationSticky)
	case KindNetwork:
		g.notifier.Notify("network failure reaching the provider", notify.SeverityError, notify.DurationMedium)
	default:
		g.notifier.Notify("provider request failed: "+err.Message, notify.SeverityError, notify.DurationMedium)
	}
}

// watchRateLimit warns (at most once a minute) when the remaining
// provider quota runs low. The call itself proceeds.
func (g *Gateway) watchRateLimit(resp *http.Response) {
	remainingHeader := resp.Header.Get("X-RateLimit-Remaining")
	if remainingHeader == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingHeader)
	if err != nil || remaining >= g.opts.RateWarnThreshold {
		return
	}

	g.warnMu.Lock()
	due := time.Since(g.lastWarn) > time.Minute
	if due {
		g.lastWarn = time.Now()
	}
	g.warnMu.Unlock()
	if !due {
		return
	}

	g.logger.Warn("provider rate limit running low", zap.Int("remaining", remaining))
	g.notifier.Notify("approaching provider rate limit", notify.SeverityWarning, notify.DurationMedium)
}
