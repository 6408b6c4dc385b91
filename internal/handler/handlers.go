// Package handler provides HTTP request handlers for the dashboard API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apierrors "github.com/devrev/prboard/internal/errors"
	"github.com/devrev/prboard/internal/notify"
	"github.com/devrev/prboard/internal/service"
)

const (
	defaultMaxItems    = 500
	defaultMaxBranches = 500
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	pulls         *service.PullService
	visits        *service.VisitService
	notifications *notify.RingNotifier
	errorHandler  *apierrors.Handler
	logger        *zap.Logger
	timeout       time.Duration
	maxItems      int
}

// NewHandlers creates a new Handlers instance. maxItems caps the full
// listing when the caller does not pass its own bound.
func NewHandlers(
	pulls *service.PullService,
	visits *service.VisitService,
	notifications *notify.RingNotifier,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	timeout time.Duration,
	maxItems int,
) *Handlers {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &Handlers{
		pulls:         pulls,
		visits:        visits,
		notifications: notifications,
		errorHandler:  errorHandler,
		logger:        logger,
		timeout:       timeout,
		maxItems:      maxItems,
	}
}

// ListPulls handles GET /v1/pulls requests. It aggregates every page of
// results for the requested state up to the item budget.
func (h *Handlers) ListPulls(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}
	if state != "open" && state != "closed" {
		h.errorHandler.WriteValidationError(w, "state must be open or closed", requestID)
		return
	}

	maxItems := h.maxItems
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "max must be a positive integer", requestID)
			return
		}
		maxItems = n
	}

	refresh := r.URL.Query().Get("refresh") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items := h.pulls.FetchAll(ctx, state, refresh, maxItems)

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// ListPullsPage handles GET /v1/pulls/page requests.
func (h *Handlers) ListPullsPage(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	state := r.URL.Query().Get("state")
	if state == "" {
		state = "open"
	}
	if state != "open" && state != "closed" {
		h.errorHandler.WriteValidationError(w, "state must be open or closed", requestID)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "page must be a positive integer", requestID)
			return
		}
		page = n
	}

	perPage := 0
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "per_page must be a positive integer", requestID)
			return
		}
		perPage = n
	}

	myOnly := r.URL.Query().Get("mine") == "true"
	refresh := r.URL.Query().Get("refresh") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.pulls.FetchPage(ctx, state, page, myOnly, perPage, refresh)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

// ListBranches handles GET /v1/repos/{owner}/{repo}/branches requests.
func (h *Handlers) ListBranches(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	maxBranches := defaultMaxBranches
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "max must be a positive integer", requestID)
			return
		}
		maxBranches = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	branches, err := h.pulls.FetchProjectBranches(ctx, vars["owner"], vars["repo"], maxBranches)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"branches": branches,
		"count":    len(branches),
	})
}

// ListRepos handles GET /v1/repos requests.
func (h *Handlers) ListRepos(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	maxRepos := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorHandler.WriteValidationError(w, "max must be a positive integer", requestID)
			return
		}
		maxRepos = n
	}

	prefix := r.URL.Query().Get("prefix")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	repos, err := h.pulls.ListRepos(ctx, prefix, maxRepos)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"repos": repos,
		"count": len(repos),
	})
}

// CreateBranches handles POST /v1/branches requests. It fans the branch
// creation out over every listed repository and reports each outcome.
func (h *Handlers) CreateBranches(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Owner  string   `json:"owner"`
		Repos  []string `json:"repos"`
		Branch string   `json:"branch"`
		Base   string   `json:"base"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.Owner == "" || req.Branch == "" || req.Base == "" || len(req.Repos) == 0 {
		h.errorHandler.WriteValidationError(w, "owner, repos, branch and base are required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	outcomes := h.pulls.CreateBranches(ctx, req.Owner, req.Repos, req.Branch, req.Base)

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"branch":  req.Branch,
		"results": outcomes,
	})
}

// CreatePull handles POST /v1/repos/{owner}/{repo}/pulls requests.
func (h *Handlers) CreatePull(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	var req struct {
		Title     string   `json:"title"`
		Head      string   `json:"head"`
		Base      string   `json:"base"`
		Body      string   `json:"body"`
		Reviewers []string `json:"reviewers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.Title == "" || req.Head == "" || req.Base == "" {
		h.errorHandler.WriteValidationError(w, "title, head and base are required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	pull, err := h.pulls.OpenPullRequest(ctx, vars["owner"], vars["repo"],
		req.Title, req.Head, req.Base, req.Body, req.Reviewers)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, pull)
}

// PullActivity handles GET /v1/repos/{owner}/{repo}/pulls/{number}/activity requests.
func (h *Handlers) PullActivity(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	number, err := strconv.Atoi(vars["number"])
	if err != nil || number <= 0 {
		h.errorHandler.WriteValidationError(w, "pull request number must be a positive integer", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	events, err := h.pulls.FetchActivity(ctx, vars["owner"], vars["repo"], number)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// ClearCache handles POST /v1/cache/clear requests.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.pulls.ClearCache()
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CacheStats handles GET /v1/cache/stats requests.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.pulls.CacheStats())
}

// SetCompression handles PUT /v1/cache/compression requests.
func (h *Handlers) SetCompression(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		h.errorHandler.WriteValidationError(w, "body must be {\"enabled\": true|false}", requestID)
		return
	}

	h.pulls.SetCompressionEnabled(*req.Enabled)
	h.writeJSONResponse(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// SetTTL handles PUT /v1/cache/ttl/{category} requests.
func (h *Handlers) SetTTL(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	if err := h.pulls.SetTTL(vars["category"], req.Minutes); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"category": vars["category"],
		"minutes":  req.Minutes,
	})
}

// ListNotifications handles GET /v1/notifications requests.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"notifications": h.notifications.Recent(),
	})
}

// RecordVisit handles PUT /v1/visits/{id} requests.
func (h *Handlers) RecordVisit(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.visits.RecordVisit(ctx, vars["id"]); err != nil {
		h.errorHandler.WriteInternalError(w, fmt.Sprintf("failed to record visit: %v", err), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// GetVisit handles GET /v1/visits/{id} requests.
func (h *Handlers) GetVisit(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	vars := mux.Vars(r)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	millis, err := h.visits.LastVisit(ctx, vars["id"])
	if err != nil {
		h.errorHandler.WriteInternalError(w, fmt.Sprintf("failed to read visit: %v", err), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":                vars["id"],
		"last_visit_millis": millis,
	})
}

// ListFavorites handles GET /v1/favorites requests.
func (h *Handlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	favs, err := h.visits.Favorites(ctx)
	if err != nil {
		h.errorHandler.WriteInternalError(w, fmt.Sprintf("failed to read favorites: %v", err), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"favorites": favs,
	})
}

// SetFavorites handles PUT /v1/favorites requests.
func (h *Handlers) SetFavorites(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req struct {
		Favorites []string `json:"favorites"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.visits.SetFavorites(ctx, req.Favorites); err != nil {
		h.errorHandler.WriteInternalError(w, fmt.Sprintf("failed to store favorites: %v", err), requestID)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"favorites": req.Favorites,
	})
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
