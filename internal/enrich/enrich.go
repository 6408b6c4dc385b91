// Package enrich assembles composite pull-request records: for each raw
// search item it fans out the secondary detail fetches, merges them, and
// computes the authoritative latest-activity timestamp.
package enrich

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/prboard/internal/github"
	"github.com/devrev/prboard/internal/metrics"
	"github.com/devrev/prboard/internal/model"
	"github.com/devrev/prboard/internal/timeutil"
)

// ProviderClient is the slice of the provider API the engine consumes.
type ProviderClient interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int, bypassCache bool) (*github.PullDetail, error)
	ListReviews(ctx context.Context, owner, repo string, number int, bypassCache bool) ([]github.Review, error)
	LatestComment(ctx context.Context, owner, repo string, number int, bypassCache bool) (*github.Comment, error)
}

// Engine enriches batches of raw records. It is stateless; every call
// recomputes from scratch.
type Engine struct {
	client  ProviderClient
	logger  *zap.Logger
	metrics *metrics.Metrics

	// limit bounds the per-item fan-out across the batch.
	limit int
}

// NewEngine creates an enrichment engine. metrics may be nil. limit <= 0
// selects the default bound of 8.
func NewEngine(client ProviderClient, logger *zap.Logger, m *metrics.Metrics, limit int) *Engine {
	if limit <= 0 {
		limit = 8
	}
	return &Engine{
		client:  client,
		logger:  logger,
		metrics: m,
		limit:   limit,
	}
}

// Enrich fetches secondary detail for every item concurrently and
// returns the enriched batch sorted by latest activity, newest first.
// One item's failure degrades that item to a fallback record; siblings
// are unaffected.
func (e *Engine) Enrich(ctx context.Context, raw []model.RawPullRequest, openContext bool) []model.EnrichedPullRequest {
	start := time.Now()
	results := make([]model.EnrichedPullRequest, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i := range raw {
		i := i
		g.Go(func() error {
			results[i] = e.enrichOne(gctx, raw[i], openContext)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].LatestActivityMillis > results[b].LatestActivityMillis
	})

	fallbacks := 0
	for i := range results {
		if results[i].Fallback {
			fallbacks++
		}
	}
	if e.metrics != nil {
		e.metrics.RecordEnrichment(time.Since(start).Seconds(), fallbacks)
	}
	if fallbacks > 0 {
		e.logger.Warn("enrichment degraded some items",
			zap.Int("total", len(raw)),
			zap.Int("fallbacks", fallbacks))
	}
	return results
}

func (e *Engine) enrichOne(ctx context.Context, item model.RawPullRequest, openContext bool) (rec model.EnrichedPullRequest) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enrichment panic, degrading item",
				zap.Int64("id", item.ID),
				zap.Any("panic", r))
			rec = fallbackRecord(item, openContext)
		}
	}()

	owner, repo := github.ParseRepoURL(item.RepositoryURL)
	if owner == "" || repo == "" || item.Number <= 0 {
		return fallbackRecord(item, openContext)
	}

	var (
		comment   *github.Comment
		detail    *github.PullDetail
		reviews   []github.Review
		conflicts bool
		detailErr error
	)

	// The four sub-fetches run as one concurrent batch. The mergeability
	// probe reads the same resource as the detail fetch; the gateway
	// coalesces the two in-flight calls into one.
	var g errgroup.Group
	g.Go(func() error {
		c, err := e.client.LatestComment(ctx, owner, repo, item.Number, false)
		if err != nil {
			e.logger.Debug("latest-comment fetch failed",
				zap.String("repo", owner+"/"+repo),
				zap.Int("number", item.Number),
				zap.Error(err))
			return nil
		}
		comment = c
		return nil
	})
	g.Go(func() error {
		d, err := e.client.GetPullRequest(ctx, owner, repo, item.Number, false)
		if err != nil {
			detailErr = err
			return nil
		}
		detail = d
		return nil
	})
	g.Go(func() error {
		r, err := e.client.ListReviews(ctx, owner, repo, item.Number, false)
		if err != nil {
			e.logger.Debug("review-list fetch failed",
				zap.String("repo", owner+"/"+repo),
				zap.Int("number", item.Number),
				zap.Error(err))
			return nil
		}
		reviews = r
		return nil
	})
	g.Go(func() error {
		d, err := e.client.GetPullRequest(ctx, owner, repo, item.Number, false)
		if err != nil {
			return nil
		}
		conflicts = hasConflicts(d)
		return nil
	})
	_ = g.Wait()

	// Approvals and branch info are meaningless without the head
	// revision, so a failed detail fetch degrades the whole item.
	if detailErr != nil || detail == nil {
		e.logger.Debug("detail fetch failed, degrading item",
			zap.String("repo", owner+"/"+repo),
			zap.Int("number", item.Number),
			zap.Error(detailErr))
		return fallbackRecord(item, openContext)
	}

	rec = model.EnrichedPullRequest{
		RawPullRequest: item,
		Owner:          owner,
		Repo:           repo,
		Author:         item.User.Login,
		HeadSHA:        detail.Head.SHA,
		SourceBranch:   detail.Head.Ref,
		TargetBranch:   detail.Base.Ref,
		ApprovalCount:  countApprovals(reviews, detail.Head.SHA),
		HasConflicts:   conflicts || hasConflicts(detail),
	}

	baseISO := baseTimestamp(item, openContext)
	commentISO := ""
	if comment != nil {
		commentISO = comment.CreatedAt
	}
	reviewISO := latestReviewSubmission(reviews)

	rec.LatestActivityAt, rec.LatestActivityMillis, rec.ActivitySource =
		resolveActivity(baseISO, commentISO, reviewISO)
	return rec
}

// fallbackRecord preserves the primary fields of a raw item whose
// enrichment could not complete.
func fallbackRecord(item model.RawPullRequest, openContext bool) model.EnrichedPullRequest {
	owner, repo := github.ParseRepoURL(item.RepositoryURL)
	rec := model.EnrichedPullRequest{
		RawPullRequest: item,
		Owner:          owner,
		Repo:           repo,
		Author:         item.User.Login,
		Fallback:       true,
	}
	iso := baseTimestamp(item, openContext)
	rec.LatestActivityMillis = timeutil.EpochMillis(iso)
	if rec.LatestActivityMillis > 0 {
		rec.LatestActivityAt = iso
		rec.ActivitySource = model.ActivityFromBase
	} else {
		rec.ActivitySource = model.ActivityFromNone
	}
	return rec
}

// baseTimestamp picks the item's own reference time: close time in
// closed context (falling back to update time), update time otherwise.
func baseTimestamp(item model.RawPullRequest, openContext bool) string {
	if !openContext && item.ClosedAt != "" {
		return item.ClosedAt
	}
	return item.UpdatedAt
}

// resolveActivity picks the authoritative latest-activity value and the
// ISO string of the source that produced it. Ties prefer the more
// specific source: review over comment over base.
func resolveActivity(baseISO, commentISO, reviewISO string) (string, int64, model.ActivitySource) {
	baseMs := timeutil.EpochMillis(baseISO)
	commentMs := timeutil.EpochMillis(commentISO)
	reviewMs := timeutil.EpochMillis(reviewISO)

	max := timeutil.Latest(baseMs, commentMs, reviewMs)
	switch {
	case max == 0:
		return "", 0, model.ActivityFromNone
	case reviewMs == max:
		return reviewISO, max, model.ActivityFromReview
	case commentMs == max:
		return commentISO, max, model.ActivityFromComment
	default:
		return baseISO, max, model.ActivityFromBase
	}
}

// latestReviewSubmission returns the ISO submission time of the newest
// review, or empty when the list carries no usable timestamp.
func latestReviewSubmission(reviews []github.Review) string {
	var bestISO string
	var bestMs int64
	for i := range reviews {
		ms := timeutil.EpochMillis(reviews[i].SubmittedAt)
		if ms > bestMs {
			bestMs = ms
			bestISO = reviews[i].SubmittedAt
		}
	}
	return bestISO
}

// countApprovals counts distinct reviewer identities whose most recent
// state-bearing review is an approval of the current head revision.
// Approvals against superseded revisions do not count.
func countApprovals(reviews []github.Review, headSHA string) int {
	if headSHA == "" {
		return 0
	}

	type lastReview struct {
		state    string
		commitID string
		ms       int64
	}
	latest := make(map[string]lastReview)
	for i := range reviews {
		r := reviews[i]
		if r.User.Login == "" {
			continue
		}
		// COMMENTED and PENDING reviews carry no verdict and do not
		// supersede an earlier approval or rejection.
		if r.State != "APPROVED" && r.State != "CHANGES_REQUESTED" && r.State != "DISMISSED" {
			continue
		}
		ms := timeutil.EpochMillis(r.SubmittedAt)
		if prev, ok := latest[r.User.Login]; ok && prev.ms > ms {
			continue
		}
		latest[r.User.Login] = lastReview{state: r.State, commitID: r.CommitID, ms: ms}
	}

	count := 0
	for _, lr := range latest {
		if lr.state == "APPROVED" && lr.commitID == headSHA {
			count++
		}
	}
	return count
}

func hasConflicts(detail *github.PullDetail) bool {
	if detail == nil {
		return false
	}
	if detail.MergeableState == "dirty" {
		return true
	}
	return detail.Mergeable != nil && !*detail.Mergeable
}
