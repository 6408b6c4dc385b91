// Package model defines the record shapes flowing through the service.
package model

// Actor is the author or reviewer identity as delivered by the provider.
type Actor struct {
	Login string `json:"login"`
}

// RawPullRequest is one item of a provider search response, untouched by
// enrichment. Enrichment never mutates it; derived data lives on
// EnrichedPullRequest only.
type RawPullRequest struct {
	ID            int64  `json:"id"`
	Number        int    `json:"number"`
	Title         string `json:"title"`
	State         string `json:"state"`
	Draft         bool   `json:"draft"`
	HTMLURL       string `json:"html_url"`
	RepositoryURL string `json:"repository_url"`
	User          Actor  `json:"user"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	ClosedAt      string `json:"closed_at"`
}

// ActivitySource names which event produced the authoritative
// latest-activity timestamp.
type ActivitySource string

const (
	ActivityFromReview  ActivitySource = "review"
	ActivityFromComment ActivitySource = "comment"
	ActivityFromBase    ActivitySource = "base"
	ActivityFromNone    ActivitySource = "none"
)

// EnrichedPullRequest is a RawPullRequest augmented with detail gathered
// from the secondary endpoints. Constructed fresh on every enrichment
// pass and never mutated afterwards.
type EnrichedPullRequest struct {
	RawPullRequest

	Owner string `json:"owner"`
	Repo  string `json:"repo"`

	Author       string `json:"author"`
	HeadSHA      string `json:"head_sha,omitempty"`
	SourceBranch string `json:"source_branch,omitempty"`
	TargetBranch string `json:"target_branch,omitempty"`

	ApprovalCount int  `json:"approval_count"`
	HasConflicts  bool `json:"has_conflicts"`

	// LatestActivityAt keeps the winning source's own ISO string;
	// LatestActivityMillis is its parsed form used for ordering.
	LatestActivityAt     string         `json:"latest_activity_at"`
	LatestActivityMillis int64          `json:"latest_activity_ms"`
	ActivitySource       ActivitySource `json:"activity_source"`

	// Fallback marks a record whose secondary fetches failed; only the
	// primary fields are trustworthy.
	Fallback bool `json:"fallback"`
}

// PageResult is one page of enriched items plus the provider-reported
// total for the whole query.
type PageResult struct {
	Items      []EnrichedPullRequest `json:"items"`
	TotalCount int                   `json:"total_count"`
}

// BranchRecord is one repository branch.
type BranchRecord struct {
	Name      string `json:"name"`
	SHA       string `json:"sha"`
	Protected bool   `json:"protected"`
}

// BranchOutcome is the per-repository result of a fan-out branch
// creation. Status is one of "created", "exists", or "error".
type BranchOutcome struct {
	Repo   string `json:"repo"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OpenedPull is a pull request created through the write API.
type OpenedPull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// ActivityEvent is one timeline entry of a pull request, merged from
// comments, reviews, and commits.
type ActivityEvent struct {
	Type       string `json:"type"`
	Actor      string `json:"actor"`
	Title      string `json:"title"`
	OccurredAt string `json:"occurred_at"`
	SortMillis int64  `json:"-"`
}
