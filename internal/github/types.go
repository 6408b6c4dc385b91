package github

import "github.com/devrev/prboard/internal/model"

// SearchResult is one page of the issue/PR search endpoint.
type SearchResult struct {
	TotalCount int                    `json:"total_count"`
	Items      []model.RawPullRequest `json:"items"`
}

// BranchRef is one side of a pull request's branch pair.
type BranchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullDetail is the full pull-request record; only consumed fields are
// mirrored.
type PullDetail struct {
	Number         int         `json:"number"`
	State          string      `json:"state"`
	Head           BranchRef   `json:"head"`
	Base           BranchRef   `json:"base"`
	Mergeable      *bool       `json:"mergeable"`
	MergeableState string      `json:"mergeable_state"`
	User           model.Actor `json:"user"`
	UpdatedAt      string      `json:"updated_at"`
}

// Review is one entry of a pull request's review list.
type Review struct {
	User        model.Actor `json:"user"`
	State       string      `json:"state"`
	CommitID    string      `json:"commit_id"`
	SubmittedAt string      `json:"submitted_at"`
}

// Comment is one issue comment.
type Comment struct {
	User      model.Actor `json:"user"`
	Body      string      `json:"body"`
	CreatedAt string      `json:"created_at"`
}

// Repo is one organization repository.
type Repo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	Archived bool   `json:"archived"`
	PushedAt string `json:"pushed_at"`
}

// gitRef is the git-refs endpoint's view of a single reference.
type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// CreatedPull identifies a pull request opened through the API.
type CreatedPull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// Branch is one repository branch as listed by the provider.
type Branch struct {
	Name      string `json:"name"`
	Commit    struct {
		SHA string `json:"sha"`
	} `json:"commit"`
	Protected bool `json:"protected"`
}

// Commit is one commit of a pull request.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *model.Actor `json:"author"`
}
