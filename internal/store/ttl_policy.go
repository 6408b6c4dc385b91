package store

import (
	"strings"
	"sync"
	"time"
)

// Category classifies a request URL for TTL resolution.
type Category string

const (
	CategoryDefault      Category = "default"
	CategoryRepoMetadata Category = "repo_metadata"
	CategoryCommitList   Category = "commit_list"
	CategoryBranchList   Category = "branch_list"
)

// Categories lists the supported TTL categories.
var Categories = []Category{CategoryDefault, CategoryRepoMetadata, CategoryCommitList, CategoryBranchList}

// TTLPolicy resolves a time-to-live per request URL. Branch-list and
// commit-list shapes take precedence over the generic repo-metadata
// shape, which must reference a repository resource while excluding
// pull-request, issue, and search endpoints.
type TTLPolicy struct {
	mu   sync.RWMutex
	ttls map[Category]time.Duration
}

// NewTTLPolicy creates a policy with the given per-category TTLs.
// Missing categories fall back to the default TTL; a missing default
// falls back to five minutes.
func NewTTLPolicy(ttls map[Category]time.Duration) *TTLPolicy {
	p := &TTLPolicy{ttls: make(map[Category]time.Duration)}
	for _, cat := range Categories {
		if d, ok := ttls[cat]; ok && d > 0 {
			p.ttls[cat] = d
		}
	}
	if _, ok := p.ttls[CategoryDefault]; !ok {
		p.ttls[CategoryDefault] = 5 * time.Minute
	}
	return p
}

// Categorize maps a URL to its TTL category.
func (p *TTLPolicy) Categorize(url string) Category {
	switch {
	case strings.Contains(url, "/branches"):
		return CategoryBranchList
	case strings.Contains(url, "/commits"):
		return CategoryCommitList
	case strings.Contains(url, "/repos/") &&
		!strings.Contains(url, "/pulls") &&
		!strings.Contains(url, "/issues") &&
		!strings.Contains(url, "/search"):
		return CategoryRepoMetadata
	default:
		return CategoryDefault
	}
}

// For returns the TTL applying to the given URL.
func (p *TTLPolicy) For(url string) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.ttls[p.Categorize(url)]; ok {
		return d
	}
	return p.ttls[CategoryDefault]
}

// Set overrides one category's TTL at runtime. Non-positive durations
// are ignored.
func (p *TTLPolicy) Set(cat Category, d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ttls[cat] = d
}

// Get returns the configured TTL for a category.
func (p *TTLPolicy) Get(cat Category) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d, ok := p.ttls[cat]; ok {
		return d
	}
	return p.ttls[CategoryDefault]
}

// ParseCategory validates a category name from the admin API.
func ParseCategory(s string) (Category, bool) {
	for _, cat := range Categories {
		if string(cat) == s {
			return cat, true
		}
	}
	return "", false
}
