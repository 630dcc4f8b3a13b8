package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/groblegark/tempo/internal/jira"
)

// issueCache holds the assigned-issue list between exports so every batch
// does not hit the tracker's search API.
type issueCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	issues   []jira.AssignedIssue
	cachedAt time.Time
}

func newIssueCache(ttl time.Duration, now func() time.Time) *issueCache {
	return &issueCache{ttl: ttl, now: now}
}

// get returns the cached list, refreshing through fetch when the entry is
// missing or older than the TTL. A failed refresh leaves any stale entry
// in place and returns the error.
func (c *issueCache) get(ctx context.Context, fetch func(context.Context) ([]jira.AssignedIssue, error)) ([]jira.AssignedIssue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cachedAt.IsZero() && c.now().Sub(c.cachedAt) < c.ttl {
		return c.issues, nil
	}
	issues, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.issues = issues
	c.cachedAt = c.now()
	return issues, nil
}

// invalidate drops the cached entry so the next get refetches.
func (c *issueCache) invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.issues = nil
	c.mu.Unlock()
}
