package model

import "time"

// ForkSummary describes one fork of a repository as reported by GitHub.
// The upstream query asks for forks ordered by star count descending, so a
// slice of these preserves that ordering — we never re-sort.
type ForkSummary struct {
	FullName       string    `json:"fullName"`  // "owner/repo" of the fork
	StarCount      int       `json:"starCount"` // non-negative
	LastPushedAt   time.Time `json:"lastPushedAt"`
	URL            string    `json:"url"`
	OwnerAvatarURL string    `json:"ownerAvatarUrl"`
}

// ForkReport is the normalized result of one upstream fork query.
//
// ForkCount is the repository's total fork count, which usually exceeds
// len(Forks) — the list is bounded by the configured fetch limit.
type ForkReport struct {
	ForkCount int           `json:"forkCount"`
	Forks     []ForkSummary `json:"forks"`
}

// ActiveCount returns how many forks were pushed within thresholdDays of now.
// The boundary is strict: a fork pushed exactly thresholdDays ago is inactive.
func (r *ForkReport) ActiveCount(now time.Time, thresholdDays int) int {
	cutoff := now.AddDate(0, 0, -thresholdDays)
	n := 0
	for _, f := range r.Forks {
		if f.LastPushedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// SavedGraph is a persisted, timestamped snapshot of a ForkReport for one
// (user, repository) pair. A user owns at most a fixed number of these, and
// at most one per repository — (UserID, RepoOwner, RepoName) is the natural
// key. UpdatedAt is the freshness marker consulted by the read path.
type SavedGraph struct {
	ID          string      `json:"id"          db:"id"`
	UserID      string      `json:"userId"      db:"user_id"`
	RepoOwner   string      `json:"repoOwner"   db:"repo_owner"`
	RepoName    string      `json:"repoName"    db:"repo_name"`
	ForkCount   int         `json:"forkCount"   db:"fork_count"`
	ActiveCount int         `json:"activeCount" db:"active_count"`
	Payload     *ForkReport `json:"payload"     db:"payload"` // stored verbatim for replay without re-fetching
	CreatedAt   time.Time   `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt"   db:"updated_at"`
}
