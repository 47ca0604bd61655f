// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// We use GitHub OAuth as the identity provider, so the primary external
// identifier is the GitHub user ID (an integer). We still generate our own
// internal string ID (xid) for consistency with SavedGraph and to avoid tying
// our primary keys to a third-party's numbering scheme.
//
// QUOTA FIELDS:
// DailySearches counts the upstream fetches this user has triggered today.
// LastSearchReset records when the counter was last zeroed. Both are mutated
// only by the quota tracker. The reset is lazy — it happens on the first
// request of a new calendar day, not on a schedule, so the stored pair may
// describe "yesterday" until the user shows up again.
type User struct {
	ID              string    `json:"id"              db:"id"`
	GitHubID        int64     `json:"githubId"        db:"github_id"` // GitHub's numeric user ID
	Login           string    `json:"login"           db:"login"`     // GitHub username, e.g. "sakif"
	Email           string    `json:"email"           db:"email"`     // Primary public email (may be empty)
	AvatarURL       string    `json:"avatarUrl"       db:"avatar_url"`
	DailySearches   int       `json:"dailySearches"   db:"daily_searches"`
	LastSearchReset time.Time `json:"lastSearchReset" db:"last_search_reset"`
	CreatedAt       time.Time `json:"createdAt"       db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt"       db:"updated_at"`
}
