// Package github is the upstream fork fetcher: one GraphQL query per call,
// returning a normalized ForkReport.
//
// This package is deliberately dumb. No caching, no quota, no state — it is
// safe to call concurrently and repeatedly, and every decision about whether
// to call it at all belongs to the service layer. The only policies it owns
// are the fetch limit (how many forks one query asks for) and the request
// timeout.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/forklens/internal/apperror"
	"github.com/sakif/forklens/internal/model"
)

const defaultEndpoint = "https://api.github.com/graphql"

// forkQuery asks for the repository's total fork count plus the top N forks
// by star count, each with the fields the visualization needs. The ordering
// clause is the only sort in the system — the provider's order is preserved
// end to end.
const forkQuery = `
query ($owner: String!, $name: String!, $first: Int!) {
  repository(owner: $owner, name: $name) {
    forkCount
    forks(first: $first, orderBy: {field: STARGAZERS, direction: DESC}) {
      nodes {
        nameWithOwner
        stargazerCount
        pushedAt
        url
        owner { avatarUrl }
      }
    }
  }
}`

// Client talks to the GitHub GraphQL API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	fetchLimit int
	logger     *slog.Logger
}

// New creates a Client authenticated with a personal access token.
//
// oauth2.NewClient gives us an *http.Client that injects the Authorization
// header on every request; we then bound it with the fetch timeout so a hung
// upstream call surfaces as an error instead of pinning the request forever.
func New(token string, fetchLimit int, timeout time.Duration, logger *slog.Logger) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		endpoint:   defaultEndpoint,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// graphQLRequest is the JSON body of a GraphQL POST.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphQLResponse is the portion of the response we care about. GitHub
// returns HTTP 200 with an "errors" array for NOT_FOUND and most other
// query-level failures, so both fields must be inspected.
type graphQLResponse struct {
	Data struct {
		Repository *struct {
			ForkCount int `json:"forkCount"`
			Forks     struct {
				Nodes []struct {
					NameWithOwner  string    `json:"nameWithOwner"`
					StargazerCount int       `json:"stargazerCount"`
					PushedAt       time.Time `json:"pushedAt"`
					URL            string    `json:"url"`
					Owner          struct {
						AvatarURL string `json:"avatarUrl"`
					} `json:"owner"`
				} `json:"nodes"`
			} `json:"forks"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// upstreamFailure is the one message users see for any fetch failure. The
// causes (not found, rate limited, transport error) are logged but not
// distinguished to the caller — simplicity over precision.
const upstreamFailure = "repo not found or API limit reached"

// FetchForks runs one fork query for owner/name.
//
// Output on success: a ForkReport whose Forks list is ordered by star count
// descending and bounded by the configured fetch limit. All-or-nothing — a
// partially decoded response is a failure, never a short list.
//
// Every failure comes back as apperror.ErrUpstream; nothing is retried here.
func (c *Client) FetchForks(ctx context.Context, owner, name string) (*model.ForkReport, error) {
	if owner == "" || name == "" {
		return nil, apperror.ValidationFailed("repo", "owner and repository name are required")
	}

	body, err := json.Marshal(graphQLRequest{
		Query: forkQuery,
		Variables: map[string]any{
			"owner": owner,
			"name":  name,
			"first": c.fetchLimit,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("github: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("github: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Covers DNS failures, connection resets, and the client timeout.
		c.logger.Warn("github fetch failed",
			slog.String("repo", owner+"/"+name),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream(upstreamFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("github returned non-200",
			slog.String("repo", owner+"/"+name),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apperror.Upstream(upstreamFailure)
	}

	var gql graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return nil, apperror.Upstream(upstreamFailure)
	}

	if len(gql.Errors) > 0 || gql.Data.Repository == nil {
		// NOT_FOUND and RATE_LIMITED both land here.
		errType := ""
		if len(gql.Errors) > 0 {
			errType = gql.Errors[0].Type
		}
		c.logger.Info("github query error",
			slog.String("repo", owner+"/"+name),
			slog.String("type", errType),
		)
		return nil, apperror.Upstream(upstreamFailure)
	}

	repo := gql.Data.Repository
	report := &model.ForkReport{
		ForkCount: repo.ForkCount,
		Forks:     make([]model.ForkSummary, 0, len(repo.Forks.Nodes)),
	}
	for _, node := range repo.Forks.Nodes {
		report.Forks = append(report.Forks, model.ForkSummary{
			FullName:       node.NameWithOwner,
			StarCount:      node.StargazerCount,
			LastPushedAt:   node.PushedAt,
			URL:            node.URL,
			OwnerAvatarURL: node.Owner.AvatarURL,
		})
	}

	return report, nil
}
