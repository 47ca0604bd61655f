package github

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sakif/forklens/internal/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestClient points a Client at a stub GraphQL server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("test-token", 20, 5*time.Second, testLogger())
	c.endpoint = srv.URL
	return c
}

const successBody = `{
	"data": {
		"repository": {
			"forkCount": 340,
			"forks": {
				"nodes": [
					{
						"nameWithOwner": "alice/react",
						"stargazerCount": 90,
						"pushedAt": "2026-03-01T10:00:00Z",
						"url": "https://github.com/alice/react",
						"owner": {"avatarUrl": "https://avatars.githubusercontent.com/u/1"}
					},
					{
						"nameWithOwner": "bob/react",
						"stargazerCount": 12,
						"pushedAt": "2025-01-01T00:00:00Z",
						"url": "https://github.com/bob/react",
						"owner": {"avatarUrl": "https://avatars.githubusercontent.com/u/2"}
					}
				]
			}
		}
	}
}`

func TestFetchForks_Success(t *testing.T) {
	var gotVars map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		gotVars = req.Variables
		w.Write([]byte(successBody))
	})

	report, err := c.FetchForks(context.Background(), "facebook", "react")
	if err != nil {
		t.Fatalf("FetchForks() error = %v", err)
	}

	if report.ForkCount != 340 {
		t.Errorf("ForkCount = %d, want 340", report.ForkCount)
	}
	if len(report.Forks) != 2 {
		t.Fatalf("len(Forks) = %d, want 2", len(report.Forks))
	}

	// Provider order (stars descending) must be preserved.
	if report.Forks[0].FullName != "alice/react" || report.Forks[1].FullName != "bob/react" {
		t.Errorf("fork order = [%s, %s], want [alice/react, bob/react]",
			report.Forks[0].FullName, report.Forks[1].FullName)
	}
	if report.Forks[0].StarCount != 90 {
		t.Errorf("Forks[0].StarCount = %d, want 90", report.Forks[0].StarCount)
	}
	if report.Forks[0].OwnerAvatarURL != "https://avatars.githubusercontent.com/u/1" {
		t.Errorf("Forks[0].OwnerAvatarURL = %q", report.Forks[0].OwnerAvatarURL)
	}

	if gotVars["owner"] != "facebook" || gotVars["name"] != "react" {
		t.Errorf("query variables = %v, want owner=facebook name=react", gotVars)
	}
	if first, ok := gotVars["first"].(float64); !ok || int(first) != 20 {
		t.Errorf("query variable first = %v, want 20", gotVars["first"])
	}
}

// GitHub reports NOT_FOUND as HTTP 200 with an errors array.
func TestFetchForks_RepoNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"repository": null}, "errors": [{"type": "NOT_FOUND", "message": "Could not resolve"}]}`))
	})

	_, err := c.FetchForks(context.Background(), "nobody", "nothing")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("FetchForks() error = %v, want ErrUpstream", err)
	}
	if err.Error() != "repo not found or API limit reached" {
		t.Errorf("error message = %q, want the single upstream-failure message", err.Error())
	}
}

func TestFetchForks_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors": [{"type": "RATE_LIMITED", "message": "API rate limit exceeded"}]}`))
	})

	_, err := c.FetchForks(context.Background(), "facebook", "react")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("FetchForks() error = %v, want ErrUpstream", err)
	}
}

func TestFetchForks_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchForks(context.Background(), "facebook", "react")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("FetchForks() error = %v, want ErrUpstream", err)
	}
}

func TestFetchForks_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {`))
	})

	_, err := c.FetchForks(context.Background(), "facebook", "react")
	if !errors.Is(err, apperror.ErrUpstream) {
		t.Fatalf("FetchForks() error = %v, want ErrUpstream", err)
	}
}

func TestFetchForks_EmptyArgs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called for invalid input")
	})

	_, err := c.FetchForks(context.Background(), "", "react")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("FetchForks() error = %v, want ErrValidation", err)
	}
}
