package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// ErrNoTags is returned when a repository has no tags.
var ErrNoTags = errors.New("no tags")

// Source lists upstream tags and commits for a repository.
type Source interface {
	Tags(ctx context.Context, owner, repo string) ([]string, error)
	LatestCommit(ctx context.Context, owner, repo string) (string, error)
}

// GitHub is a Source backed by the GitHub REST API.
type GitHub struct {
	BaseURL   string
	Token     string
	UserAgent string
	Client    *http.Client
}

// NewGitHub returns a GitHub source. token may be empty for anonymous access.
func NewGitHub(token string) *GitHub {
	return &GitHub{
		BaseURL:   DefaultGitHubAPI,
		Token:     strings.TrimSpace(token),
		UserAgent: "geobuild",
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type githubTag struct {
	Name string `json:"name"`
}

type githubCommit struct {
	SHA string `json:"sha"`
}

// Tags returns the repository's tag names, newest first as GitHub orders them.
func (g *GitHub) Tags(ctx context.Context, owner, repo string) ([]string, error) {
	var tags []githubTag
	if err := g.get(ctx, g.endpoint(owner, repo, "tags", 100), &tags); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", owner, repo, ErrNoTags)
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names, nil
}

// LatestCommit returns the head commit of the default branch.
func (g *GitHub) LatestCommit(ctx context.Context, owner, repo string) (string, error) {
	var commits []githubCommit
	if err := g.get(ctx, g.endpoint(owner, repo, "commits", 1), &commits); err != nil {
		return "", err
	}
	if len(commits) == 0 || commits[0].SHA == "" {
		return "", fmt.Errorf("%s/%s: no commits", owner, repo)
	}
	return commits[0].SHA, nil
}

func (g *GitHub) endpoint(owner, repo, what string, perPage int) string {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultGitHubAPI
	}
	return fmt.Sprintf("%s/repos/%s/%s/%s?per_page=%d", base, url.PathEscape(owner), url.PathEscape(repo), what, perPage)
}

func (g *GitHub) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request for %s failed: %s", endpoint, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
