package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/internal/keypool"
)

const (
	DefaultGitHubBaseURL = "https://api.github.com"
	DefaultTimeout       = 30 * time.Second

	githubAccept    = "application/vnd.github+json"
	githubUserAgent = "repoindex"
)

// GitHubOptions configures a GitHub provider
type GitHubOptions struct {
	BaseURL string
	Ref     string
	Timeout time.Duration

	// Tokens is optional; anonymous requests are made when it is nil or empty.
	Tokens *keypool.Pool
}

// GitHub serves a repository through the GitHub contents API
type GitHub struct {
	repo       string
	baseURL    string
	ref        string
	tokens     *keypool.Pool
	httpClient *http.Client
}

// contentItem is one element of a contents API response
type contentItem struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// NewGitHub creates a provider for repo, given as "owner/name"
func NewGitHub(repo string, opts GitHubOptions) (*GitHub, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid github repository %q, want owner/name", repo)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultGitHubBaseURL
	}

	return &GitHub{
		repo:       repo,
		baseURL:    strings.TrimRight(baseURL, "/"),
		ref:        opts.Ref,
		tokens:     opts.Tokens,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *GitHub) List(ctx context.Context, dir string) ([]Entry, error) {
	body, err := g.get(ctx, dir)
	if err != nil {
		return nil, err
	}

	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%s is not a directory: %w", dir, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		var typ EntryType
		switch it.Type {
		case "file":
			typ = TypeFile
		case "dir":
			typ = TypeDir
		default:
			// symlinks and submodules are not followed
			continue
		}
		entries = append(entries, Entry{Type: typ, Path: it.Path, Name: it.Name, Size: it.Size})
	}
	return entries, nil
}

func (g *GitHub) Read(ctx context.Context, path string) ([]byte, error) {
	body, err := g.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var item contentItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("%s is not a file: %w", path, err)
	}
	if item.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", path, item.Type)
	}
	if item.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q for %s", item.Encoding, path)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(item.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return data, nil
}

// get fetches repos/{repo}/contents/{path}
func (g *GitHub) get(ctx context.Context, p string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(p), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", githubAccept)
	req.Header.Set("User-Agent", githubUserAgent)

	token, ok := "", false
	if g.tokens != nil {
		token, ok = g.tokens.Next()
	}
	if ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read github response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, g.repo, p)
	case ok && (resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")):
		g.tokens.ReportRateLimit(token)
		log.WithFields(log.Fields{
			"repo":  g.repo,
			"token": keypool.Mask(token),
		}).Warn("github rate limit reached")
		return nil, errors.New("github rate limit exceeded")
	default:
		return nil, fmt.Errorf("github api error %d: %s", resp.StatusCode, truncate(body, 200))
	}
}

func (g *GitHub) contentsURL(p string) string {
	segments := strings.Split(cleanRel(p), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	u := g.baseURL + "/repos/" + g.repo + "/contents/" + strings.Join(segments, "/")
	if g.ref != "" {
		u += "?ref=" + url.QueryEscape(g.ref)
	}
	return u
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
