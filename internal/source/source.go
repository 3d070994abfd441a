package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/repoindex/internal/keypool"
)

// ErrNotFound is returned when a path does not exist in the repository
var ErrNotFound = errors.New("not found")

// Kinds of content provider
const (
	KindLocal  = "local"
	KindGitHub = "github"
)

// EntryType distinguishes files from directories in a listing
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// Entry is one item of a directory listing. Path is relative to the
// repository root and always uses forward slashes.
type Entry struct {
	Type EntryType `json:"type"`
	Path string    `json:"path"`
	Name string    `json:"name"`
	Size int64     `json:"size"`
}

// Provider gives read access to the content of one repository
type Provider interface {
	// List returns the entries of dir; "" is the repository root.
	List(ctx context.Context, dir string) ([]Entry, error)

	// Read returns the raw bytes of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// Resolver returns the Provider serving repoID
type Resolver func(repoID string) (Provider, error)

// Config selects and configures content providers
type Config struct {
	Kind string

	// LocalRoot, when set, is joined with the repository id to find a
	// local checkout. Otherwise the id itself is the directory.
	LocalRoot string

	GitHubBaseURL string
	Ref           string
	Timeout       time.Duration
	Tokens        *keypool.Pool
}

// NewResolver returns a Resolver for cfg.Kind
func NewResolver(cfg Config) (Resolver, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", KindLocal:
		return func(repoID string) (Provider, error) {
			return NewLocalFS(localDir(cfg.LocalRoot, repoID))
		}, nil
	case KindGitHub:
		return func(repoID string) (Provider, error) {
			return NewGitHub(repoID, GitHubOptions{
				BaseURL: cfg.GitHubBaseURL,
				Ref:     cfg.Ref,
				Timeout: cfg.Timeout,
				Tokens:  cfg.Tokens,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// Static returns a Resolver that always yields p
func Static(p Provider) Resolver {
	return func(string) (Provider, error) {
		return p, nil
	}
}
