package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// LocalFS serves a repository checked out on the local filesystem.
// Entries matched by the root .gitignore are hidden from List.
type LocalFS struct {
	root   string
	ignore *gitignore.GitIgnore
}

// NewLocalFS creates a provider rooted at root
func NewLocalFS(root string) (*LocalFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	l := &LocalFS{root: abs}

	ignoreFile := filepath.Join(abs, ".gitignore")
	if _, err := os.Stat(ignoreFile); err == nil {
		l.ignore, err = gitignore.CompileIgnoreFile(ignoreFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse .gitignore: %w", err)
		}
	}
	return l, nil
}

// Root returns the absolute repository directory
func (l *LocalFS) Root() string {
	return l.root
}

// Ignored reports whether the slash-separated relative path is excluded by .gitignore
func (l *LocalFS) Ignored(rel string, isDir bool) bool {
	if l.ignore == nil {
		return false
	}
	if l.ignore.MatchesPath(rel) {
		return true
	}
	return isDir && l.ignore.MatchesPath(rel+"/")
}

// Rel converts an absolute path inside the repository to the slash-separated
// form used by Entry.Path
func (l *LocalFS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", abs, l.root)
	}
	return rel, nil
}

func (l *LocalFS) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}

	items, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		rel := item.Name()
		if clean := cleanRel(dir); clean != "" {
			rel = path.Join(clean, item.Name())
		}
		if l.Ignored(rel, item.IsDir()) {
			continue
		}

		switch {
		case item.IsDir():
			entries = append(entries, Entry{Type: TypeDir, Path: rel, Name: item.Name()})
		case item.Type().IsRegular():
			info, err := item.Info()
			if err != nil {
				continue
			}
			entries = append(entries, Entry{Type: TypeFile, Path: rel, Name: item.Name(), Size: info.Size()})
		}
	}
	return entries, nil
}

func (l *LocalFS) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	return data, nil
}

// resolve maps a repository path to a filesystem path under the root
func (l *LocalFS) resolve(p string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(cleanRel(p)))
	if _, err := l.Rel(full); err != nil {
		return "", err
	}
	return full, nil
}

// cleanRel cleans p against a virtual root, so ".." never climbs above it
func cleanRel(p string) string {
	c := path.Clean("/" + filepath.ToSlash(p))
	return strings.TrimPrefix(c, "/")
}

func localDir(root, repoID string) string {
	if root == "" {
		return repoID
	}
	return filepath.Join(root, filepath.FromSlash(repoID))
}
