// Package source provides read access to repository content.
//
// A Provider lists directories and reads files of one repository. LocalFS
// serves a checkout on disk and hides paths matched by its root .gitignore;
// GitHub serves a hosted repository through the contents API, drawing its
// bearer tokens from a keypool so a rate limited token cools down while the
// others keep working.
//
// Paths are always relative to the repository root and use forward slashes.
// A missing path is reported as ErrNotFound.
package source
