package spaserve

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by `Resolver.Resolve` when no file under the
	// static root satisfies the request path.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned by `Resolver.Resolve` when the request path
	// tries to escape the static root.
	ErrForbidden = errors.New("forbidden path")
)

// Resolved is the outcome of a successful `Resolver.Resolve` call.
type Resolved struct {
	// Name is the absolute file name on disk.
	Name string
	// Info is the file information of Name, always a regular file.
	Info fs.FileInfo
	// Index reports whether the file is the index document of
	// a requested directory.
	Index bool
}

// Resolver maps request paths to files under a static root directory.
// It is immutable and safe for concurrent use.
type Resolver struct {
	root      string
	indexName string
	deny      []string
}

// NewResolver returns a Resolver which serves files from "root".
// The root is made absolute once, here, and never changes afterwards.
// The root is not required to exist yet.
func NewResolver(root string, options ResolverOptions) (*Resolver, error) {
	if root == "" {
		return nil, errors.New("empty static root")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compute absolute static root")
	}

	indexName := options.IndexName
	if indexName == "" {
		indexName = DefaultIndexName
	}
	if err := ValidateIndexName(indexName); err != nil {
		return nil, err
	}

	for _, pattern := range options.Deny {
		if err := ValidateDenyPattern(pattern); err != nil {
			return nil, err
		}
	}

	return &Resolver{
		root:      abs,
		indexName: indexName,
		deny:      append([]string(nil), options.Deny...),
	}, nil
}

// ValidateIndexName reports an error if "name" cannot be used
// as an index document name.
func ValidateIndexName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid index name: %q", name)
	}

	return nil
}

// ValidateDenyPattern reports an error if "pattern" is not a valid doublestar pattern.
func ValidateDenyPattern(pattern string) error {
	if pattern == "" {
		return errors.New("empty deny pattern")
	}

	// Match against a non-empty path, otherwise bad patterns go unnoticed.
	if _, err := doublestar.Match(pattern, "a"); err != nil {
		return errors.Wrapf(err, "invalid deny pattern %q", pattern)
	}

	return nil
}

// Root returns the absolute static root.
func (r *Resolver) Root() string {
	return r.root
}

// Index returns the absolute file name of the root's index document.
func (r *Resolver) Index() string {
	return filepath.Join(r.root, r.indexName)
}

// Resolve returns the file that satisfies the request path "name".
// Directories resolve to their index document, if present.
//
// It returns ErrForbidden for paths escaping the root and
// ErrNotFound when nothing matches. Any other error is a filesystem
// failure (e.g. permission denied) and must not be treated as not found.
func (r *Resolver) Resolve(name string) (*Resolved, error) {
	name, err := r.clean(name)
	if err != nil {
		return nil, err
	}

	if name == "/" {
		return r.stat(r.Index(), "/"+r.indexName, true)
	}

	filename := filepath.Join(r.root, filepath.FromSlash(name))
	info, err := os.Stat(filename)
	if err != nil {
		return nil, notFoundOr(err, name)
	}

	if !info.IsDir() {
		return r.file(filename, name, info, false)
	}

	return r.stat(filepath.Join(filename, r.indexName), path.Join(name, r.indexName), true)
}

// clean rejects request paths which could escape the root
// and returns the rooted, slash-separated form of the rest.
func (r *Resolver) clean(name string) (string, error) {
	if strings.IndexByte(name, 0) != -1 {
		return "", ErrForbidden
	}

	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return "", ErrForbidden
	}

	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return "", ErrForbidden
		}
	}

	return path.Clean(prefix(name, "/")), nil
}

func (r *Resolver) stat(filename, name string, index bool) (*Resolved, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, notFoundOr(err, name)
	}

	return r.file(filename, name, info, index)
}

func (r *Resolver) file(filename, name string, info fs.FileInfo, index bool) (*Resolved, error) {
	if !info.Mode().IsRegular() || r.denied(name) {
		return nil, ErrNotFound
	}

	return &Resolved{Name: filename, Info: info, Index: index}, nil
}

// denied reports whether the root-relative path of "name" or any of its
// parent directories matches a deny pattern. The contents of a denied
// directory are denied too.
func (r *Resolver) denied(name string) bool {
	if len(r.deny) == 0 {
		return false
	}

	rel := strings.TrimPrefix(name, "/")
	for i := 0; i <= len(rel); i++ {
		if i < len(rel) && rel[i] != '/' {
			continue
		}

		for _, pattern := range r.deny {
			// Patterns were validated by NewResolver.
			if ok, _ := doublestar.Match(pattern, rel[:i]); ok {
				return true
			}
		}
	}

	return false
}

// notFoundOr converts missing-entry errors to ErrNotFound
// and wraps everything else.
func notFoundOr(err error, name string) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return ErrNotFound
	}

	return errors.Wrapf(err, "unable to stat %s", name)
}
