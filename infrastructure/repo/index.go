// Package repo provides the repository view the capabilities work from: an
// immutable index of the tree, a watcher that swaps in new snapshots, a
// cached line reader and Go source analysis.
package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Errors returned by the index.
var (
	ErrNotFound     = errors.New("path not found in repository")
	ErrEscapesRoot  = errors.New("path escapes repository root")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrIsDirectory  = errors.New("path is a directory")
)

// Node is one file or directory of the index.
type Node struct {
	// Path is slash-separated and relative to the root. The root is ".".
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size,omitempty"`
	ModTime  time.Time `json:"mod_time"`
	Children []*Node   `json:"children,omitempty"`
}

// IndexOptions configures Build.
type IndexOptions struct {
	// Ignore holds extra gitignore-style patterns.
	Ignore []string

	// NoGitignore disables .gitignore files.
	NoGitignore bool
}

// Index is an immutable snapshot of a repository tree.
type Index struct {
	root     string
	tree     *Node
	nodes    map[string]*Node
	revision string
	builtAt  time.Time
	files    int
}

// Build walks root and returns a snapshot. .git is always skipped.
func Build(ctx context.Context, root string, opts IndexOptions) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}

	matcher, err := newMatcher(abs, opts)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		root:    abs,
		nodes:   make(map[string]*Node),
		builtAt: time.Now(),
	}
	idx.tree = &Node{Path: ".", Name: filepath.Base(abs), IsDir: true, ModTime: info.ModTime()}
	idx.nodes["."] = idx.tree

	if err := idx.walk(ctx, idx.tree, nil, matcher); err != nil {
		return nil, err
	}
	idx.revision = revision(abs, idx)
	return idx, nil
}

func newMatcher(root string, opts IndexOptions) (gitignore.Matcher, error) {
	var patterns []gitignore.Pattern
	if !opts.NoGitignore {
		ps, err := gitignore.ReadPatterns(osfs.New(root), nil)
		if err != nil {
			return nil, fmt.Errorf("read gitignore: %w", err)
		}
		patterns = append(patterns, ps...)
	}
	for _, p := range opts.Ignore {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}

func (idx *Index) walk(ctx context.Context, dir *Node, parts []string, matcher gitignore.Matcher) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(filepath.Join(idx.root, filepath.FromSlash(dir.Path)))
	if err != nil {
		return fmt.Errorf("read %s: %w", dir.Path, err)
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		childParts := append(append([]string(nil), parts...), e.Name())
		if matcher.Match(childParts, e.IsDir()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		child := &Node{
			Path:    path.Join(childParts...),
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			ModTime: info.ModTime(),
		}
		if child.IsDir {
			if err := idx.walk(ctx, child, childParts, matcher); err != nil {
				return err
			}
		} else {
			child.Size = info.Size()
			idx.files++
		}
		dir.Children = append(dir.Children, child)
		idx.nodes[child.Path] = child
	}
	sort.Slice(dir.Children, func(i, j int) bool {
		return dir.Children[i].Name < dir.Children[j].Name
	})
	return nil
}

// revision is the HEAD commit when root is inside a git work tree, plus a
// digest of the indexed files so uncommitted edits change it too.
func revision(root string, idx *Index) string {
	h := sha256.New()
	paths := make([]string, 0, len(idx.nodes))
	for p := range idx.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		n := idx.nodes[p]
		h.Write([]byte(p))
		h.Write([]byte(strconv.FormatInt(n.Size, 10)))
		h.Write([]byte(strconv.FormatInt(n.ModTime.UnixNano(), 10)))
	}
	digest := hex.EncodeToString(h.Sum(nil))[:12]

	head := HeadRevision(root)
	if head == "" {
		return digest
	}
	return head + "+" + digest
}

// HeadRevision returns the HEAD commit hash of the repository containing
// dir, or "" when there is none.
func HeadRevision(dir string) string {
	r, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := r.Head()
	if err != nil {
		return ""
	}
	return ref.Hash().String()
}

// Root returns the absolute root directory.
func (idx *Index) Root() string {
	return idx.root
}

// Tree returns the root node.
func (idx *Index) Tree() *Node {
	return idx.tree
}

// Revision identifies the snapshot.
func (idx *Index) Revision() string {
	return idx.revision
}

// BuiltAt returns when the snapshot was taken.
func (idx *Index) BuiltAt() time.Time {
	return idx.builtAt
}

// FileCount returns the number of indexed files.
func (idx *Index) FileCount() int {
	return idx.files
}

// Clean normalizes a user supplied path to the index form. Absolute paths
// under the root are made relative; any other leading slash is dropped.
func (idx *Index) Clean(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == idx.root || strings.HasPrefix(p, idx.root+string(filepath.Separator)) {
		rel, err := filepath.Rel(idx.root, p)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p, ErrEscapesRoot)
		}
		p = rel
	}
	p = path.Clean(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		p = "."
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrEscapesRoot)
	}
	return p, nil
}

// Lookup resolves p to a node.
func (idx *Index) Lookup(p string) (*Node, error) {
	clean, err := idx.Clean(p)
	if err != nil {
		return nil, err
	}
	n, ok := idx.nodes[clean]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return n, nil
}

// Abs resolves p to an absolute path of an indexed file.
func (idx *Index) Abs(p string) (string, error) {
	n, err := idx.Lookup(p)
	if err != nil {
		return "", err
	}
	if n.IsDir {
		return "", fmt.Errorf("%s: %w", p, ErrIsDirectory)
	}
	return filepath.Join(idx.root, filepath.FromSlash(n.Path)), nil
}

// Files returns the paths of all indexed files in order.
func (idx *Index) Files() []string {
	out := make([]string, 0, idx.files)
	for p, n := range idx.nodes {
		if !n.IsDir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
