// Package ignore loads gitignore-style exclusion files.
package ignore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the exclusion file looked up in data directories.
const FileName = ".mindgraphignore"

// Matcher reports whether a path relative to its root is excluded. A nil
// Matcher excludes nothing.
type Matcher struct {
	root    string
	matcher gitignore.Matcher
}

// Load reads FileName from root. A missing file yields a nil Matcher.
func Load(root string) (*Matcher, error) {
	content, err := os.ReadFile(filepath.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(root, string(content)), nil
}

// Parse builds a Matcher from gitignore-syntax content.
func Parse(root, content string) *Matcher {
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return &Matcher{root: root, matcher: gitignore.NewMatcher(patterns)}
}

// Match reports whether path is excluded. Absolute paths are made relative to
// the matcher root; paths outside the root are never excluded.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel := path
	if filepath.IsAbs(path) {
		var err error
		rel, err = filepath.Rel(m.root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return false
		}
	}
	return m.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
