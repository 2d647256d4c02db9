package gitignore

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// matcherCacheSize bounds the per-directory .gitignore cache.
const matcherCacheSize = 1000

// BuiltinDirs are never indexed or watched.
var BuiltinDirs = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"dist/",
	"build/",
	".idea/",
	".vscode/",
	".ssh/",
	".aws/",
}

// BuiltinFiles are lock files, minified bundles and credentials.
var BuiltinFiles = []string{
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	".DS_Store",
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// RulesOptions configures NewRules.
type RulesOptions struct {
	// DataDir is the engine's own cache directory name, e.g. ".amanidx".
	DataDir string
	// Exclude holds extra gitignore-syntax patterns from configuration.
	Exclude []string
	// RespectGitignore loads .gitignore files under the root.
	RespectGitignore bool
}

// Rules is the complete ignore policy for one root directory.
type Rules struct {
	root     string
	builtin  *Matcher
	useFiles bool
	cache    *lru.Cache[string, *Matcher]
}

// NewRules builds the policy for root.
func NewRules(root string, opts RulesOptions) (*Rules, error) {
	cache, err := lru.New[string, *Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}

	builtin := NewFromPatterns(BuiltinDirs...)
	for _, p := range BuiltinFiles {
		builtin.AddPattern(p)
	}
	if opts.DataDir != "" {
		builtin.AddPattern(strings.Trim(opts.DataDir, "/") + "/")
	}
	for _, p := range opts.Exclude {
		builtin.AddPattern(p)
	}

	return &Rules{
		root:     root,
		builtin:  builtin,
		useFiles: opts.RespectGitignore,
		cache:    cache,
	}, nil
}

// Root returns the directory the rules were built for.
func (r *Rules) Root() string { return r.root }

// Ignored reports whether the root-relative path rel should be skipped.
func (r *Rules) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	if !r.useFiles {
		return MatchAll(rel, isDir, r.builtin)
	}

	matchers := []*Matcher{r.builtin, r.dirMatcher("")}
	dir := path.Dir(rel)
	if dir != "." {
		parts := strings.Split(dir, "/")
		for i := range parts {
			matchers = append(matchers, r.dirMatcher(strings.Join(parts[:i+1], "/")))
		}
	}
	return MatchAll(rel, isDir, matchers...)
}

// Invalidate drops the cached .gitignore of dir (root-relative, "" for the
// root) so the next lookup rereads it.
func (r *Rules) Invalidate(dir string) {
	r.cache.Remove(strings.Trim(filepath.ToSlash(dir), "/"))
}

// dirMatcher returns nil when dir has no .gitignore. Misses are cached too.
func (r *Rules) dirMatcher(dir string) *Matcher {
	if m, ok := r.cache.Get(dir); ok {
		return m
	}

	var m *Matcher
	file := filepath.Join(r.root, filepath.FromSlash(dir), ".gitignore")
	if _, err := os.Stat(file); err == nil {
		m = New()
		if err := m.AddFromFile(file, dir); err != nil {
			m = nil
		}
	}
	r.cache.Add(dir, m)
	return m
}
