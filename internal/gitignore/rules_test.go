package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestRules_BuiltinExclusions(t *testing.T) {
	// Given: rules without .gitignore support
	r, err := NewRules(t.TempDir(), RulesOptions{DataDir: ".amanidx"})
	require.NoError(t, err)

	// Then: VCS, own cache and credentials are excluded
	assert.True(t, r.Ignored(".git", true))
	assert.True(t, r.Ignored(".git/HEAD", false))
	assert.True(t, r.Ignored(".amanidx/index.db", false))
	assert.True(t, r.Ignored("web/node_modules/react/index.js", false))
	assert.True(t, r.Ignored("config/.env", false))
	assert.True(t, r.Ignored("certs/server.pem", false))
	assert.False(t, r.Ignored("main.go", false))
	assert.False(t, r.Ignored(".", true))
}

func TestRules_ExtraExcludes(t *testing.T) {
	r, err := NewRules(t.TempDir(), RulesOptions{Exclude: []string{"*.gen.go", "/fixtures/"}})
	require.NoError(t, err)

	assert.True(t, r.Ignored("pkg/api.gen.go", false))
	assert.True(t, r.Ignored("fixtures/a.txt", false))
	assert.False(t, r.Ignored("pkg/fixtures/a.txt", false))
}

func TestRules_NestedGitignore(t *testing.T) {
	// Given: a root .gitignore and a nested one
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "src/.gitignore", "generated/\n!important.log\n")

	r, err := NewRules(root, RulesOptions{RespectGitignore: true})
	require.NoError(t, err)

	// Then: root rules apply everywhere and nested rules apply below src
	assert.True(t, r.Ignored("app.log", false))
	assert.True(t, r.Ignored("src/generated/x.go", false))
	assert.False(t, r.Ignored("generated/x.go", false))
	assert.False(t, r.Ignored("src/important.log", false))
	assert.True(t, r.Ignored("lib/important.log", false))
}

func TestRules_GitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.txt\n")

	r, err := NewRules(root, RulesOptions{})
	require.NoError(t, err)

	assert.False(t, r.Ignored("notes.txt", false))
}

func TestRules_Invalidate(t *testing.T) {
	// Given: a cached root .gitignore
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "a.txt\n")
	r, err := NewRules(root, RulesOptions{RespectGitignore: true})
	require.NoError(t, err)
	require.True(t, r.Ignored("a.txt", false))

	// When: the file changes and the cache entry is dropped
	writeFile(t, root, ".gitignore", "b.txt\n")
	assert.True(t, r.Ignored("a.txt", false), "stale until invalidated")
	r.Invalidate("")

	// Then: the new rules apply
	assert.False(t, r.Ignored("a.txt", false))
	assert.True(t, r.Ignored("b.txt", false))
}
