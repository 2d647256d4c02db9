package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanidx/internal/gitignore"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{OpGitignoreChange, "GITIGNORE_CHANGE"},
		{OpConfigChange, "CONFIG_CHANGE"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: zero options
	// When: defaults are applied
	opts := Options{}.WithDefaults()

	// Then: poll interval and buffer are set
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.EventBufferSize)

	// And: explicit values survive
	custom := Options{PollInterval: time.Second, EventBufferSize: 5}.WithDefaults()
	assert.Equal(t, time.Second, custom.PollInterval)
	assert.Equal(t, 5, custom.EventBufferSize)
}

func TestSpecialFiles(t *testing.T) {
	assert.True(t, isConfigFile(".amanidx.yaml"))
	assert.True(t, isConfigFile("sub/.amanidx.yml"))
	assert.False(t, isConfigFile("amanidx.yaml"))
	assert.True(t, isGitignoreFile("pkg/.gitignore"))
	assert.False(t, isGitignoreFile("gitignore"))
}

func TestRuleFilter_Ignored(t *testing.T) {
	// Given: rules with the data dir and an extra exclusion
	root := t.TempDir()
	rules, err := gitignore.NewRules(root, gitignore.RulesOptions{
		DataDir: ".amanidx",
		Exclude: []string{"*.log"},
	})
	assert.NoError(t, err)
	f := ruleFilter{rules: rules}

	// Then: built-ins, data dir and excludes are filtered
	assert.True(t, f.ignored(".", true))
	assert.True(t, f.ignored(".git", true))
	assert.True(t, f.ignored(".git/HEAD", false))
	assert.True(t, f.ignored(".amanidx", true))
	assert.True(t, f.ignored("debug.log", false))
	assert.False(t, f.ignored("main.go", false))
	assert.False(t, f.ignored(".github/workflows/ci.yml", false))

	// And: a nil rule set only drops the VCS directory
	bare := ruleFilter{}
	assert.True(t, bare.ignored(".git/config", false))
	assert.False(t, bare.ignored("debug.log", false))
}
