package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexModel_ShowsPipeline(t *testing.T) {
	// Given: a model in the build stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageBuilding, 10)
	tracker.Update(4, 0, "pkg/server.go")
	m := newIndexModel(tracker, "/src/app")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: every stage, the header, the count and the file are shown
	for _, name := range []string{"Scan", "Detect", "Build", "Embed", "Save"} {
		assert.Contains(t, view, name)
	}
	assert.Contains(t, view, "amanidx • /src/app")
	assert.Contains(t, view, "4 / 10")
	assert.Contains(t, view, "pkg/server.go")
	assert.Contains(t, view, "q to quit")
}

func TestIndexModel_UnknownTotal(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Update(12, 0, "")
	m := newIndexModel(tracker, "")

	assert.Contains(t, m.View(), "(12)")
}

func TestIndexModel_Complete(t *testing.T) {
	// Given: a running model
	m := newIndexModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	// When: the completion message arrives
	_, cmd := m.Update(completeMsg(CompletionStats{Files: 3, Indexed: 3, Documents: 3, Terms: 9, Warnings: 1}))

	// Then: the model quits and shows the summary
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Indexing complete")
	assert.Contains(t, view, "Terms:")
	assert.Contains(t, view, "1 warnings")
}

func TestIndexModel_CompleteCacheHit(t *testing.T) {
	m := newIndexModel(NewProgressTracker(), "")
	m.Update(completeMsg(CompletionStats{Files: 3, CacheHit: true}))

	assert.Contains(t, m.View(), "up to date")
}

func TestIndexModel_Quit(t *testing.T) {
	m := newIndexModel(NewProgressTracker(), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestIndexModel_WindowResize(t *testing.T) {
	m := newIndexModel(NewProgressTracker(), "")

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m 5s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.go", truncatePath("short.go", 20))

	got := truncatePath("internal/very/deep/package/file.go", 20)
	assert.Len(t, got, 20)
	assert.True(t, len(got) <= 20)
	assert.Contains(t, got, "file.go")
	assert.Equal(t, "...", truncatePath("abcdef", 3))
}
