// Package async tracks indexing progress and runs indexing in the background.
package async

import (
	"sync"
	"time"
)

// IndexingStatus is the overall state of the index.
type IndexingStatus string

const (
	StatusIdle     IndexingStatus = "idle"
	StatusIndexing IndexingStatus = "indexing"
	StatusReady    IndexingStatus = "ready"
	StatusError    IndexingStatus = "error"
)

// IndexingStage is the pipeline step of a running rebuild.
type IndexingStage string

const (
	StageScanning   IndexingStage = "scanning"
	StageDetecting  IndexingStage = "detecting"
	StageBuilding   IndexingStage = "building"
	StageEmbedding  IndexingStage = "embedding"
	StagePersisting IndexingStage = "persisting"
)

// IndexProgressSnapshot is an immutable copy of IndexProgress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	CurrentFile    string  `json:"current_file,omitempty"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress is safe for concurrent use. One instance lives for the
// lifetime of an engine and is reset by Begin at the start of every run.
type IndexProgress struct {
	mu sync.RWMutex

	status         IndexingStatus
	stage          IndexingStage
	filesTotal     int
	filesProcessed int
	currentFile    string
	startTime      time.Time
	errorMessage   string
}

// NewIndexProgress returns an idle tracker.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{status: StatusIdle}
}

// Begin starts a new run and clears the previous one's counters and error.
func (p *IndexProgress) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = StageScanning
	p.filesTotal = 0
	p.filesProcessed = 0
	p.currentFile = ""
	p.errorMessage = ""
	p.startTime = time.Now()
}

// Reset returns the tracker to idle, as after clearing the index.
func (p *IndexProgress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIdle
	p.stage = ""
	p.filesTotal = 0
	p.filesProcessed = 0
	p.currentFile = ""
	p.errorMessage = ""
	p.startTime = time.Time{}
}

// SetStage moves to stage and resets the processed counter against total.
func (p *IndexProgress) SetStage(stage IndexingStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
	p.filesProcessed = 0
	p.currentFile = ""
}

// Advance records one more processed file.
func (p *IndexProgress) Advance(file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed++
	p.currentFile = file
}

// UpdateFiles sets the processed count directly.
func (p *IndexProgress) UpdateFiles(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
}

func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
	p.currentFile = ""
}

func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.filesProcessed = p.filesTotal
	p.currentFile = ""
}

func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	switch {
	case p.status == StatusReady:
		pct = 100
	case p.filesTotal > 0:
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
		if pct > 100 {
			pct = 100
		}
	}

	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(time.Since(p.startTime).Seconds())
	}

	snap := IndexProgressSnapshot{
		Status:         string(p.status),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		CurrentFile:    p.currentFile,
		ProgressPct:    pct,
		ElapsedSeconds: elapsed,
		ErrorMessage:   p.errorMessage,
	}
	if p.status == StatusIndexing {
		snap.Stage = string(p.stage)
	}
	return snap
}
