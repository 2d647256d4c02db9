package ui

import (
	"sync"
	"time"
)

// rateSmoothing weighs a new throughput sample against the running rate.
const rateSmoothing = 0.3

// ProgressTracker holds the state the TUI draws. It is safe for concurrent
// use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	started     time.Time
	stageStart  time.Time

	lastCurrent int
	lastSample  time.Time
	rate        float64

	errors   int
	warnings int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	Rate        float64
	ETA         time.Duration
	Elapsed     time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageScanning, started: now, stageStart: now, lastSample: now}
}

// SetStage moves to stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.lastCurrent = 0
	p.lastSample = now
	p.rate = 0
}

// Update records progress within the current stage. Throughput is sampled
// at most every 250ms.
func (p *ProgressTracker) Update(current, total int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	if total > 0 {
		p.total = total
	}
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < 250*time.Millisecond {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		sample := float64(delta) / elapsed.Seconds()
		if p.rate == 0 {
			p.rate = sample
		} else {
			p.rate = rateSmoothing*sample + (1-rateSmoothing)*p.rate
		}
	}
	p.lastCurrent = current
	p.lastSample = now
}

func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Rate:        p.rate,
		Elapsed:     time.Since(p.started),
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		st.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if p.rate > 0 && p.current < p.total {
		st.ETA = time.Duration(float64(p.total-p.current) / p.rate * float64(time.Second))
	}
	return st
}
