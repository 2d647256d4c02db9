package watcher

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/amanidx/internal/telemetry"
)

// Debounce windows per source.
const (
	DefaultCodeDebounce      = time.Second
	DefaultKnowledgeDebounce = 300 * time.Millisecond
)

// State of a Scheduler.
type State int

const (
	StateIdle State = iota
	StateChangeObserved
	StateDebouncing
	StateReindexing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChangeObserved:
		return "change_observed"
	case StateDebouncing:
		return "debouncing"
	case StateReindexing:
		return "reindexing"
	default:
		return "unknown"
	}
}

// ReindexFunc runs one rebuild for a coalesced batch of events.
type ReindexFunc func(ctx context.Context, batch []FileEvent) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Source labels logs and metrics, e.g. "code" or "knowledge".
	Source string
	// Window is the quiet period before a rebuild. Default: 1s.
	Window  time.Duration
	Reindex ReindexFunc
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// OnState is called on every transition. Optional.
	OnState func(State)
}

// Scheduler turns a stream of file events into debounced rebuilds.
//
// Idle -> ChangeObserved on the first event, then Debouncing with a timer.
// Every event while Debouncing restarts the timer. When it fires the
// coalesced batch is handed to Reindex. Events that arrive while Reindexing
// are kept and start a new debounce cycle once the run returns. A failed
// run is logged and the scheduler goes back to Idle.
type Scheduler struct {
	cfg SchedulerConfig

	mu      sync.Mutex
	state   State
	pending map[string]*pendingEvent
	timer   *time.Timer
	gen     uint64

	notify  chan FileEvent
	fire    chan uint64
	runDone chan error
	stopCh  chan struct{}
	done    chan struct{}

	watcher  Watcher
	stopOnce sync.Once
	started  bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultCodeDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Source == "" {
		cfg.Source = "code"
	}
	return &Scheduler{
		cfg:     cfg,
		pending: make(map[string]*pendingEvent),
		notify:  make(chan FileEvent, 256),
		fire:    make(chan uint64),
		runDone: make(chan error, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start consumes w's events until Stop or ctx cancellation. The scheduler
// owns w from here on and stops it in Stop. w may be nil, in which case
// events only arrive through Notify.
func (s *Scheduler) Start(ctx context.Context, w Watcher) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.watcher = w
	s.mu.Unlock()

	var events <-chan FileEvent
	var errs <-chan error
	if w != nil {
		events = w.Events()
		errs = w.Errors()
	}
	go s.loop(ctx, events, errs)
}

// Notify injects an event as if the watcher had produced it.
func (s *Scheduler) Notify(ev FileEvent) {
	select {
	case s.notify <- ev:
	case <-s.stopCh:
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending is the number of coalesced paths waiting for the next run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels the debounce timer, waits for the loop (and any in-flight
// run) to finish, and stops the watcher. Safe to call more than once.
func (s *Scheduler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		started := s.started
		w := s.watcher
		s.mu.Unlock()

		if started {
			<-s.done
		}
		if w != nil {
			err = w.Stop()
		}
	})
	return err
}

func (s *Scheduler) loop(ctx context.Context, events <-chan FileEvent, errs <-chan error) {
	defer close(s.done)
	running := false

	for {
		select {
		case <-ctx.Done():
			s.drain(running)
			return
		case <-s.stopCh:
			s.drain(running)
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.observe(ev)
		case ev := <-s.notify:
			s.observe(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.cfg.Logger.Warn("watcher error",
				slog.String("source", s.cfg.Source),
				slog.String("error", err.Error()))

		case gen := <-s.fire:
			batch := s.beginRun(gen)
			if batch == nil {
				continue
			}
			running = true
			go func() {
				// Rebuilds are not preemptible once started.
				s.runDone <- s.cfg.Reindex(context.WithoutCancel(ctx), batch)
			}()
		case err := <-s.runDone:
			running = false
			s.finishRun(err)
		}
	}
}

// drain waits for an in-flight run so Stop never returns mid-rebuild.
func (s *Scheduler) drain(running bool) {
	if running {
		err := <-s.runDone
		if err != nil {
			s.logRunError(err)
		}
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *Scheduler) observe(ev FileEvent) {
	s.cfg.Metrics.WatchEvent(s.cfg.Source, ev.Operation.String())

	s.mu.Lock()
	s.addLocked(ev)
	switch s.state {
	case StateIdle:
		s.setStateLocked(StateChangeObserved)
		s.armLocked()
	case StateDebouncing, StateChangeObserved:
		s.armLocked()
	case StateReindexing:
		// Picked up by finishRun.
	}
	s.mu.Unlock()
}

// armLocked (re)starts the debounce timer and enters Debouncing.
func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.Window, func() {
		select {
		case s.fire <- gen:
		case <-s.stopCh:
		}
	})
	s.setStateLocked(StateDebouncing)
}

// beginRun ignores fires from timers that were re-armed after sending.
func (s *Scheduler) beginRun(gen uint64) []FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDebouncing || gen != s.gen {
		return nil
	}
	if len(s.pending) == 0 {
		// Every change cancelled out.
		s.setStateLocked(StateIdle)
		return nil
	}
	batch := s.takeLocked()
	s.setStateLocked(StateReindexing)
	s.cfg.Logger.Debug("debounce window elapsed, reindexing",
		slog.String("source", s.cfg.Source),
		slog.Int("changes", len(batch)))
	return batch
}

func (s *Scheduler) finishRun(err error) {
	if err != nil {
		s.logRunError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		s.armLocked()
		return
	}
	s.setStateLocked(StateIdle)
}

func (s *Scheduler) logRunError(err error) {
	s.cfg.Logger.Error("scheduled reindex failed",
		slog.String("source", s.cfg.Source),
		slog.String("error", err.Error()))
}

func (s *Scheduler) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// addLocked coalesces ev into the pending set:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY
//   - anything else keeps the latest event
func (s *Scheduler) addLocked(ev FileEvent) {
	existing, ok := s.pending[ev.Path]
	if !ok {
		s.pending[ev.Path] = &pendingEvent{event: ev, firstOp: ev.Operation}
		return
	}

	switch existing.firstOp {
	case OpCreate:
		switch ev.Operation {
		case OpModify:
			return
		case OpDelete:
			delete(s.pending, ev.Path)
			return
		}
	case OpDelete:
		if ev.Operation == OpCreate {
			ev.Operation = OpModify
		}
	}
	existing.event = ev
}

func (s *Scheduler) takeLocked() []FileEvent {
	batch := make([]FileEvent, 0, len(s.pending))
	for _, pe := range s.pending {
		batch = append(batch, pe.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	s.pending = make(map[string]*pendingEvent)
	return batch
}
